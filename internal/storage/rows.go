package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/signer"
)

// relayerRow is the sqlx scan target for relayer.record; NUMERIC/BYTEA
// columns land as strings/[]byte and are converted in toDomain.
type relayerRow struct {
	ID                 uuid.UUID  `db:"id"`
	Name               string     `db:"name"`
	ChainID            int64      `db:"chain_id"`
	Address            []byte     `db:"address"`
	WalletIndex        int64      `db:"wallet_index"`
	ClonedFromChainID  *int64     `db:"cloned_from_chain_id"`
	MaxGasPrice        *string    `db:"max_gas_price"`
	MaxGasPriceMult    float64    `db:"max_gas_price_multiplier"`
	Paused             bool       `db:"paused"`
	EIP1559Enabled     bool       `db:"eip1559_enabled"`
	IsPrivateKey       bool       `db:"is_private_key"`
	CreatedAt          time.Time  `db:"created_at"`
	DeletedAt          *time.Time `db:"deleted_at"`
}

func (r relayerRow) toDomain() relayer.Relayer {
	out := relayer.Relayer{
		ID:                    r.ID,
		Name:                  r.Name,
		ChainID:               chain.ID(r.ChainID),
		WalletIndex:           signer.WalletIndex(r.WalletIndex),
		MaxGasPriceMultiplier: r.MaxGasPriceMult,
		Paused:                r.Paused,
		EIP1559Enabled:        r.EIP1559Enabled,
		IsPrivateKey:          r.IsPrivateKey,
		CreatedAt:             r.CreatedAt,
		DeletedAt:             r.DeletedAt,
	}
	copy(out.Address[:], r.Address)
	if r.ClonedFromChainID != nil {
		id := chain.ID(*r.ClonedFromChainID)
		out.ClonedFromChainID = &id
	}
	if r.MaxGasPrice != nil {
		out.MaxGasPrice = mustUint256(*r.MaxGasPrice)
	}
	return out
}

// txRow is the sqlx scan target for relayer.transaction.
type txRow struct {
	ID               uuid.UUID  `db:"id"`
	RelayerID        uuid.UUID  `db:"relayer_id"`
	CompetitiveSetID uuid.UUID  `db:"competitive_set_id"`
	From             []byte     `db:"from_address"`
	To               []byte     `db:"to_address"`
	Value            string     `db:"value"`
	Data             []byte     `db:"data"`
	ChainID          int64      `db:"chain_id"`
	Nonce            *int64     `db:"nonce"`
	GasLimit         int64      `db:"gas_limit"`
	Speed            string     `db:"speed"`
	Status           string     `db:"status"`
	KnownHash        []byte     `db:"known_hash"`
	SentGasPrice     *string    `db:"sent_gas_price"`
	SentMaxFee       *string    `db:"sent_max_fee"`
	SentMaxPriority  *string    `db:"sent_max_priority"`
	SentBlobGas      *string    `db:"sent_blob_gas"`
	SentBlock        *int64     `db:"sent_block"`
	ExternalID       *string    `db:"external_id"`
	IsNoop           bool       `db:"is_noop"`
	QueuedAt         time.Time  `db:"queued_at"`
	ExpiresAt        *time.Time `db:"expires_at"`
	SentAt           *time.Time `db:"sent_at"`
	MinedAt          *time.Time `db:"mined_at"`
	ConfirmedAt      *time.Time `db:"confirmed_at"`
	FailedAt         *time.Time `db:"failed_at"`
}

func (r txRow) toDomain() Transaction {
	out := Transaction{
		ID:               r.ID,
		RelayerID:        r.RelayerID,
		CompetitiveSetID: r.CompetitiveSetID,
		Data:             r.Data,
		ChainID:          chain.ID(r.ChainID),
		GasLimit:         uint64(r.GasLimit),
		Speed:            chain.Speed(r.Speed),
		Status:           chain.Status(r.Status),
		ExternalID:       r.ExternalID,
		IsNoop:           r.IsNoop,
		QueuedAt:         r.QueuedAt,
		ExpiresAt:        r.ExpiresAt,
		SentAt:           r.SentAt,
		MinedAt:          r.MinedAt,
		ConfirmedAt:      r.ConfirmedAt,
		FailedAt:         r.FailedAt,
		Value:            mustUint256(orZero(r.Value)),
	}
	copy(out.From[:], r.From)
	copy(out.To[:], r.To)
	if r.Nonce != nil {
		n := uint64(*r.Nonce)
		out.Nonce = &n
	}
	if r.SentBlock != nil {
		b := uint64(*r.SentBlock)
		out.SentBlock = &b
	}
	if len(r.KnownHash) == 32 {
		var h chain.Hash
		copy(h[:], r.KnownHash)
		out.KnownHash = &h
	}
	out.SentGasPrice = optUint256(r.SentGasPrice)
	out.SentMaxFee = optUint256(r.SentMaxFee)
	out.SentMaxPriority = optUint256(r.SentMaxPriority)
	out.SentBlobGas = optUint256(r.SentBlobGas)
	return out
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func optUint256(s *string) *uint256.Int {
	if s == nil {
		return nil
	}
	return mustUint256(*s)
}

const selectTransactionSQL = `
	SELECT id, relayer_id, competitive_set_id, from_address, to_address, value, data, chain_id, nonce,
		gas_limit, speed, status, known_hash, sent_gas_price, sent_max_fee, sent_max_priority,
		sent_blob_gas, sent_block, external_id, is_noop, queued_at, expires_at, sent_at, mined_at,
		confirmed_at, failed_at
	FROM relayer.transaction`

const insertTransactionSQL = `
	INSERT INTO relayer.transaction (id, relayer_id, competitive_set_id, from_address, to_address, value,
		data, chain_id, nonce, gas_limit, speed, status, known_hash, sent_gas_price, sent_max_fee,
		sent_max_priority, sent_blob_gas, sent_block, external_id, is_noop, queued_at, expires_at,
		sent_at, mined_at, confirmed_at, failed_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`

const updateTransactionSQL = `
	UPDATE relayer.transaction SET relayer_id=$2, competitive_set_id=$3, from_address=$4, to_address=$5,
		value=$6, data=$7, chain_id=$8, nonce=$9, gas_limit=$10, speed=$11, status=$12, known_hash=$13,
		sent_gas_price=$14, sent_max_fee=$15, sent_max_priority=$16, sent_blob_gas=$17, sent_block=$18,
		external_id=$19, is_noop=$20, queued_at=$21, expires_at=$22, sent_at=$23, mined_at=$24,
		confirmed_at=$25, failed_at=$26
	WHERE id=$1`

func txArgs(tx Transaction) []interface{} {
	var knownHash interface{}
	if tx.KnownHash != nil {
		knownHash = tx.KnownHash[:]
	}
	var nonce interface{}
	if tx.Nonce != nil {
		nonce = *tx.Nonce
	}
	var sentBlock interface{}
	if tx.SentBlock != nil {
		sentBlock = *tx.SentBlock
	}
	return []interface{}{
		tx.ID, tx.RelayerID, tx.CompetitiveSetID, tx.From.Bytes(), tx.To.Bytes(), numericArg(tx.Value),
		tx.Data, uint64(tx.ChainID), nonce, tx.GasLimit, string(tx.Speed), string(tx.Status), knownHash,
		numericArg(tx.SentGasPrice), numericArg(tx.SentMaxFee), numericArg(tx.SentMaxPriority),
		numericArg(tx.SentBlobGas), sentBlock, tx.ExternalID, tx.IsNoop, tx.QueuedAt, tx.ExpiresAt,
		tx.SentAt, tx.MinedAt, tx.ConfirmedAt, tx.FailedAt,
	}
}
