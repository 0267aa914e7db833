package txqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/metrics"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/signer"
	"github.com/rrelayer/rrelayer/internal/storage"
)

// broadcastPlan is the fully-resolved shape of one sibling about to be
// signed and sent: either a fresh competitive set (existingID set, the
// pending transaction's own row is reused) or a new sibling joining an
// existing set (existingID nil, a fresh row is inserted).
type broadcastPlan struct {
	nonce            uint64
	relayerID        uuid.UUID
	competitiveSetID uuid.UUID
	to               chain.Address
	value            *uint256.Int
	data             []byte
	speed            chain.Speed
	externalID       *string
	isNoop           bool
	gasLimit         uint64
	maxFee           *uint256.Int
	maxPriority      *uint256.Int
	existingID       *uuid.UUID
}

// signAndBroadcast signs plan with the relayer's signer and sends it via
// the provider, persisting the resulting row before returning (§4.7
// ordering: DB write before any externally visible effect — here, a
// broadcast is itself the externally visible effect, so the row reflects
// sent_at/known_hash from the same call that performs it).
func (q *Queue) signAndBroadcast(ctx context.Context, plan broadcastPlan) (storage.Transaction, error) {
	cfg := q.QueueConfig()
	legacy := cfg.IsLegacyTransactions

	typedTx := signer.TypedTx{
		ChainID:              q.relayer.ChainID,
		Nonce:                plan.nonce,
		To:                   &plan.to,
		Value:                plan.value.ToBig(),
		Data:                 plan.data,
		GasLimit:             plan.gasLimit,
		MaxFeePerGas:         plan.maxFee.ToBig(),
		MaxPriorityFeePerGas: plan.maxPriority.ToBig(),
		Legacy:               legacy,
	}
	if legacy {
		typedTx.GasPrice = plan.maxFee.ToBig()
	}

	signed, err := q.signer.SignTransaction(ctx, q.relayer.WalletIndex, typedTx)
	if err != nil {
		return storage.Transaction{}, fmt.Errorf("txqueue: sign: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return storage.Transaction{}, fmt.Errorf("txqueue: encode signed transaction: %w", err)
	}
	hash, err := q.provider.SendRawTransaction(ctx, raw)
	if err != nil {
		metrics.BroadcastFailureCount.Inc(1)
		return storage.Transaction{}, err
	}
	metrics.BroadcastCount.Inc(1)

	// sentBlock anchors the gas-bump cadence (tick.go's head >=
	// sentBlock+GasBumpBlocksEvery) and must survive a restart via
	// rehydrate, so it's read and persisted here rather than left to the
	// caller's in-memory competitiveSet.
	sentBlock, err := q.provider.BlockNumber(ctx)
	if err != nil {
		log.Warn("txqueue: read head for sent_block failed, recording 0", "relayer", q.relayer.ID, "err", err)
	}

	now := time.Now()
	var id uuid.UUID
	if plan.existingID != nil {
		id = *plan.existingID
	} else {
		id = uuid.New()
	}
	row := storage.Transaction{
		ID:               id,
		RelayerID:        plan.relayerID,
		CompetitiveSetID: plan.competitiveSetID,
		From:             q.relayer.Address,
		To:               plan.to,
		Value:            plan.value,
		Data:             plan.data,
		ChainID:          q.relayer.ChainID,
		Nonce:            &plan.nonce,
		GasLimit:         plan.gasLimit,
		Speed:            plan.speed,
		Status:           chain.StatusInMempool,
		KnownHash:        &hash,
		SentMaxFee:       plan.maxFee,
		SentMaxPriority:  plan.maxPriority,
		ExternalID:       plan.externalID,
		IsNoop:           plan.isNoop,
		QueuedAt:         now,
		SentAt:           &now,
		SentBlock:        blockPtr(sentBlock),
	}
	if plan.existingID != nil {
		if err := q.store.UpdateTransaction(ctx, row); err != nil {
			return storage.Transaction{}, fmt.Errorf("txqueue: persist broadcast: %w", err)
		}
	} else {
		if err := q.store.InsertTransaction(ctx, row); err != nil {
			return storage.Transaction{}, fmt.Errorf("txqueue: persist broadcast sibling: %w", err)
		}
	}
	return row, nil
}

func blockPtr(v uint64) *uint64 { return &v }

// broadcastReplacement signs and sends a new sibling for an existing
// competitive set at its original nonce (§4.2.4: "gas parameters computed
// as in §4.2.3 against the new intent's speed"), then appends it to the
// set.
func (q *Queue) broadcastReplacement(ctx context.Context, set *competitiveSet, newIntent Intent) (uuid.UUID, *chain.Hash, error) {
	estimate, ok := q.gasCache.Main(q.relayer.ChainID)
	if !ok {
		return uuid.Nil, nil, fmt.Errorf("txqueue: gas oracle unavailable for chain %d", q.relayer.ChainID)
	}
	speedParams := estimate.For(newIntent.Speed)
	cfg := q.QueueConfig()
	cap := effectiveCapFromConfig(cfg)
	maxFee, maxPriority := speedParams.MaxFee, speedParams.MaxPriorityFee
	if cap != nil && maxFee.Cmp(cap) > 0 {
		maxFee = cap
	}
	gasLimit := set.live().GasLimit
	row, err := q.signAndBroadcast(ctx, broadcastPlan{
		nonce:            set.nonce,
		relayerID:        q.relayer.ID,
		competitiveSetID: set.id,
		to:               newIntent.To,
		value:            valueOrZeroU256(newIntent.Value),
		data:             newIntent.Data,
		speed:            newIntent.Speed,
		externalID:       newIntent.ExternalID,
		isNoop:           newIntent.To == q.relayer.Address && len(newIntent.Data) == 0,
		gasLimit:         gasLimit,
		maxFee:           maxFee,
		maxPriority:      maxPriority,
	})
	if err != nil {
		return uuid.Nil, nil, err
	}
	set.siblings = append(set.siblings, row)
	if row.SentBlock != nil {
		set.sentBlock = *row.SentBlock
	}
	return row.ID, row.KnownHash, nil
}

func effectiveCapFromConfig(cfg relayer.QueueConfig) *uint256.Int {
	return effectiveCap(cfg)
}
