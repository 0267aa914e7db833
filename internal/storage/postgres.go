package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/signer"
)

// Postgres is the Store implementation backed by github.com/jackc/pgx/v5
// through github.com/jmoiron/sqlx, the same driver/query-builder pairing
// the chainlink broadcaster (other_examples/62200006_*) is built on.
type Postgres struct {
	db *sqlx.DB
}

// Open connects using a pgx connection pool wrapped for database/sql so
// sqlx's named-query convenience methods are usable, mirroring how the
// chainlink file wraps smartcontractkit/sqlx around a pool rather than
// issuing raw pgx calls everywhere.
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "storage: connect")
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	db := sqlx.NewDb(sqlDB, "pgx")
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "storage: ping")
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the additive, versioned schema of §6: schemas relayer,
// network, signing, authentication, rate_limit. Idempotent so it can run
// on every startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "storage: migrate: %s", stmt)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS relayer`,
	`CREATE SCHEMA IF NOT EXISTS network`,
	`CREATE SCHEMA IF NOT EXISTS signing`,
	`CREATE SCHEMA IF NOT EXISTS authentication`,
	`CREATE SCHEMA IF NOT EXISTS rate_limit`,
	`CREATE TABLE IF NOT EXISTS relayer.record (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		address BYTEA NOT NULL,
		wallet_index BIGINT NOT NULL,
		cloned_from_chain_id BIGINT,
		max_gas_price NUMERIC,
		max_gas_price_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		paused BOOLEAN NOT NULL DEFAULT FALSE,
		eip1559_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		is_private_key BOOLEAN NOT NULL DEFAULT FALSE,
		is_allowlisted_only BOOLEAN NOT NULL DEFAULT FALSE,
		is_legacy_transactions BOOLEAN NOT NULL DEFAULT FALSE,
		gas_bump_blocks_every BIGINT NOT NULL DEFAULT 3,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE SEQUENCE IF NOT EXISTS relayer.wallet_index_seq`,
	`CREATE TABLE IF NOT EXISTS relayer.allowlist (
		relayer_id UUID NOT NULL,
		address BYTEA NOT NULL,
		PRIMARY KEY (relayer_id, address)
	)`,
	`CREATE TABLE IF NOT EXISTS authentication.api_key (
		key TEXT PRIMARY KEY,
		relayer_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS relayer.transaction (
		id UUID PRIMARY KEY,
		relayer_id UUID NOT NULL,
		competitive_set_id UUID NOT NULL,
		from_address BYTEA NOT NULL,
		to_address BYTEA NOT NULL,
		value NUMERIC NOT NULL,
		data BYTEA,
		chain_id BIGINT NOT NULL,
		nonce BIGINT,
		gas_limit BIGINT NOT NULL,
		speed TEXT NOT NULL,
		status TEXT NOT NULL,
		known_hash BYTEA,
		sent_gas_price NUMERIC,
		sent_max_fee NUMERIC,
		sent_max_priority NUMERIC,
		sent_blob_gas NUMERIC,
		sent_block BIGINT,
		external_id TEXT,
		is_noop BOOLEAN NOT NULL DEFAULT FALSE,
		queued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ,
		sent_at TIMESTAMPTZ,
		mined_at TIMESTAMPTZ,
		confirmed_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS transaction_relayer_nonce_idx ON relayer.transaction (relayer_id, nonce)`,
	`CREATE INDEX IF NOT EXISTS transaction_relayer_status_idx ON relayer.transaction (relayer_id, status)`,
	`CREATE TABLE IF NOT EXISTS signing.text_history (
		id UUID PRIMARY KEY,
		relayer_id UUID NOT NULL,
		chain_id BIGINT NOT NULL,
		payload BYTEA NOT NULL,
		signature BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS relayer.webhook_job (
		id UUID PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload BYTEA NOT NULL,
		target_url TEXT NOT NULL,
		attempt INT NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		delivered_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS webhook_job_due_idx ON relayer.webhook_job (next_attempt_at) WHERE delivered_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS rate_limit.usage (
		id BIGSERIAL PRIMARY KEY,
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		operation TEXT NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		committed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// One row per reservation, not per window: the window's usage count is
	// the number of rows sharing (scope, key, operation, window_start),
	// so this index carries the hot query's full predicate.
	`CREATE INDEX IF NOT EXISTS usage_window_idx ON rate_limit.usage (scope, key, operation, window_start)`,
}

func (p *Postgres) NextWalletIndex(ctx context.Context) (signer.WalletIndex, error) {
	var v int64
	if err := p.db.GetContext(ctx, &v, `SELECT nextval('relayer.wallet_index_seq')`); err != nil {
		return 0, errors.Wrap(err, "storage: next wallet index")
	}
	return signer.WalletIndex(v), nil
}

func (p *Postgres) CreateRelayer(ctx context.Context, r relayer.Relayer) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO relayer.record (id, name, chain_id, address, wallet_index, cloned_from_chain_id,
			max_gas_price, max_gas_price_multiplier, paused, eip1559_enabled, is_private_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.Name, uint64(r.ChainID), r.Address.Bytes(), uint32(r.WalletIndex), clonedFromArg(r.ClonedFromChainID),
		numericArg(r.MaxGasPrice), r.MaxGasPriceMultiplier, r.Paused, r.EIP1559Enabled, r.IsPrivateKey, r.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "storage: create relayer")
	}
	return nil
}

func (p *Postgres) GetRelayer(ctx context.Context, id uuid.UUID) (relayer.Relayer, error) {
	row := p.db.QueryRowxContext(ctx, `
		SELECT id, name, chain_id, address, wallet_index, cloned_from_chain_id, max_gas_price,
			max_gas_price_multiplier, paused, eip1559_enabled, is_private_key, created_at, deleted_at
		FROM relayer.record WHERE id = $1`, id)
	var rec relayerRow
	if err := row.StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return relayer.Relayer{}, ErrNotFound
		}
		return relayer.Relayer{}, errors.Wrap(err, "storage: get relayer")
	}
	return rec.toDomain(), nil
}

func (p *Postgres) UpdateRelayer(ctx context.Context, r relayer.Relayer) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE relayer.record SET name=$2, max_gas_price=$3, max_gas_price_multiplier=$4,
			paused=$5, eip1559_enabled=$6 WHERE id=$1`,
		r.ID, r.Name, numericArg(r.MaxGasPrice), r.MaxGasPriceMultiplier, r.Paused, r.EIP1559Enabled)
	if err != nil {
		return errors.Wrap(err, "storage: update relayer")
	}
	return nil
}

func (p *Postgres) SoftDeleteRelayer(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.ExecContext(ctx, `UPDATE relayer.record SET deleted_at = now() WHERE id = $1`, id)
	return errors.Wrap(err, "storage: soft delete relayer")
}

func (p *Postgres) ListRelayers(ctx context.Context, chainID *chain.ID, limit, offset int) ([]relayer.Relayer, error) {
	var rows []relayerRow
	var err error
	if chainID != nil {
		err = p.db.SelectContext(ctx, &rows, `
			SELECT id, name, chain_id, address, wallet_index, cloned_from_chain_id, max_gas_price,
				max_gas_price_multiplier, paused, eip1559_enabled, is_private_key, created_at, deleted_at
			FROM relayer.record WHERE chain_id = $1 AND deleted_at IS NULL ORDER BY created_at LIMIT $2 OFFSET $3`,
			uint64(*chainID), limit, offset)
	} else {
		err = p.db.SelectContext(ctx, &rows, `
			SELECT id, name, chain_id, address, wallet_index, cloned_from_chain_id, max_gas_price,
				max_gas_price_multiplier, paused, eip1559_enabled, is_private_key, created_at, deleted_at
			FROM relayer.record WHERE deleted_at IS NULL ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage: list relayers")
	}
	out := make([]relayer.Relayer, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (p *Postgres) GetQueueConfig(ctx context.Context, relayerID uuid.UUID) (relayer.QueueConfig, error) {
	var cfg struct {
		Paused             bool    `db:"paused"`
		AllowlistedOnly    bool    `db:"is_allowlisted_only"`
		LegacyTransactions bool    `db:"is_legacy_transactions"`
		MaxGasPrice        *string `db:"max_gas_price"`
		Multiplier         float64 `db:"max_gas_price_multiplier"`
		BumpBlocksEvery    uint64  `db:"gas_bump_blocks_every"`
	}
	err := p.db.GetContext(ctx, &cfg, `
		SELECT paused, is_allowlisted_only, is_legacy_transactions, max_gas_price,
			max_gas_price_multiplier, gas_bump_blocks_every FROM relayer.record WHERE id = $1`, relayerID)
	if err != nil {
		return relayer.QueueConfig{}, errors.Wrap(err, "storage: get queue config")
	}
	out := relayer.QueueConfig{
		IsPaused:              cfg.Paused,
		IsAllowlistedOnly:     cfg.AllowlistedOnly,
		IsLegacyTransactions:  cfg.LegacyTransactions,
		MaxGasPriceMultiplier: cfg.Multiplier,
		GasBumpBlocksEvery:    cfg.BumpBlocksEvery,
	}
	if cfg.MaxGasPrice != nil {
		out.MaxGasPrice = mustUint256(*cfg.MaxGasPrice)
	}
	return out, nil
}

func (p *Postgres) SaveQueueConfig(ctx context.Context, relayerID uuid.UUID, cfg relayer.QueueConfig) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE relayer.record SET paused=$2, is_allowlisted_only=$3, is_legacy_transactions=$4,
			max_gas_price=$5, max_gas_price_multiplier=$6, gas_bump_blocks_every=$7 WHERE id=$1`,
		relayerID, cfg.IsPaused, cfg.IsAllowlistedOnly, cfg.IsLegacyTransactions,
		numericArg(cfg.MaxGasPrice), cfg.MaxGasPriceMultiplier, cfg.GasBumpBlocksEvery)
	return errors.Wrap(err, "storage: save queue config")
}

func (p *Postgres) AddAllowlistEntry(ctx context.Context, e AllowlistEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO relayer.allowlist (relayer_id, address) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, e.RelayerID, e.Address.Bytes())
	return errors.Wrap(err, "storage: add allowlist entry")
}

func (p *Postgres) RemoveAllowlistEntry(ctx context.Context, relayerID uuid.UUID, addr chain.Address) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM relayer.allowlist WHERE relayer_id = $1 AND address = $2`, relayerID, addr.Bytes())
	return errors.Wrap(err, "storage: remove allowlist entry")
}

func (p *Postgres) IsAllowlisted(ctx context.Context, relayerID uuid.UUID, addr chain.Address) (bool, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `
		SELECT count(*) FROM relayer.allowlist WHERE relayer_id = $1 AND address = $2`, relayerID, addr.Bytes())
	return n > 0, errors.Wrap(err, "storage: is allowlisted")
}

func (p *Postgres) AllowlistEmpty(ctx context.Context, relayerID uuid.UUID) (bool, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `SELECT count(*) FROM relayer.allowlist WHERE relayer_id = $1`, relayerID)
	return n == 0, errors.Wrap(err, "storage: allowlist empty")
}

func (p *Postgres) ResolveAPIKey(ctx context.Context, key string) (uuid.UUID, error) {
	var id uuid.UUID
	err := p.db.GetContext(ctx, &id, `SELECT relayer_id FROM authentication.api_key WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return id, errors.Wrap(err, "storage: resolve api key")
}

func (p *Postgres) CreateAPIKey(ctx context.Context, k APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO authentication.api_key (key, relayer_id, created_at) VALUES ($1,$2,$3)`,
		k.Key, k.RelayerID, k.CreatedAt)
	return errors.Wrap(err, "storage: create api key")
}

func (p *Postgres) InsertTransaction(ctx context.Context, tx Transaction) error {
	_, err := p.db.ExecContext(ctx, insertTransactionSQL, txArgs(tx)...)
	return errors.Wrap(err, "storage: insert transaction")
}

func (p *Postgres) UpdateTransaction(ctx context.Context, tx Transaction) error {
	_, err := p.db.ExecContext(ctx, updateTransactionSQL, txArgs(tx)...)
	return errors.Wrap(err, "storage: update transaction")
}

func (p *Postgres) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	var row txRow
	err := p.db.GetContext(ctx, &row, selectTransactionSQL+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, errors.Wrap(err, "storage: get transaction")
	}
	return row.toDomain(), nil
}

func (p *Postgres) LoadNonTerminalByRelayer(ctx context.Context, relayerID uuid.UUID) ([]Transaction, error) {
	var rows []txRow
	err := p.db.SelectContext(ctx, &rows, selectTransactionSQL+`
		WHERE relayer_id = $1 AND status NOT IN ('confirmed','failed','expired','cancelled')
		ORDER BY nonce ASC NULLS LAST, queued_at ASC`, relayerID)
	if err != nil {
		return nil, errors.Wrap(err, "storage: load non-terminal")
	}
	out := make([]Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (p *Postgres) CountByStatus(ctx context.Context, relayerID uuid.UUID, statuses ...chain.Status) (int, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	var n int
	err := p.db.GetContext(ctx, &n, `
		SELECT count(*) FROM relayer.transaction WHERE relayer_id = $1 AND status = ANY($2)`,
		relayerID, strs)
	return n, errors.Wrap(err, "storage: count by status")
}

func (p *Postgres) InsertSignedHistory(ctx context.Context, rec SignedHistoryRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO signing.text_history (id, relayer_id, chain_id, payload, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.RelayerID, uint64(rec.ChainID), rec.MessageOrTyped, rec.Signature, rec.Timestamp)
	return errors.Wrap(err, "storage: insert signed history")
}

func (p *Postgres) EnqueueWebhookJob(ctx context.Context, job WebhookJob) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO relayer.webhook_job (id, event_type, payload, target_url, attempt, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		job.ID, job.EventType, job.Payload, job.TargetURL, job.Attempt, job.NextAttemptAt)
	return errors.Wrap(err, "storage: enqueue webhook job")
}

func (p *Postgres) DueWebhookJobs(ctx context.Context, now time.Time, limit int) ([]WebhookJob, error) {
	var rows []WebhookJob
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, event_type, payload, target_url, attempt, next_attempt_at, delivered_at
		FROM relayer.webhook_job WHERE delivered_at IS NULL AND next_attempt_at <= $1
		ORDER BY next_attempt_at LIMIT $2`, now, limit)
	return rows, errors.Wrap(err, "storage: due webhook jobs")
}

func (p *Postgres) MarkWebhookDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.ExecContext(ctx, `UPDATE relayer.webhook_job SET delivered_at = now() WHERE id = $1`, id)
	return errors.Wrap(err, "storage: mark webhook delivered")
}

func (p *Postgres) RescheduleWebhookJob(ctx context.Context, id uuid.UUID, next time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE relayer.webhook_job SET attempt = attempt + 1, next_attempt_at = $2 WHERE id = $1`, id, next)
	return errors.Wrap(err, "storage: reschedule webhook job")
}

// ReserveRateLimitUsage inserts one reservation row and returns the
// window's row count including it. The outer SELECT does not see the row
// its own WITH clause inserts, so that row is added to the count.
func (p *Postgres) ReserveRateLimitUsage(ctx context.Context, scope, key, operation string, windowStart time.Time) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `
		WITH ins AS (
			INSERT INTO rate_limit.usage (scope, key, operation, window_start, committed)
			VALUES ($1,$2,$3,$4,FALSE)
			RETURNING 1
		)
		SELECT (SELECT count(*) FROM ins) + count(*) FROM rate_limit.usage
		WHERE scope=$1 AND key=$2 AND operation=$3 AND window_start=$4`,
		scope, key, operation, windowStart)
	if err != nil {
		return 0, errors.Wrap(err, "storage: reserve rate limit usage")
	}
	return n, nil
}

// CommitRateLimitUsage marks the most recent uncommitted reservation in
// this window committed. Reserve/Commit are always called in pairs from
// the same request, so the newest uncommitted row in the window is always
// the one this call is closing out.
func (p *Postgres) CommitRateLimitUsage(ctx context.Context, scope, key, operation string, windowStart time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE rate_limit.usage SET committed = TRUE
		WHERE id = (
			SELECT id FROM rate_limit.usage
			WHERE scope=$1 AND key=$2 AND operation=$3 AND window_start=$4 AND committed = FALSE
			ORDER BY created_at DESC
			LIMIT 1
		)`, scope, key, operation, windowStart)
	return errors.Wrap(err, "storage: commit rate limit usage")
}

func (p *Postgres) CleanupRateLimitUsage(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM rate_limit.usage WHERE window_start < $1`, olderThan)
	if err != nil {
		return 0, errors.Wrap(err, "storage: cleanup rate limit usage")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ErrNotFound is returned for any lookup by id/key that finds no row.
var ErrNotFound = errors.New("storage: not found")

func clonedFromArg(id *chain.ID) interface{} {
	if id == nil {
		return nil
	}
	return uint64(*id)
}

func numericArg(v *uint256.Int) interface{} {
	if v == nil {
		return nil
	}
	return v.Dec()
}

func mustUint256(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		log.Warn("storage: malformed numeric column, treating as zero", "value", s, "err", err)
		return new(uint256.Int)
	}
	return v
}
