// Package storage defines the persistence contract of §4.7/§6: durable
// transaction records, relayer metadata, and the tables the queue and
// orchestrator rehydrate from on restart. Grounded on the chainlink
// bulletprooftxmanager broadcaster's use of a thin Store in front of
// Postgres (other_examples/62200006_*), this package separates the
// contract (Store) from its Postgres implementation (postgres.go) so the
// queue and orchestrator depend only on the interface.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/signer"
)

// Transaction is the persisted row for §3's Transaction entity.
type Transaction struct {
	ID                uuid.UUID
	RelayerID         uuid.UUID
	From              chain.Address
	To                chain.Address
	Value             *uint256.Int
	Data              []byte
	ChainID           chain.ID
	Nonce             *uint64
	GasLimit          uint64
	Speed             chain.Speed
	Status            chain.Status
	KnownHash         *chain.Hash
	SentGasPrice      *uint256.Int
	SentMaxFee        *uint256.Int
	SentMaxPriority   *uint256.Int
	SentBlobGas       *uint256.Int
	ExternalID        *string
	QueuedAt          time.Time
	ExpiresAt         *time.Time
	SentAt            *time.Time
	MinedAt           *time.Time
	ConfirmedAt       *time.Time
	FailedAt          *time.Time
	IsNoop            bool
	// CompetitiveSetID groups every sibling that shares a nonce (§3, §9);
	// the first transaction in a set is its own set id.
	CompetitiveSetID uuid.UUID
	SentBlock        *uint64
}

// AllowlistEntry is §3's `(relayer_id, address)` pair.
type AllowlistEntry struct {
	RelayerID uuid.UUID
	Address   chain.Address
}

// APIKey binds an opaque key string to a relayer (§3).
type APIKey struct {
	Key       string
	RelayerID uuid.UUID
	CreatedAt time.Time
}

// SignedHistoryRecord is §3's signed-history record, for both text and
// EIP-712 typed-data signing operations.
type SignedHistoryRecord struct {
	ID              uuid.UUID
	RelayerID       uuid.UUID
	ChainID         chain.ID
	MessageOrTyped  []byte
	Signature       []byte
	Timestamp       time.Time
}

// WebhookJob is §4.8's delivery job row.
type WebhookJob struct {
	ID            uuid.UUID
	EventType     string
	Payload       []byte
	TargetURL     string
	Attempt       int
	NextAttemptAt time.Time
	DeliveredAt   *time.Time
}

// RateLimitUsage is one reserved row of §4.6's sliding window.
type RateLimitUsage struct {
	Scope       string
	Key         string
	Operation   string
	WindowStart time.Time
	Committed   bool
}

// Store is the full persistence contract. Every state transition the
// queue or orchestrator makes is written here before any externally
// visible effect (webhook, HTTP response) per §4.7.
type Store interface {
	// Relayers
	CreateRelayer(ctx context.Context, r relayer.Relayer) error
	GetRelayer(ctx context.Context, id uuid.UUID) (relayer.Relayer, error)
	UpdateRelayer(ctx context.Context, r relayer.Relayer) error
	SoftDeleteRelayer(ctx context.Context, id uuid.UUID) error
	ListRelayers(ctx context.Context, chainID *chain.ID, limit, offset int) ([]relayer.Relayer, error)

	GetQueueConfig(ctx context.Context, relayerID uuid.UUID) (relayer.QueueConfig, error)
	SaveQueueConfig(ctx context.Context, relayerID uuid.UUID, cfg relayer.QueueConfig) error

	// Allowlist
	AddAllowlistEntry(ctx context.Context, e AllowlistEntry) error
	RemoveAllowlistEntry(ctx context.Context, relayerID uuid.UUID, addr chain.Address) error
	IsAllowlisted(ctx context.Context, relayerID uuid.UUID, addr chain.Address) (bool, error)
	AllowlistEmpty(ctx context.Context, relayerID uuid.UUID) (bool, error)

	// API keys
	ResolveAPIKey(ctx context.Context, key string) (uuid.UUID, error)
	CreateAPIKey(ctx context.Context, k APIKey) error

	// Transactions
	InsertTransaction(ctx context.Context, tx Transaction) error
	UpdateTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error)
	// LoadNonTerminalByRelayer rehydrates pending/in-mempool/mined state on
	// startup, ordered by nonce (§4.7).
	LoadNonTerminalByRelayer(ctx context.Context, relayerID uuid.UUID) ([]Transaction, error)
	CountByStatus(ctx context.Context, relayerID uuid.UUID, statuses ...chain.Status) (int, error)

	// Signing history
	InsertSignedHistory(ctx context.Context, rec SignedHistoryRecord) error

	// Webhooks
	EnqueueWebhookJob(ctx context.Context, job WebhookJob) error
	DueWebhookJobs(ctx context.Context, now time.Time, limit int) ([]WebhookJob, error)
	MarkWebhookDelivered(ctx context.Context, id uuid.UUID) error
	RescheduleWebhookJob(ctx context.Context, id uuid.UUID, next time.Time) error

	// Rate limiting
	ReserveRateLimitUsage(ctx context.Context, scope, key, operation string, windowStart time.Time) (int, error)
	CommitRateLimitUsage(ctx context.Context, scope, key, operation string, windowStart time.Time) error
	CleanupRateLimitUsage(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// WalletIndexAllocator hands out the next free HD wallet index for a new
// relayer (S5: concurrent relayer creation must allocate unique indices
// race-free). Backed by a DB sequence in the Postgres implementation so
// concurrent orchestrators never collide.
type WalletIndexAllocator interface {
	NextWalletIndex(ctx context.Context) (signer.WalletIndex, error)
}
