package txqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/gas"
	"github.com/rrelayer/rrelayer/internal/metrics"
	"github.com/rrelayer/rrelayer/internal/provider"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/signer"
	"github.com/rrelayer/rrelayer/internal/storage"
	"github.com/rrelayer/rrelayer/internal/webhook"
)

// competitiveSet groups every broadcast sibling of one nonce (§3, §9): the
// live (most recent) sibling is last; any sibling mining cancels the rest.
type competitiveSet struct {
	id        uuid.UUID
	nonce     uint64
	siblings  []storage.Transaction
	sentBlock uint64
}

func (s *competitiveSet) live() storage.Transaction { return s.siblings[len(s.siblings)-1] }

// Queue is the Per-Relayer Queue of §4.2: a single cooperative tick loop
// owning pending/in-mempool/mined state for one (relayer_id, chain_id),
// the way miner/worker.go owns one sealing pipeline per loop.
type Queue struct {
	relayer    relayer.Relayer
	provider   provider.Provider
	signer     *signer.Router
	gasCache   *gas.Cache
	store      storage.Store
	webhooks   *webhook.Dispatcher
	webhookURL string

	confirmationDepth uint64
	tickInterval      time.Duration
	maxGasLimit       uint64

	cfgMu sync.RWMutex
	cfg   relayer.QueueConfig

	pendingMu sync.Mutex
	pending   []pendingEntry

	// inMempool and mined are touched only by the tick goroutine; reads
	// from HTTP handlers go through storage, the source of truth, per
	// §3's "persisted records are the source of truth" ownership rule.
	inMempool []*competitiveSet
	mined     map[uuid.UUID]storage.Transaction

	nonces *nonceManager

	stop chan struct{}
	done chan struct{}
}

// Config bundles the dependencies and per-chain parameters a Queue is
// built from.
type Config struct {
	Relayer           relayer.Relayer
	Provider          provider.Provider
	Signer            *signer.Router
	GasCache          *gas.Cache
	Store             storage.Store
	Webhooks          *webhook.Dispatcher
	WebhookURL        string
	ConfirmationDepth uint64 // §9 open ambiguity: per-chain configurable, default 12/1
	TickInterval      time.Duration
	MaxGasLimit       uint64
}

// New builds and starts a queue: queries the initial nonce, rehydrates
// non-terminal transactions from storage (§4.7 crash recovery), and
// starts the tick goroutine. Mirrors add_new_relayer's contract of only
// returning once the initial nonce query succeeds (§4.1).
func New(ctx context.Context, cfg Config) (*Queue, error) {
	nonces, err := newNonceManager(ctx, cfg.Provider, cfg.Relayer.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	qcfg, err := cfg.Store.GetQueueConfig(ctx, cfg.Relayer.ID)
	if err != nil {
		qcfg = relayer.DefaultQueueConfig()
	}
	q := &Queue{
		relayer:           cfg.Relayer,
		provider:          cfg.Provider,
		signer:            cfg.Signer,
		gasCache:          cfg.GasCache,
		store:             cfg.Store,
		webhooks:          cfg.Webhooks,
		webhookURL:        cfg.WebhookURL,
		confirmationDepth: cfg.ConfirmationDepth,
		tickInterval:      cfg.TickInterval,
		maxGasLimit:       cfg.MaxGasLimit,
		cfg:               qcfg,
		mined:             make(map[uuid.UUID]storage.Transaction),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
	if err := q.rehydrate(ctx); err != nil {
		return nil, fmt.Errorf("txqueue: rehydrate: %w", err)
	}
	go q.loop()
	return q, nil
}

// rehydrate loads every non-terminal transaction for this relayer and
// sorts it back into pending/in-mempool/mined, re-initialising the nonce
// counter to max(on-chain pending nonce, max assigned nonce + 1) per
// §4.7.
func (q *Queue) rehydrate(ctx context.Context) error {
	rows, err := q.store.LoadNonTerminalByRelayer(ctx, q.relayer.ID)
	if err != nil {
		return err
	}
	bySet := make(map[uuid.UUID]*competitiveSet)
	var maxAssigned uint64
	haveAssigned := false
	for _, row := range rows {
		switch row.Status {
		case chain.StatusPending:
			q.pending = append(q.pending, pendingEntry{id: row.ID, queuedAt: row.QueuedAt, expiresAt: row.ExpiresAt, intent: intentFromRow(row)})
		case chain.StatusMined:
			q.mined[row.ID] = row
		default: // in-mempool and its competitive siblings
			set, ok := bySet[row.CompetitiveSetID]
			if !ok {
				set = &competitiveSet{id: row.CompetitiveSetID}
				if row.Nonce != nil {
					set.nonce = *row.Nonce
				}
				if row.SentBlock != nil {
					set.sentBlock = *row.SentBlock
				}
				bySet[row.CompetitiveSetID] = set
				q.inMempool = append(q.inMempool, set)
			}
			set.siblings = append(set.siblings, row)
		}
		if row.Nonce != nil {
			if !haveAssigned || *row.Nonce > maxAssigned {
				maxAssigned = *row.Nonce
				haveAssigned = true
			}
		}
	}
	if haveAssigned && maxAssigned+1 > q.nonces.current() {
		q.nonces.mu.Lock()
		q.nonces.next = maxAssigned + 1
		q.nonces.mu.Unlock()
	}
	return nil
}

func intentFromRow(row storage.Transaction) Intent {
	return Intent{To: row.To, Value: row.Value, Data: row.Data, Speed: row.Speed, ExternalID: row.ExternalID}
}

// Stop signals the queue to shut down (§5) and waits up to grace for its
// loop to exit. The loop cancels pending transactions that haven't
// consumed a nonce and then exits without another tick, so in-mempool and
// mined transactions are left in their current state.
func (q *Queue) Stop(grace time.Duration) {
	close(q.stop)
	select {
	case <-q.done:
	case <-time.After(grace):
		log.Warn("txqueue: drain grace window elapsed before loop exit", "relayer", q.relayer.ID)
	}
}

func (q *Queue) loop() {
	defer close(q.done)
	ticker := time.NewTicker(q.tickIntervalOrDefault())
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			q.drain()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), q.tickIntervalOrDefault())
			q.tick(ctx)
			cancel()
		}
	}
}

func (q *Queue) tickIntervalOrDefault() time.Duration {
	if q.tickInterval > 0 {
		return q.tickInterval
	}
	return 5 * time.Second
}

// drain cancels not-yet-broadcast pending transactions. The loop returns
// right after it; in-mempool/mined transactions are not ticked further.
func (q *Queue) drain() {
	ctx := context.Background()
	q.pendingMu.Lock()
	toCancel := q.pending
	q.pending = nil
	q.pendingMu.Unlock()
	for _, p := range toCancel {
		row, err := q.store.GetTransaction(ctx, p.id)
		if err != nil {
			continue
		}
		row.Status = chain.StatusCancelled
		if err := q.store.UpdateTransaction(ctx, row); err != nil {
			log.Error("txqueue: drain cancel persist failed", "id", p.id, "err", err)
		}
	}
}

// tick runs the four ordered steps of §4.2.1.
func (q *Queue) tick(ctx context.Context) {
	start := time.Now()
	defer metrics.TickDuration.UpdateSince(start)
	q.advanceMined(ctx)
	q.advanceInMempool(ctx)
	q.drainPending(ctx)
	q.expirePending(ctx)
}

// Relayer returns the relayer record this queue was started for, used by
// the orchestrator to filter queues by chain (network enable/disable).
func (q *Queue) Relayer() relayer.Relayer { return q.relayer }

// QueueConfig returns a copy of the live, lock-protected configuration
// (§4.2.5).
func (q *Queue) QueueConfig() relayer.QueueConfig {
	q.cfgMu.RLock()
	defer q.cfgMu.RUnlock()
	return q.cfg
}

// SetQueueConfig mutates the configuration; it takes effect on the next
// tick (§4.2.5).
func (q *Queue) SetQueueConfig(ctx context.Context, cfg relayer.QueueConfig) error {
	q.cfgMu.Lock()
	q.cfg = cfg
	q.cfgMu.Unlock()
	return q.store.SaveQueueConfig(ctx, q.relayer.ID, cfg)
}

var (
	// ErrPaused is a policy rejection (§7): submit on a paused relayer.
	ErrPaused = errors.New("txqueue: relayer is paused")
	// ErrNotAllowlisted is a policy rejection (§7, §4.1, S3): the intent's
	// `to` address is not a member of the relayer's allowlist while one is
	// in force.
	ErrNotAllowlisted = errors.New("txqueue: to address is not allowlisted")
	// ErrNotReplaceable surfaces when a transaction is no longer in
	// pending or in-mempool (§4.1 replace/cancel legality).
	ErrNotReplaceable = errors.New("txqueue: transaction is not in a replaceable state")
	// ErrBlobsUnsupported is a validation rejection (§7): this package has
	// no sidecar/commitment construction for an intent's blob data, so a
	// blob-bearing intent is refused at ingress rather than silently
	// broadcast as a non-blob transaction.
	ErrBlobsUnsupported = errors.New("txqueue: blob transactions are not supported")
)

// Submit implements the orchestrator's submit(relayer_id, intent) (§4.1):
// appends to the pending deque and returns immediately without blocking on
// broadcast. The allowlist check happens here, before the transaction
// exists at all, per the Validation/Policy error taxonomy of §7.
func (q *Queue) Submit(ctx context.Context, intent Intent, expiresAt *time.Time) (uuid.UUID, error) {
	cfg := q.QueueConfig()
	if cfg.IsPaused {
		return uuid.Nil, ErrPaused
	}
	if len(intent.BlobData) > 0 {
		return uuid.Nil, ErrBlobsUnsupported
	}
	allowed, err := q.checkAllowlist(ctx, cfg, intent.To)
	if err != nil {
		return uuid.Nil, fmt.Errorf("txqueue: check allowlist: %w", err)
	}
	if !allowed {
		return uuid.Nil, ErrNotAllowlisted
	}
	id := uuid.New()
	now := time.Now()
	row := storage.Transaction{
		ID:               id,
		RelayerID:        q.relayer.ID,
		CompetitiveSetID: id,
		From:             q.relayer.Address,
		To:               intent.To,
		Value:            valueOrZeroU256(intent.Value),
		Data:             intent.Data,
		ChainID:          q.relayer.ChainID,
		GasLimit:         q.maxGasLimit,
		Speed:            intent.Speed,
		Status:           chain.StatusPending,
		ExternalID:       intent.ExternalID,
		QueuedAt:         now,
		ExpiresAt:        expiresAt,
	}
	if err := q.store.InsertTransaction(ctx, row); err != nil {
		return uuid.Nil, fmt.Errorf("txqueue: persist pending transaction: %w", err)
	}
	q.pendingMu.Lock()
	q.pending = append(q.pending, pendingEntry{id: id, intent: intent, queuedAt: now, expiresAt: expiresAt})
	q.pendingMu.Unlock()
	return id, nil
}

func valueOrZeroU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}

// checkAllowlist reports whether to is permitted to receive a broadcast
// from this relayer. The allowlist only constrains sends once it is
// switched on (cfg.IsAllowlistedOnly) or already has members; an unused
// allowlist never blocks a relayer that hasn't opted in.
func (q *Queue) checkAllowlist(ctx context.Context, cfg relayer.QueueConfig, to chain.Address) (bool, error) {
	if !cfg.IsAllowlistedOnly {
		empty, err := q.store.AllowlistEmpty(ctx, q.relayer.ID)
		if err != nil {
			return false, err
		}
		if empty {
			return true, nil
		}
	}
	return q.store.IsAllowlisted(ctx, q.relayer.ID, to)
}

// Replace implements §4.1/§4.2.4: legal only while the original is
// pending or in-mempool. A pending original is replaced in place (no
// nonce assigned yet, so there is nothing to preserve). An in-mempool
// original's replacement joins its competitive set at the same nonce;
// the general "any sibling mining cancels the rest" rule in
// advanceInMempool marks the original cancelled once the set resolves,
// matching §4.2.4's "original is marked cancelled upon the replacement's
// mining".
func (q *Queue) Replace(ctx context.Context, txID uuid.UUID, newIntent Intent) (newID uuid.UUID, newHash *chain.Hash, err error) {
	if len(newIntent.BlobData) > 0 {
		return uuid.Nil, nil, ErrBlobsUnsupported
	}
	q.pendingMu.Lock()
	for i, p := range q.pending {
		if p.id == txID {
			q.pending[i].intent = newIntent
			q.pendingMu.Unlock()
			row, gerr := q.store.GetTransaction(ctx, txID)
			if gerr == nil {
				row.To, row.Value, row.Data, row.Speed = newIntent.To, valueOrZeroU256(newIntent.Value), newIntent.Data, newIntent.Speed
				_ = q.store.UpdateTransaction(ctx, row)
			}
			return txID, nil, nil
		}
	}
	q.pendingMu.Unlock()

	for _, set := range q.inMempool {
		for _, sib := range set.siblings {
			if sib.ID != txID {
				continue
			}
			return q.broadcastReplacement(ctx, set, newIntent)
		}
	}
	return uuid.Nil, nil, ErrNotReplaceable
}

// Cancel is a replace whose new intent is a relayer-to-self no-op (§4.2.4).
func (q *Queue) Cancel(ctx context.Context, txID uuid.UUID) (cancelID uuid.UUID, err error) {
	id, _, err := q.Replace(ctx, txID, NoopIntent(q.relayer.Address, chain.SpeedFast))
	return id, err
}
