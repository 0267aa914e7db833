// Package orchestrator implements the Queue Orchestrator of §4.1: the
// map from relayer id to its running Per-Relayer Queue, and the
// operations (add, clone, submit, replace, cancel, delete) that mutate
// that map or delegate into one queue. Grounded on the teacher's
// miner/worker.go lifecycle (start/stop one worker per chain) lifted one
// level: here one Queue runs per relayer instead of one worker per chain,
// and the orchestrator is the thing that starts and stops them.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/gas"
	"github.com/rrelayer/rrelayer/internal/metrics"
	"github.com/rrelayer/rrelayer/internal/provider"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/signer"
	"github.com/rrelayer/rrelayer/internal/storage"
	"github.com/rrelayer/rrelayer/internal/txqueue"
	"github.com/rrelayer/rrelayer/internal/webhook"
)

// Config is the set of shared, chain-spanning dependencies every queue
// the orchestrator starts is built from.
type Config struct {
	Store             storage.Store
	Allocator         storage.WalletIndexAllocator
	Signer            *signer.Router
	GasCache          *gas.Cache
	Webhooks          *webhook.Dispatcher
	WebhookURL        string
	ConfirmationDepth uint64
	TickInterval      time.Duration
	MaxGasLimit       uint64
}

// Orchestrator owns one *txqueue.Queue per relayer and the per-chain
// Provider pool queues are built against. The map lock is held only to
// look up or install a queue, never across a call into one — §5's "no
// lock held across a suspension point" rule applies here exactly as it
// does inside a single queue.
type Orchestrator struct {
	cfg Config

	mu        sync.RWMutex
	queues    map[uuid.UUID]*txqueue.Queue
	providers map[chain.ID]provider.Provider
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		queues:    make(map[uuid.UUID]*txqueue.Queue),
		providers: make(map[chain.ID]provider.Provider),
	}
}

// RegisterProvider wires a chain's Provider into the orchestrator before
// any relayer on that chain can be added. Called once per configured
// network at startup (§6 "networks" config).
func (o *Orchestrator) RegisterProvider(chainID chain.ID, p provider.Provider) {
	o.mu.Lock()
	o.providers[chainID] = p
	o.mu.Unlock()
}

// Provider exposes the registered Provider for a chain, used by the HTTP
// layer's balance-query handler.
func (o *Orchestrator) Provider(chainID chain.ID) (provider.Provider, error) {
	return o.providerFor(chainID)
}

func (o *Orchestrator) providerFor(chainID chain.ID) (provider.Provider, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.providers[chainID]
	if !ok {
		return nil, fmt.Errorf("orchestrator: no provider registered for chain %d", chainID)
	}
	return p, nil
}

// AddNewRelayer implements §4.1's add_new_relayer: allocate a wallet
// index, persist the relayer record and its default queue config, start
// its queue, and only then return it — a queue that fails to start
// (e.g. the initial nonce query can't reach the node) leaves no live
// relayer record behind: the record just persisted is soft-deleted.
func (o *Orchestrator) AddNewRelayer(ctx context.Context, setup relayer.NewSetup) (relayer.Relayer, error) {
	p, err := o.providerFor(setup.ChainID)
	if err != nil {
		return relayer.Relayer{}, err
	}

	walletIndex := setup.WalletIndex
	if !setup.IsPrivateKey {
		walletIndex, err = o.cfg.Allocator.NextWalletIndex(ctx)
		if err != nil {
			return relayer.Relayer{}, fmt.Errorf("orchestrator: allocate wallet index: %w", err)
		}
	}
	addr, err := o.cfg.Signer.Address(ctx, walletIndex)
	if err != nil {
		return relayer.Relayer{}, fmt.Errorf("orchestrator: resolve signer address: %w", err)
	}

	r := relayer.Relayer{
		ID:             uuid.New(),
		Name:           setup.Name,
		ChainID:        setup.ChainID,
		Address:        addr,
		WalletIndex:    walletIndex,
		IsPrivateKey:   setup.IsPrivateKey,
		EIP1559Enabled: true,
		CreatedAt:      time.Now(),
	}
	if err := o.cfg.Store.CreateRelayer(ctx, r); err != nil {
		return relayer.Relayer{}, fmt.Errorf("orchestrator: persist relayer: %w", err)
	}
	if err := o.cfg.Store.SaveQueueConfig(ctx, r.ID, relayer.DefaultQueueConfig()); err != nil {
		return relayer.Relayer{}, fmt.Errorf("orchestrator: persist queue config: %w", err)
	}

	if err := o.startQueue(ctx, r, p); err != nil {
		if derr := o.cfg.Store.SoftDeleteRelayer(ctx, r.ID); derr != nil {
			log.Error("orchestrator: remove relayer after failed queue start", "relayer", r.ID, "err", derr)
		}
		return relayer.Relayer{}, err
	}
	return r, nil
}

// CloneRelayer implements §3's "cloned relayers share a wallet index
// across chains" rule: the new relayer reuses the source's wallet index
// and signer, so the two relayers can sign with the same key on
// different chains, but run fully independent queues (§9 design note).
func (o *Orchestrator) CloneRelayer(ctx context.Context, setup relayer.CloneSetup) (relayer.Relayer, error) {
	source, err := o.cfg.Store.GetRelayer(ctx, setup.SourceRelayerID)
	if err != nil {
		return relayer.Relayer{}, fmt.Errorf("orchestrator: load source relayer: %w", err)
	}
	p, err := o.providerFor(setup.ChainID)
	if err != nil {
		return relayer.Relayer{}, err
	}

	r := relayer.Relayer{
		ID:                uuid.New(),
		Name:              setup.NewName,
		ChainID:           setup.ChainID,
		Address:           source.Address,
		WalletIndex:       source.WalletIndex,
		ClonedFromChainID: &source.ChainID,
		IsPrivateKey:      source.IsPrivateKey,
		EIP1559Enabled:    source.EIP1559Enabled,
		MaxGasPrice:       source.MaxGasPrice,
		MaxGasPriceMultiplier: source.MaxGasPriceMultiplier,
		CreatedAt:         time.Now(),
	}
	if err := o.cfg.Store.CreateRelayer(ctx, r); err != nil {
		return relayer.Relayer{}, fmt.Errorf("orchestrator: persist cloned relayer: %w", err)
	}
	sourceCfg, err := o.cfg.Store.GetQueueConfig(ctx, source.ID)
	if err != nil {
		sourceCfg = relayer.DefaultQueueConfig()
	}
	if err := o.cfg.Store.SaveQueueConfig(ctx, r.ID, sourceCfg); err != nil {
		return relayer.Relayer{}, fmt.Errorf("orchestrator: persist cloned queue config: %w", err)
	}

	if err := o.startQueue(ctx, r, p); err != nil {
		return relayer.Relayer{}, err
	}
	return r, nil
}

func (o *Orchestrator) startQueue(ctx context.Context, r relayer.Relayer, p provider.Provider) error {
	q, err := txqueue.New(ctx, txqueue.Config{
		Relayer:           r,
		Provider:          p,
		Signer:            o.cfg.Signer,
		GasCache:          o.cfg.GasCache,
		Store:             o.cfg.Store,
		Webhooks:          o.cfg.Webhooks,
		WebhookURL:        o.cfg.WebhookURL,
		ConfirmationDepth: o.cfg.ConfirmationDepth,
		TickInterval:      o.cfg.TickInterval,
		MaxGasLimit:       o.cfg.MaxGasLimit,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: start queue for relayer %s: %w", r.ID, err)
	}
	o.mu.Lock()
	o.queues[r.ID] = q
	o.mu.Unlock()
	metrics.ActiveQueues.Inc()
	return nil
}

// RestoreAll starts a queue for every non-deleted relayer on server
// startup (§4.7 crash recovery at the orchestrator
// level, one layer above each queue's own rehydrate).
func (o *Orchestrator) RestoreAll(ctx context.Context) error {
	relayers, err := o.cfg.Store.ListRelayers(ctx, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("orchestrator: list relayers: %w", err)
	}
	for _, r := range relayers {
		if r.DeletedAt != nil {
			continue
		}
		p, err := o.providerFor(r.ChainID)
		if err != nil {
			log.Warn("orchestrator: skipping relayer, no provider for its chain", "relayer", r.ID, "chain", r.ChainID, "err", err)
			continue
		}
		if err := o.startQueue(ctx, r, p); err != nil {
			log.Error("orchestrator: failed to restore queue", "relayer", r.ID, "err", err)
		}
	}
	return nil
}

func (o *Orchestrator) queueFor(relayerID uuid.UUID) (*txqueue.Queue, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.queues[relayerID]
	if !ok {
		return nil, fmt.Errorf("orchestrator: no running queue for relayer %s", relayerID)
	}
	return q, nil
}

// Submit delegates to the target relayer's queue (§4.1).
func (o *Orchestrator) Submit(ctx context.Context, relayerID uuid.UUID, intent txqueue.Intent, expiresAt *time.Time) (uuid.UUID, error) {
	q, err := o.queueFor(relayerID)
	if err != nil {
		return uuid.Nil, err
	}
	return q.Submit(ctx, intent, expiresAt)
}

// Replace delegates to the target relayer's queue (§4.1/§4.2.4).
func (o *Orchestrator) Replace(ctx context.Context, relayerID, txID uuid.UUID, newIntent txqueue.Intent) (uuid.UUID, *chain.Hash, error) {
	q, err := o.queueFor(relayerID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return q.Replace(ctx, txID, newIntent)
}

// Cancel delegates to the target relayer's queue (§4.1/§4.2.4).
func (o *Orchestrator) Cancel(ctx context.Context, relayerID, txID uuid.UUID) (uuid.UUID, error) {
	q, err := o.queueFor(relayerID)
	if err != nil {
		return uuid.Nil, err
	}
	return q.Cancel(ctx, txID)
}

// SetQueueConfig delegates a live config update to the target relayer's
// queue (§4.2.5), which takes effect starting its next tick.
func (o *Orchestrator) SetQueueConfig(ctx context.Context, relayerID uuid.UUID, cfg relayer.QueueConfig) error {
	q, err := o.queueFor(relayerID)
	if err != nil {
		return err
	}
	return q.SetQueueConfig(ctx, cfg)
}

// QueueConfig reads the target relayer's live queue config.
func (o *Orchestrator) QueueConfig(relayerID uuid.UUID) (relayer.QueueConfig, error) {
	q, err := o.queueFor(relayerID)
	if err != nil {
		return relayer.QueueConfig{}, err
	}
	return q.QueueConfig(), nil
}

// SetNetworkEnabled implements SPEC_FULL.md section C's supplemented
// network enable/disable operation: pausing every queue on a chain
// without deleting any of them, distinct from a per-relayer pause.
func (o *Orchestrator) SetNetworkEnabled(ctx context.Context, chainID chain.ID, enabled bool) error {
	o.mu.RLock()
	var targets []*txqueue.Queue
	for _, q := range o.queues {
		if q.Relayer().ChainID == chainID {
			targets = append(targets, q)
		}
	}
	o.mu.RUnlock()

	for _, q := range targets {
		cfg := q.QueueConfig()
		cfg.IsPaused = !enabled
		if err := q.SetQueueConfig(ctx, cfg); err != nil {
			return fmt.Errorf("orchestrator: set network enabled for relayer %s: %w", q.Relayer().ID, err)
		}
	}
	return nil
}

// DeleteQueue implements §4.1's delete_queue: stops the relayer's queue
// (see txqueue.Queue.Stop for what stopping does and does not do), soft-
// deletes the relayer record, and removes it from the map so a stale
// reference can't be submitted to again.
func (o *Orchestrator) DeleteQueue(ctx context.Context, relayerID uuid.UUID, grace time.Duration) error {
	o.mu.Lock()
	q, ok := o.queues[relayerID]
	delete(o.queues, relayerID)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("orchestrator: no running queue for relayer %s", relayerID)
	}
	q.Stop(grace)
	metrics.ActiveQueues.Dec()
	return o.cfg.Store.SoftDeleteRelayer(ctx, relayerID)
}

// Running reports whether a relayer currently has a live queue. No HTTP
// handler calls it; the orchestrator tests use it to observe start and
// stop.
func (o *Orchestrator) Running(relayerID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.queues[relayerID]
	return ok
}

// StopAll stops every running queue concurrently, fanning the per-queue
// Stop calls out over an errgroup so process shutdown waits for the
// slowest queue's drain rather than the sum of all of them. Queue.Stop
// never returns an error; the group is used purely for the wait, the way
// an errgroup is reached for in the pack to fan in a bounded set of
// goroutines without a caller-managed sync.WaitGroup.
func (o *Orchestrator) StopAll(grace time.Duration) {
	o.mu.RLock()
	queues := make([]*txqueue.Queue, 0, len(o.queues))
	for _, q := range o.queues {
		queues = append(queues, q)
	}
	o.mu.RUnlock()

	var g errgroup.Group
	for _, q := range queues {
		q := q
		g.Go(func() error {
			q.Stop(grace)
			return nil
		})
	}
	_ = g.Wait()
}
