// Package background runs the periodic maintenance loops that don't
// belong to any one relayer's queue: webhook delivery polling and
// rate-limit usage cleanup. Grounded on original_source/background_tasks
// (each task there is a lone tokio::spawn loop on a fixed interval,
// logging and continuing on error rather than exiting).
package background

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rrelayer/rrelayer/internal/storage"
	"github.com/rrelayer/rrelayer/internal/webhook"
)

// Supervisor owns the set of independent maintenance goroutines. Each
// loop restarts itself after a panic recovery with a short backoff so one
// misbehaving task can't take down the process, matching the teacher's
// habit (e.g. miner/worker.go's main loop) of a supervising loop that
// logs and continues rather than propagating a fatal error upward.
type Supervisor struct {
	webhooks *webhook.Dispatcher
	store    storage.Store

	webhookPollInterval time.Duration
	rateLimitCleanupTTL time.Duration
	rateLimitRetention  time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// Config bundles the tunables a Supervisor's loops run against.
type Config struct {
	Webhooks *webhook.Dispatcher
	Store    storage.Store
	// WebhookPollInterval defaults to 2s when zero.
	WebhookPollInterval time.Duration
	// RateLimitCleanupInterval defaults to 1h when zero, matching
	// original_source's run_user_rate_limit_cleanup_task.
	RateLimitCleanupInterval time.Duration
	// RateLimitRetention is how far back committed usage rows are kept;
	// defaults to 24h.
	RateLimitRetention time.Duration
}

func New(cfg Config) *Supervisor {
	s := &Supervisor{
		webhooks:            cfg.Webhooks,
		store:               cfg.Store,
		webhookPollInterval: cfg.WebhookPollInterval,
		rateLimitCleanupTTL: cfg.RateLimitCleanupInterval,
		rateLimitRetention:  cfg.RateLimitRetention,
		stop:                make(chan struct{}),
	}
	if s.webhookPollInterval <= 0 {
		s.webhookPollInterval = 2 * time.Second
	}
	if s.rateLimitCleanupTTL <= 0 {
		s.rateLimitCleanupTTL = time.Hour
	}
	if s.rateLimitRetention <= 0 {
		s.rateLimitRetention = 24 * time.Hour
	}
	return s
}

// Start launches every maintenance loop as its own goroutine and returns
// immediately.
func (s *Supervisor) Start() {
	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.runSupervised("webhook-dispatch", s.webhookLoop) }()
	go func() { defer s.wg.Done(); s.runSupervised("rate-limit-cleanup", s.rateLimitCleanupLoop) }()
}

// Stop signals every loop to exit and waits, up to grace, for them to do
// so.
func (s *Supervisor) Stop(grace time.Duration) {
	close(s.stop)
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(grace):
		log.Warn("background: supervisor stop grace window elapsed")
	}
}

// runSupervised restarts fn after a panic, with a short backoff, so a
// single bad tick in one loop doesn't take the whole supervisor down.
func (s *Supervisor) runSupervised(name string, fn func()) {
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		s.runOnceRecovered(name, fn)
		select {
		case <-s.stop:
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *Supervisor) runOnceRecovered(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("background: loop panicked, restarting", "loop", name, "recover", r)
		}
	}()
	fn()
}

func (s *Supervisor) webhookLoop() {
	if s.webhooks == nil {
		return
	}
	ticker := time.NewTicker(s.webhookPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.webhookPollInterval)
			if err := s.webhooks.RunOnce(ctx); err != nil {
				log.Warn("background: webhook dispatch pass failed", "err", err)
			}
			cancel()
		}
	}
}

func (s *Supervisor) rateLimitCleanupLoop() {
	ticker := time.NewTicker(s.rateLimitCleanupTTL)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			cutoff := time.Now().Add(-s.rateLimitRetention)
			n, err := s.store.CleanupRateLimitUsage(ctx, cutoff)
			cancel()
			if err != nil {
				log.Error("background: rate limit cleanup failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("background: rate limit cleanup removed stale usage rows", "count", n)
			}
		}
	}
}
