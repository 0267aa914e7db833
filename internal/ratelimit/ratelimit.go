// Package ratelimit implements §4.6: a sliding-window counter backed by
// storage, token-bucket-shaped from the caller's perspective (reserve,
// then commit on success or let the reservation expire).
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rrelayer/rrelayer/internal/metrics"
	"github.com/rrelayer/rrelayer/internal/storage"
)

// Operation is one of §4.6's rate-limited operation kinds.
type Operation string

const (
	OpTransaction      Operation = "transaction"
	OpSigningText      Operation = "signing_text"
	OpSigningTypedData Operation = "signing_typed_data"
)

// Scope is a rate-limit key's namespace.
type Scope string

const (
	ScopePerUserKey     Scope = "per-user-key"
	ScopeGlobalPerChain Scope = "global-per-chain"
)

// Rule configures one (scope, operation) pair.
type Rule struct {
	Limit    int
	Interval time.Duration
}

// Limiter enforces Rules against storage's sliding-window usage table. An
// in-process token bucket per key sits in front of the DB check purely to
// smooth bursts (a client hammering the same key in a tight loop is
// rejected locally instead of generating a reservation row per request).
// The DB-backed window enforces the configured limit; the bucket adds a
// second check at the same rate that can also refuse requests (see
// bucketFor).
type Limiter struct {
	store             storage.Store
	rules             map[Scope]map[Operation]Rule
	fallbackToRelayer bool

	bucketsMu sync.Mutex
	buckets   map[string]*rate.Limiter
}

func New(store storage.Store, rules map[Scope]map[Operation]Rule, fallbackToRelayer bool) *Limiter {
	return &Limiter{
		store:             store,
		rules:             rules,
		fallbackToRelayer: fallbackToRelayer,
		buckets:           make(map[string]*rate.Limiter),
	}
}

// bucketFor returns the in-process burst-smoothing bucket for a (scope,
// key, op) triple, sized from the configured Rule: a burst of Limit,
// refilled at Limit per Interval. It refills gradually while the DB-backed
// window resets at each interval boundary, so it can refuse a request the
// window would still admit.
func (l *Limiter) bucketFor(scope Scope, key string, op Operation, rule Rule) *rate.Limiter {
	bucketKey := string(scope) + "|" + key + "|" + string(op)
	l.bucketsMu.Lock()
	defer l.bucketsMu.Unlock()
	b, ok := l.buckets[bucketKey]
	if !ok {
		perSecond := rate.Limit(float64(rule.Limit) / rule.Interval.Seconds())
		b = rate.NewLimiter(perSecond, rule.Limit)
		l.buckets[bucketKey] = b
	}
	return b
}

// ErrRateLimited is returned when a reservation would exceed the
// configured limit for the current window.
var ErrRateLimited = fmt.Errorf("ratelimit: limit exceeded")

// CheckAndReserve implements §4.6's check_and_reserve: it inserts a
// tentative usage row for the current window and reports whether the
// caller may proceed. The caller must call Commit on success; an
// uncommitted reservation is indistinguishable from a dropped request and
// is cleaned up by the periodic sweep once its window ages out.
//
// key resolves per §9's documented fallback policy: when the caller
// supplies no key (e.g. no per-relayer API key on this request) and
// fallbackToRelayer is configured, relayerFallbackKey (the relayer id, as
// the API layer passes it) is used instead;
// otherwise no limit is applied, matching the explicit configuration
// option §9 requires rather than silently changing behaviour.
func (l *Limiter) CheckAndReserve(ctx context.Context, scope Scope, key string, op Operation, relayerFallbackKey string) (bool, error) {
	if key == "" {
		if !l.fallbackToRelayer {
			return true, nil
		}
		key = relayerFallbackKey
	}
	rule, ok := l.ruleFor(scope, op)
	if !ok {
		return true, nil
	}
	if !l.bucketFor(scope, key, op, rule).Allow() {
		metrics.RecordRateLimitRejection(string(scope), string(op))
		return false, nil
	}
	windowStart := time.Now().Truncate(rule.Interval)
	count, err := l.store.ReserveRateLimitUsage(ctx, string(scope), key, string(op), windowStart)
	if err != nil {
		return false, err
	}
	allowed := count <= rule.Limit
	if !allowed {
		metrics.RecordRateLimitRejection(string(scope), string(op))
	}
	return allowed, nil
}

func (l *Limiter) Commit(ctx context.Context, scope Scope, key string, op Operation) error {
	rule, ok := l.ruleFor(scope, op)
	if !ok {
		return nil
	}
	windowStart := time.Now().Truncate(rule.Interval)
	return l.store.CommitRateLimitUsage(ctx, string(scope), key, string(op), windowStart)
}

func (l *Limiter) ruleFor(scope Scope, op Operation) (Rule, bool) {
	byOp, ok := l.rules[scope]
	if !ok {
		return Rule{}, false
	}
	rule, ok := byOp[op]
	return rule, ok
}

// longestWindow is used by Cleanup to bound how far back rows are kept.
func (l *Limiter) longestWindow() time.Duration {
	var max time.Duration
	for _, byOp := range l.rules {
		for _, rule := range byOp {
			if rule.Interval > max {
				max = rule.Interval
			}
		}
	}
	if max == 0 {
		max = time.Hour
	}
	return max
}

// Cleanup removes usage rows older than the longest configured window
// (§4.6's periodic cleanup task).
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	return l.store.CleanupRateLimitUsage(ctx, time.Now().Add(-l.longestWindow()))
}
