package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/storage"
)

// countingStore tracks reservations per window key and, like the Postgres
// store, returns a window's count including the reservation just made.
type countingStore struct {
	storage.Store
	mu      sync.Mutex
	counts  map[string]int
	cleaned int64
	cleanedOlderThan time.Time
}

func newCountingStore() *countingStore {
	return &countingStore{counts: make(map[string]int)}
}

func (s *countingStore) ReserveRateLimitUsage(ctx context.Context, scope, key, operation string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + "|" + key + "|" + operation + "|" + windowStart.String()
	s.counts[k]++
	return s.counts[k], nil
}

func (s *countingStore) CommitRateLimitUsage(ctx context.Context, scope, key, operation string, windowStart time.Time) error {
	return nil
}

func (s *countingStore) CleanupRateLimitUsage(ctx context.Context, olderThan time.Time) (int64, error) {
	s.cleaned++
	s.cleanedOlderThan = olderThan
	return s.cleaned, nil
}

func rules(limit int, interval time.Duration) map[Scope]map[Operation]Rule {
	return map[Scope]map[Operation]Rule{
		ScopePerUserKey: {OpTransaction: {Limit: limit, Interval: interval}},
	}
}

func TestCheckAndReserveAllowsUnconfiguredOperation(t *testing.T) {
	l := New(newCountingStore(), rules(1, time.Minute), false)
	allowed, err := l.CheckAndReserve(context.Background(), ScopePerUserKey, "k", OpSigningText, "")
	require.NoError(t, err)
	require.True(t, allowed, "an operation with no configured rule is never limited")
}

func TestCheckAndReserveNoKeyNoFallbackAlwaysAllowed(t *testing.T) {
	l := New(newCountingStore(), rules(1, time.Minute), false)
	allowed, err := l.CheckAndReserve(context.Background(), ScopePerUserKey, "", OpTransaction, "relayer-fallback")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCheckAndReserveNoKeyFallsBackToRelayerKey(t *testing.T) {
	store := newCountingStore()
	l := New(store, rules(5, time.Minute), true)
	_, err := l.CheckAndReserve(context.Background(), ScopePerUserKey, "", OpTransaction, "relayer-fallback")
	require.NoError(t, err)
	require.Len(t, store.counts, 1, "the relayer fallback key must be the one reserved")
}

func TestCheckAndReserveRejectsOverDBLimit(t *testing.T) {
	store := newCountingStore()
	// the in-process bucket's burst equals the limit of 2, so it refuses
	// the third call before the DB-backed window, which would refuse it too.
	l := New(store, rules(2, time.Hour), false)
	for i := 0; i < 2; i++ {
		allowed, err := l.CheckAndReserve(context.Background(), ScopePerUserKey, "same-key", OpTransaction, "")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, err := l.CheckAndReserve(context.Background(), ScopePerUserKey, "same-key", OpTransaction, "")
	require.NoError(t, err)
	require.False(t, allowed, "the third reservation within the window must exceed the configured limit of 2")
}

func TestCleanupUsesLongestConfiguredWindow(t *testing.T) {
	store := newCountingStore()
	l := New(store, rules(1, 2*time.Hour), false)
	n, err := l.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.WithinDuration(t, time.Now().Add(-2*time.Hour), store.cleanedOlderThan, time.Minute)
}
