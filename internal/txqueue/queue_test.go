package txqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/provider"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/storage"
)

type fakeQueueProvider struct {
	provider.Provider
	nonce uint64
}

func (f *fakeQueueProvider) GetNonce(ctx context.Context, addr chain.Address, pending bool) (uint64, error) {
	return f.nonce, nil
}

type memQueueStore struct {
	storage.Store

	mu  sync.Mutex
	txs map[uuid.UUID]storage.Transaction
}

func newMemQueueStore() *memQueueStore {
	return &memQueueStore{txs: make(map[uuid.UUID]storage.Transaction)}
}

func (s *memQueueStore) GetQueueConfig(ctx context.Context, relayerID uuid.UUID) (relayer.QueueConfig, error) {
	return relayer.QueueConfig{}, errNoQueueConfig
}

func (s *memQueueStore) SaveQueueConfig(ctx context.Context, relayerID uuid.UUID, cfg relayer.QueueConfig) error {
	return nil
}

func (s *memQueueStore) LoadNonTerminalByRelayer(ctx context.Context, relayerID uuid.UUID) ([]storage.Transaction, error) {
	return nil, nil
}

func (s *memQueueStore) InsertTransaction(ctx context.Context, tx storage.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.ID] = tx
	return nil
}

func (s *memQueueStore) UpdateTransaction(ctx context.Context, tx storage.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.ID] = tx
	return nil
}

func (s *memQueueStore) GetTransaction(ctx context.Context, id uuid.UUID) (storage.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return storage.Transaction{}, errTxNotFound
	}
	return tx, nil
}

func (s *memQueueStore) AllowlistEmpty(ctx context.Context, relayerID uuid.UUID) (bool, error) {
	return true, nil
}

func (s *memQueueStore) IsAllowlisted(ctx context.Context, relayerID uuid.UUID, addr chain.Address) (bool, error) {
	return true, nil
}

type notFound struct{ msg string }

func (e notFound) Error() string { return e.msg }

var (
	errNoQueueConfig = notFound{"no queue config: use default"}
	errTxNotFound    = notFound{"transaction not found"}
)

func newTestQueue(t *testing.T, store storage.Store) *Queue {
	t.Helper()
	rel := relayer.Relayer{ID: uuid.New(), ChainID: 1, Address: chain.Address{9}}
	q, err := New(context.Background(), Config{
		Relayer:      rel,
		Provider:     &fakeQueueProvider{nonce: 5},
		Store:        store,
		TickInterval: time.Hour,
		MaxGasLimit:  21000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { q.Stop(10 * time.Millisecond) })
	return q
}

func TestSubmitPersistsPendingTransaction(t *testing.T) {
	store := newMemQueueStore()
	q := newTestQueue(t, store)

	id, err := q.Submit(context.Background(), Intent{To: chain.Address{1}, Speed: chain.SpeedFast}, nil)
	require.NoError(t, err)

	tx, err := store.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, chain.StatusPending, tx.Status)
	require.Equal(t, id, tx.CompetitiveSetID)
}

type allowlistedQueueStore struct {
	*memQueueStore
	empty   bool
	members map[chain.Address]bool
}

func (s *allowlistedQueueStore) AllowlistEmpty(ctx context.Context, relayerID uuid.UUID) (bool, error) {
	return s.empty, nil
}

func (s *allowlistedQueueStore) IsAllowlisted(ctx context.Context, relayerID uuid.UUID, addr chain.Address) (bool, error) {
	return s.members[addr], nil
}

func TestSubmitRejectsNonAllowlistedAddress(t *testing.T) {
	store := &allowlistedQueueStore{memQueueStore: newMemQueueStore(), members: map[chain.Address]bool{chain.Address{1}: true}}
	q := newTestQueue(t, store)

	_, err := q.Submit(context.Background(), Intent{To: chain.Address{2}, Speed: chain.SpeedFast}, nil)
	require.ErrorIs(t, err, ErrNotAllowlisted)
}

func TestSubmitAllowsAllowlistedAddress(t *testing.T) {
	store := &allowlistedQueueStore{memQueueStore: newMemQueueStore(), members: map[chain.Address]bool{chain.Address{1}: true}}
	q := newTestQueue(t, store)

	_, err := q.Submit(context.Background(), Intent{To: chain.Address{1}, Speed: chain.SpeedFast}, nil)
	require.NoError(t, err)
}

func TestSubmitRejectsBlobIntent(t *testing.T) {
	store := newMemQueueStore()
	q := newTestQueue(t, store)

	_, err := q.Submit(context.Background(), Intent{To: chain.Address{1}, BlobData: [][]byte{{1, 2, 3}}}, nil)
	require.ErrorIs(t, err, ErrBlobsUnsupported)
}

func TestReplaceRejectsBlobIntent(t *testing.T) {
	store := newMemQueueStore()
	q := newTestQueue(t, store)

	id, err := q.Submit(context.Background(), Intent{To: chain.Address{1}, Speed: chain.SpeedFast}, nil)
	require.NoError(t, err)

	_, _, err = q.Replace(context.Background(), id, Intent{To: chain.Address{2}, BlobData: [][]byte{{1}}})
	require.ErrorIs(t, err, ErrBlobsUnsupported)
}

func TestSubmitRejectsWhenPaused(t *testing.T) {
	store := newMemQueueStore()
	q := newTestQueue(t, store)
	require.NoError(t, q.SetQueueConfig(context.Background(), relayer.QueueConfig{IsPaused: true}))

	_, err := q.Submit(context.Background(), Intent{To: chain.Address{1}}, nil)
	require.ErrorIs(t, err, ErrPaused)
}

func TestReplacePendingTransactionUpdatesInPlace(t *testing.T) {
	store := newMemQueueStore()
	q := newTestQueue(t, store)

	id, err := q.Submit(context.Background(), Intent{To: chain.Address{1}, Speed: chain.SpeedFast}, nil)
	require.NoError(t, err)

	newID, hash, err := q.Replace(context.Background(), id, Intent{To: chain.Address{2}, Speed: chain.SpeedMedium})
	require.NoError(t, err)
	require.Equal(t, id, newID)
	require.Nil(t, hash)

	tx, err := store.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, chain.Address{2}, tx.To)
	require.Equal(t, chain.SpeedMedium, tx.Speed)
}

func TestReplaceUnknownTransactionErrors(t *testing.T) {
	store := newMemQueueStore()
	q := newTestQueue(t, store)

	_, _, err := q.Replace(context.Background(), uuid.New(), Intent{})
	require.ErrorIs(t, err, ErrNotReplaceable)
}

func TestCancelPendingTransactionIsANoopReplace(t *testing.T) {
	store := newMemQueueStore()
	q := newTestQueue(t, store)

	id, err := q.Submit(context.Background(), Intent{To: chain.Address{1}, Speed: chain.SpeedFast}, nil)
	require.NoError(t, err)

	cancelID, err := q.Cancel(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, cancelID)

	tx, err := store.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, q.Relayer().Address, tx.To)
}
