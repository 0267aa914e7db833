package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/storage"
)

type fakeTxStore struct {
	storage.Store
	tx          storage.Transaction
	countPending int
}

func (f *fakeTxStore) GetTransaction(ctx context.Context, id uuid.UUID) (storage.Transaction, error) {
	if id != f.tx.ID {
		return storage.Transaction{}, errNotFoundStore
	}
	return f.tx, nil
}

func (f *fakeTxStore) CountByStatus(ctx context.Context, relayerID uuid.UUID, statuses ...chain.Status) (int, error) {
	return f.countPending, nil
}

func TestHandleGetTransactionReturnsRow(t *testing.T) {
	tx := storage.Transaction{ID: uuid.New(), Status: chain.StatusPending}
	handler := Router(testConfig(&fakeTxStore{tx: tx}))

	req := httptest.NewRequest(http.MethodGet, "/transactions/"+tx.ID.String(), nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), tx.ID.String())
}

func TestHandleGetTransactionUnknownID404s(t *testing.T) {
	handler := Router(testConfig(&fakeTxStore{tx: storage.Transaction{ID: uuid.New()}}))

	req := httptest.NewRequest(http.MethodGet, "/transactions/"+uuid.New().String(), nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetStatusOmitsHashWhenUnsent(t *testing.T) {
	tx := storage.Transaction{ID: uuid.New(), Status: chain.StatusPending}
	handler := Router(testConfig(&fakeTxStore{tx: tx}))

	req := httptest.NewRequest(http.MethodGet, "/transactions/status/"+tx.ID.String(), nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"pending"}`, rec.Body.String())
}

func TestHandleCountPendingReturnsStoreCount(t *testing.T) {
	handler := Router(testConfig(&fakeTxStore{countPending: 3}))

	req := httptest.NewRequest(http.MethodGet, "/transactions/relayers/"+uuid.New().String()+"/pending/count", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3\n", rec.Body.String())
}

func TestHandleReplaceRequiresAPIKeyScope(t *testing.T) {
	handler := Router(testConfig(&fakeTxStore{}))

	req := httptest.NewRequest(http.MethodPut, "/transactions/replace/"+uuid.New().String(), nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCancelRequiresAPIKeyScope(t *testing.T) {
	handler := Router(testConfig(&fakeTxStore{}))

	req := httptest.NewRequest(http.MethodPut, "/transactions/cancel/"+uuid.New().String(), nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
