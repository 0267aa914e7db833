package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/auth"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/storage"
)

type fakeAPIStore struct {
	storage.Store
	relayer relayer.Relayer
}

func (f *fakeAPIStore) GetRelayer(ctx context.Context, id uuid.UUID) (relayer.Relayer, error) {
	if id != f.relayer.ID {
		return relayer.Relayer{}, errNotFoundStore
	}
	return f.relayer, nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "relayer not found" }

var errNotFoundStore = notFoundErr{}

func testConfig(store storage.Store) Config {
	return Config{
		Store:          store,
		Credentials:    auth.Credentials{Username: "u", Password: "p"},
		APIKeyCache:    auth.NewCache(store, time.Minute),
		AllowedOrigins: []string{"*"},
	}
}

func TestRouterMetricsRequiresNoAuth(t *testing.T) {
	handler := Router(testConfig(&fakeAPIStore{}))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterRejectsUnauthenticatedRelayerRequest(t *testing.T) {
	handler := Router(testConfig(&fakeAPIStore{}))
	req := httptest.NewRequest(http.MethodGet, "/relayers/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterGetRelayerReturnsRecord(t *testing.T) {
	rel := relayer.Relayer{ID: uuid.New(), Name: "r1"}
	store := &fakeAPIStore{relayer: rel}
	handler := Router(testConfig(store))

	req := httptest.NewRequest(http.MethodGet, "/relayers/"+rel.ID.String(), nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), rel.ID.String())
}

func TestRouterGetRelayerUnknownID404s(t *testing.T) {
	store := &fakeAPIStore{relayer: relayer.Relayer{ID: uuid.New()}}
	handler := Router(testConfig(store))

	req := httptest.NewRequest(http.MethodGet, "/relayers/"+uuid.New().String(), nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterGetRelayerInvalidIDIsBadRequest(t *testing.T) {
	handler := Router(testConfig(&fakeAPIStore{}))
	req := httptest.NewRequest(http.MethodGet, "/relayers/not-a-uuid", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterOmitsTokenRoutesWhenTokensNil(t *testing.T) {
	handler := Router(testConfig(&fakeAPIStore{}))
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
