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

type fakeAllowlistStore struct {
	storage.Store
	added   []storage.AllowlistEntry
	removed []chain.Address
}

func (f *fakeAllowlistStore) AddAllowlistEntry(ctx context.Context, e storage.AllowlistEntry) error {
	f.added = append(f.added, e)
	return nil
}

func (f *fakeAllowlistStore) RemoveAllowlistEntry(ctx context.Context, relayerID uuid.UUID, addr chain.Address) error {
	f.removed = append(f.removed, addr)
	return nil
}

func TestHandleAllowlistAddRecordsEntry(t *testing.T) {
	store := &fakeAllowlistStore{}
	handler := Router(testConfig(store))

	relayerID := uuid.New()
	addr := "0x0000000000000000000000000000000000000002"
	req := httptest.NewRequest(http.MethodPost, "/relayers/"+relayerID.String()+"/allowlists/"+addr, nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, store.added, 1)
	require.Equal(t, relayerID, store.added[0].RelayerID)
}

func TestHandleAllowlistRemoveInvalidAddressIsBadRequest(t *testing.T) {
	store := &fakeAllowlistStore{}
	handler := Router(testConfig(store))

	req := httptest.NewRequest(http.MethodDelete, "/relayers/"+uuid.New().String()+"/allowlists/not-an-address", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, store.removed)
}

func TestHandleAllowlistRemoveRecordsAddress(t *testing.T) {
	store := &fakeAllowlistStore{}
	handler := Router(testConfig(store))

	addr := "0x0000000000000000000000000000000000000003"
	req := httptest.NewRequest(http.MethodDelete, "/relayers/"+uuid.New().String()+"/allowlists/"+addr, nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, store.removed, 1)
}
