package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/signer"
	"github.com/rrelayer/rrelayer/internal/storage"
)

type fakeSigningStore struct {
	storage.Store
	relayer  relayer.Relayer
	recorded []storage.SignedHistoryRecord
}

func (f *fakeSigningStore) GetRelayer(ctx context.Context, id uuid.UUID) (relayer.Relayer, error) {
	if id != f.relayer.ID {
		return relayer.Relayer{}, errNotFoundStore
	}
	return f.relayer, nil
}

func (f *fakeSigningStore) InsertSignedHistory(ctx context.Context, rec storage.SignedHistoryRecord) error {
	f.recorded = append(f.recorded, rec)
	return nil
}

func newTestRouter(t *testing.T) (*signer.Router, signer.WalletIndex) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	r := signer.NewRawKey()
	idx := signer.PrivateKeyRangeStart
	require.NoError(t, r.Import(idx, hex.EncodeToString(crypto.FromECDSA(key))))
	return signer.NewRouter(r), idx
}

func TestHandleSignMessageReturnsSignatureAndRecordsHistory(t *testing.T) {
	router, idx := newTestRouter(t)
	rel := relayer.Relayer{ID: uuid.New(), WalletIndex: idx}
	store := &fakeSigningStore{relayer: rel}

	cfg := testConfig(store)
	cfg.Signer = router
	handler := Router(cfg)

	body, _ := json.Marshal(map[string]string{"text": "hello world"})
	req := httptest.NewRequest(http.MethodPost, "/signing/relayers/"+rel.ID.String()+"/message", bytes.NewReader(body))
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "0x")
	require.Len(t, store.recorded, 1)
	require.Equal(t, rel.ID, store.recorded[0].RelayerID)
}

func TestHandleSignMessageUnknownRelayerIs404(t *testing.T) {
	router, _ := newTestRouter(t)
	cfg := testConfig(&fakeSigningStore{})
	cfg.Signer = router
	handler := Router(cfg)

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/signing/relayers/"+uuid.New().String()+"/message", bytes.NewReader(body))
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
