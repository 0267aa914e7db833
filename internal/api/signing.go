package api

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rrelayer/rrelayer/internal/ratelimit"
	"github.com/rrelayer/rrelayer/internal/storage"
)

type signMessageRequest struct {
	Text string `json:"text"`
}

type signatureResponse struct {
	Signature string `json:"signature"`
}

// handleSignMessage implements POST /signing/relayers/{id}/message (§6):
// an EIP-191 personal_sign over arbitrary text, recorded to signing
// history the way the queue records every broadcast (§4.7).
func (s *Server) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	relayerID, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req signMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.checkRateLimit(w, r, relayerID.String(), ratelimit.OpSigningText) {
		return
	}
	rel, err := s.store.GetRelayer(r.Context(), relayerID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	sig, err := s.signer.SignMessage(r.Context(), rel.WalletIndex, []byte(req.Text))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.InsertSignedHistory(r.Context(), storage.SignedHistoryRecord{
		ID:             newHistoryID(),
		RelayerID:      relayerID,
		ChainID:        rel.ChainID,
		MessageOrTyped: []byte(req.Text),
		Signature:      sig,
		Timestamp:      time.Now(),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.commitRateLimit(r, relayerID.String(), ratelimit.OpSigningText)
	writeJSON(w, http.StatusOK, signatureResponse{Signature: hexPrefixed(sig)})
}

// handleSignTypedData implements POST /signing/relayers/{id}/typed-data
// (§6): an EIP-712 signature over a caller-supplied typed-data payload.
func (s *Server) handleSignTypedData(w http.ResponseWriter, r *http.Request) {
	relayerID, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var data apitypes.TypedData
	if !decodeBody(w, r, &data) {
		return
	}
	if !s.checkRateLimit(w, r, relayerID.String(), ratelimit.OpSigningTypedData) {
		return
	}
	rel, err := s.store.GetRelayer(r.Context(), relayerID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	sig, err := s.signer.SignTypedData(r.Context(), rel.WalletIndex, data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	encoded, err := data.HashStruct(data.PrimaryType, data.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid typed data: "+err.Error())
		return
	}
	if err := s.store.InsertSignedHistory(r.Context(), storage.SignedHistoryRecord{
		ID:             newHistoryID(),
		RelayerID:      relayerID,
		ChainID:        rel.ChainID,
		MessageOrTyped: encoded,
		Signature:      sig,
		Timestamp:      time.Now(),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.commitRateLimit(r, relayerID.String(), ratelimit.OpSigningTypedData)
	writeJSON(w, http.StatusOK, signatureResponse{Signature: hexPrefixed(sig)})
}

func hexPrefixed(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func newHistoryID() uuid.UUID { return uuid.New() }
