package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/auth"
	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/ratelimit"
	"github.com/rrelayer/rrelayer/internal/txqueue"
)

type sendRequest struct {
	To         chain.Address `json:"to"`
	Value      string        `json:"value"`
	Data       []byte        `json:"data,omitempty"`
	Speed      chain.Speed   `json:"speed,omitempty"`
	Blobs      [][]byte      `json:"blobs,omitempty"`
	ExternalID *string       `json:"external_id,omitempty"`
}

func (req sendRequest) toIntent() (txqueue.Intent, error) {
	value := uint256.NewInt(0)
	if req.Value != "" {
		v, err := uint256.FromDecimal(req.Value)
		if err != nil {
			return txqueue.Intent{}, err
		}
		value = v
	}
	speed := req.Speed
	if speed == "" {
		speed = chain.SpeedMedium
	}
	return txqueue.Intent{
		To:         req.To,
		Value:      value,
		Data:       req.Data,
		Speed:      speed,
		BlobData:   req.Blobs,
		ExternalID: req.ExternalID,
	}, nil
}

type sendResponse struct {
	ID   string `json:"id"`
	Hash string `json:"hash,omitempty"`
}

// handleSend implements POST /transactions/relayers/{relayer_id}/send
// (§6): queues a new intent, subject to the per-relayer rate limit of
// §4.6 before it ever reaches the queue.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	relayerID, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.checkRateLimit(w, r, relayerID.String(), ratelimit.OpTransaction) {
		return
	}
	intent, err := req.toIntent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid value: "+err.Error())
		return
	}
	id, err := s.orchestrator.Submit(r.Context(), relayerID, intent, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.commitRateLimit(r, relayerID.String(), ratelimit.OpTransaction)
	writeJSON(w, http.StatusCreated, sendResponse{ID: id.String()})
}

type replaceResponse struct {
	Success bool   `json:"success"`
	NewID   string `json:"new_id,omitempty"`
	NewHash string `json:"new_hash,omitempty"`
}

// handleReplace implements PUT /transactions/replace/{id} (§6): the body
// is the replacement intent, same shape as send.
func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	txID, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	relayerID, ok := auth.RelayerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "relayer scope required: pass x-api-key")
		return
	}
	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	intent, err := req.toIntent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid value: "+err.Error())
		return
	}
	newID, hash, err := s.orchestrator.Replace(r.Context(), relayerID, txID, intent)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp := replaceResponse{Success: true, NewID: newID.String()}
	if hash != nil {
		resp.NewHash = hash.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

type cancelResponse struct {
	Success  bool   `json:"success"`
	CancelID string `json:"cancel_id,omitempty"`
}

// handleCancel implements PUT /transactions/cancel/{id} (§6).
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	txID, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	relayerID, ok := auth.RelayerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "relayer scope required: pass x-api-key")
		return
	}
	cancelID, err := s.orchestrator.Cancel(r.Context(), relayerID, txID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Success: true, CancelID: cancelID.String()})
}

// handleGetTransaction implements GET /transactions/{id} (§6): the full
// persisted row.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	tx, err := s.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type statusResponse struct {
	Hash   string      `json:"hash,omitempty"`
	Status chain.Status `json:"status"`
}

// handleGetStatus implements GET /transactions/status/{id} (§6): the
// lightweight polling view, hash plus status rather than the full row.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	tx, err := s.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp := statusResponse{Status: tx.Status}
	if tx.KnownHash != nil {
		resp.Hash = tx.KnownHash.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCountPending and handleCountInMempool implement the two variants of
// GET /transactions/relayers/{id}/{pending|inmempool}/count (§6).
func (s *Server) handleCountPending(w http.ResponseWriter, r *http.Request) {
	s.countByStatus(w, r, chain.StatusPending)
}

func (s *Server) handleCountInMempool(w http.ResponseWriter, r *http.Request) {
	s.countByStatus(w, r, chain.StatusInMempool)
}

func (s *Server) countByStatus(w http.ResponseWriter, r *http.Request, status chain.Status) {
	relayerID, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	count, err := s.store.CountByStatus(r.Context(), relayerID, status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}
