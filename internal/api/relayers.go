package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/relayer"
)

type newRelayerRequest struct {
	Name string `json:"name"`
}

type relayerIdentity struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// handleNewRelayer implements POST /relayers/{chain_id}/new (§6): allocates
// a fresh wallet index, persists the relayer record, and starts its queue.
func (s *Server) handleNewRelayer(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, chi.URLParam(r, "chain_id"))
	if !ok {
		return
	}
	var req newRelayerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	rel, err := s.orchestrator.AddNewRelayer(r.Context(), relayer.NewSetup{
		Name:    req.Name,
		ChainID: chainID,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, relayerIdentity{ID: rel.ID.String(), Address: rel.Address.Hex()})
}

type cloneRelayerRequest struct {
	NewName string   `json:"new_name"`
	ChainID chain.ID `json:"chain_id"`
}

// handleCloneRelayer implements POST /relayers/{relayer_id}/clone (§6):
// a new relayer on a different chain sharing the source's wallet.
func (s *Server) handleCloneRelayer(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	var req cloneRelayerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rel, err := s.orchestrator.CloneRelayer(r.Context(), relayer.CloneSetup{
		SourceRelayerID: sourceID,
		NewName:         req.NewName,
		ChainID:         req.ChainID,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, relayerIdentity{ID: rel.ID.String(), Address: rel.Address.Hex()})
}

type relayerResponse struct {
	Relayer      relayer.Relayer `json:"relayer"`
	ProviderURLs []string        `json:"provider_urls,omitempty"`
}

// handleGetRelayer implements GET /relayers/{relayer_id} (§6).
func (s *Server) handleGetRelayer(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	rel, err := s.store.GetRelayer(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, relayerResponse{Relayer: rel})
}

// handleDeleteRelayer implements DELETE /relayers/{relayer_id} (§6): stops
// the queue after letting it drain for the orchestrator's default grace
// window, then soft-deletes the record.
func (s *Server) handleDeleteRelayer(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	if err := s.orchestrator.DeleteQueue(r.Context(), id, defaultShutdownGrace); err != nil {
		writeStoreError(w, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request)   { s.setPaused(w, r, true) }
func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) { s.setPaused(w, r, false) }

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	cfg, err := s.orchestrator.QueueConfig(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	cfg.IsPaused = paused
	if err := s.orchestrator.SetQueueConfig(r.Context(), id, cfg); err != nil {
		writeStoreError(w, err)
		return
	}
	writeNoContent(w)
}

// handleSetMaxGas implements PUT /relayers/{relayer_id}/gas/max/{cap}
// (§6): cap=0 clears the relayer's gas ceiling.
func (s *Server) handleSetMaxGas(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	cap, err := uint256.FromDecimal(chi.URLParam(r, "cap"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid gas cap")
		return
	}
	cfg, err := s.orchestrator.QueueConfig(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if cap.IsZero() {
		cfg.MaxGasPrice = nil
	} else {
		cfg.MaxGasPrice = cap
	}
	if err := s.orchestrator.SetQueueConfig(r.Context(), id, cfg); err != nil {
		writeStoreError(w, err)
		return
	}
	writeNoContent(w)
}

// handleSetEIP1559 implements PUT /relayers/{relayer_id}/gas/eip1559/{enabled}
// (§6): toggles whether this relayer's queue broadcasts legacy or
// dynamic-fee transactions.
func (s *Server) handleSetEIP1559(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	enabled, err := strconv.ParseBool(chi.URLParam(r, "enabled"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid enabled flag")
		return
	}
	cfg, err := s.orchestrator.QueueConfig(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	cfg.IsLegacyTransactions = !enabled
	if err := s.orchestrator.SetQueueConfig(r.Context(), id, cfg); err != nil {
		writeStoreError(w, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleAllowlistAdd(w http.ResponseWriter, r *http.Request) {
	s.setAllowlist(w, r, true)
}

func (s *Server) handleAllowlistRemove(w http.ResponseWriter, r *http.Request) {
	s.setAllowlist(w, r, false)
}

func (s *Server) setAllowlist(w http.ResponseWriter, r *http.Request, add bool) {
	id, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	addr, ok := parseAddress(w, chi.URLParam(r, "addr"))
	if !ok {
		return
	}
	var err error
	if add {
		err = s.store.AddAllowlistEntry(r.Context(), allowlistEntry(id, addr))
	} else {
		err = s.store.RemoveAllowlistEntry(r.Context(), id, addr)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeNoContent(w)
}

// handleBalance implements the supplemented GET /relayers/{relayer_id}/balance
// endpoint: the original system's per-relayer balance lookup, dropped from
// the distilled spec's endpoint table but present in original_source/.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	rel, err := s.store.GetRelayer(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	p, err := s.orchestrator.Provider(rel.ChainID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	bal, err := p.GetBalance(r.Context(), rel.Address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": bal.String()})
}

// handleNetworkEnable and handleNetworkDisable implement the supplemented
// PUT /networks/{chain_id}/enable|disable endpoints (SPEC_FULL.md section
// C): pausing every relayer queue on a chain without deleting any of them.
func (s *Server) handleNetworkEnable(w http.ResponseWriter, r *http.Request) {
	s.setNetworkEnabled(w, r, true)
}

func (s *Server) handleNetworkDisable(w http.ResponseWriter, r *http.Request) {
	s.setNetworkEnabled(w, r, false)
}

func (s *Server) setNetworkEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	chainID, ok := parseChainID(w, chi.URLParam(r, "chain_id"))
	if !ok {
		return
	}
	if err := s.orchestrator.SetNetworkEnabled(r.Context(), chainID, enabled); err != nil {
		writeStoreError(w, err)
		return
	}
	writeNoContent(w)
}

func parseChainID(w http.ResponseWriter, raw string) (chain.ID, bool) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chain_id")
		return 0, false
	}
	return chain.ID(v), true
}
