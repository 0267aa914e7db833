package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleGasPrice implements GET /gas/price/{chain_id} (§6): the oracle
// cache's current snapshot for every speed bucket, read without a
// suspension point (§4.3's "cache read never blocks on RPC").
func (s *Server) handleGasPrice(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, chi.URLParam(r, "chain_id"))
	if !ok {
		return
	}
	estimate, ok := s.gasCache.Main(chainID)
	if !ok {
		writeError(w, http.StatusNotFound, "no gas estimate cached for this chain yet")
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}
