package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/ratelimit"
	"github.com/rrelayer/rrelayer/internal/storage"
)

// defaultShutdownGrace mirrors §4's 30s default drain window, used here for
// a single relayer's deletion rather than the whole process's shutdown.
const defaultShutdownGrace = 30 * time.Second

func allowlistEntry(relayerID uuid.UUID, addr chain.Address) storage.AllowlistEntry {
	return storage.AllowlistEntry{RelayerID: relayerID, Address: addr}
}

// checkRateLimit applies §4.6's per-user-key rate limit to a rate-limited
// operation; when no limiter is configured every request passes. Returns
// false after already having written the 429 response.
func (s *Server) checkRateLimit(w http.ResponseWriter, r *http.Request, relayerFallbackKey string, op ratelimit.Operation) bool {
	if s.rateLimiter == nil {
		return true
	}
	key := r.Header.Get("x-api-key")
	allowed, err := s.rateLimiter.CheckAndReserve(r.Context(), ratelimit.ScopePerUserKey, key, op, relayerFallbackKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func (s *Server) commitRateLimit(r *http.Request, relayerFallbackKey string, op ratelimit.Operation) {
	if s.rateLimiter == nil {
		return
	}
	key := r.Header.Get("x-api-key")
	if key == "" {
		key = relayerFallbackKey
	}
	_ = s.rateLimiter.Commit(r.Context(), ratelimit.ScopePerUserKey, key, op)
}
