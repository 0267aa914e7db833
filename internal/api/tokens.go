package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rrelayer/rrelayer/internal/auth"
)

type tokenRequest struct {
	Role auth.Role `json:"role,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// handleIssueToken exchanges the request's already-verified Basic/API-key
// credentials for a short-lived JWT pair scoped to this relayer
// (original_source/authentication/jwt.rs's token-exchange endpoint, not
// present in spec.md's endpoint table — see SPEC_FULL.md section C).
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	relayerID, ok := parseUUID(w, chi.URLParam(r, "relayer_id"))
	if !ok {
		return
	}
	var req tokenRequest
	if r.ContentLength > 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	role := req.Role
	if role == "" {
		role = auth.RoleIntegrator
	}
	pair, err := s.tokens.Issue(relayerID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRefreshToken mints a fresh access/refresh pair from a still-valid
// refresh token, without requiring Basic auth again (the refresh token
// itself is the credential, per original_source/jwt.rs).
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	claims, err := s.tokens.ValidateRefresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	pair, err := s.tokens.Issue(claims.RelayerID, claims.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}
