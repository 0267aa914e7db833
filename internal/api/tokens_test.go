package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/auth"
)

func TestHandleIssueTokenDefaultsToIntegratorRole(t *testing.T) {
	cfg := testConfig(&fakeAPIStore{})
	cfg.Tokens = auth.NewTokenIssuer("access-secret", "refresh-secret")
	handler := Router(cfg)

	relayerID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/relayers/"+relayerID.String()+"/token", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := cfg.Tokens.ValidateAccess(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, relayerID, claims.RelayerID)
	require.Equal(t, auth.RoleIntegrator, claims.Role)
}

func TestHandleRefreshTokenRejectsAccessTokenAsRefresh(t *testing.T) {
	tokens := auth.NewTokenIssuer("access-secret", "refresh-secret")
	cfg := testConfig(&fakeAPIStore{})
	cfg.Tokens = tokens
	handler := Router(cfg)

	pair, err := tokens.Issue(uuid.New(), auth.RoleIntegrator)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"refresh_token": pair.AccessToken})
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRefreshTokenIssuesFreshPair(t *testing.T) {
	tokens := auth.NewTokenIssuer("access-secret", "refresh-secret")
	cfg := testConfig(&fakeAPIStore{})
	cfg.Tokens = tokens
	handler := Router(cfg)

	relayerID := uuid.New()
	pair, err := tokens.Issue(relayerID, auth.RoleAdmin)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"refresh_token": pair.RefreshToken})
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := tokens.ValidateAccess(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, relayerID, claims.RelayerID)
	require.Equal(t, auth.RoleAdmin, claims.Role)
}
