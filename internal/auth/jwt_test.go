package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")
	relayerID := uuid.New()

	pair, err := issuer.Issue(relayerID, RoleIntegrator)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := issuer.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, relayerID, claims.RelayerID)
	require.Equal(t, RoleIntegrator, claims.Role)

	_, err = issuer.ValidateRefresh(pair.RefreshToken)
	require.NoError(t, err)
}

func TestTokenIssuerAccessAndRefreshSecretsAreNotInterchangeable(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")
	pair, err := issuer.Issue(uuid.New(), RoleAdmin)
	require.NoError(t, err)

	_, err = issuer.ValidateRefresh(pair.AccessToken)
	require.Error(t, err, "an access token must not validate as a refresh token")

	_, err = issuer.ValidateAccess(pair.RefreshToken)
	require.Error(t, err, "a refresh token must not validate as an access token")
}

func TestTokenIssuerRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	issuerA := NewTokenIssuer("access-a", "refresh-a")
	issuerB := NewTokenIssuer("access-b", "refresh-b")

	pair, err := issuerA.Issue(uuid.New(), RoleManager)
	require.NoError(t, err)

	_, err = issuerB.ValidateAccess(pair.AccessToken)
	require.Error(t, err)
}

func TestHasRole(t *testing.T) {
	claims := Claims{Role: RoleManager}
	require.True(t, HasRole(claims, RoleAdmin, RoleManager))
	require.False(t, HasRole(claims, RoleAdmin, RoleReadOnly))
}
