package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Role is an authenticated caller's permission level, grounded on
// original_source/authentication/types/jwt_role.rs.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleIntegrator Role = "INTEGRATOR"
	RoleReadOnly   Role = "READONLY"
)

const (
	accessTokenTTL  = 5 * time.Minute
	refreshTokenTTL = time.Hour
)

// Claims is the JWT payload: the relayer (or operator) this token was
// issued for, plus its role (original_source/jwt.rs's JwtClaims).
type Claims struct {
	jwt.RegisteredClaims
	RelayerID uuid.UUID `json:"relayer_id"`
	Role      Role      `json:"role"`
}

// TokenPair is the access/refresh pair returned by a successful exchange.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenIssuer signs and validates the short-lived access-token exchange
// §1 and original_source/authentication/jwt.rs describe as an optional
// addition on top of the mandatory Basic/API-key contract. Access and
// refresh tokens are signed with distinct secrets so a leaked access
// secret can't be used to mint new refresh tokens.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
}

func NewTokenIssuer(accessSecret, refreshSecret string) *TokenIssuer {
	return &TokenIssuer{accessSecret: []byte(accessSecret), refreshSecret: []byte(refreshSecret)}
}

func (t *TokenIssuer) Issue(relayerID uuid.UUID, role Role) (TokenPair, error) {
	now := time.Now()
	access, err := t.sign(relayerID, role, now, accessTokenTTL, t.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	refresh, err := t.sign(relayerID, role, now, refreshTokenTTL, t.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *TokenIssuer) sign(relayerID uuid.UUID, role Role, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RelayerID: relayerID,
		Role:      role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateAccess parses and verifies an access token, returning its
// claims only if the signature, expiry, and algorithm all check out.
func (t *TokenIssuer) ValidateAccess(token string) (Claims, error) {
	return t.validate(token, t.accessSecret)
}

func (t *TokenIssuer) ValidateRefresh(token string) (Claims, error) {
	return t.validate(token, t.refreshSecret)
}

func (t *TokenIssuer) validate(token string, secret []byte) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", tok.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !parsed.Valid {
		return Claims{}, fmt.Errorf("auth: token failed validation")
	}
	return claims, nil
}

// HasRole reports whether claims carries one of the allowed roles,
// grounded on original_source/jwt.rs's validate_token_includes_role.
func HasRole(claims Claims, allowed ...Role) bool {
	for _, r := range allowed {
		if claims.Role == r {
			return true
		}
	}
	return false
}
