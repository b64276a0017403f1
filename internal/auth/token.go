// Package auth implements the signed-token layer: issuing, validating, and
// decoding the short-lived access tokens and long-lived refresh tokens that
// gate every request.
//
// Tokens are HMAC-SHA256 JWTs carrying {sub, role, type, iat, exp}. The
// "type" claim distinguishes ACCESS from REFRESH so that one kind can never
// be presented where the other is expected. Validation fails closed: any
// signature, format, expiry, or type problem yields "invalid", never a panic
// or a partial result.
//
// Refresh-token rotation is not implemented here; it needs the persisted
// refresh record and lives in services.AuthService.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claim values.
const (
	// TypeAccess marks a short-lived token used to authenticate requests.
	TypeAccess = "ACCESS"
	// TypeRefresh marks a long-lived token redeemable for a new pair.
	TypeRefresh = "REFRESH"
)

// ErrInvalidToken is returned by claim accessors when the token cannot be
// verified or decoded.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload for both token types. Role is only present on
// access tokens.
type Claims struct {
	Role      string `json:"role,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService issues and validates signed tokens. It is stateless and safe
// for concurrent use.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	// now is a clock seam for tests.
	now func() time.Time
}

// NewTokenService constructs a TokenService signing with the given secret.
// TTLs of zero fall back to the defaults (1h access, 7d refresh).
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs a new ACCESS token for the user carrying the role
// claim used by downstream authorization.
func (s *TokenService) IssueAccessToken(userID uint64, role string) (string, error) {
	return s.issue(userID, role, TypeAccess, s.accessTTL)
}

// IssueRefreshToken signs a new REFRESH token for the user.
func (s *TokenService) IssueRefreshToken(userID uint64) (string, error) {
	return s.issue(userID, "", TypeRefresh, s.refreshTTL)
}

func (s *TokenService) issue(userID uint64, role, typ string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate reports whether the token is well formed, correctly signed, not
// expired, and of the expected type. It never returns an error: any failure
// mode, including a malformed or empty token, is simply false.
func (s *TokenService) Validate(token, expectedType string) bool {
	claims, err := s.parse(token)
	if err != nil {
		return false
	}
	return claims.TokenType == expectedType
}

// Subject returns the user id encoded in the token's sub claim.
func (s *TokenService) Subject(token string) (uint64, error) {
	claims, err := s.parse(token)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Role returns the role claim of a (typically access) token.
func (s *TokenService) Role(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Role, nil
}

// TokenType returns the type claim, TypeAccess or TypeRefresh.
func (s *TokenService) TokenType(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	return claims.TokenType, nil
}

// ExpiresAt returns the token's expiry instant. Used when persisting the
// refresh record so the stored expiry mirrors the exp claim exactly.
func (s *TokenService) ExpiresAt(token string) (time.Time, error) {
	claims, err := s.parse(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}

// parse verifies the signature and registered claims (incl. exp) and decodes
// the payload. All failures collapse to ErrInvalidToken so callers cannot
// distinguish why a token was rejected.
func (s *TokenService) parse(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
