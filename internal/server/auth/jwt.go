// Package auth implements the token service: minting and strict validation
// of the two JWT kinds (short-lived access, long-lived refresh) plus the
// one-way digest used to persist tokens without storing raw values.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quizforge/identity/internal/common"
)

// AccessClaims carry the entitlement snapshot an API call needs. The jti
// registered claim holds the session id shared with the refresh token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Status      string   `json:"status"`
	IsGuest     bool     `json:"is_guest"`
	Permissions []string `json:"permissions"`
}

// RefreshClaims are deliberately minimal: subject, timestamps, and session
// id only, so a stolen refresh token leaks no entitlement data.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// TokenService issues and validates the two token kinds. Access and refresh
// tokens are signed with independent secrets and validity windows.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenService(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// GenerateAccessToken mints a short-lived access token bound to sessionID.
func (s *TokenService) GenerateAccessToken(userID, status string, isGuest bool, permissions []string, sessionID string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        sessionID,
		},
		Status:      status,
		IsGuest:     isGuest,
		Permissions: permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", common.ErrorInternal
	}
	return signed, nil
}

// GenerateRefreshToken mints a long-lived refresh token bound to sessionID.
func (s *TokenService) GenerateRefreshToken(userID, sessionID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(s.refreshSecret)
	if err != nil {
		return "", common.ErrorInternal
	}
	return signed, nil
}

// ValidateAccessToken parses and verifies an access token. Validation is
// strict: HS512 only, expiry required, no clock-skew leeway. An expired
// signature is reported as ErrorTokenExpired so callers can decide whether
// to attempt a refresh; every other failure is ErrorInvalidToken.
func (s *TokenService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.accessSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrorTokenExpired
		}
		return nil, common.ErrorInvalidToken
	}
	return claims, nil
}

// ValidateRefreshToken parses and verifies a refresh token under the same
// strict rules as ValidateAccessToken, against the refresh secret.
func (s *TokenService) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.refreshSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrorTokenExpired
		}
		return nil, common.ErrorInvalidToken
	}
	return claims, nil
}

// AccessTTLSeconds returns the access-token lifetime in seconds, as
// reported to clients in the token response.
func (s *TokenService) AccessTTLSeconds() int64 {
	return int64(s.accessTTL / time.Second)
}

// TokenHash returns the deterministic one-way digest persisted instead of
// the raw token, so a database leak yields no usable credentials.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
