// Package auth issues and verifies the JSON Web Tokens used by the admin API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"brokeradmin/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "tokenType" claim.
const (
	TokenTypeAccess  = "ACCESS"
	TokenTypeRefresh = "REFRESH"
)

// MinSigningKeyLength is the minimum HMAC key size in bytes.
const MinSigningKeyLength = 32

// ErrInvalidToken is returned for tokens that fail verification for any reason.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims
type Claims struct {
	UserID    string `json:"userId"`
	Authority string `json:"authority,omitempty"`
	Enabled   bool   `json:"enabled"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// TokenSettings configures a TokenFactory.
type TokenSettings struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenFactory signs token pairs with HS512.
type TokenFactory struct {
	settings TokenSettings
	now      func() time.Time
}

// NewTokenFactory validates the settings.
func NewTokenFactory(settings TokenSettings) (*TokenFactory, error) {
	if len(settings.SigningKey) < MinSigningKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if settings.AccessTTL <= 0 || settings.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if settings.Issuer == "" {
		settings.Issuer = "brokeradmin"
	}
	return &TokenFactory{settings: settings, now: time.Now}, nil
}

// CreateTokenPair issues a fresh access token and refresh token for user.
func (f *TokenFactory) CreateTokenPair(user core.SecurityUser) (core.TokenPair, error) {
	if user.User == nil {
		return core.TokenPair{}, errors.New("cannot issue token without a user")
	}
	access, err := f.sign(user, TokenTypeAccess, f.settings.AccessTTL)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := f.sign(user, TokenTypeRefresh, f.settings.RefreshTTL)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return core.TokenPair{Token: access, RefreshToken: refresh}, nil
}

func (f *TokenFactory) sign(user core.SecurityUser, tokenType string, ttl time.Duration) (string, error) {
	now := f.now()
	claims := &Claims{
		UserID:    user.User.ID.String(),
		Authority: string(user.User.Authority),
		Enabled:   user.Enabled,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    f.settings.Issuer,
			Subject:   user.Principal.Value,
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(f.settings.SigningKey)
}

// ParseAccessToken verifies an access token. Refresh tokens are rejected.
func (f *TokenFactory) ParseAccessToken(token string) (*Claims, error) {
	return f.parse(token, TokenTypeAccess)
}

// ParseRefreshToken verifies a refresh token. Access tokens are rejected.
func (f *TokenFactory) ParseRefreshToken(token string) (*Claims, error) {
	return f.parse(token, TokenTypeRefresh)
}

func (f *TokenFactory) parse(token, tokenType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return f.settings.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(f.settings.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(f.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, tokenType)
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: malformed user id", ErrInvalidToken)
	}
	return claims, nil
}
