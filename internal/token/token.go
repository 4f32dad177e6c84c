// Package token issues and verifies session tokens for authenticated
// accounts. Tokens are HS256 JWTs; verification here covers signature and
// expiry only, authorization stays with the role store.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
)

// Token errors.
var (
	// ErrMissingSigningKey indicates no signing key was configured.
	ErrMissingSigningKey = errors.New("token signing key is not configured")

	// ErrInvalidToken indicates the token failed verification.
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims are the JWT claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	IsStaff  bool   `json:"is_staff,omitempty"`
}

// Issuer creates and verifies session tokens.
type Issuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	clock      clock.Clock
}

// NewIssuer creates a token issuer. The signing key must be non-empty.
func NewIssuer(signingKey, issuer string, ttl time.Duration, clk clock.Clock) (*Issuer, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		clock:      clk,
	}, nil
}

// Issue creates a signed session token for the account.
func (i *Issuer) Issue(account *domain.Account) (string, error) {
	now := i.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", account.ID),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Username: account.Username,
		Email:    account.Email,
		IsStaff:  account.IsStaff,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.signingKey, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithTimeFunc(i.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
