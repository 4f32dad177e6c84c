// Package domain contains the core business entities for Sentinel Identity.
package domain

import "time"

// VerificationToken is a single-use token for confirming an account's email
// address. Issuance and consumption live here; delivery of the token to the
// user is an external concern.
type VerificationToken struct {
	// ID is the unique identifier for the token record.
	ID string `json:"id"`

	// AccountID is the account being verified.
	AccountID int64 `json:"account_id"`

	// TokenHash is the SHA-256 hash of the token value. The plaintext is
	// only available at issuance.
	TokenHash string `json:"-"`

	// CreatedAt is when the token was issued.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the token stops being acceptable.
	ExpiresAt time.Time `json:"expires_at"`

	// UsedAt is set when the token is consumed.
	UsedAt *time.Time `json:"used_at,omitempty"`
}

// IsExpired reports whether the token has passed its expiry.
func (t *VerificationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsUsed reports whether the token has been consumed.
func (t *VerificationToken) IsUsed() bool {
	return t.UsedAt != nil
}
