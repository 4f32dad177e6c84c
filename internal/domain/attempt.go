// Package domain contains the core business entities for Sentinel Identity.
package domain

import "time"

// LoginAttempt is the audit record of a single authentication attempt.
type LoginAttempt struct {
	// ID is the unique identifier for the attempt.
	ID string `json:"id"`

	// AccountID links the attempt to an account, when the identifier
	// resolved to one. Zero when the username was unknown.
	AccountID int64 `json:"account_id,omitempty"`

	// Username is the identifier the caller presented.
	Username string `json:"username"`

	// IPAddress is the source address of the attempt.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the client user agent, when available.
	UserAgent string `json:"user_agent,omitempty"`

	// Success indicates whether the attempt authenticated.
	Success bool `json:"success"`

	// FailureReason records why a failed attempt failed
	// (e.g. "invalid credentials", "account locked").
	FailureReason string `json:"failure_reason,omitempty"`

	// AttemptedAt is the timestamp of the attempt.
	AttemptedAt time.Time `json:"attempted_at"`
}
