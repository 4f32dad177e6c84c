// Package domain contains the core business entities for Sentinel Identity.
package domain

import "time"

// Changes are the state transitions produced by Account operations. Each one
// names the exact fields it touches; the repository applies it as a single
// atomic write of just those fields. This keeps the audit trail explicit and
// avoids hidden whole-record updates.

// FailedLoginRecorded is produced when a failed login attempt is counted.
type FailedLoginRecorded struct {
	AccountID int64

	// Attempts is the new counter value. The repository applies it with a
	// compare-and-swap against Attempts-1 so two concurrent attempts cannot
	// collapse into one.
	Attempts int
}

// AccountLocked is produced when a lock window is set.
type AccountLocked struct {
	AccountID int64
	Until     time.Time
}

// LoginSucceeded is produced by a successful authentication. Applying it
// zeroes the failed-login counter, clears the lock, and records the login
// source in one write.
type LoginSucceeded struct {
	AccountID   int64
	LastLoginIP string
	LastLoginAt time.Time
}

// ActiveStatusChanged is produced by deactivation or reactivation.
type ActiveStatusChanged struct {
	AccountID int64
	IsActive  bool
}

// EmailVerified is produced when an email verification token is consumed.
type EmailVerified struct {
	AccountID int64
}
