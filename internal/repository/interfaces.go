// Package repository defines data access interfaces for Sentinel Identity.
// These interfaces abstract database operations, allowing for different
// implementations (PostgreSQL, SQLite, in-memory for testing) while keeping
// the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/sentinel-identity/internal/domain"
)

// =============================================================================
// Account Repository
// =============================================================================

// AccountRepository defines the interface for account data access.
//
// Authentication state transitions are applied through the Apply* methods,
// each of which writes only the fields its change names. The implementation
// must serialize read-then-write per account; ApplyFailedLogin additionally
// compare-and-swaps the counter and returns ErrConflict when a concurrent
// attempt won the race. Callers retry by reloading; no automatic retry here.
type AccountRepository interface {
	// Create creates a new account. Username and email uniqueness is
	// enforced at the storage layer.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id int64) (*domain.Account, error)

	// GetByUsername retrieves an account by username (case-sensitive).
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)

	// GetByEmail retrieves an account by email (case-sensitive).
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// UpdateProfile updates the mutable profile fields (names, phone, bio,
	// role label) of an existing account.
	UpdateProfile(ctx context.Context, account *domain.Account) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error

	// ApplyFailedLogin persists a counted failed attempt. The write succeeds
	// only if the stored counter still equals change.Attempts-1; otherwise
	// ErrConflict is returned.
	ApplyFailedLogin(ctx context.Context, change *domain.FailedLoginRecorded) error

	// ApplyLock persists a lock window.
	ApplyLock(ctx context.Context, change *domain.AccountLocked) error

	// ApplyLoginSucceeded atomically zeroes the failed-login counter, clears
	// the lock, and records the login source.
	ApplyLoginSucceeded(ctx context.Context, change *domain.LoginSucceeded) error

	// ApplyActiveStatus persists a deactivation or reactivation.
	ApplyActiveStatus(ctx context.Context, change *domain.ActiveStatusChanged) error

	// ApplyEmailVerified marks the account's email as verified.
	ApplyEmailVerified(ctx context.Context, change *domain.EmailVerified) error

	// ApplyUnlock clears the lock window and zeroes the failed-login
	// counter without touching the last-login fields. Administrative
	// override; normal unlock is the window elapsing.
	ApplyUnlock(ctx context.Context, accountID int64) error

	// List returns accounts with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.Account], error)

	// ExistsByUsername checks if an account with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByEmail checks if an account with the given email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Delete hard-deletes an account. Only the admin CLI uses this; all
	// application flows soft-delete via ApplyActiveStatus.
	Delete(ctx context.Context, id int64) error
}

// =============================================================================
// Role Repository
// =============================================================================

// RoleRepository defines the interface for role and membership data access.
type RoleRepository interface {
	// Create creates a new role.
	Create(ctx context.Context, role *domain.Role) error

	// GetByName retrieves a role by name.
	GetByName(ctx context.Context, name string) (*domain.Role, error)

	// List returns all roles.
	List(ctx context.Context) ([]*domain.Role, error)

	// Delete deletes a role and its memberships.
	Delete(ctx context.Context, name string) error

	// AssignToAccount adds the account to the role. Idempotent.
	AssignToAccount(ctx context.Context, accountID int64, roleName string) error

	// RemoveFromAccount removes the account from the role.
	RemoveFromAccount(ctx context.Context, accountID int64, roleName string) error

	// RolesForAccount returns the names of all roles the account belongs to.
	RolesForAccount(ctx context.Context, accountID int64) ([]string, error)

	// HasRole checks role membership for an account.
	HasRole(ctx context.Context, accountID int64, roleName string) (bool, error)

	// PermissionsForAccount returns the deduplicated union of permissions
	// granted to the account through its roles.
	PermissionsForAccount(ctx context.Context, accountID int64) ([]string, error)
}

// =============================================================================
// Login Attempt Repository
// =============================================================================

// LoginAttemptRepository defines the interface for the authentication audit
// trail.
type LoginAttemptRepository interface {
	// Record stores a login attempt.
	Record(ctx context.Context, attempt *domain.LoginAttempt) error

	// ListByAccount returns the most recent attempts for an account, newest
	// first.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.LoginAttempt, error)

	// CountRecentFailures counts failed attempts for the username within the
	// lookback window ending at the given instant.
	CountRecentFailures(ctx context.Context, username string, since time.Time) (int64, error)

	// DeleteOlderThan removes audit records older than the cutoff and
	// returns the number removed. Retention policy belongs to the caller.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// =============================================================================
// Verification Token Repository
// =============================================================================

// VerificationTokenRepository defines the interface for email verification
// token storage.
type VerificationTokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *domain.VerificationToken) error

	// GetByHash retrieves a token by its hash.
	GetByHash(ctx context.Context, tokenHash string) (*domain.VerificationToken, error)

	// MarkUsed records consumption of the token.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error

	// DeleteExpired removes tokens past their expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int

	// OrderBy specifies the sort order.
	OrderBy string

	// Descending specifies descending order if true.
	Descending bool
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}
