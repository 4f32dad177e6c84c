// Package domain contains the core business entities for Sentinel Identity.
// These are pure Go structs with no external dependencies, representing
// the fundamental concepts of the identity system.
package domain

import (
	"strings"
	"time"
)

// Account represents a registered user account in the system.
// It carries the identity profile together with the authentication and
// lockout state that the login pipeline mutates.
type Account struct {
	// ID is the unique identifier for the account (auto-generated).
	ID int64 `json:"id"`

	// Username is the unique username for login and display.
	// Constraints: 3-150 characters, case-sensitive.
	Username string `json:"username"`

	// Email is the unique email address for the account (case-sensitive).
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the account's password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// FirstName and LastName form the human-readable name.
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	// PhoneNumber is an optional contact number.
	PhoneNumber string `json:"phone_number,omitempty"`

	// Bio is an optional free-form description.
	Bio string `json:"bio,omitempty"`

	// RoleLabel is the optional coarse role choice ("Admin", "User",
	// "Manager"). Fine-grained authorization goes through role membership,
	// not this label.
	RoleLabel string `json:"role,omitempty"`

	// IsActive indicates whether the account is active. Deactivation is the
	// soft-delete state: the record stays, login is refused.
	IsActive bool `json:"is_active"`

	// IsStaff indicates whether the account can access administrative
	// surfaces.
	IsStaff bool `json:"is_staff"`

	// IsSuperuser grants all permissions without explicit assignment.
	IsSuperuser bool `json:"is_superuser"`

	// IsEmailVerified is set by the email verification flow.
	IsEmailVerified bool `json:"is_email_verified"`

	// Is2FAEnabled is set by the external two-factor enrollment flow.
	Is2FAEnabled bool `json:"is_2fa_enabled"`

	// FailedLoginAttempts counts consecutive failed login attempts.
	// Always >= 0; reset to zero by a successful login.
	FailedLoginAttempts int `json:"-"`

	// LockedUntil, when set, refuses login until the instant passes.
	// A nil value means not locked. An elapsed value is semantically
	// unlocked even before it is cleared.
	LockedUntil *time.Time `json:"-"`

	// LastLoginIP records the address of the last successful login.
	// Informational only.
	LastLoginIP string `json:"last_login_ip,omitempty"`

	// LastLoginAt records the time of the last successful login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// DateJoined is the timestamp when the account was created.
	DateJoined time.Time `json:"date_joined"`

	// UpdatedAt is the timestamp when the account was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultLockDuration is the lock window applied when the caller does not
// specify one.
const DefaultLockDuration = 5 * time.Minute

// AdminRoleName is the role whose membership grants admin status.
const AdminRoleName = "Admin"

// NewAccount creates a new Account with default values.
func NewAccount(username, email, passwordHash string) *Account {
	now := time.Now().UTC()
	return &Account{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		DateJoined:   now,
		UpdatedAt:    now,
	}
}

// CanLogin returns true if the account is allowed to attempt login:
// it is active and any lock window has elapsed. This is the single
// authorization gate the authentication pipeline checks before verifying
// credentials.
func (a *Account) CanLogin(now time.Time) bool {
	return a.IsActive && (a.LockedUntil == nil || a.LockedUntil.Before(now))
}

// IsLocked returns true if the account is inside an active lock window.
// Unlike CanLogin it ignores IsActive, so callers can distinguish "locked"
// from "deactivated" in user-facing messaging.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// RecordFailedLogin increments the failed-login counter and returns the
// change to persist. It does not lock the account; the lockout policy
// (threshold, duration) belongs to the caller.
func (a *Account) RecordFailedLogin() *FailedLoginRecorded {
	a.FailedLoginAttempts++
	return &FailedLoginRecorded{
		AccountID: a.ID,
		Attempts:  a.FailedLoginAttempts,
	}
}

// RecordSuccessfulLogin resets the failed-login counter, clears any lock,
// and records the login source. Must be applied exactly once per successful
// authentication, before any session is issued.
func (a *Account) RecordSuccessfulLogin(now time.Time, ip string) *LoginSucceeded {
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
	a.LastLoginIP = ip
	t := now
	a.LastLoginAt = &t
	return &LoginSucceeded{
		AccountID:   a.ID,
		LastLoginIP: ip,
		LastLoginAt: now,
	}
}

// Lock sets the lock window to [now, now+duration). Repeated calls reset
// the window from now; they do not extend an existing one additively.
// A non-positive duration is a caller error.
func (a *Account) Lock(now time.Time, duration time.Duration) (*AccountLocked, error) {
	if duration <= 0 {
		return nil, ErrInvalidLockDuration
	}
	until := now.Add(duration)
	a.LockedUntil = &until
	return &AccountLocked{
		AccountID: a.ID,
		Until:     until,
	}, nil
}

// Deactivate marks the account inactive (soft delete). Reversible only by
// an administrative action.
func (a *Account) Deactivate() *ActiveStatusChanged {
	a.IsActive = false
	return &ActiveStatusChanged{AccountID: a.ID, IsActive: false}
}

// Activate re-enables a deactivated account.
func (a *Account) Activate() *ActiveStatusChanged {
	a.IsActive = true
	return &ActiveStatusChanged{AccountID: a.ID, IsActive: true}
}

// MarkEmailVerified records that the account's email address has been
// verified.
func (a *Account) MarkEmailVerified() *EmailVerified {
	a.IsEmailVerified = true
	return &EmailVerified{AccountID: a.ID}
}

// DisplayName returns "First Last" trimmed, falling back to the first name,
// then the username, whichever is first non-empty.
func (a *Account) DisplayName() string {
	full := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if full != "" {
		return full
	}
	return a.Username
}

// ShortName returns the first name, or the username when no first name is
// set.
func (a *Account) ShortName() string {
	if a.FirstName != "" {
		return a.FirstName
	}
	return a.Username
}

// HasRole reports membership of the named role according to the given
// provider. It never errors; an unknown role is simply absent.
func (a *Account) HasRole(provider RoleProvider, name string) bool {
	if provider == nil {
		return false
	}
	return provider.HasRole(a.ID, name)
}

// IsAdmin returns true for superusers and for members of the Admin role.
func (a *Account) IsAdmin(provider RoleProvider) bool {
	return a.IsSuperuser || a.HasRole(provider, AdminRoleName)
}

// Permissions returns the union of all permissions granted directly or via
// role membership. Enumeration is delegated to the provider; this only
// aggregates.
func (a *Account) Permissions(provider RoleProvider) []string {
	if provider == nil {
		return nil
	}
	return provider.PermissionsFor(a.ID)
}
