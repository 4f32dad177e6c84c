// Package domain contains the core business entities for Sentinel Identity.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Account Errors
	// ===========================================

	// ErrAccountNotFound indicates the requested account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists indicates an account with the same username or
	// email exists.
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrAccountInactive indicates the account has been deactivated.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrAccountLocked indicates the account is inside an active lock window.
	ErrAccountLocked = errors.New("account is locked")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidLockDuration indicates a non-positive lock duration was
	// supplied. This is a caller error and fails fast rather than silently
	// locking for zero or negative time.
	ErrInvalidLockDuration = errors.New("lock duration must be positive")

	// ===========================================
	// Role Errors
	// ===========================================

	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = errors.New("role not found")

	// ErrRoleAlreadyExists indicates a role with the same name exists.
	ErrRoleAlreadyExists = errors.New("role already exists")

	// ===========================================
	// Verification Errors
	// ===========================================

	// ErrVerificationTokenNotFound indicates the token does not exist.
	ErrVerificationTokenNotFound = errors.New("verification token not found")

	// ErrVerificationTokenExpired indicates the token has expired.
	ErrVerificationTokenExpired = errors.New("verification token has expired")

	// ErrVerificationTokenUsed indicates the token was already consumed.
	ErrVerificationTokenUsed = errors.New("verification token already used")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., username, role name).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// WrapError wraps an error with domain context if it's not already a
// DomainError.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	return &DomainError{
		Err:     err,
		Message: message,
	}
}
