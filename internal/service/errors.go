// Package service provides business logic services for Sentinel Identity.
package service

import "errors"

// Common service errors.
var (
	// Account errors
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrAccountLocked        = errors.New("account is locked")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidPassword      = errors.New("invalid password: must be at least 8 characters")
	ErrInvalidUsername      = errors.New("invalid username: must be 3-150 characters")
	ErrInvalidEmail         = errors.New("invalid email format")

	// Role errors
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleAlreadyExists = errors.New("role already exists")
	ErrInvalidRoleName   = errors.New("invalid role name")

	// Verification errors
	ErrVerificationTokenInvalid = errors.New("verification token is invalid")
	ErrVerificationTokenExpired = errors.New("verification token has expired")
	ErrVerificationTokenUsed    = errors.New("verification token already used")

	// General errors
	ErrTooManyAttempts = errors.New("too many concurrent login attempts")
	ErrInternalError   = errors.New("internal server error")
)
