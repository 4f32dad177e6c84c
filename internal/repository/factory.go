// Package repository provides the data access layer for Sentinel Identity.
// This file contains the wiring types shared by the database backends.
package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	Account           AccountRepository
	Role              RoleRepository
	LoginAttempt      LoginAttemptRepository
	VerificationToken VerificationTokenRepository
}

// DatabaseHealth is the slice of a database backend the health endpoint and
// shutdown path need.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Close() error
}
