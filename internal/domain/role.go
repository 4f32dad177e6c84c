// Package domain contains the core business entities for Sentinel Identity.
package domain

import "time"

// Role is a named group granting a bundle of permissions.
type Role struct {
	// ID is the unique identifier for the role (auto-generated).
	ID int64 `json:"id"`

	// Name is the unique role name (e.g. "Admin", "Manager").
	Name string `json:"name"`

	// Description explains what the role is for.
	Description string `json:"description,omitempty"`

	// Permissions are the permission codenames the role grants.
	Permissions []string `json:"permissions"`

	// CreatedAt is the timestamp when the role was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewRole creates a new Role.
func NewRole(name, description string, permissions []string) *Role {
	return &Role{
		Name:        name,
		Description: description,
		Permissions: permissions,
		CreatedAt:   time.Now().UTC(),
	}
}

// HasPermission reports whether the role grants the given permission.
func (r *Role) HasPermission(perm string) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// RoleProvider supplies role-membership and permission-enumeration facts
// for accounts. Implementations are backed by the role store; tests use
// in-memory fakes.
type RoleProvider interface {
	// HasRole reports whether the account is a member of the named role.
	// Returns false for unknown accounts or roles, never errors.
	HasRole(accountID int64, name string) bool

	// PermissionsFor returns the union of all permissions granted to the
	// account directly or via role membership, without duplicates.
	PermissionsFor(accountID int64) []string
}
