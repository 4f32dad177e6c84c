package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// roleRepository implements repository.RoleRepository for SQLite.
type roleRepository struct {
	db *DB
}

// NewRoleRepository creates a new SQLite role repository.
func NewRoleRepository(db *DB) repository.RoleRepository {
	return &roleRepository{db: db}
}

// Create creates a new role with its permission bundle.
func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO roles (name, description, created_at) VALUES (?, ?, ?)`,
			role.Name, role.Description, role.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", domain.ErrRoleAlreadyExists, role.Name)
			}
			return fmt.Errorf("failed to create role: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		role.ID = id

		for _, perm := range role.Permissions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, permission) VALUES (?, ?)`,
				role.ID, perm,
			); err != nil {
				return fmt.Errorf("failed to add role permission: %w", err)
			}
		}
		return nil
	})
	return err
}

// GetByName retrieves a role by name, including its permissions.
func (r *roleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	role := &domain.Role{}
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM roles WHERE name = ?`, name,
	).Scan(&role.ID, &role.Name, &role.Description, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	role.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	perms, err := r.permissionsForRole(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms

	return role, nil
}

// List returns all roles ordered by name.
func (r *roleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*domain.Role
	for rows.Next() {
		role := &domain.Role{}
		var createdAt string
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	for _, role := range roles {
		perms, err := r.permissionsForRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}

	return roles, nil
}

// Delete deletes a role; memberships and permissions cascade.
func (r *roleRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

// AssignToAccount adds the account to the role. Idempotent.
func (r *roleRepository) AssignToAccount(ctx context.Context, accountID int64, roleName string) error {
	roleID, err := r.roleIDByName(ctx, roleName)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO account_roles (account_id, role_id) VALUES (?, ?)`,
		accountID, roleID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RemoveFromAccount removes the account from the role.
func (r *roleRepository) RemoveFromAccount(ctx context.Context, accountID int64, roleName string) error {
	roleID, err := r.roleIDByName(ctx, roleName)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`DELETE FROM account_roles WHERE account_id = ? AND role_id = ?`,
		accountID, roleID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return nil
}

// RolesForAccount returns the names of all roles the account belongs to.
func (r *roleRepository) RolesForAccount(ctx context.Context, accountID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.name
		FROM roles r
		JOIN account_roles ar ON ar.role_id = r.id
		WHERE ar.account_id = ?
		ORDER BY r.name
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account roles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasRole checks role membership for an account.
func (r *roleRepository) HasRole(ctx context.Context, accountID int64, roleName string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM account_roles ar
		JOIN roles r ON r.id = ar.role_id
		WHERE ar.account_id = ? AND r.name = ?
	`, accountID, roleName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check role membership: %w", err)
	}
	return count > 0, nil
}

// PermissionsForAccount returns the deduplicated union of permissions
// granted to the account through its roles.
func (r *roleRepository) PermissionsForAccount(ctx context.Context, accountID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT rp.permission
		FROM role_permissions rp
		JOIN account_roles ar ON ar.role_id = rp.role_id
		WHERE ar.account_id = ?
		ORDER BY rp.permission
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// permissionsForRole loads the permission bundle of a role.
func (r *roleRepository) permissionsForRole(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT permission FROM role_permissions WHERE role_id = ? ORDER BY permission`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// roleIDByName resolves a role name to its ID.
func (r *roleRepository) roleIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = ?`, name).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrRoleNotFound
		}
		return 0, fmt.Errorf("failed to resolve role: %w", err)
	}
	return id, nil
}

// Ensure roleRepository implements repository.RoleRepository.
var _ repository.RoleRepository = (*roleRepository)(nil)
