package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// accountRepository implements repository.AccountRepository for PostgreSQL.
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository.
func NewAccountRepository(db *DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, username, email, password_hash, first_name, last_name,
	phone_number, bio, role_label, is_active, is_staff, is_superuser,
	is_email_verified, is_2fa_enabled, failed_login_attempts, locked_until,
	last_login_ip, last_login_at, date_joined, updated_at`

// scanAccount scans one accounts row into a domain.Account.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.PhoneNumber,
		&account.Bio,
		&account.RoleLabel,
		&account.IsActive,
		&account.IsStaff,
		&account.IsSuperuser,
		&account.IsEmailVerified,
		&account.Is2FAEnabled,
		&account.FailedLoginAttempts,
		&account.LockedUntil,
		&account.LastLoginIP,
		&account.LastLoginAt,
		&account.DateJoined,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// 23505 = unique_violation
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key value")
}

// isForeignKeyViolation checks for a PostgreSQL foreign key violation.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	// 23503 = foreign_key_violation
	return strings.Contains(err.Error(), "23503") ||
		strings.Contains(err.Error(), "violates foreign key constraint")
}

// Create creates a new account.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (username, email, password_hash, first_name, last_name,
			phone_number, bio, role_label, is_active, is_staff, is_superuser,
			is_email_verified, is_2fa_enabled, failed_login_attempts, locked_until,
			last_login_ip, last_login_at, date_joined, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.PhoneNumber,
		account.Bio,
		account.RoleLabel,
		account.IsActive,
		account.IsStaff,
		account.IsSuperuser,
		account.IsEmailVerified,
		account.Is2FAEnabled,
		account.FailedLoginAttempts,
		account.LockedUntil,
		account.LastLoginIP,
		account.LastLoginAt,
		account.DateJoined,
		account.UpdatedAt,
	).Scan(&account.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username or email already exists", domain.ErrAccountAlreadyExists)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID.
func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return account, nil
}

// GetByUsername retrieves an account by username.
func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`

	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email.
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

// UpdateProfile updates the mutable profile fields of an existing account.
func (r *accountRepository) UpdateProfile(ctx context.Context, account *domain.Account) error {
	account.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE accounts
		SET first_name = $1, last_name = $2, phone_number = $3, bio = $4,
			role_label = $5, updated_at = $6
		WHERE id = $7
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		account.FirstName,
		account.LastName,
		account.PhoneNumber,
		account.Bio,
		account.RoleLabel,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *accountRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.db.Pool.Exec(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ApplyFailedLogin persists a counted failed attempt with a compare-and-swap
// on the counter so concurrent attempts cannot collapse into one.
func (r *accountRepository) ApplyFailedLogin(ctx context.Context, change *domain.FailedLoginRecorded) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = $1, updated_at = $2
		WHERE id = $3 AND failed_login_attempts = $4
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		change.Attempts,
		time.Now().UTC(),
		change.AccountID,
		change.Attempts-1,
	)
	if err != nil {
		return fmt.Errorf("failed to apply failed login: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var count int
		if err := r.db.Pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM accounts WHERE id = $1`, change.AccountID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check account existence: %w", err)
		}
		if count == 0 {
			return domain.ErrAccountNotFound
		}
		return repository.ErrConflict
	}

	return nil
}

// ApplyLock persists a lock window. Later locks overwrite earlier ones.
func (r *accountRepository) ApplyLock(ctx context.Context, change *domain.AccountLocked) error {
	query := `UPDATE accounts SET locked_until = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.db.Pool.Exec(ctx, query, change.Until, time.Now().UTC(), change.AccountID)
	if err != nil {
		return fmt.Errorf("failed to apply lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ApplyLoginSucceeded atomically zeroes the counter, clears the lock, and
// records the login source in one write.
func (r *accountRepository) ApplyLoginSucceeded(ctx context.Context, change *domain.LoginSucceeded) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL,
			last_login_ip = $1, last_login_at = $2, updated_at = $3
		WHERE id = $4
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		change.LastLoginIP,
		change.LastLoginAt,
		time.Now().UTC(),
		change.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply successful login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ApplyUnlock clears the lock window and zeroes the failed-login counter.
func (r *accountRepository) ApplyUnlock(ctx context.Context, accountID int64) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = $1
		WHERE id = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to apply unlock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ApplyActiveStatus persists a deactivation or reactivation.
func (r *accountRepository) ApplyActiveStatus(ctx context.Context, change *domain.ActiveStatusChanged) error {
	query := `UPDATE accounts SET is_active = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.db.Pool.Exec(ctx, query, change.IsActive, time.Now().UTC(), change.AccountID)
	if err != nil {
		return fmt.Errorf("failed to apply active status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ApplyEmailVerified marks the account's email as verified.
func (r *accountRepository) ApplyEmailVerified(ctx context.Context, change *domain.EmailVerified) error {
	query := `UPDATE accounts SET is_email_verified = TRUE, updated_at = $1 WHERE id = $2`

	tag, err := r.db.Pool.Exec(ctx, query, time.Now().UTC(), change.AccountID)
	if err != nil {
		return fmt.Errorf("failed to apply email verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// List returns accounts with pagination, ordered by username.
func (r *accountRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.Account], error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	query := `SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY username
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return &repository.ListResult[domain.Account]{
		Items:  accounts,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// ExistsByUsername checks if an account with the given username exists.
func (r *accountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE username = $1`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return count > 0, nil
}

// ExistsByEmail checks if an account with the given email exists.
func (r *accountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE email = $1`, email).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return count > 0, nil
}

// Delete hard-deletes an account by ID.
func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Ensure accountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*accountRepository)(nil)
