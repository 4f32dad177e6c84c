package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// accountRepository implements repository.AccountRepository for SQLite.
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new SQLite account repository.
func NewAccountRepository(db *DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, username, email, password_hash, first_name, last_name,
	phone_number, bio, role_label, is_active, is_staff, is_superuser,
	is_email_verified, is_2fa_enabled, failed_login_attempts, locked_until,
	last_login_ip, last_login_at, date_joined, updated_at`

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccount scans one accounts row into a domain.Account.
func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	var isActive, isStaff, isSuperuser, isEmailVerified, is2FA int
	var lockedUntil, lastLoginAt sql.NullString
	var dateJoined, updatedAt string

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
		&isActive,
		&isStaff,
		&isSuperuser,
		&isEmailVerified,
		&is2FA,
		&account.FailedLoginAttempts,
		&lockedUntil,
		&account.LastLoginIP,
		&lastLoginAt,
		&dateJoined,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.IsActive = isActive != 0
	account.IsStaff = isStaff != 0
	account.IsSuperuser = isSuperuser != 0
	account.IsEmailVerified = isEmailVerified != 0
	account.Is2FAEnabled = is2FA != 0
	account.DateJoined, _ = time.Parse(time.RFC3339, dateJoined)
	account.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lockedUntil.Valid {
		t, err := time.Parse(time.RFC3339, lockedUntil.String)
		if err == nil {
			account.LockedUntil = &t
		}
	}
	if lastLoginAt.Valid {
		t, err := time.Parse(time.RFC3339, lastLoginAt.String)
		if err == nil {
			account.LastLoginAt = &t
		}
	}

	return account, nil
}

// Create creates a new account.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (username, email, password_hash, first_name, last_name,
			phone_number, bio, role_label, is_active, is_staff, is_superuser,
			is_email_verified, is_2fa_enabled, failed_login_attempts, locked_until,
			last_login_ip, last_login_at, date_joined, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.PhoneNumber,
		account.Bio,
		account.RoleLabel,
		boolToInt(account.IsActive),
		boolToInt(account.IsStaff),
		boolToInt(account.IsSuperuser),
		boolToInt(account.IsEmailVerified),
		boolToInt(account.Is2FAEnabled),
		account.FailedLoginAttempts,
		nullTime(account.LockedUntil),
		account.LastLoginIP,
		nullTime(account.LastLoginAt),
		account.DateJoined.Format(time.RFC3339),
		account.UpdatedAt.Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username or email already exists", domain.ErrAccountAlreadyExists)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	account.ID = id

	return nil
}

// GetByID retrieves an account by ID.
func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return account, nil
}

// GetByUsername retrieves an account by username.
func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = ?`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email.
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if isNoRows(err) {
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
		SET first_name = ?, last_name = ?, phone_number = ?, bio = ?,
			role_label = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		account.FirstName,
		account.LastName,
		account.PhoneNumber,
		account.Bio,
		account.RoleLabel,
		account.UpdatedAt.Format(time.RFC3339),
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account profile: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *accountRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// ApplyFailedLogin persists a counted failed attempt. The counter write is
// guarded with a compare-and-swap: it only succeeds if the stored value is
// still change.Attempts-1, so two concurrent attempts cannot collapse into
// one and slip past the lock threshold.
func (r *accountRepository) ApplyFailedLogin(ctx context.Context, change *domain.FailedLoginRecorded) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = ?, updated_at = ?
		WHERE id = ? AND failed_login_attempts = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		change.Attempts,
		time.Now().UTC().Format(time.RFC3339),
		change.AccountID,
		change.Attempts-1,
	)
	if err != nil {
		return fmt.Errorf("failed to apply failed login: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// Either the account is gone or another attempt moved the counter.
		exists, err := r.existsByID(ctx, change.AccountID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrAccountNotFound
		}
		return repository.ErrConflict
	}

	return nil
}

// ApplyLock persists a lock window. Later locks overwrite earlier ones.
func (r *accountRepository) ApplyLock(ctx context.Context, change *domain.AccountLocked) error {
	query := `UPDATE accounts SET locked_until = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		change.Until.Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		change.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply lock: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
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
			last_login_ip = ?, last_login_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		change.LastLoginIP,
		change.LastLoginAt.Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		change.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply successful login: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// ApplyUnlock clears the lock window and zeroes the failed-login counter.
func (r *accountRepository) ApplyUnlock(ctx context.Context, accountID int64) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339),
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply unlock: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// ApplyActiveStatus persists a deactivation or reactivation.
func (r *accountRepository) ApplyActiveStatus(ctx context.Context, change *domain.ActiveStatusChanged) error {
	query := `UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(change.IsActive),
		time.Now().UTC().Format(time.RFC3339),
		change.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply active status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// ApplyEmailVerified marks the account's email as verified.
func (r *accountRepository) ApplyEmailVerified(ctx context.Context, change *domain.EmailVerified) error {
	query := `UPDATE accounts SET is_email_verified = 1, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339),
		change.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply email verification: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// List returns accounts with pagination, ordered by username like the
// original admin listing.
func (r *accountRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.Account], error) {
	countQuery := `SELECT COUNT(*) FROM accounts`
	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	query := `SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY username
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
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
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE username = ?`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return count > 0, nil
}

// ExistsByEmail checks if an account with the given email exists.
func (r *accountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE email = ?`, email).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return count > 0, nil
}

// Delete hard-deletes an account by ID.
func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM accounts WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// existsByID checks account existence, used to distinguish a lost CAS race
// from a missing row.
func (r *accountRepository) existsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return count > 0, nil
}

// boolToInt converts a boolean to an integer (SQLite doesn't have native boolean).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullTime formats an optional time as RFC3339 or NULL.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// Ensure accountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*accountRepository)(nil)
