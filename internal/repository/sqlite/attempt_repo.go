package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// attemptRepository implements repository.LoginAttemptRepository for SQLite.
type attemptRepository struct {
	db *DB
}

// NewLoginAttemptRepository creates a new SQLite login attempt repository.
func NewLoginAttemptRepository(db *DB) repository.LoginAttemptRepository {
	return &attemptRepository{db: db}
}

// Record stores a login attempt.
func (r *attemptRepository) Record(ctx context.Context, attempt *domain.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (id, account_id, username, ip_address,
			user_agent, success, failure_reason, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.AccountID,
		attempt.Username,
		attempt.IPAddress,
		attempt.UserAgent,
		boolToInt(attempt.Success),
		attempt.FailureReason,
		attempt.AttemptedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// ListByAccount returns the most recent attempts for an account, newest first.
func (r *attemptRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.LoginAttempt, error) {
	query := `
		SELECT id, account_id, username, ip_address, user_agent, success,
			failure_reason, attempted_at
		FROM login_attempts
		WHERE account_id = ?
		ORDER BY attempted_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.LoginAttempt
	for rows.Next() {
		attempt := &domain.LoginAttempt{}
		var success int
		var attemptedAt string
		err := rows.Scan(
			&attempt.ID,
			&attempt.AccountID,
			&attempt.Username,
			&attempt.IPAddress,
			&attempt.UserAgent,
			&success,
			&attempt.FailureReason,
			&attemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempt.Success = success != 0
		attempt.AttemptedAt, _ = time.Parse(time.RFC3339, attemptedAt)
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// CountRecentFailures counts failed attempts for the username since the
// given instant.
func (r *attemptRepository) CountRecentFailures(ctx context.Context, username string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE username = ? AND success = 0 AND attempted_at >= ?
	`, username, since.Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent failures: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes attempts older than the cutoff.
func (r *attemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM login_attempts WHERE attempted_at < ?
	`, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old login attempts: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted login attempts: %w", err)
	}
	return deleted, nil
}

// Ensure attemptRepository implements repository.LoginAttemptRepository.
var _ repository.LoginAttemptRepository = (*attemptRepository)(nil)
