package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// attemptRepository implements repository.LoginAttemptRepository for
// PostgreSQL.
type attemptRepository struct {
	db *DB
}

// NewLoginAttemptRepository creates a new PostgreSQL login attempt repository.
func NewLoginAttemptRepository(db *DB) repository.LoginAttemptRepository {
	return &attemptRepository{db: db}
}

// Record stores a login attempt.
func (r *attemptRepository) Record(ctx context.Context, attempt *domain.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (id, account_id, username, ip_address,
			user_agent, success, failure_reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.AccountID,
		attempt.Username,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.AttemptedAt,
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
		WHERE account_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.LoginAttempt
	for rows.Next() {
		attempt := &domain.LoginAttempt{}
		err := rows.Scan(
			&attempt.ID,
			&attempt.AccountID,
			&attempt.Username,
			&attempt.IPAddress,
			&attempt.UserAgent,
			&attempt.Success,
			&attempt.FailureReason,
			&attempt.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// CountRecentFailures counts failed attempts for the username since the
// given instant.
func (r *attemptRepository) CountRecentFailures(ctx context.Context, username string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE username = $1 AND success = FALSE AND attempted_at >= $2
	`, username, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent failures: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes attempts older than the cutoff.
func (r *attemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM login_attempts WHERE attempted_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old login attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ensure attemptRepository implements repository.LoginAttemptRepository.
var _ repository.LoginAttemptRepository = (*attemptRepository)(nil)
