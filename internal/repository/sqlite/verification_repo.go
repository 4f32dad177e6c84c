package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// verificationRepository implements repository.VerificationTokenRepository
// for SQLite.
type verificationRepository struct {
	db *DB
}

// NewVerificationTokenRepository creates a new SQLite verification token repository.
func NewVerificationTokenRepository(db *DB) repository.VerificationTokenRepository {
	return &verificationRepository{db: db}
}

// Create stores a new token.
func (r *verificationRepository) Create(ctx context.Context, token *domain.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (id, account_id, token_hash, created_at, expires_at, used_at)
		VALUES (?, ?, ?, ?, ?, NULL)
	`

	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.AccountID,
		token.TokenHash,
		token.CreatedAt.Format(time.RFC3339),
		token.ExpiresAt.Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("failed to create verification token: %w", err)
	}
	return nil
}

// GetByHash retrieves a token by its hash.
func (r *verificationRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.VerificationToken, error) {
	query := `
		SELECT id, account_id, token_hash, created_at, expires_at, used_at
		FROM verification_tokens
		WHERE token_hash = ?
	`

	token := &domain.VerificationToken{}
	var createdAt, expiresAt string
	var usedAt sql.NullString

	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&createdAt,
		&expiresAt,
		&usedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVerificationTokenNotFound
		}
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}

	token.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	token.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	if usedAt.Valid {
		t, err := time.Parse(time.RFC3339, usedAt.String)
		if err == nil {
			token.UsedAt = &t
		}
	}

	return token, nil
}

// MarkUsed records consumption of the token. Only an unused token can be
// marked, so a double consumption surfaces as ErrVerificationTokenUsed.
func (r *verificationRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	query := `UPDATE verification_tokens SET used_at = ? WHERE id = ? AND used_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, usedAt.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark verification token used: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrVerificationTokenUsed
	}
	return nil
}

// DeleteExpired removes tokens past their expiry.
func (r *verificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < ?`, now.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// Ensure verificationRepository implements repository.VerificationTokenRepository.
var _ repository.VerificationTokenRepository = (*verificationRepository)(nil)
