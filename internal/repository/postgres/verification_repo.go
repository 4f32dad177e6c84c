package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// verificationRepository implements repository.VerificationTokenRepository
// for PostgreSQL.
type verificationRepository struct {
	db *DB
}

// NewVerificationTokenRepository creates a new PostgreSQL verification token
// repository.
func NewVerificationTokenRepository(db *DB) repository.VerificationTokenRepository {
	return &verificationRepository{db: db}
}

// Create stores a new token.
func (r *verificationRepository) Create(ctx context.Context, token *domain.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (id, account_id, token_hash, created_at, expires_at, used_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		token.ID,
		token.AccountID,
		token.TokenHash,
		token.CreatedAt,
		token.ExpiresAt,
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
		WHERE token_hash = $1
	`

	token := &domain.VerificationToken{}
	err := r.db.Pool.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVerificationTokenNotFound
		}
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}
	return token, nil
}

// MarkUsed records consumption of the token. Only an unused token can be
// marked, so a double consumption surfaces as ErrVerificationTokenUsed.
func (r *verificationRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	query := `UPDATE verification_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`

	tag, err := r.db.Pool.Exec(ctx, query, usedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark verification token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVerificationTokenUsed
	}
	return nil
}

// DeleteExpired removes tokens past their expiry.
func (r *verificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ensure verificationRepository implements repository.VerificationTokenRepository.
var _ repository.VerificationTokenRepository = (*verificationRepository)(nil)
