package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reset token repository errors
var (
	ErrResetTokenNotFound = errors.New("reset token not found")
	// ErrResetTokenConsumed means the conditional consume matched no row: the
	// token was already used, expired, or replaced by a newer one.
	ErrResetTokenConsumed = errors.New("reset token already used or expired")
)

// ResetTokenRepository persists password reset tokens, at most one per account
type ResetTokenRepository interface {
	Upsert(ctx context.Context, accountID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*ResetToken, error)
	ConsumeAndUpdatePassword(ctx context.Context, accountID uuid.UUID, tokenHash, passwordHash string, now time.Time) error
}

type resetTokenRepository struct {
	pool *pgxpool.Pool
}

// NewResetTokenRepository creates a new ResetTokenRepository instance
func NewResetTokenRepository(pool *pgxpool.Pool) ResetTokenRepository {
	return &resetTokenRepository{pool: pool}
}

// Upsert stores a fresh token for the account, superseding any previous one in the same statement
func (r *resetTokenRepository) Upsert(ctx context.Context, accountID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO password_reset_tokens (account_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id)
		DO UPDATE SET token_hash = EXCLUDED.token_hash,
		              expires_at = EXCLUDED.expires_at,
		              used_at = NULL,
		              created_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, accountID, tokenHash, expiresAt); err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return ErrUserNotFound
		}
		return fmt.Errorf("upsert reset token: %w", err)
	}
	return nil
}

// GetByAccountID returns the current token for the account
func (r *resetTokenRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*ResetToken, error) {
	query := `
		SELECT id, account_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE account_id = $1
	`

	token := &ResetToken{}
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResetTokenNotFound
		}
		return nil, err
	}
	return token, nil
}

// ConsumeAndUpdatePassword marks the token used and sets the new password hash in
// one transaction. The consume is a conditional update, so of two concurrent
// callers holding the same secret exactly one sees a matched row.
func (r *resetTokenRepository) ConsumeAndUpdatePassword(ctx context.Context, accountID uuid.UUID, tokenHash, passwordHash string, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	consume := `
		UPDATE password_reset_tokens
		SET used_at = $3
		WHERE account_id = $1
		  AND token_hash = $2
		  AND used_at IS NULL
		  AND expires_at > $3
	`
	result, err := tx.Exec(ctx, consume, accountID, tokenHash, now)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrResetTokenConsumed
	}

	update := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`
	result, err = tx.Exec(ctx, update, passwordHash, now, accountID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return tx.Commit(ctx)
}
