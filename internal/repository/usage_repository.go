package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepository persists per-account metered call counters
type UsageRepository interface {
	Create(ctx context.Context, accountID uuid.UUID) error
	Get(ctx context.Context, accountID uuid.UUID) (*UsageRecord, error)
	Increment(ctx context.Context, accountID uuid.UUID) (int64, error)
	Reset(ctx context.Context, accountID uuid.UUID) error
}

type usageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new UsageRepository instance
func NewUsageRepository(pool *pgxpool.Pool) UsageRepository {
	return &usageRepository{pool: pool}
}

// Create inserts a zero counter. It is a no-op when the record already exists.
func (r *usageRepository) Create(ctx context.Context, accountID uuid.UUID) error {
	query := `
		INSERT INTO usage_records (account_id, call_count)
		VALUES ($1, 0)
		ON CONFLICT (account_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, accountID); err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return ErrUserNotFound
		}
		return fmt.Errorf("create usage record: %w", err)
	}
	return nil
}

// Get returns the usage record, creating a zero record first if the account has none
func (r *usageRepository) Get(ctx context.Context, accountID uuid.UUID) (*UsageRecord, error) {
	if err := r.Create(ctx, accountID); err != nil {
		return nil, err
	}

	query := `SELECT account_id, call_count, updated_at FROM usage_records WHERE account_id = $1`

	record := &UsageRecord{}
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&record.AccountID,
		&record.CallCount,
		&record.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	return record, nil
}

// Increment adds exactly one call in a single statement and returns the new count
func (r *usageRepository) Increment(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `
		INSERT INTO usage_records (account_id, call_count)
		VALUES ($1, 1)
		ON CONFLICT (account_id)
		DO UPDATE SET call_count = usage_records.call_count + 1, updated_at = NOW()
		RETURNING call_count
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return count, nil
}

// Reset sets the counter back to zero
func (r *usageRepository) Reset(ctx context.Context, accountID uuid.UUID) error {
	query := `
		INSERT INTO usage_records (account_id, call_count)
		VALUES ($1, 0)
		ON CONFLICT (account_id)
		DO UPDATE SET call_count = 0, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, accountID); err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return ErrUserNotFound
		}
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}
