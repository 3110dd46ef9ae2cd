package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LoginAttemptRepository tracks failed logins for brute force protection
type LoginAttemptRepository interface {
	CountFailedAttempts(ctx context.Context, email string, since time.Time) (int, error)
	RecordFailedAttempt(ctx context.Context, email string, ip string) error
	ClearFailedAttempts(ctx context.Context, email string) error
	CleanupOldFailedAttempts(ctx context.Context, before time.Time) (int64, error)
}

// loginAttemptRepository implements LoginAttemptRepository using PostgreSQL
type loginAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository instance
func NewLoginAttemptRepository(pool *pgxpool.Pool) LoginAttemptRepository {
	return &loginAttemptRepository{pool: pool}
}

// CountFailedAttempts counts failed login attempts for an email since a given time
func (r *loginAttemptRepository) CountFailedAttempts(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM failed_login_attempts
		WHERE email = $1 AND attempted_at >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, strings.ToLower(email), since).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// RecordFailedAttempt records a failed login attempt
func (r *loginAttemptRepository) RecordFailedAttempt(ctx context.Context, email string, ip string) error {
	query := `
		INSERT INTO failed_login_attempts (email, ip_address)
		VALUES ($1, $2)
	`

	_, err := r.pool.Exec(ctx, query, strings.ToLower(email), ip)
	return err
}

// ClearFailedAttempts forgets the failures for an email after a successful login
func (r *loginAttemptRepository) ClearFailedAttempts(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM failed_login_attempts WHERE email = $1`, strings.ToLower(email))
	return err
}

// CleanupOldFailedAttempts removes failed login attempts older than the specified time
func (r *loginAttemptRepository) CleanupOldFailedAttempts(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM failed_login_attempts WHERE attempted_at < $1`

	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
