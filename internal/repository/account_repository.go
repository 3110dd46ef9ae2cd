package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// Postgres error codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role Role) error
	ListWithUsage(ctx context.Context) ([]AccountWithUsage, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// accountRepository implements AccountRepository using PostgreSQL
type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Create inserts a new account. The unique index on email is the backstop for
// concurrent registrations that both passed EmailExists.
func (r *accountRepository) Create(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	if account.Role == "" {
		account.Role = RoleStandard
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	err := r.pool.QueryRow(ctx, query,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
		account.Role,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

const accountColumns = `id, email, display_name, password_hash, role, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	account := &Account{}
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&account.PasswordHash,
		&account.Role,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail retrieves an account by its normalized email address
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// EmailExists checks whether an account with the email is already registered
func (r *accountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// UpdateRole changes the role of an account
func (r *accountRepository) UpdateRole(ctx context.Context, id uuid.UUID, role Role) error {
	query := `UPDATE accounts SET role = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, role, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListWithUsage returns every account with its call count, heaviest users first
func (r *accountRepository) ListWithUsage(ctx context.Context) ([]AccountWithUsage, error) {
	query := `
		SELECT a.id, a.email, a.display_name, a.password_hash, a.role, a.created_at, a.updated_at,
		       COALESCE(u.call_count, 0) AS call_count
		FROM accounts a
		LEFT JOIN usage_records u ON u.account_id = a.id
		ORDER BY call_count DESC, a.created_at ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []AccountWithUsage
	for rows.Next() {
		var a AccountWithUsage
		if err := rows.Scan(
			&a.ID,
			&a.Email,
			&a.DisplayName,
			&a.PasswordHash,
			&a.Role,
			&a.CreatedAt,
			&a.UpdatedAt,
			&a.CallCount,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// Delete removes an account. Usage and reset token rows go with it (ON DELETE CASCADE).
func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM accounts WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
