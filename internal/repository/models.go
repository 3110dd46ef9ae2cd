package repository

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization level of an account
type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdmin
}

// Account represents a registered account in the database
type Account struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	DisplayName  string    `db:"display_name"`
	PasswordHash string    `db:"password_hash"`
	Role         Role      `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// AccountWithUsage is an account joined with its usage counter
type AccountWithUsage struct {
	Account
	CallCount int64 `db:"call_count"`
}

// UsageRecord is the per-account counter of metered calls
type UsageRecord struct {
	AccountID uuid.UUID `db:"account_id"`
	CallCount int64     `db:"call_count"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ResetToken is a stored password reset token. Only the hash of the secret is kept.
type ResetToken struct {
	ID        uuid.UUID  `db:"id"`
	AccountID uuid.UUID  `db:"account_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Used reports whether the token has been consumed
func (t *ResetToken) Used() bool {
	return t.UsedAt != nil
}

// Expired reports whether the token is past its expiry at now
func (t *ResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// FailedLoginAttempt represents a failed login attempt for brute force protection
type FailedLoginAttempt struct {
	ID          uuid.UUID `db:"id"`
	Email       string    `db:"email"`
	IPAddress   string    `db:"ip_address"`
	AttemptedAt time.Time `db:"attempted_at"`
}

// EndpointStat is the aggregate call counter for a normalized route and method
type EndpointStat struct {
	Endpoint     string    `db:"endpoint" json:"endpoint"`
	Method       string    `db:"method" json:"method"`
	CallCount    int64     `db:"call_count" json:"callCount"`
	LastCalledAt time.Time `db:"last_called_at" json:"lastCalledAt"`
}
