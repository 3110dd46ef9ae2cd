// Package usage meters generation calls per account against a fixed quota.
package usage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/repository"
)

// Policy decides what happens once an account reaches its quota
type Policy string

const (
	// PolicyAdvisory lets calls through past the quota and flags the response
	PolicyAdvisory Policy = "advisory"
	// PolicyEnforce rejects calls once the quota is reached
	PolicyEnforce Policy = "enforce"
)

// ErrQuotaExceeded is returned by Gate under PolicyEnforce
var ErrQuotaExceeded = apperror.New(apperror.KindRateLimited, apperror.CodeQuotaExceeded, "You have reached your usage limit")

// Status is the quota position of one account
type Status struct {
	Count        int64  `json:"usageCount"`
	Limit        int64  `json:"limit"`
	LimitReached bool   `json:"limitReached"`
	Message      string `json:"limitMessage,omitempty"`
}

// Ledger wraps the usage repository with the quota policy
type Ledger struct {
	repo   repository.UsageRepository
	limit  int64
	policy Policy
	logger *zap.Logger
}

// NewLedger creates a Ledger. limit must be positive.
func NewLedger(repo repository.UsageRepository, limit int64, policy Policy, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy != PolicyEnforce {
		policy = PolicyAdvisory
	}
	return &Ledger{repo: repo, limit: limit, policy: policy, logger: logger}
}

// Limit returns the configured quota
func (l *Ledger) Limit() int64 {
	return l.limit
}

// Policy returns the configured policy
func (l *Ledger) Policy() Policy {
	return l.policy
}

// StatusFor computes the quota status for a count
func (l *Ledger) StatusFor(count int64) Status {
	s := Status{
		Count:        count,
		Limit:        l.limit,
		LimitReached: count >= l.limit,
	}
	if s.LimitReached {
		s.Message = fmt.Sprintf("You have reached your free tier limit of %d API calls.", l.limit)
	}
	return s
}

// Open creates the zero record for a new account
func (l *Ledger) Open(ctx context.Context, accountID uuid.UUID) error {
	return l.repo.Create(ctx, accountID)
}

// Status reads the account's usage, creating the record lazily when missing
func (l *Ledger) Status(ctx context.Context, accountID uuid.UUID) (Status, error) {
	record, err := l.repo.Get(ctx, accountID)
	if err != nil {
		return Status{}, err
	}
	return l.StatusFor(record.CallCount), nil
}

// Gate checks the quota before a metered call. Under PolicyEnforce a
// reached limit returns ErrQuotaExceeded; under PolicyAdvisory the status is
// returned with LimitReached set and the call may proceed.
func (l *Ledger) Gate(ctx context.Context, accountID uuid.UUID) (Status, error) {
	status, err := l.Status(ctx, accountID)
	if err != nil {
		return Status{}, err
	}
	if status.LimitReached && l.policy == PolicyEnforce {
		return status, apperror.WithDetails(ErrQuotaExceeded, status)
	}
	if status.LimitReached {
		l.logger.Info("account past quota",
			zap.String("account_id", accountID.String()),
			zap.Int64("usage_count", status.Count),
		)
	}
	return status, nil
}

// RecordSuccess adds exactly one call after a successful downstream call and
// returns the status after the increment.
func (l *Ledger) RecordSuccess(ctx context.Context, accountID uuid.UUID) (Status, error) {
	count, err := l.repo.Increment(ctx, accountID)
	if err != nil {
		return Status{}, err
	}
	return l.StatusFor(count), nil
}

// Reset puts the counter back to zero
func (l *Ledger) Reset(ctx context.Context, accountID uuid.UUID) error {
	return l.repo.Reset(ctx, accountID)
}
