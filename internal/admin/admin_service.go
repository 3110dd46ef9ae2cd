// Package admin implements the administrator operations over accounts,
// usage counters and endpoint statistics.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/auth"
	"github.com/welldanyogia/lyricsgate/internal/repository"
)

// Admin errors
var (
	ErrInvalidID  = apperror.New(apperror.KindValidation, apperror.CodeInvalidID, "Invalid user id")
	ErrDeleteSelf = apperror.New(apperror.KindValidation, apperror.CodeSelfDelete, "Administrators cannot delete their own account")
)

const archiveCleanupTimeout = 30 * time.Second

// UsageResetter puts an account's counter back to zero. usage.Ledger satisfies it.
type UsageResetter interface {
	Reset(ctx context.Context, accountID uuid.UUID) error
}

// ArchiveCleaner removes an account's archived generations. storage.Archive satisfies it.
type ArchiveCleaner interface {
	DeleteAccount(ctx context.Context, accountID uuid.UUID) (int, error)
}

// UserSummary is one row of the admin user listing
type UserSummary struct {
	auth.UserResponse
	UsageCount int64 `json:"usageCount"`
}

// Service implements the admin operations
type Service struct {
	accounts repository.AccountRepository
	usage    UsageResetter
	stats    repository.EndpointStatRepository
	archive  ArchiveCleaner
	logger   *zap.Logger
}

// NewService creates a Service. archive may be nil.
func NewService(accounts repository.AccountRepository, usage UsageResetter, stats repository.EndpointStatRepository, archive ArchiveCleaner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		accounts: accounts,
		usage:    usage,
		stats:    stats,
		archive:  archive,
		logger:   logger,
	}
}

// ListUsers returns every account with its usage count, heaviest users first
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.accounts.ListWithUsage(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	users := make([]UserSummary, 0, len(rows))
	for i := range rows {
		users = append(users, UserSummary{
			UserResponse: auth.ToUserResponse(&rows[i].Account),
			UsageCount:   rows[i].CallCount,
		})
	}
	return users, nil
}

// ResetUsage sets the account's counter to zero
func (s *Service) ResetUsage(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}

	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return auth.ErrUserNotFound
		}
		return apperror.Internal(err)
	}

	if err := s.usage.Reset(ctx, id); err != nil {
		return apperror.Internal(err)
	}

	s.logger.Info("usage reset", zap.String("account_id", id.String()))
	return nil
}

// DeleteAccount removes an account with its usage and reset rows, then its
// archived generations. actorID is the administrator making the call.
func (s *Service) DeleteAccount(ctx context.Context, actorID, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	if id.String() == actorID {
		return ErrDeleteSelf
	}

	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return auth.ErrUserNotFound
		}
		return apperror.Internal(err)
	}
	s.logger.Info("account deleted",
		zap.String("account_id", id.String()),
		zap.String("actor_id", actorID),
	)

	if s.archive != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveCleanupTimeout)
		defer cancel()

		removed, err := s.archive.DeleteAccount(cleanupCtx, id)
		if err != nil {
			// The orphan sweep picks these up later
			s.logger.Warn("failed to remove archived generations",
				zap.String("account_id", id.String()),
				zap.Error(err),
			)
		} else if removed > 0 {
			s.logger.Info("archived generations removed",
				zap.String("account_id", id.String()),
				zap.Int("count", removed),
			)
		}
	}
	return nil
}

// ListEndpointStats returns the per-endpoint call counters, most called first
func (s *Service) ListEndpointStats(ctx context.Context) ([]repository.EndpointStat, error) {
	stats, err := s.stats.List(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return stats, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Wrap(ErrInvalidID, err)
	}
	return id, nil
}
