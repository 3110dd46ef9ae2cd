// Package lyrics exposes the metered lyrics generation endpoint.
package lyrics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/auth"
	"github.com/welldanyogia/lyricsgate/internal/generator"
	"github.com/welldanyogia/lyricsgate/internal/metrics"
	"github.com/welldanyogia/lyricsgate/internal/repository"
	"github.com/welldanyogia/lyricsgate/internal/sanitizer"
	"github.com/welldanyogia/lyricsgate/internal/storage"
	"github.com/welldanyogia/lyricsgate/internal/usage"
)

const archiveTimeout = 5 * time.Second

// Meter is the quota side of a metered call. usage.Ledger satisfies it.
type Meter interface {
	Gate(ctx context.Context, accountID uuid.UUID) (usage.Status, error)
	RecordSuccess(ctx context.Context, accountID uuid.UUID) (usage.Status, error)
	Policy() usage.Policy
}

// Archiver stores successful generations. storage.Archive satisfies it.
type Archiver interface {
	SaveGeneration(ctx context.Context, rec storage.GenerationRecord) (string, error)
}

// GenerateResponse is the body of a successful generate call
type GenerateResponse struct {
	Lyrics       string `json:"lyrics"`
	UsageCount   int64  `json:"usageCount"`
	LimitReached bool   `json:"limitReached"`
	LimitMessage string `json:"limitMessage,omitempty"`
}

// Service runs one metered generation
type Service struct {
	generator generator.LyricsGenerator
	meter     Meter
	archive   Archiver
	sanitizer sanitizer.TextSanitizer
	timeout   time.Duration
	logger    *zap.Logger
}

// NewService creates a Service. archive may be nil to disable archiving.
func NewService(gen generator.LyricsGenerator, meter Meter, archive Archiver, s sanitizer.TextSanitizer, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = generator.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		generator: gen,
		meter:     meter,
		archive:   archive,
		sanitizer: s,
		timeout:   timeout,
		logger:    logger,
	}
}

// Generate validates req, applies the quota policy, calls the generator and
// meters the call. The counter only moves when the generator succeeded.
func (s *Service) Generate(ctx context.Context, accountID uuid.UUID, req generator.Request) (*GenerateResponse, error) {
	params, err := req.Normalize(s.sanitizer)
	if err != nil {
		return nil, err
	}

	status, err := s.meter.Gate(ctx, accountID)
	if status.LimitReached {
		metrics.QuotaLimitReachedTotal.WithLabelValues(string(s.meter.Policy())).Inc()
	}
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			metrics.GenerationsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			return nil, err
		}
		return nil, meterError(err)
	}

	start := time.Now()
	payload, err := s.generator.Generate(ctx, params, s.timeout)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := metrics.OutcomeUpstreamError
		if errors.Is(err, generator.ErrUpstreamTimeout) {
			outcome = metrics.OutcomeTimeout
		}
		metrics.GenerationsTotal.WithLabelValues(outcome).Inc()
		return nil, err
	}
	metrics.GenerationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	status, err = s.meter.RecordSuccess(ctx, accountID)
	if err != nil {
		return nil, meterError(err)
	}

	s.archiveGeneration(ctx, accountID, params, payload.Lyrics)

	return &GenerateResponse{
		Lyrics:       payload.Lyrics,
		UsageCount:   status.Count,
		LimitReached: status.LimitReached,
		LimitMessage: status.Message,
	}, nil
}

// meterError classifies a ledger failure. A token can outlive its account,
// and the usage row's foreign key then reports the account as missing.
func meterError(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return auth.ErrUserNotFound
	}
	return apperror.Internal(err)
}

func (s *Service) archiveGeneration(ctx context.Context, accountID uuid.UUID, params generator.Params, lyrics string) {
	if s.archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	_, err := s.archive.SaveGeneration(ctx, storage.GenerationRecord{
		AccountID:   accountID,
		Artist:      params.Artist,
		Description: params.Description,
		MaxLength:   params.MaxLength,
		Lyrics:      lyrics,
	})
	if err != nil {
		s.logger.Warn("failed to archive generation",
			zap.String("account_id", accountID.String()),
			zap.Error(err),
		)
	}
}
