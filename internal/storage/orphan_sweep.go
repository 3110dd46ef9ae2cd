package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/repository"
)

// DefaultOrphanAge is how old an archived generation must be before the
// sweep may remove it
const DefaultOrphanAge = 24 * time.Hour

// AccountLookup resolves account ids. repository.AccountRepository satisfies it.
type AccountLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Account, error)
}

// SweepResult summarizes one orphan sweep
type SweepResult struct {
	Scanned int
	Orphans int
	Deleted int
}

// OrphanSweep removes archived generations whose account no longer exists.
// Account deletion already removes the prefix; the sweep catches deletions
// whose archive cleanup failed.
type OrphanSweep struct {
	archive  *Archive
	accounts AccountLookup
	minAge   time.Duration
	logger   *zap.Logger
}

// NewOrphanSweep creates an OrphanSweep
func NewOrphanSweep(archive *Archive, accounts AccountLookup, minAge time.Duration, logger *zap.Logger) *OrphanSweep {
	if minAge <= 0 {
		minAge = DefaultOrphanAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrphanSweep{archive: archive, accounts: accounts, minAge: minAge, logger: logger}
}

// Run performs one sweep
func (s *OrphanSweep) Run(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	keys, err := s.archive.listKeys(ctx, GenerationPrefix, s.archive.now().Add(-s.minAge))
	result.Scanned = len(keys)
	if err != nil {
		return result, err
	}

	known := make(map[uuid.UUID]bool)
	var orphans []string
	for _, key := range keys {
		accountID, ok := accountFromKey(key)
		if !ok {
			continue
		}

		exists, seen := known[accountID]
		if !seen {
			_, err := s.accounts.GetByID(ctx, accountID)
			switch {
			case err == nil:
				exists = true
			case errors.Is(err, repository.ErrUserNotFound):
				exists = false
			default:
				return result, err
			}
			known[accountID] = exists
		}
		if !exists {
			orphans = append(orphans, key)
		}
	}

	result.Orphans = len(orphans)
	if len(orphans) == 0 {
		return result, nil
	}

	result.Deleted, err = s.archive.deleteKeys(ctx, orphans)
	s.logger.Info("orphan sweep completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("orphans", result.Orphans),
		zap.Int("deleted", result.Deleted),
	)
	return result, err
}

func accountFromKey(key string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(key, GenerationPrefix)
	if !ok {
		return uuid.Nil, false
	}
	idPart, _, found := strings.Cut(rest, "/")
	if !found {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
