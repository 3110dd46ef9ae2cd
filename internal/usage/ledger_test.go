package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/repository"
)

// mockUsageRepository is an in-memory implementation of UsageRepository for testing
type mockUsageRepository struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
	err    error
}

func newMockUsageRepository() *mockUsageRepository {
	return &mockUsageRepository{counts: make(map[uuid.UUID]int64)}
}

func (m *mockUsageRepository) Create(ctx context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.counts[accountID]; !ok {
		m.counts[accountID] = 0
	}
	return nil
}

func (m *mockUsageRepository) Get(ctx context.Context, accountID uuid.UUID) (*repository.UsageRecord, error) {
	if err := m.Create(ctx, accountID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &repository.UsageRecord{AccountID: accountID, CallCount: m.counts[accountID], UpdatedAt: time.Now()}, nil
}

func (m *mockUsageRepository) Increment(ctx context.Context, accountID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.counts[accountID]++
	return m.counts[accountID], nil
}

func (m *mockUsageRepository) Reset(ctx context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[accountID] = 0
	return nil
}

func TestStatusFor(t *testing.T) {
	ledger := NewLedger(newMockUsageRepository(), 20, PolicyAdvisory, nil)

	below := ledger.StatusFor(19)
	if below.LimitReached || below.Message != "" {
		t.Errorf("19 of 20 should not be at limit: %+v", below)
	}

	at := ledger.StatusFor(20)
	if !at.LimitReached {
		t.Error("20 of 20 should be at limit")
	}
	if at.Message != "You have reached your free tier limit of 20 API calls." {
		t.Errorf("unexpected message %q", at.Message)
	}
}

// Property: N successful calls move the counter by exactly N.
func TestProperty_RecordSuccessCountsExactly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		repo := newMockUsageRepository()
		ledger := NewLedger(repo, 20, PolicyAdvisory, nil)
		ctx := context.Background()
		id := uuid.New()

		n := rapid.IntRange(0, 60).Draw(t, "n")
		for i := 0; i < n; i++ {
			if _, err := ledger.RecordSuccess(ctx, id); err != nil {
				t.Fatal(err)
			}
		}

		status, err := ledger.Status(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if status.Count != int64(n) {
			t.Fatalf("expected %d, got %d", n, status.Count)
		}
		if status.LimitReached != (n >= 20) {
			t.Fatalf("limitReached wrong for %d", n)
		}
	})
}

func TestGate_AdvisoryLetsCallsThrough(t *testing.T) {
	repo := newMockUsageRepository()
	ledger := NewLedger(repo, 2, PolicyAdvisory, nil)
	id := uuid.New()
	repo.counts[id] = 5

	status, err := ledger.Gate(context.Background(), id)
	if err != nil {
		t.Fatalf("advisory policy must not block: %v", err)
	}
	if !status.LimitReached {
		t.Error("expected limit flag")
	}
}

func TestGate_EnforceBlocksAtLimit(t *testing.T) {
	repo := newMockUsageRepository()
	ledger := NewLedger(repo, 2, PolicyEnforce, nil)
	id := uuid.New()
	ctx := context.Background()

	repo.counts[id] = 1
	if _, err := ledger.Gate(ctx, id); err != nil {
		t.Fatalf("below limit must pass: %v", err)
	}

	repo.counts[id] = 2
	_, err := ledger.Gate(ctx, id)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if apperror.As(err).Kind.Status() != 429 {
		t.Error("quota errors should map to 429")
	}
}

func TestStatus_CreatesMissingRecord(t *testing.T) {
	repo := newMockUsageRepository()
	ledger := NewLedger(repo, 20, PolicyAdvisory, nil)
	id := uuid.New()

	status, err := ledger.Status(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status.Count != 0 {
		t.Errorf("expected 0, got %d", status.Count)
	}
	if _, ok := repo.counts[id]; !ok {
		t.Error("record should be created lazily")
	}
}

func TestReset(t *testing.T) {
	repo := newMockUsageRepository()
	ledger := NewLedger(repo, 20, PolicyAdvisory, nil)
	id := uuid.New()
	repo.counts[id] = 33

	if err := ledger.Reset(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if repo.counts[id] != 0 {
		t.Errorf("expected reset to 0, got %d", repo.counts[id])
	}
}

func TestUnknownPolicyFallsBackToAdvisory(t *testing.T) {
	if p := NewLedger(newMockUsageRepository(), 1, Policy("strict"), nil).Policy(); p != PolicyAdvisory {
		t.Errorf("expected advisory fallback, got %q", p)
	}
}
