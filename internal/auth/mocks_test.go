package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/lyricsgate/internal/notify"
	"github.com/welldanyogia/lyricsgate/internal/repository"
	"github.com/welldanyogia/lyricsgate/internal/usage"
)

// mockAccountRepository implements repository.AccountRepository for testing
type mockAccountRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*repository.Account
	getErr   error
}

func newMockAccountRepository() *mockAccountRepository {
	return &mockAccountRepository{accounts: make(map[uuid.UUID]*repository.Account)}
}

func (m *mockAccountRepository) Create(ctx context.Context, account *repository.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == strings.ToLower(account.Email) {
			return repository.ErrEmailAlreadyExists
		}
	}
	account.ID = uuid.New()
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*repository.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*repository.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.accounts {
		if a.Email == strings.ToLower(email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *mockAccountRepository) UpdateRole(ctx context.Context, id uuid.UUID, role repository.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	a.Role = role
	return nil
}

func (m *mockAccountRepository) ListWithUsage(ctx context.Context) ([]repository.AccountWithUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repository.AccountWithUsage, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, repository.AccountWithUsage{Account: *a})
	}
	return out, nil
}

func (m *mockAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *mockAccountRepository) passwordHash(email string) string {
	a, err := m.GetByEmail(context.Background(), email)
	if err != nil {
		return ""
	}
	return a.PasswordHash
}

func (m *mockAccountRepository) setPasswordHash(id uuid.UUID, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.PasswordHash = hash
	}
}

// mockLoginAttemptRepository implements repository.LoginAttemptRepository for testing
type mockLoginAttemptRepository struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func newMockLoginAttemptRepository(now func() time.Time) *mockLoginAttemptRepository {
	return &mockLoginAttemptRepository{attempts: make(map[string][]time.Time), now: now}
}

func (m *mockLoginAttemptRepository) CountFailedAttempts(ctx context.Context, email string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, at := range m.attempts[email] {
		if at.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockLoginAttemptRepository) RecordFailedAttempt(ctx context.Context, email string, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[email] = append(m.attempts[email], m.now().UTC())
	return nil
}

func (m *mockLoginAttemptRepository) ClearFailedAttempts(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, email)
	return nil
}

func (m *mockLoginAttemptRepository) CleanupOldFailedAttempts(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for email, list := range m.attempts {
		kept := list[:0]
		for _, at := range list {
			if at.Before(before) {
				removed++
				continue
			}
			kept = append(kept, at)
		}
		m.attempts[email] = kept
	}
	return removed, nil
}

// mockUsageTracker implements UsageTracker for testing
type mockUsageTracker struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
}

func newMockUsageTracker() *mockUsageTracker {
	return &mockUsageTracker{counts: make(map[uuid.UUID]int64)}
}

func (m *mockUsageTracker) Open(ctx context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counts[accountID]; !ok {
		m.counts[accountID] = 0
	}
	return nil
}

func (m *mockUsageTracker) Status(ctx context.Context, accountID uuid.UUID) (usage.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.counts[accountID]
	return usage.Status{Count: count, Limit: 20, LimitReached: count >= 20}, nil
}

// mockResetTokenRepository implements repository.ResetTokenRepository. The
// consume is conditional under the lock, like the SQL UPDATE ... WHERE.
type mockResetTokenRepository struct {
	mu       sync.Mutex
	tokens   map[uuid.UUID]*repository.ResetToken
	accounts *mockAccountRepository
}

func newMockResetTokenRepository(accounts *mockAccountRepository) *mockResetTokenRepository {
	return &mockResetTokenRepository{tokens: make(map[uuid.UUID]*repository.ResetToken), accounts: accounts}
}

func (m *mockResetTokenRepository) Upsert(ctx context.Context, accountID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[accountID] = &repository.ResetToken{
		ID:        uuid.New(),
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *mockResetTokenRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*repository.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[accountID]
	if !ok {
		return nil, repository.ErrResetTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockResetTokenRepository) ConsumeAndUpdatePassword(ctx context.Context, accountID uuid.UUID, tokenHash, passwordHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[accountID]
	if !ok || t.TokenHash != tokenHash || t.UsedAt != nil || !now.Before(t.ExpiresAt) {
		return repository.ErrResetTokenConsumed
	}
	used := now
	t.UsedAt = &used
	m.accounts.setPasswordHash(accountID, passwordHash)
	return nil
}

func (m *mockResetTokenRepository) current(accountID uuid.UUID) *repository.ResetToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[accountID]
}

// capturingNotifier records reset links instead of sending them
type capturingNotifier struct {
	mu    sync.Mutex
	links map[string]string
	sends int
}

var _ notify.Notifier = (*capturingNotifier)(nil)

func newCapturingNotifier() *capturingNotifier {
	return &capturingNotifier{links: make(map[string]string)}
}

func (n *capturingNotifier) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[to] = link
	n.sends++
	return nil
}

func (n *capturingNotifier) linkFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[email]
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sends
}
