//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldanyogia/lyricsgate/internal/repository"
)

var testDB *pgxpool.Pool

// TestMain connects to the database named by TEST_DATABASE_URL. The schema
// from migrations/ must already be applied.
func TestMain(m *testing.M) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "host=localhost port=5432 user=postgres password=postgres dbname=lyricsgate_test sslmode=disable"
	}

	ctx := context.Background()

	var err error
	testDB, err = pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Printf("Failed to connect to test database: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.Ping(ctx); err != nil {
		fmt.Printf("Failed to ping test database: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

func cleanupTestData(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, table := range []string{"failed_login_attempts", "endpoint_stats", "password_reset_tokens", "usage_records", "accounts"} {
		if _, err := testDB.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Logf("Warning: failed to cleanup %s: %v", table, err)
		}
	}
}

func createAccount(t *testing.T, email string) *repository.Account {
	t.Helper()
	account := &repository.Account{
		Email:        email,
		DisplayName:  "Test",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuuGq6bO0u7uQ5x0Xn9n1b2m3l4k5j6h7i",
	}
	if err := repository.NewAccountRepository(testDB).Create(context.Background(), account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func TestAccountRepository_DuplicateEmail(t *testing.T) {
	cleanupTestData(t)
	repo := repository.NewAccountRepository(testDB)
	ctx := context.Background()

	first := createAccount(t, "Alice@Example.com")
	if first.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", first.Email)
	}

	err := repo.Create(ctx, &repository.Account{Email: "alice@example.com", DisplayName: "A2", PasswordHash: "other"})
	if !errors.Is(err, repository.ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}

	stored, err := repo.GetByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if stored.PasswordHash != first.PasswordHash {
		t.Error("original password hash changed after duplicate registration")
	}
	if stored.Role != repository.RoleStandard {
		t.Errorf("expected standard role, got %q", stored.Role)
	}
}

func TestUsageRepository_ConcurrentIncrements(t *testing.T) {
	cleanupTestData(t)
	account := createAccount(t, "counter@example.com")
	repo := repository.NewUsageRepository(testDB)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Increment(ctx, account.ID); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	record, err := repo.Get(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if record.CallCount != n {
		t.Errorf("expected %d calls, got %d", n, record.CallCount)
	}

	if err := repo.Reset(ctx, account.ID); err != nil {
		t.Fatal(err)
	}
	record, _ = repo.Get(ctx, account.ID)
	if record.CallCount != 0 {
		t.Errorf("expected reset to zero, got %d", record.CallCount)
	}
}

func TestUsageRepository_UnknownAccount(t *testing.T) {
	cleanupTestData(t)
	_, err := repository.NewUsageRepository(testDB).Increment(context.Background(), uuid.New())
	if !errors.Is(err, repository.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResetTokenRepository_UpsertSupersedes(t *testing.T) {
	cleanupTestData(t)
	account := createAccount(t, "reset@example.com")
	repo := repository.NewResetTokenRepository(testDB)
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)

	if err := repo.Upsert(ctx, account.ID, "hash-1", expires); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, account.ID, "hash-2", expires); err != nil {
		t.Fatal(err)
	}

	token, err := repo.GetByAccountID(ctx, account.ID)
	if err != nil {
		t.Fatal(err)
	}
	if token.TokenHash != "hash-2" {
		t.Errorf("expected newest hash, got %q", token.TokenHash)
	}

	err = repo.ConsumeAndUpdatePassword(ctx, account.ID, "hash-1", "new-hash", time.Now().UTC())
	if !errors.Is(err, repository.ErrResetTokenConsumed) {
		t.Errorf("superseded token must not be consumable, got %v", err)
	}
}

func TestResetTokenRepository_ConcurrentConsume(t *testing.T) {
	cleanupTestData(t)
	account := createAccount(t, "race@example.com")
	repo := repository.NewResetTokenRepository(testDB)
	ctx := context.Background()

	if err := repo.Upsert(ctx, account.ID, "hash", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	const n = 8
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- repo.ConsumeAndUpdatePassword(ctx, account.ID, "hash", fmt.Sprintf("pw-%d", i), time.Now().UTC())
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, consumed int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, repository.ErrResetTokenConsumed):
			consumed++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || consumed != n-1 {
		t.Errorf("expected exactly one success, got %d successes and %d rejections", succeeded, consumed)
	}
}

func TestResetTokenRepository_Expired(t *testing.T) {
	cleanupTestData(t)
	account := createAccount(t, "late@example.com")
	repo := repository.NewResetTokenRepository(testDB)
	ctx := context.Background()

	if err := repo.Upsert(ctx, account.ID, "hash", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	err := repo.ConsumeAndUpdatePassword(ctx, account.ID, "hash", "pw", time.Now().UTC())
	if !errors.Is(err, repository.ErrResetTokenConsumed) {
		t.Errorf("expected expired token to be rejected, got %v", err)
	}
}

func TestAccountRepository_DeleteCascades(t *testing.T) {
	cleanupTestData(t)
	account := createAccount(t, "gone@example.com")
	ctx := context.Background()

	if _, err := repository.NewUsageRepository(testDB).Increment(ctx, account.ID); err != nil {
		t.Fatal(err)
	}
	if err := repository.NewResetTokenRepository(testDB).Upsert(ctx, account.ID, "h", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	if err := repository.NewAccountRepository(testDB).Delete(ctx, account.ID); err != nil {
		t.Fatal(err)
	}

	var remaining int
	err := testDB.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM usage_records WHERE account_id = $1)
		     + (SELECT COUNT(*) FROM password_reset_tokens WHERE account_id = $1)`, account.ID).Scan(&remaining)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 0 {
		t.Errorf("expected cascade delete, %d rows remain", remaining)
	}
}

func TestLoginAttemptRepository(t *testing.T) {
	cleanupTestData(t)
	repo := repository.NewLoginAttemptRepository(testDB)
	ctx := context.Background()
	since := time.Now().UTC().Add(-time.Minute)

	for i := 0; i < 3; i++ {
		if err := repo.RecordFailedAttempt(ctx, "Who@Example.com", "10.0.0.1"); err != nil {
			t.Fatal(err)
		}
	}
	count, err := repo.CountFailedAttempts(ctx, "who@example.com", since)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 attempts, got %d", count)
	}

	if err := repo.ClearFailedAttempts(ctx, "who@example.com"); err != nil {
		t.Fatal(err)
	}
	count, _ = repo.CountFailedAttempts(ctx, "who@example.com", since)
	if count != 0 {
		t.Errorf("expected attempts cleared, got %d", count)
	}
}
