package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.JWT.Expiry != 24*time.Hour {
		t.Errorf("expected 24h token expiry, got %v", cfg.JWT.Expiry)
	}
	if cfg.Quota.Limit != 20 {
		t.Errorf("expected quota limit 20, got %d", cfg.Quota.Limit)
	}
	if cfg.Quota.Policy != QuotaPolicyAdvisory {
		t.Errorf("expected advisory policy, got %q", cfg.Quota.Policy)
	}
	if cfg.Generator.Timeout != 50*time.Second {
		t.Errorf("expected 50s generator timeout, got %v", cfg.Generator.Timeout)
	}
	if cfg.Reset.TokenTTL != time.Hour {
		t.Errorf("expected 1h reset ttl, got %v", cfg.Reset.TokenTTL)
	}
	if cfg.Throttle.MaxLoginAttempts != 5 || cfg.Throttle.LoginWindow != 15*time.Minute {
		t.Errorf("unexpected throttle defaults: %+v", cfg.Throttle)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoad_ShortSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "short")

	if _, err := Load(); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
jwt:
  secret: ` + testSecret + `
  expiry: 2h
quota:
  limit: 50
  policy: enforce
generator:
  timeout: 10s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("QUOTA_LIMIT", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.JWT.Expiry != 2*time.Hour {
		t.Errorf("expected expiry from file, got %v", cfg.JWT.Expiry)
	}
	if cfg.Quota.Policy != QuotaPolicyEnforce {
		t.Errorf("expected policy from file, got %q", cfg.Quota.Policy)
	}
	if cfg.Quota.Limit != 7 {
		t.Errorf("expected env to override file limit, got %d", cfg.Quota.Limit)
	}
	if cfg.Generator.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.Generator.Timeout)
	}
}

func TestLoad_UnknownFileKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("unknown_section: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", testSecret)

	if _, err := Load(); err == nil {
		t.Fatal("expected strict decoding to reject unknown keys")
	}
}

func TestValidate_BadPolicy(t *testing.T) {
	cfg := Defaults()
	cfg.JWT.Secret = testSecret
	cfg.Quota.Policy = "sometimes"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown policy to fail validation")
	}
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"90s", 90 * time.Second},
		{"30", 30 * time.Minute},
		{"garbage", time.Hour},
	}
	for _, tc := range tests {
		t.Setenv("TEST_DURATION", tc.value)
		if got := getDurationEnv("TEST_DURATION", time.Hour); got != tc.want {
			t.Errorf("getDurationEnv(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestLoadDatabase_NoSecretNeeded(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "lyrics_test")

	db, err := LoadDatabase()
	if err != nil {
		t.Fatalf("LoadDatabase failed: %v", err)
	}
	if db.Host != "db.internal" || db.DBName != "lyrics_test" {
		t.Errorf("unexpected database config: %+v", db)
	}
	if !strings.HasPrefix(db.URL(), "postgres://") || !strings.Contains(db.URL(), "@db.internal:") {
		t.Errorf("unexpected URL %q", db.URL())
	}
}
