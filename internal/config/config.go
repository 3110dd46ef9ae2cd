package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// MinJWTSecretLength is the shortest signing secret the server accepts
const MinJWTSecretLength = 32

// Quota policies
const (
	QuotaPolicyAdvisory = "advisory"
	QuotaPolicyEnforce  = "enforce"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Quota     QuotaConfig     `yaml:"quota"`
	Generator GeneratorConfig `yaml:"generator"`
	Reset     ResetConfig     `yaml:"reset"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds the optional Redis connection. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
	Issuer string        `yaml:"issuer"`
}

// QuotaConfig holds the per-account generation quota
type QuotaConfig struct {
	Limit  int64  `yaml:"limit"`
	Policy string `yaml:"policy"`
}

// GeneratorConfig points at the downstream lyrics model
type GeneratorConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ResetConfig holds password reset token settings
type ResetConfig struct {
	TokenTTL    time.Duration `yaml:"token_ttl"`
	LinkBaseURL string        `yaml:"link_base_url"`
}

// SMTPConfig holds outgoing mail settings. Empty Host logs reset links instead of mailing them.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	TLS      bool   `yaml:"tls"`
}

// ThrottleConfig holds login throttle and public endpoint rate limits
type ThrottleConfig struct {
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LoginWindow      time.Duration `yaml:"login_window"`
	RequestsPerSec   float64       `yaml:"requests_per_second"`
	Burst            int           `yaml:"burst"`
}

// StorageConfig holds the optional generation archive. Empty Bucket disables it.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AdminConfig seeds the first administrator on startup
type AdminConfig struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "lyricsgate",
			SSLMode: "disable",
		},
		JWT: JWTConfig{
			Expiry: 24 * time.Hour,
			Issuer: "lyricsgate",
		},
		Quota: QuotaConfig{
			Limit:  20,
			Policy: QuotaPolicyAdvisory,
		},
		Generator: GeneratorConfig{
			URL:     "http://localhost:8000",
			Timeout: 50 * time.Second,
		},
		Reset: ResetConfig{
			TokenTTL:    time.Hour,
			LinkBaseURL: "http://localhost:3000/reset-password",
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "no-reply@lyricsgate.local",
			TLS:  true,
		},
		Throttle: ThrottleConfig{
			MaxLoginAttempts: 5,
			LoginWindow:      15 * time.Minute,
			RequestsPerSec:   5,
			Burst:            10,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Admin: AdminConfig{
			DisplayName: "Administrator",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase resolves only the database settings. Tools that never serve
// requests, like the migrator, use it so they need no signing secret.
func LoadDatabase() (DatabaseConfig, error) {
	cfg, err := load()
	if err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

func load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.AllowedOrigins = getListEnv("CORS_ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)

	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.JWT.Expiry = getDurationEnv("JWT_EXPIRY", c.JWT.Expiry)
	c.JWT.Issuer = getEnv("JWT_ISSUER", c.JWT.Issuer)

	c.Quota.Limit = int64(getIntEnv("QUOTA_LIMIT", int(c.Quota.Limit)))
	c.Quota.Policy = strings.ToLower(getEnv("QUOTA_POLICY", c.Quota.Policy))

	c.Generator.URL = getEnv("GENERATOR_URL", c.Generator.URL)
	c.Generator.APIKey = getEnv("GENERATOR_API_KEY", c.Generator.APIKey)
	c.Generator.Timeout = getDurationEnv("GENERATOR_TIMEOUT", c.Generator.Timeout)

	c.Reset.TokenTTL = getDurationEnv("RESET_TOKEN_TTL", c.Reset.TokenTTL)
	c.Reset.LinkBaseURL = getEnv("RESET_LINK_BASE_URL", c.Reset.LinkBaseURL)

	c.SMTP.Host = getEnv("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = getIntEnv("SMTP_PORT", c.SMTP.Port)
	c.SMTP.Username = getEnv("SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = getEnv("SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = getEnv("SMTP_FROM", c.SMTP.From)
	c.SMTP.TLS = getBoolEnv("SMTP_TLS", c.SMTP.TLS)

	c.Throttle.MaxLoginAttempts = getIntEnv("LOGIN_MAX_ATTEMPTS", c.Throttle.MaxLoginAttempts)
	c.Throttle.LoginWindow = getDurationEnv("LOGIN_WINDOW", c.Throttle.LoginWindow)
	c.Throttle.RequestsPerSec = getFloatEnv("RATE_LIMIT_RPS", c.Throttle.RequestsPerSec)
	c.Throttle.Burst = getIntEnv("RATE_LIMIT_BURST", c.Throttle.Burst)

	c.Storage.Endpoint = getEnv("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.Region = getEnv("S3_REGION", c.Storage.Region)
	c.Storage.Bucket = getEnv("S3_BUCKET", c.Storage.Bucket)
	c.Storage.AccessKey = getEnv("S3_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("S3_SECRET_KEY", c.Storage.SecretKey)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.Admin.Email = getEnv("ADMIN_EMAIL", c.Admin.Email)
	c.Admin.Password = getEnv("ADMIN_PASSWORD", c.Admin.Password)
	c.Admin.DisplayName = getEnv("ADMIN_DISPLAY_NAME", c.Admin.DisplayName)
}

// Validate rejects configurations the server cannot safely run with
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWT.Secret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLength))
	}
	if c.JWT.Expiry <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.Quota.Limit <= 0 {
		errs = append(errs, errors.New("QUOTA_LIMIT must be positive"))
	}
	if c.Quota.Policy != QuotaPolicyAdvisory && c.Quota.Policy != QuotaPolicyEnforce {
		errs = append(errs, fmt.Errorf("QUOTA_POLICY must be %q or %q", QuotaPolicyAdvisory, QuotaPolicyEnforce))
	}
	if c.Generator.Timeout <= 0 {
		errs = append(errs, errors.New("GENERATOR_TIMEOUT must be positive"))
	}
	if c.Reset.TokenTTL <= 0 {
		errs = append(errs, errors.New("RESET_TOKEN_TTL must be positive"))
	}
	if c.Throttle.MaxLoginAttempts <= 0 || c.Throttle.LoginWindow <= 0 {
		errs = append(errs, errors.New("login throttle attempts and window must be positive"))
	}

	return errors.Join(errs...)
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// URL returns the connection string in URL form, as golang-migrate expects it
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getDurationEnv accepts Go duration strings ("90s", "24h") or a bare number of minutes
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
