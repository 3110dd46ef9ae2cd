package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/admin"
	"github.com/welldanyogia/lyricsgate/internal/auth"
	"github.com/welldanyogia/lyricsgate/internal/config"
	"github.com/welldanyogia/lyricsgate/internal/generator"
	"github.com/welldanyogia/lyricsgate/internal/health"
	"github.com/welldanyogia/lyricsgate/internal/logger"
	"github.com/welldanyogia/lyricsgate/internal/lyrics"
	"github.com/welldanyogia/lyricsgate/internal/metrics"
	appmw "github.com/welldanyogia/lyricsgate/internal/middleware"
	"github.com/welldanyogia/lyricsgate/internal/notify"
	"github.com/welldanyogia/lyricsgate/internal/repository"
	"github.com/welldanyogia/lyricsgate/internal/sanitizer"
	"github.com/welldanyogia/lyricsgate/internal/stats"
	"github.com/welldanyogia/lyricsgate/internal/storage"
	"github.com/welldanyogia/lyricsgate/internal/usage"
)

var version = "dev"

const maintenanceInterval = time.Hour

func main() {
	// A missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup database connections
	dbPool, err := setupDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	sqlDB, err := sqlx.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open stats database: %w", err)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool)
	attemptRepo := repository.NewLoginAttemptRepository(dbPool)
	usageRepo := repository.NewUsageRepository(dbPool)
	resetRepo := repository.NewResetTokenRepository(dbPool)
	statRepo := repository.NewEndpointStatRepo(sqlDB)

	ledger := usage.NewLedger(usageRepo, cfg.Quota.Limit, usage.Policy(cfg.Quota.Policy), log.Named("usage"))

	notifier, err := setupNotifier(cfg, log)
	if err != nil {
		return err
	}

	// Interface values stay nil when no bucket is configured
	var (
		archiver    lyrics.Archiver
		cleaner     admin.ArchiveCleaner
		orphanSweep *storage.OrphanSweep
	)
	if cfg.Storage.Bucket != "" {
		archive, err := storage.NewArchive(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to set up generation archive: %w", err)
		}
		archiver, cleaner = archive, archive
		orphanSweep = storage.NewOrphanSweep(archive, accountRepo, storage.DefaultOrphanAge, log.Named("archive"))
		log.Info("generation archive enabled", zap.String("bucket", cfg.Storage.Bucket))
	}

	// Initialize services
	tokenService, err := auth.NewTokenService(auth.TokenServiceConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiry,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return err
	}

	passwordValidator := auth.NewPasswordValidator()

	authService, err := auth.NewAuthService(
		accountRepo,
		attemptRepo,
		ledger,
		tokenService,
		passwordValidator,
		auth.WithLogger(log.Named("auth")),
		auth.WithLoginThrottle(cfg.Throttle.MaxLoginAttempts, cfg.Throttle.LoginWindow),
	)
	if err != nil {
		return err
	}

	resetService := auth.NewResetService(
		accountRepo,
		resetRepo,
		passwordValidator,
		notifier,
		auth.ResetServiceConfig{
			TokenTTL:    cfg.Reset.TokenTTL,
			LinkBaseURL: cfg.Reset.LinkBaseURL,
		},
		log.Named("reset"),
	)

	if cfg.Admin.Email != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.DisplayName); err != nil {
			return fmt.Errorf("failed to seed administrator: %w", err)
		}
	}

	gen := generator.NewHTTPGenerator(generator.Config{
		BaseURL: cfg.Generator.URL,
		APIKey:  cfg.Generator.APIKey,
	}, nil, log.Named("generator"))
	lyricsService := lyrics.NewService(gen, ledger, archiver, sanitizer.NewTextSanitizer(), cfg.Generator.Timeout, log.Named("lyrics"))
	adminService := admin.NewService(accountRepo, ledger, statRepo, cleaner, log.Named("admin"))

	// Initialize handlers
	authHandler := auth.NewAuthHandler(authService, resetService, log.Named("auth"))
	lyricsHandler := lyrics.NewHandler(lyricsService, log.Named("lyrics"))
	adminHandler := admin.NewHandler(adminService, log.Named("admin"))
	healthHandler := health.NewHandler(health.Config{
		DB:      dbPool,
		Redis:   rdb,
		Version: version,
	})

	// Initialize middleware
	authMiddleware := appmw.NewAuthMiddleware(tokenService, log)
	limiter := appmw.NewRateLimiter(cfg.Throttle.RequestsPerSec, cfg.Throttle.Burst, log)
	recorder := stats.NewRecorder(statRepo, log.Named("stats"))

	// Background workers
	go limiter.Run(ctx)
	go metrics.NewDBStatsCollector(dbPool, sqlDB.DB, log).Run(ctx, 15*time.Second)
	go runMaintenance(ctx, authService, orphanSweep, log)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmw.StructuredLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(recorder.Middleware)

		auth.RegisterRoutes(r, authHandler, authMiddleware.Authenticate, limiter.Middleware)
		lyrics.RegisterRoutes(r, lyricsHandler, authMiddleware.Authenticate)
		admin.RegisterRoutes(r, adminHandler, authMiddleware.Authenticate, authMiddleware.RequireRole(repository.RoleAdmin))
	})

	// Generation calls may run up to the generator timeout
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Generator.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := shutdown(shutdownCtx, srv, resetService.Wait); err != nil {
		return err
	}

	log.Info("server exited")
	return nil
}

// shutdown drains requests, then waits for background work such as pending
// reset mails. The wait happens even when the drain timed out.
func shutdown(ctx context.Context, srv interface{ Shutdown(context.Context) error }, waitBackground func()) error {
	err := srv.Shutdown(ctx)
	waitBackground()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to database",
		zap.String("database", cfg.Database.DBName),
		zap.String("host", cfg.Database.Host),
		zap.String("port", cfg.Database.Port),
	)
	return pool, nil
}

// setupNotifier mails reset links when SMTP is configured and logs them otherwise
func setupNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, error) {
	if cfg.SMTP.Host == "" {
		log.Warn("SMTP_HOST not set, password reset links will only be logged")
		return notify.NewLogNotifier(log.Named("notify")), nil
	}

	mailer, err := notify.NewMailNotifier(notify.MailConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		TLS:      cfg.SMTP.TLS,
	}, log.Named("notify"))
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

// runMaintenance prunes stale login attempts and sweeps orphaned archive
// objects until ctx is done. sweep may be nil.
func runMaintenance(ctx context.Context, authService *auth.AuthService, sweep *storage.OrphanSweep, log *zap.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := authService.PruneLoginAttempts(ctx); err != nil {
				log.Warn("failed to prune login attempts", zap.Error(err))
			} else if n > 0 {
				log.Info("pruned login attempts", zap.Int64("removed", n))
			}

			if sweep == nil {
				continue
			}
			if res, err := sweep.Run(ctx); err != nil {
				log.Warn("orphan sweep failed", zap.Error(err))
			} else if res.Deleted > 0 {
				log.Info("orphan sweep removed objects", zap.Int("deleted", res.Deleted), zap.Int("scanned", res.Scanned))
			}
		}
	}
}
