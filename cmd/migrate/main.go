// Command migrate applies and rolls back the lyricsgate schema migrations.
// Connection settings come from the same CONFIG_FILE and DB_* variables the
// server reads.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/config"
	"github.com/welldanyogia/lyricsgate/internal/logger"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultMigrationsPath   = "migrations"
)

// Options holds migration settings
type Options struct {
	DatabaseURL    string
	MigrationsPath string
	Timeout        time.Duration
}

func main() {
	_ = godotenv.Load()

	migrPath := flag.String("path", envOr("MIGRATIONS_PATH", defaultMigrationsPath), "Path to migrations directory")
	timeout := flag.Duration("timeout", defaultMigrationTimeout, "Lock timeout per migration")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  up [N]       Apply all or N up migrations\n")
		fmt.Fprintf(os.Stderr, "  down [N]     Roll back N migrations (default 1)\n")
		fmt.Fprintf(os.Stderr, "  goto V       Migrate to version V\n")
		fmt.Fprintf(os.Stderr, "  force V      Set version V without running migrations\n")
		fmt.Fprintf(os.Stderr, "  version      Print current migration version\n")
		fmt.Fprintf(os.Stderr, "  create NAME  Create a new migration file pair\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logger.New(logger.DefaultConfig()).Named("migrate")
	defer func() { _ = log.Sync() }()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := config.LoadDatabase()
	if err != nil {
		log.Fatal("failed to load database configuration", zap.Error(err))
	}

	opts := Options{
		DatabaseURL:    db.URL(),
		MigrationsPath: *migrPath,
		Timeout:        *timeout,
	}

	if err := runCommand(opts, flag.Arg(0), flag.Args()[1:], log); err != nil {
		log.Fatal("migration command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
}

// runCommand executes one migration command
func runCommand(opts Options, cmd string, args []string, log *zap.Logger) error {
	if cmd == "create" {
		if len(args) < 1 {
			return errors.New("create requires a migration name")
		}
		up, down, err := createMigration(opts.MigrationsPath, args[0])
		if err != nil {
			return err
		}
		log.Info("created migration", zap.String("up", up), zap.String("down", down))
		return nil
	}

	m, err := newMigrate(opts)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Warn("failed to close migrator", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	switch cmd {
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		return nil

	case "up":
		steps, err := optionalInt(args, 0)
		if err != nil {
			return err
		}
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
		return report(err, "up", log)

	case "down":
		steps, err := optionalInt(args, 1)
		if err != nil {
			return err
		}
		if steps <= 0 {
			return errors.New("down needs a positive number of steps")
		}
		return report(m.Steps(-steps), "down", log)

	case "goto":
		if len(args) < 1 {
			return errors.New("goto requires a version")
		}
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		return report(m.Migrate(uint(v)), "goto", log)

	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		if err := m.Force(v); err != nil {
			return err
		}
		log.Warn("forced migration version", zap.Int("version", v))
		return nil
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func report(err error, direction string, log *zap.Logger) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("no migrations to apply", zap.String("direction", direction))
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("migrations applied", zap.String("direction", direction))
	return nil
}

// createMigration writes an empty up/down pair numbered after the highest
// existing migration and returns both paths
func createMigration(dir, name string) (string, string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		return "", "", errors.New("migration name is empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	next, err := nextMigrationNumber(dir)
	if err != nil {
		return "", "", err
	}

	base := fmt.Sprintf("%06d_%s", next, name)
	up := filepath.Join(dir, base+".up.sql")
	down := filepath.Join(dir, base+".down.sql")

	if err := os.WriteFile(up, []byte("-- "+base+" up\n"), 0o644); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(down, []byte("-- "+base+" down\n"), 0o644); err != nil {
		return "", "", err
	}
	return up, down, nil
}

func nextMigrationNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(prefix); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

func newMigrate(opts Options) (*migrate.Migrate, error) {
	db, err := sql.Open("pgx", opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	abs, err := filepath.Abs(opts.MigrationsPath)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.LockTimeout = opts.Timeout
	return m, nil
}

func optionalInt(args []string, fallback int) (int, error) {
	if len(args) == 0 {
		return fallback, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number of steps: %s", args[0])
	}
	return n, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
