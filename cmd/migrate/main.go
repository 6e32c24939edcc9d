// Command migrate applies the sessions schema. The connection comes from
// -dsn, then REFINE_DB_DSN, then the [database] section of the refine config.
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/refine/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

const envDSN = "REFINE_DB_DSN"

func main() {
	var (
		dsn        = flag.String("dsn", "", "Database connection string")
		configPath = flag.String("config", config.BaseConfigFile, "Path to config.toml")
		up         = flag.Bool("up", false, "Run all up migrations")
		down       = flag.Bool("down", false, "Run all down migrations")
		steps      = flag.Int("steps", 0, "Number of migrations (positive=up, negative=down)")
		version    = flag.Bool("version", false, "Print current migration version")
		force      = flag.Int("force", -1, "Force set version (use with caution)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("system", "migrate")

	forceSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "force" {
			forceSet = true
		}
	})

	url, err := resolveURL(*dsn, *configPath)
	if err != nil {
		fatal(logger, "resolve database url", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		fatal(logger, "create migration source", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		fatal(logger, "create migrator", err)
	}
	defer m.Close()

	switch {
	case *version:
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			fatal(logger, "read version", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
	case forceSet:
		if err := m.Force(*force); err != nil {
			fatal(logger, "force version", err)
		}
		logger.Info("version forced", "version", *force)
	case *up:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatal(logger, "apply migrations", err)
		}
		logger.Info("migrations applied")
	case *down:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatal(logger, "revert migrations", err)
		}
		logger.Info("migrations reverted")
	case *steps != 0:
		if err := m.Steps(*steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatal(logger, "step migrations", err)
		}
		logger.Info("migration steps applied", "steps", *steps)
	default:
		fmt.Println("usage: migrate [-dsn <connection-string>|-config <path>] [-up|-down|-steps N|-version|-force N]")
		flag.PrintDefaults()
	}
}

func resolveURL(dsn, configPath string) (string, error) {
	if dsn != "" {
		return dsn, nil
	}
	if v := os.Getenv(envDSN); v != "" {
		return v, nil
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return "", err
	}
	if cfg.Sessions.Backend != config.BackendPostgres {
		return "", fmt.Errorf("sessions backend %q has no schema", cfg.Sessions.Backend)
	}
	return cfg.Database.URL(), nil
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
