// Package main is the entry point for the Sentinel Identity database
// migration tool. It manages the schema for both the PostgreSQL and the
// embedded SQLite backends.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel-identity/internal/config"
	"github.com/prn-tf/sentinel-identity/internal/repository/postgres"
	"github.com/prn-tf/sentinel-identity/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("Sentinel Identity Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up", "down", "status":
		if err := run(command); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func run(command string) error {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("SENTINEL_CONFIG"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	if cfg.Database.IsEmbedded() {
		return runSQLite(ctx, cfg, logger, command)
	}
	return runPostgres(ctx, cfg, logger, command)
}

func runPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger, command string) error {
	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	switch command {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := db.Rollback(ctx); err != nil {
			return err
		}
		fmt.Println("Last migration rolled back")
	case "status":
		version, err := db.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Driver:  postgres\nVersion: %d\n", version)
	}
	return nil
}

func runSQLite(ctx context.Context, cfg *config.Config, logger zerolog.Logger, command string) error {
	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	defer db.Close()

	switch command {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("Migrations applied")
	case "down":
		// The embedded backend migrates forward only; recreate the file to
		// start over.
		return fmt.Errorf("rollback is not supported for the sqlite driver")
	case "status":
		fmt.Printf("Driver: sqlite\nPath:   %s\n", cfg.Database.Path)
	}
	return nil
}

func printUsage() {
	fmt.Println(`Sentinel Identity Migration Tool

Usage:
  sentinel-migrate <command>

Commands:
  up          Apply all pending migrations
  down        Roll back the last migration (postgres only)
  status      Show the current schema version
  version     Print version information
  help        Show this help message

Configuration is loaded the same way as the server: from the file named by
SENTINEL_CONFIG, ./config.yaml, or SENTINEL_* environment variables.

Examples:
  sentinel-migrate up
  sentinel-migrate status
  SENTINEL_DATABASE_DRIVER=postgres sentinel-migrate up`)
}
