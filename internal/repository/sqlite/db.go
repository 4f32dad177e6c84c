// Package sqlite backs the identity store with an embedded database via
// modernc.org/sqlite, a pure Go driver. Single-node deployments get the full
// account, lockout, and audit schema in one file with no external service.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds the embedded database settings.
type Config struct {
	// Path is the database file, or ":memory:" for tests.
	Path string

	// MaxOpenConns caps the connection pool. The login pipeline serializes
	// counter writes per account, so a single writer connection is enough.
	MaxOpenConns int

	// MaxIdleConns sets the idle pool size.
	MaxIdleConns int

	// ConnMaxLifetime bounds how long a connection is reused.
	ConnMaxLifetime time.Duration

	// JournalMode sets the journal mode. WAL lets audit reads proceed while
	// a login writes the failure counter.
	JournalMode string

	// BusyTimeout is how long a write waits on the lock, in milliseconds.
	// Must cover a worst-case lockout transaction under contention.
	BusyTimeout int

	// CacheSize sets the page cache (negative = KB). Account rows are
	// small; a few MB keeps the hot set resident.
	CacheSize int

	// SynchronousMode trades durability for write latency (NORMAL, FULL,
	// OFF). NORMAL is safe under WAL.
	SynchronousMode string
}

// DefaultConfig returns settings tuned for the identity workload: one writer,
// WAL so audit queries never block logins.
func DefaultConfig(dbPath string) Config {
	return Config{
		Path:            dbPath,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		JournalMode:     "WAL",
		BusyTimeout:     5000,
		CacheSize:       -4000,
		SynchronousMode: "NORMAL",
	}
}

// DB wraps the sql.DB handle for the identity store.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
	path   string
}

// NewDB opens the database and verifies the connection. Foreign keys are
// always on: login attempts and verification tokens reference accounts.
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	connStr := fmt.Sprintf(
		"%s?_journal_mode=%s&_busy_timeout=%d&_cache_size=%d&_synchronous=%s&_foreign_keys=ON",
		cfg.Path,
		cfg.JournalMode,
		cfg.BusyTimeout,
		cfg.CacheSize,
		cfg.SynchronousMode,
	)

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping identity database: %w", err)
	}

	logger.Info().
		Str("path", cfg.Path).
		Str("journal_mode", cfg.JournalMode).
		Msg("opened identity database")

	return &DB{
		db:     db,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.logger.Info().Str("path", db.path).Msg("closing identity database")
	return db.db.Close()
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// WithTx executes a function within a transaction, rolling back on error or
// panic. Role grants use this so the role row and the assignment commit
// together.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ExecContext executes a query without returning rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// Migrate brings the identity schema up to date. The embedded backend
// migrates forward only; the whole schema ships as a single versioned file.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if currentVersion >= 1 {
		db.logger.Debug().Int("version", currentVersion).Msg("identity schema up to date")
		return nil
	}

	migration, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded migration: %w", err)
	}

	if _, err := db.db.ExecContext(ctx, string(migration)); err != nil {
		return fmt.Errorf("failed to apply migration 1: %w", err)
	}
	if _, err := db.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (1)`); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	db.logger.Info().Int("version", 1).Msg("applied identity schema migration")
	return nil
}
