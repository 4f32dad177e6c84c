// Package main is the entry point for the Sentinel Identity server.
// Sentinel Identity is an account authentication service with brute-force
// lockout, role-based access, and email verification.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	memorycache "github.com/prn-tf/sentinel-identity/internal/cache/memory"
	"github.com/prn-tf/sentinel-identity/internal/config"
	"github.com/prn-tf/sentinel-identity/internal/handler"
	"github.com/prn-tf/sentinel-identity/internal/lock"
	"github.com/prn-tf/sentinel-identity/internal/metrics"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
	"github.com/prn-tf/sentinel-identity/internal/repository"
	"github.com/prn-tf/sentinel-identity/internal/repository/postgres"
	redisrepo "github.com/prn-tf/sentinel-identity/internal/repository/redis"
	"github.com/prn-tf/sentinel-identity/internal/repository/sqlite"
	"github.com/prn-tf/sentinel-identity/internal/service"
	"github.com/prn-tf/sentinel-identity/internal/token"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// maintenanceInterval is how often expired verification tokens and stale
// login-attempt records are purged.
const maintenanceInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting Sentinel Identity Server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// Database
	repos, dbHealth, err := setupDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dbHealth.Close()

	// Cache and per-account login locks. Redis when enabled, in-process
	// otherwise.
	var (
		cache  repository.Cache
		locker lock.Locker
	)
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		cache = redisrepo.NewCache(client)
		locker = lock.NewRedisLocker(redisrepo.NewLock(client))
	} else {
		cache = memorycache.NewCache()
		locker = lock.NewMemoryLocker()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("sentinel")
	}

	issuer, err := token.NewIssuer(cfg.Token.SigningKey, cfg.Token.Issuer, cfg.Token.SessionTTL, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	clk := clock.New()

	// Services
	authService := service.NewAuthService(
		repos.Account,
		repos.LoginAttempt,
		locker,
		cache,
		issuer,
		service.LockoutPolicy{
			MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
			LockDuration:      cfg.Lockout.LockDuration,
		},
		clk,
		m,
		logger,
	)
	accountService := service.NewAccountService(
		repos.Account,
		repos.VerificationToken,
		cache,
		cfg.Token.VerificationTTL,
		clk,
		m,
		logger,
	)
	roleService := service.NewRoleService(repos.Role, logger)

	// HTTP API
	router := handler.NewRouter(handler.RouterConfig{
		AuthHandler:    handler.NewAuthHandler(authService, accountService, logger),
		AccountHandler: handler.NewAccountHandler(accountService, authService, roleService, logger),
		RoleHandler:    handler.NewRoleHandler(roleService, logger),
		AuthService:    authService,
		DBHealth:       dbHealth,
		Metrics:        m,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info().Str("addr", metricsServer.Addr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Periodic cleanup of expired verification tokens.
	go runMaintenance(ctx, accountService, authService, locker, cfg.Lockout.AttemptTTL, logger)

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}
	return nil
}

// setupDatabase opens the configured backend, applies migrations, and builds
// the repository set.
func setupDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repository.Repositories, repository.DatabaseHealth, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		sqliteCfg := sqlite.DefaultConfig(cfg.Database.Path)
		if cfg.Database.JournalMode != "" {
			sqliteCfg.JournalMode = cfg.Database.JournalMode
		}
		if cfg.Database.BusyTimeout > 0 {
			sqliteCfg.BusyTimeout = cfg.Database.BusyTimeout
		}
		if cfg.Database.CacheSize != 0 {
			sqliteCfg.CacheSize = cfg.Database.CacheSize
		}
		if cfg.Database.SynchronousMode != "" {
			sqliteCfg.SynchronousMode = cfg.Database.SynchronousMode
		}

		db, err := sqlite.NewDB(ctx, sqliteCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
		repos := &repository.Repositories{
			Account:           sqlite.NewAccountRepository(db),
			Role:              sqlite.NewRoleRepository(db),
			LoginAttempt:      sqlite.NewLoginAttemptRepository(db),
			VerificationToken: sqlite.NewVerificationTokenRepository(db),
		}
		return repos, db, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate postgres database: %w", err)
		}
		repos := &repository.Repositories{
			Account:           postgres.NewAccountRepository(db),
			Role:              postgres.NewRoleRepository(db),
			LoginAttempt:      postgres.NewLoginAttemptRepository(db),
			VerificationToken: postgres.NewVerificationTokenRepository(db),
		}
		return repos, db, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// runMaintenance purges expired verification tokens and, when a retention
// period is configured, stale login-attempt records, until the context is
// canceled. A lock elects a single sweeper when several nodes share the
// database.
func runMaintenance(ctx context.Context, accounts *service.AccountService, auth *service.AuthService, locker lock.Locker, attemptTTL time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	sweepLock := lock.NewLock(locker, lock.Keys.Maintenance())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			acquired, err := sweepLock.Acquire(ctx, maintenanceInterval/2)
			if err != nil {
				logger.Error().Err(err).Msg("failed to acquire maintenance lock")
				continue
			}
			if !acquired {
				continue
			}

			removed, err := accounts.SweepExpiredTokens(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("verification token sweep failed")
			} else if removed > 0 {
				logger.Info().Int64("removed", removed).Msg("purged expired verification tokens")
			}

			if attemptTTL > 0 {
				if _, err := auth.PruneAttempts(ctx, attemptTTL); err != nil {
					logger.Error().Err(err).Msg("login attempt prune failed")
				}
			}

			if err := sweepLock.Release(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to release maintenance lock")
			}
		}
	}
}

// setupLogger configures zerolog from the logging settings.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
