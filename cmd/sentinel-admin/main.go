// Package main is the entry point for the Sentinel Identity admin CLI.
// This tool provides administrative commands for managing accounts, roles,
// and lockouts directly against the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel-identity/internal/config"
	"github.com/prn-tf/sentinel-identity/internal/lock"
	"github.com/prn-tf/sentinel-identity/internal/repository"
	"github.com/prn-tf/sentinel-identity/internal/repository/postgres"
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

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("Sentinel Identity Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "create-account":
		runCommand(cmdCreateAccount, os.Args[2:])

	case "list":
		runCommand(cmdList, os.Args[2:])

	case "set-active":
		runCommand(cmdSetActive, os.Args[2:])

	case "unlock":
		runCommand(cmdUnlock, os.Args[2:])

	case "delete":
		runCommand(cmdDelete, os.Args[2:])

	case "grant-role":
		runCommand(cmdGrantRole, os.Args[2:])

	case "create-role":
		runCommand(cmdCreateRole, os.Args[2:])

	case "sweep-tokens":
		runCommand(cmdSweepTokens, os.Args[2:])

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// env bundles the services an admin command operates on.
type env struct {
	accounts *service.AccountService
	auth     *service.AuthService
	roles    *service.RoleService
	close    func()
}

// runCommand loads the configuration, opens the database, and runs fn.
func runCommand(fn func(ctx context.Context, e *env, args []string) error, args []string) {
	ctx := context.Background()

	e, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer e.close()

	if err := fn(ctx, e, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(os.Getenv("SENTINEL_CONFIG"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// CLI output goes to stdout; keep service logging quiet.
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)

	var (
		repos    *repository.Repositories
		dbHealth repository.DatabaseHealth
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
		repos = &repository.Repositories{
			Account:           sqlite.NewAccountRepository(db),
			Role:              sqlite.NewRoleRepository(db),
			LoginAttempt:      sqlite.NewLoginAttemptRepository(db),
			VerificationToken: sqlite.NewVerificationTokenRepository(db),
		}
		dbHealth = db
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		repos = &repository.Repositories{
			Account:           postgres.NewAccountRepository(db),
			Role:              postgres.NewRoleRepository(db),
			LoginAttempt:      postgres.NewLoginAttemptRepository(db),
			VerificationToken: postgres.NewVerificationTokenRepository(db),
		}
		dbHealth = db
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	signingKey := cfg.Token.SigningKey
	if signingKey == "" {
		// Admin commands never issue tokens, but AuthService requires an
		// issuer. Any non-empty key works here.
		signingKey = "sentinel-admin-cli"
	}
	issuer, err := token.NewIssuer(signingKey, cfg.Token.Issuer, cfg.Token.SessionTTL, nil)
	if err != nil {
		dbHealth.Close()
		return nil, err
	}

	// The CLI is short-lived; no account cache.
	accounts := service.NewAccountService(
		repos.Account,
		repos.VerificationToken,
		nil,
		cfg.Token.VerificationTTL,
		nil,
		nil,
		logger,
	)
	auth := service.NewAuthService(
		repos.Account,
		repos.LoginAttempt,
		lock.NewNoOpLocker(),
		nil,
		issuer,
		service.LockoutPolicy{
			MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
			LockDuration:      cfg.Lockout.LockDuration,
		},
		nil,
		nil,
		logger,
	)
	roles := service.NewRoleService(repos.Role, logger)

	return &env{
		accounts: accounts,
		auth:     auth,
		roles:    roles,
		close:    func() { dbHealth.Close() },
	}, nil
}

func cmdCreateAccount(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("create-account", flag.ExitOnError)
	username := fs.String("username", "", "username (required)")
	email := fs.String("email", "", "email address (required)")
	password := fs.String("password", "", "password (required)")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	staff := fs.Bool("staff", false, "grant staff access")
	superuser := fs.Bool("superuser", false, "grant superuser access")
	fs.Parse(args)

	if *username == "" || *email == "" || *password == "" {
		return fmt.Errorf("--username, --email, and --password are required")
	}

	out, err := e.accounts.Register(ctx, service.RegisterInput{
		Username:    *username,
		Email:       *email,
		Password:    *password,
		FirstName:   *firstName,
		LastName:    *lastName,
		IsStaff:     *staff || *superuser,
		IsSuperuser: *superuser,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Account created:\n")
	fmt.Printf("  ID:       %d\n", out.Account.ID)
	fmt.Printf("  Username: %s\n", out.Account.Username)
	fmt.Printf("  Email:    %s\n", out.Account.Email)
	fmt.Printf("  Staff:    %t\n", out.Account.IsStaff)
	return nil
}

func cmdList(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "maximum accounts to list")
	offset := fs.Int("offset", 0, "offset into the account list")
	fs.Parse(args)

	out, err := e.accounts.List(ctx, service.ListAccountsInput{Limit: *limit, Offset: *offset})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tACTIVE\tSTAFF\tFAILED\tLOCKED UNTIL")
	for _, a := range out.Accounts {
		lockedUntil := "-"
		if a.LockedUntil != nil {
			lockedUntil = a.LockedUntil.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%d\t%s\n",
			a.ID, a.Username, a.Email, a.IsActive, a.IsStaff,
			a.FailedLoginAttempts, lockedUntil)
	}
	w.Flush()
	fmt.Printf("\n%d of %d accounts\n", len(out.Accounts), out.TotalCount)
	return nil
}

func cmdSetActive(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("set-active", flag.ExitOnError)
	id := fs.Int64("id", 0, "account ID (required)")
	active := fs.Bool("active", true, "desired active status")
	fs.Parse(args)

	if *id == 0 {
		return fmt.Errorf("--id is required")
	}
	if err := e.accounts.SetActive(ctx, *id, *active); err != nil {
		return err
	}
	if *active {
		fmt.Printf("Account %d activated\n", *id)
	} else {
		fmt.Printf("Account %d deactivated\n", *id)
	}
	return nil
}

func cmdUnlock(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	id := fs.Int64("id", 0, "account ID (required)")
	fs.Parse(args)

	if *id == 0 {
		return fmt.Errorf("--id is required")
	}
	if err := e.auth.Unlock(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("Account %d unlocked\n", *id)
	return nil
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.Int64("id", 0, "account ID (required)")
	confirm := fs.Bool("yes", false, "confirm deletion")
	fs.Parse(args)

	if *id == 0 {
		return fmt.Errorf("--id is required")
	}
	if !*confirm {
		return fmt.Errorf("deletion is permanent; re-run with --yes to confirm")
	}
	if err := e.accounts.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("Account %d deleted\n", *id)
	return nil
}

func cmdGrantRole(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("grant-role", flag.ExitOnError)
	id := fs.Int64("id", 0, "account ID (required)")
	role := fs.String("role", "", "role name (required)")
	revoke := fs.Bool("revoke", false, "revoke instead of grant")
	fs.Parse(args)

	if *id == 0 || *role == "" {
		return fmt.Errorf("--id and --role are required")
	}
	if *revoke {
		if err := e.roles.Revoke(ctx, *id, *role); err != nil {
			return err
		}
		fmt.Printf("Revoked role %q from account %d\n", *role, *id)
		return nil
	}
	if err := e.roles.Grant(ctx, *id, *role); err != nil {
		return err
	}
	fmt.Printf("Granted role %q to account %d\n", *role, *id)
	return nil
}

func cmdCreateRole(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("create-role", flag.ExitOnError)
	name := fs.String("name", "", "role name (required)")
	description := fs.String("description", "", "role description")
	permissions := fs.String("permissions", "", "comma-separated permission list")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	var perms []string
	for _, p := range strings.Split(*permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}

	role, err := e.roles.Create(ctx, service.CreateRoleInput{
		Name:        *name,
		Description: *description,
		Permissions: perms,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Role %q created with %d permissions\n", role.Name, len(role.Permissions))
	return nil
}

func cmdSweepTokens(ctx context.Context, e *env, args []string) error {
	removed, err := e.accounts.SweepExpiredTokens(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", pluralize(removed, "expired verification token"))
	return nil
}

func pluralize(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.FormatInt(n, 10) + " " + noun + "s"
}

func printUsage() {
	fmt.Println(`Sentinel Identity Admin CLI

Usage:
  sentinel-admin <command> [arguments]

Commands:
  create-account  Create an account (optionally staff or superuser)
  list            List accounts with lockout state
  set-active      Activate or deactivate an account
  unlock          Clear an account's lockout and failed-login counter
  delete          Permanently delete an account
  create-role     Create a role with permissions
  grant-role      Grant or revoke a role for an account
  sweep-tokens    Delete expired email verification tokens
  version         Print version information
  help            Show this help message

Configuration is loaded the same way as the server: from the file named by
SENTINEL_CONFIG, ./config.yaml, or SENTINEL_* environment variables.

Examples:
  sentinel-admin create-account --username admin --email admin@example.com --password secret123 --superuser
  sentinel-admin list --limit 20
  sentinel-admin unlock --id 42
  sentinel-admin set-active --id 42 --active=false
  sentinel-admin grant-role --id 42 --role operators
  sentinel-admin sweep-tokens`)
}
