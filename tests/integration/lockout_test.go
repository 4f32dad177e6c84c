// Package integration provides end-to-end tests for the Sentinel Identity
// authentication pipeline, running the real services against an in-memory
// SQLite database.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	memorycache "github.com/prn-tf/sentinel-identity/internal/cache/memory"
	"github.com/prn-tf/sentinel-identity/internal/lock"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
	"github.com/prn-tf/sentinel-identity/internal/repository"
	"github.com/prn-tf/sentinel-identity/internal/repository/sqlite"
	"github.com/prn-tf/sentinel-identity/internal/service"
	"github.com/prn-tf/sentinel-identity/internal/token"
)

const (
	testUsername = "jdoe"
	testEmail    = "jdoe@example.com"
	testPassword = "correct-horse42"
)

// testEnv bundles the real service stack over an in-memory database.
type testEnv struct {
	auth     *service.AuthService
	accounts *service.AccountService
	attempts repository.LoginAttemptRepository
	clock    *clock.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(":memory:"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	issuer, err := token.NewIssuer("integration-signing-key", "sentinel-identity", 12*time.Hour, clk)
	require.NoError(t, err)

	accountRepo := sqlite.NewAccountRepository(db)
	attemptRepo := sqlite.NewLoginAttemptRepository(db)
	verificationRepo := sqlite.NewVerificationTokenRepository(db)

	// AuthService and AccountService share the account cache so the
	// authentication state writes invalidate what the reads observe.
	cache := memorycache.NewCache()

	auth := service.NewAuthService(
		accountRepo,
		attemptRepo,
		lock.NewMemoryLocker(),
		cache,
		issuer,
		service.LockoutPolicy{MaxFailedAttempts: 5, LockDuration: 5 * time.Minute},
		clk,
		nil,
		logger,
	)
	accounts := service.NewAccountService(
		accountRepo,
		verificationRepo,
		cache,
		48*time.Hour,
		clk,
		nil,
		logger,
	)

	return &testEnv{auth: auth, accounts: accounts, attempts: attemptRepo, clock: clk}
}

func (e *testEnv) register(t *testing.T) int64 {
	t.Helper()

	out, err := e.accounts.Register(context.Background(), service.RegisterInput{
		Username: testUsername,
		Email:    testEmail,
		Password: testPassword,
	})
	require.NoError(t, err)
	return out.Account.ID
}

func (e *testEnv) login(password string) (*service.LoginOutput, error) {
	return e.auth.Login(context.Background(), service.LoginInput{
		Username:  testUsername,
		Password:  password,
		IPAddress: "203.0.113.7",
		UserAgent: "integration-test",
	})
}

// TestLockoutFlow drives the full brute-force lockout lifecycle: repeated
// failures lock the account, the lock refuses even correct credentials, and
// the window elapsing admits a login that resets the counter.
func TestLockoutFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	accountID := env.register(t)

	// Five wrong passwords reach the threshold.
	for i := 0; i < 5; i++ {
		_, err := env.login("wrong-password")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}

	account, err := env.accounts.GetByID(context.Background(), accountID)
	require.NoError(t, err)
	require.Equal(t, 5, account.FailedLoginAttempts)
	require.NotNil(t, account.LockedUntil)
	require.True(t, account.IsLocked(env.clock.Now()))

	// The lock refuses even the correct password, without counting further.
	_, err = env.login(testPassword)
	require.ErrorIs(t, err, service.ErrAccountLocked)

	account, err = env.accounts.GetByID(context.Background(), accountID)
	require.NoError(t, err)
	require.Equal(t, 5, account.FailedLoginAttempts)

	// Once the window elapses, the correct password logs in and resets state.
	env.clock.Advance(6 * time.Minute)

	out, err := env.login(testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, out.AccessToken)

	claims, err := env.auth.VerifyToken(out.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUsername, claims.Username)

	account, err = env.accounts.GetByID(context.Background(), accountID)
	require.NoError(t, err)
	require.Equal(t, 0, account.FailedLoginAttempts)
	require.Nil(t, account.LockedUntil)
	require.NotNil(t, account.LastLoginAt)
	require.Equal(t, "203.0.113.7", account.LastLoginIP)
}

// TestAdminUnlock verifies that an administrative unlock clears the lock
// window before it expires.
func TestAdminUnlock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	accountID := env.register(t)

	for i := 0; i < 5; i++ {
		_, err := env.login("wrong-password")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}
	_, err := env.login(testPassword)
	require.ErrorIs(t, err, service.ErrAccountLocked)

	require.NoError(t, env.auth.Unlock(context.Background(), accountID))

	out, err := env.login(testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, out.AccessToken)
}

// TestFailureCounterResetsBelowThreshold verifies that a successful login
// clears an accumulated but sub-threshold counter.
func TestFailureCounterResetsBelowThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	accountID := env.register(t)

	for i := 0; i < 3; i++ {
		_, err := env.login("wrong-password")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}

	_, err := env.login(testPassword)
	require.NoError(t, err)

	account, err := env.accounts.GetByID(context.Background(), accountID)
	require.NoError(t, err)
	require.Equal(t, 0, account.FailedLoginAttempts)

	// Counting starts over after the reset.
	_, err = env.login("wrong-password")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	account, err = env.accounts.GetByID(context.Background(), accountID)
	require.NoError(t, err)
	require.Equal(t, 1, account.FailedLoginAttempts)
}

// TestInactiveAccountRefusedBeforePasswordCheck verifies the deactivation
// gate.
func TestInactiveAccountRefused(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	accountID := env.register(t)

	require.NoError(t, env.accounts.SetActive(context.Background(), accountID, false))

	_, err := env.login(testPassword)
	require.ErrorIs(t, err, service.ErrAccountInactive)

	require.NoError(t, env.accounts.SetActive(context.Background(), accountID, true))

	_, err = env.login(testPassword)
	require.NoError(t, err)
}

// TestAuditTrail verifies that every attempt, failed or successful, lands in
// the audit log with its outcome.
func TestAuditTrail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	accountID := env.register(t)

	_, err := env.login("wrong-password")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = env.login(testPassword)
	require.NoError(t, err)

	attempts, err := env.attempts.ListByAccount(context.Background(), accountID, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	// Newest first.
	require.True(t, attempts[0].Success)
	require.False(t, attempts[1].Success)
	require.Equal(t, "203.0.113.7", attempts[0].IPAddress)
}

// TestEmailLogin verifies that the email address works as a login identifier.
func TestEmailLogin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	env.register(t)

	out, err := env.auth.Login(context.Background(), service.LoginInput{
		Username: testEmail,
		Password: testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, testUsername, out.Account.Username)
}

// TestAttemptRetention verifies that pruning removes only records older than
// the retention period.
func TestAttemptRetention(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	accountID := env.register(t)

	_, err := env.login("wrong-password")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	env.clock.Advance(40 * 24 * time.Hour)
	_, err = env.login(testPassword)
	require.NoError(t, err)

	deleted, err := env.auth.PruneAttempts(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	attempts, err := env.attempts.ListByAccount(context.Background(), accountID, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.True(t, attempts[0].Success)
}

// TestEmailVerificationFlow drives issue-then-confirm including the
// single-use and expiry guards.
func TestEmailVerificationFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := newTestEnv(t)
	accountID := env.register(t)

	plaintext, err := env.accounts.IssueEmailVerification(context.Background(), accountID)
	require.NoError(t, err)
	require.NotEmpty(t, plaintext)

	require.NoError(t, env.accounts.ConfirmEmail(context.Background(), plaintext))

	account, err := env.accounts.GetByID(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, account.IsEmailVerified)

	// A token is single-use.
	err = env.accounts.ConfirmEmail(context.Background(), plaintext)
	require.ErrorIs(t, err, service.ErrVerificationTokenUsed)

	// A fresh token expires with the clock.
	plaintext, err = env.accounts.IssueEmailVerification(context.Background(), accountID)
	require.NoError(t, err)

	env.clock.Advance(49 * time.Hour)
	err = env.accounts.ConfirmEmail(context.Background(), plaintext)
	require.ErrorIs(t, err, service.ErrVerificationTokenExpired)
}
