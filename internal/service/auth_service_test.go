// Package service provides business logic services for Sentinel Identity.
package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/lock"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
	"github.com/prn-tf/sentinel-identity/internal/pkg/crypto"
	"github.com/prn-tf/sentinel-identity/internal/repository"
	"github.com/prn-tf/sentinel-identity/internal/token"
)

// =============================================================================
// Mock Repository Types
// =============================================================================

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) UpdateProfile(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockAccountRepository) ApplyFailedLogin(ctx context.Context, change *domain.FailedLoginRecorded) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *mockAccountRepository) ApplyLock(ctx context.Context, change *domain.AccountLocked) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *mockAccountRepository) ApplyLoginSucceeded(ctx context.Context, change *domain.LoginSucceeded) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *mockAccountRepository) ApplyActiveStatus(ctx context.Context, change *domain.ActiveStatusChanged) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *mockAccountRepository) ApplyEmailVerified(ctx context.Context, change *domain.EmailVerified) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *mockAccountRepository) ApplyUnlock(ctx context.Context, accountID int64) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func (m *mockAccountRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.Account], error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.Account]), args.Error(1)
}

func (m *mockAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockAccountRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockAttemptRepository struct {
	mock.Mock
}

func (m *mockAttemptRepository) Record(ctx context.Context, attempt *domain.LoginAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *mockAttemptRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.LoginAttempt, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoginAttempt), args.Error(1)
}

func (m *mockAttemptRepository) CountRecentFailures(ctx context.Context, username string, since time.Time) (int64, error) {
	args := m.Called(ctx, username, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Test Fixtures
// =============================================================================

var authTestTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "correct-horse42"

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)
	return hash
}

func activeAccount(t *testing.T) *domain.Account {
	t.Helper()
	return &domain.Account{
		ID:           7,
		Username:     "jdoe",
		Email:        "jdoe@example.com",
		PasswordHash: mustHash(t, testPassword),
		IsActive:     true,
	}
}

// allowAttempts stubs the velocity counter so the throttle never trips.
func allowAttempts(attemptRepo *mockAttemptRepository, username string) {
	attemptRepo.On("CountRecentFailures", mock.Anything, username, mock.Anything).Return(int64(0), nil)
}

func newTestAuthService(t *testing.T, accountRepo *mockAccountRepository, attemptRepo *mockAttemptRepository, clk clock.Clock) *AuthService {
	t.Helper()
	issuer, err := token.NewIssuer("test-signing-key", "sentinel-identity", time.Hour, clk)
	require.NoError(t, err)
	policy := LockoutPolicy{MaxFailedAttempts: 5, LockDuration: 5 * time.Minute}
	return NewAuthService(accountRepo, attemptRepo, lock.NewMemoryLocker(), nil, issuer, policy, clk, nil, zerolog.Nop())
}

// =============================================================================
// Login Tests
// =============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	clk := clock.NewFake(authTestTime)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clk)

	account := activeAccount(t)
	account.FailedLoginAttempts = 3

	allowAttempts(attemptRepo, "jdoe")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)
	accountRepo.On("ApplyLoginSucceeded", mock.Anything, mock.MatchedBy(func(c *domain.LoginSucceeded) bool {
		return c.AccountID == 7 && c.LastLoginIP == "192.0.2.1" && c.LastLoginAt.Equal(authTestTime)
	})).Return(nil)
	attemptRepo.On("Record", mock.Anything, mock.MatchedBy(func(a *domain.LoginAttempt) bool {
		return a.Success && a.AccountID == 7 && a.Username == "jdoe"
	})).Return(nil)

	out, err := svc.Login(context.Background(), LoginInput{
		Username:  "jdoe",
		Password:  testPassword,
		IPAddress: "192.0.2.1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.AccessToken)
	require.Equal(t, 0, out.Account.FailedLoginAttempts)
	require.Nil(t, out.Account.LockedUntil)

	claims, err := svc.VerifyToken(out.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "jdoe", claims.Username)

	accountRepo.AssertExpectations(t)
	attemptRepo.AssertExpectations(t)
}

func TestAuthService_Login_UnknownUsername(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	allowAttempts(attemptRepo, "ghost")
	accountRepo.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrAccountNotFound)
	attemptRepo.On("Record", mock.Anything, mock.MatchedBy(func(a *domain.LoginAttempt) bool {
		return !a.Success && a.AccountID == 0 && a.FailureReason == "unknown username"
	})).Return(nil)

	_, err := svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "whatever99"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	accountRepo.AssertExpectations(t)
}

func TestAuthService_Login_WrongPassword_CountsFailure(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	account := activeAccount(t)
	account.FailedLoginAttempts = 1

	allowAttempts(attemptRepo, "jdoe")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)
	accountRepo.On("ApplyFailedLogin", mock.Anything, mock.MatchedBy(func(c *domain.FailedLoginRecorded) bool {
		return c.AccountID == 7 && c.Attempts == 2
	})).Return(nil)
	attemptRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Below the threshold no lock is applied.
	accountRepo.AssertNotCalled(t, "ApplyLock", mock.Anything, mock.Anything)
	accountRepo.AssertExpectations(t)
}

func TestAuthService_Login_LocksAtThreshold(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	clk := clock.NewFake(authTestTime)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clk)

	account := activeAccount(t)
	account.FailedLoginAttempts = 4

	wantUntil := authTestTime.Add(5 * time.Minute)

	allowAttempts(attemptRepo, "jdoe")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)
	accountRepo.On("ApplyFailedLogin", mock.Anything, mock.MatchedBy(func(c *domain.FailedLoginRecorded) bool {
		return c.Attempts == 5
	})).Return(nil)
	accountRepo.On("ApplyLock", mock.Anything, mock.MatchedBy(func(c *domain.AccountLocked) bool {
		return c.AccountID == 7 && c.Until.Equal(wantUntil)
	})).Return(nil)
	attemptRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.True(t, account.IsLocked(authTestTime))
	accountRepo.AssertExpectations(t)
}

func TestAuthService_Login_LockedAccount(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	account := activeAccount(t)
	until := authTestTime.Add(3 * time.Minute)
	account.LockedUntil = &until

	allowAttempts(attemptRepo, "jdoe")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)
	attemptRepo.On("Record", mock.Anything, mock.MatchedBy(func(a *domain.LoginAttempt) bool {
		return a.FailureReason == "account locked"
	})).Return(nil)

	_, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: testPassword})
	require.ErrorIs(t, err, ErrAccountLocked)

	// Correct password does not reset the counter during a lock window.
	accountRepo.AssertNotCalled(t, "ApplyLoginSucceeded", mock.Anything, mock.Anything)
}

func TestAuthService_Login_ExpiredLockAdmitsLogin(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	clk := clock.NewFake(authTestTime)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clk)

	account := activeAccount(t)
	until := authTestTime.Add(-time.Second)
	account.LockedUntil = &until
	account.FailedLoginAttempts = 5

	allowAttempts(attemptRepo, "jdoe")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)
	accountRepo.On("ApplyLoginSucceeded", mock.Anything, mock.Anything).Return(nil)
	attemptRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	out, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: testPassword})
	require.NoError(t, err)
	require.Nil(t, out.Account.LockedUntil)
	require.Equal(t, 0, out.Account.FailedLoginAttempts)
}

func TestAuthService_Login_InactiveAccount(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	account := activeAccount(t)
	account.IsActive = false

	allowAttempts(attemptRepo, "jdoe")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)
	attemptRepo.On("Record", mock.Anything, mock.MatchedBy(func(a *domain.LoginAttempt) bool {
		return a.FailureReason == "account inactive"
	})).Return(nil)

	_, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: testPassword})
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthService_Login_RetriesLostCounterRace(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	account := activeAccount(t)
	allowAttempts(attemptRepo, "jdoe")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)

	// First CAS loses to a concurrent attempt that moved the counter to 1;
	// the reload sees the new value and the retry writes 2.
	accountRepo.On("ApplyFailedLogin", mock.Anything, mock.MatchedBy(func(c *domain.FailedLoginRecorded) bool {
		return c.Attempts == 1
	})).Return(repository.ErrConflict).Once()

	reloaded := activeAccount(t)
	reloaded.FailedLoginAttempts = 1
	accountRepo.On("GetByID", mock.Anything, int64(7)).Return(reloaded, nil).Once()

	accountRepo.On("ApplyFailedLogin", mock.Anything, mock.MatchedBy(func(c *domain.FailedLoginRecorded) bool {
		return c.Attempts == 2
	})).Return(nil).Once()
	attemptRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	accountRepo.AssertExpectations(t)
}

func TestAuthService_Login_AuditFailureDoesNotFailLogin(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	account := activeAccount(t)
	allowAttempts(attemptRepo, "jdoe")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)
	accountRepo.On("ApplyLoginSucceeded", mock.Anything, mock.Anything).Return(nil)
	attemptRepo.On("Record", mock.Anything, mock.Anything).Return(repository.ErrCacheUnavailable)

	out, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: testPassword})
	require.NoError(t, err)
	require.NotEmpty(t, out.AccessToken)
}

func TestAuthService_Login_EmailIdentifier(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	account := activeAccount(t)
	allowAttempts(attemptRepo, "jdoe@example.com")
	accountRepo.On("GetByUsername", mock.Anything, "jdoe@example.com").Return(nil, domain.ErrAccountNotFound)
	accountRepo.On("GetByEmail", mock.Anything, "jdoe@example.com").Return(account, nil)
	accountRepo.On("ApplyLoginSucceeded", mock.Anything, mock.Anything).Return(nil)
	attemptRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	out, err := svc.Login(context.Background(), LoginInput{Username: "jdoe@example.com", Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, "jdoe", out.Account.Username)
	accountRepo.AssertExpectations(t)
}

func TestAuthService_Login_ThrottledByRecentFailures(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	clk := clock.NewFake(authTestTime)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clk)

	wantSince := authTestTime.Add(-velocityWindow)
	attemptRepo.On("CountRecentFailures", mock.Anything, "jdoe", mock.MatchedBy(func(since time.Time) bool {
		return since.Equal(wantSince)
	})).Return(int64(velocityThreshold), nil)
	attemptRepo.On("Record", mock.Anything, mock.MatchedBy(func(a *domain.LoginAttempt) bool {
		return !a.Success && a.FailureReason == "too many attempts"
	})).Return(nil)

	_, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: testPassword})
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// Throttled requests never touch the account.
	accountRepo.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
	attemptRepo.AssertExpectations(t)
}

func TestAuthService_Login_ThrottleFailsOpen(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	account := activeAccount(t)
	attemptRepo.On("CountRecentFailures", mock.Anything, "jdoe", mock.Anything).Return(int64(0), repository.ErrCacheUnavailable)
	accountRepo.On("GetByUsername", mock.Anything, "jdoe").Return(account, nil)
	accountRepo.On("ApplyLoginSucceeded", mock.Anything, mock.Anything).Return(nil)
	attemptRepo.On("Record", mock.Anything, mock.Anything).Return(nil)

	out, err := svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: testPassword})
	require.NoError(t, err)
	require.NotEmpty(t, out.AccessToken)
}

// =============================================================================
// Retention Tests
// =============================================================================

func TestAuthService_PruneAttempts(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	clk := clock.NewFake(authTestTime)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clk)

	wantCutoff := authTestTime.Add(-30 * 24 * time.Hour)
	attemptRepo.On("DeleteOlderThan", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return cutoff.Equal(wantCutoff)
	})).Return(int64(12), nil)

	deleted, err := svc.PruneAttempts(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(12), deleted)
	attemptRepo.AssertExpectations(t)
}

// =============================================================================
// Unlock Tests
// =============================================================================

func TestAuthService_Unlock(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	account := activeAccount(t)
	until := authTestTime.Add(5 * time.Minute)
	account.LockedUntil = &until
	account.FailedLoginAttempts = 5

	accountRepo.On("GetByID", mock.Anything, int64(7)).Return(account, nil)
	accountRepo.On("ApplyUnlock", mock.Anything, int64(7)).Return(nil)

	require.NoError(t, svc.Unlock(context.Background(), 7))
	accountRepo.AssertExpectations(t)
}

func TestAuthService_Unlock_NotFound(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	attemptRepo := new(mockAttemptRepository)
	svc := newTestAuthService(t, accountRepo, attemptRepo, clock.NewFake(authTestTime))

	accountRepo.On("GetByID", mock.Anything, int64(99)).Return(nil, domain.ErrAccountNotFound)

	err := svc.Unlock(context.Background(), 99)
	require.ErrorIs(t, err, ErrAccountNotFound)
}
