// Package service provides business logic services for Sentinel Identity.
package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	memorycache "github.com/prn-tf/sentinel-identity/internal/cache/memory"
	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
	"github.com/prn-tf/sentinel-identity/internal/pkg/crypto"
)

// =============================================================================
// Mock Verification Token Repository
// =============================================================================

type mockVerificationRepository struct {
	mock.Mock
}

func (m *mockVerificationRepository) Create(ctx context.Context, token *domain.VerificationToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockVerificationRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.VerificationToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerificationToken), args.Error(1)
}

func (m *mockVerificationRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	args := m.Called(ctx, id, usedAt)
	return args.Error(0)
}

func (m *mockVerificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func newTestAccountService(accountRepo *mockAccountRepository, verificationRepo *mockVerificationRepository, clk clock.Clock) *AccountService {
	return NewAccountService(accountRepo, verificationRepo, nil, 48*time.Hour, clk, nil, zerolog.Nop())
}

// =============================================================================
// Register Tests
// =============================================================================

func TestAccountService_Register(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	svc := newTestAccountService(accountRepo, nil, clock.NewFake(authTestTime))

	accountRepo.On("ExistsByUsername", mock.Anything, "jdoe").Return(false, nil)
	accountRepo.On("ExistsByEmail", mock.Anything, "jdoe@example.com").Return(false, nil)
	accountRepo.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.Account) bool {
		return a.Username == "jdoe" && a.IsActive && !a.IsEmailVerified && a.FailedLoginAttempts == 0
	})).Return(nil)

	out, err := svc.Register(context.Background(), RegisterInput{
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		Password:  "correct-horse42",
		FirstName: "Jane",
		LastName:  "Doe",
	})
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", out.Account.DisplayName())
	require.True(t, crypto.CheckPassword(out.Account.PasswordHash, "correct-horse42"))
	accountRepo.AssertExpectations(t)
}

func TestAccountService_Register_Validation(t *testing.T) {
	svc := newTestAccountService(new(mockAccountRepository), nil, clock.NewFake(authTestTime))

	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
	}{
		{
			name:    "short username",
			input:   RegisterInput{Username: "ab", Email: "a@b.com", Password: "longenough1"},
			wantErr: ErrInvalidUsername,
		},
		{
			name:    "bad email",
			input:   RegisterInput{Username: "jdoe", Email: "not-an-email", Password: "longenough1"},
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "short password",
			input:   RegisterInput{Username: "jdoe", Email: "a@b.com", Password: "short"},
			wantErr: ErrInvalidPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.input)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAccountService_Register_DuplicateUsername(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	svc := newTestAccountService(accountRepo, nil, clock.NewFake(authTestTime))

	accountRepo.On("ExistsByUsername", mock.Anything, "jdoe").Return(true, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Password: "correct-horse42",
	})
	require.ErrorIs(t, err, ErrAccountAlreadyExists)
	accountRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// =============================================================================
// Password and Status Tests
// =============================================================================

func TestAccountService_UpdatePassword(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	svc := newTestAccountService(accountRepo, nil, clock.NewFake(authTestTime))

	account := activeAccount(t)
	accountRepo.On("GetByID", mock.Anything, int64(7)).Return(account, nil)
	accountRepo.On("UpdatePasswordHash", mock.Anything, int64(7), mock.MatchedBy(func(hash string) bool {
		return crypto.CheckPassword(hash, "new-password99")
	})).Return(nil)

	err := svc.UpdatePassword(context.Background(), UpdatePasswordInput{
		AccountID:   7,
		OldPassword: testPassword,
		NewPassword: "new-password99",
	})
	require.NoError(t, err)
	accountRepo.AssertExpectations(t)
}

func TestAccountService_UpdatePassword_WrongOldPassword(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	svc := newTestAccountService(accountRepo, nil, clock.NewFake(authTestTime))

	accountRepo.On("GetByID", mock.Anything, int64(7)).Return(activeAccount(t), nil)

	err := svc.UpdatePassword(context.Background(), UpdatePasswordInput{
		AccountID:   7,
		OldPassword: "wrong",
		NewPassword: "new-password99",
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	accountRepo.AssertNotCalled(t, "UpdatePasswordHash", mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountService_SetActive_Deactivate(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	svc := newTestAccountService(accountRepo, nil, clock.NewFake(authTestTime))

	account := activeAccount(t)
	accountRepo.On("GetByID", mock.Anything, int64(7)).Return(account, nil)
	accountRepo.On("ApplyActiveStatus", mock.Anything, mock.MatchedBy(func(c *domain.ActiveStatusChanged) bool {
		return c.AccountID == 7 && !c.IsActive
	})).Return(nil)

	require.NoError(t, svc.SetActive(context.Background(), 7, false))
	require.False(t, account.IsActive)
	accountRepo.AssertExpectations(t)
}

// =============================================================================
// Cache Tests
// =============================================================================

func TestAccountService_GetByID_CacheKeepsAuthState(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	svc := NewAccountService(accountRepo, nil, memorycache.NewCache(), 48*time.Hour,
		clock.NewFake(authTestTime), nil, zerolog.Nop())

	lockedUntil := authTestTime.Add(5 * time.Minute)
	account := activeAccount(t)
	account.FailedLoginAttempts = 5
	account.LockedUntil = &lockedUntil

	accountRepo.On("GetByID", mock.Anything, int64(7)).Return(account, nil).Once()

	first, err := svc.GetByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 5, first.FailedLoginAttempts)

	// The second read is served from the cache and must retain the credential
	// and lockout state the API-facing JSON tags hide.
	cached, err := svc.GetByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, account.PasswordHash, cached.PasswordHash)
	require.Equal(t, 5, cached.FailedLoginAttempts)
	require.NotNil(t, cached.LockedUntil)
	require.True(t, cached.LockedUntil.Equal(lockedUntil))
	require.True(t, cached.IsLocked(authTestTime))
	accountRepo.AssertExpectations(t)
}

// =============================================================================
// Email Verification Tests
// =============================================================================

func TestAccountService_IssueAndConfirmEmail(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	verificationRepo := new(mockVerificationRepository)
	clk := clock.NewFake(authTestTime)
	svc := newTestAccountService(accountRepo, verificationRepo, clk)

	account := activeAccount(t)
	accountRepo.On("GetByID", mock.Anything, int64(7)).Return(account, nil)

	var stored *domain.VerificationToken
	verificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(v *domain.VerificationToken) bool {
		stored = v
		return v.AccountID == 7 && v.ExpiresAt.Equal(authTestTime.Add(48*time.Hour))
	})).Return(nil)

	plaintext, err := svc.IssueEmailVerification(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, plaintext, crypto.VerificationTokenLength)
	require.Equal(t, crypto.HashToken(plaintext), stored.TokenHash)

	verificationRepo.On("GetByHash", mock.Anything, stored.TokenHash).Return(stored, nil)
	verificationRepo.On("MarkUsed", mock.Anything, stored.ID, authTestTime).Return(nil)
	accountRepo.On("ApplyEmailVerified", mock.Anything, mock.MatchedBy(func(c *domain.EmailVerified) bool {
		return c.AccountID == 7
	})).Return(nil)

	require.NoError(t, svc.ConfirmEmail(context.Background(), plaintext))
	require.True(t, account.IsEmailVerified)
	accountRepo.AssertExpectations(t)
	verificationRepo.AssertExpectations(t)
}

func TestAccountService_ConfirmEmail_Expired(t *testing.T) {
	verificationRepo := new(mockVerificationRepository)
	clk := clock.NewFake(authTestTime)
	svc := newTestAccountService(new(mockAccountRepository), verificationRepo, clk)

	stored := &domain.VerificationToken{
		ID:        "tok-1",
		AccountID: 7,
		TokenHash: crypto.HashToken("some-token"),
		CreatedAt: authTestTime.Add(-49 * time.Hour),
		ExpiresAt: authTestTime.Add(-time.Hour),
	}
	verificationRepo.On("GetByHash", mock.Anything, stored.TokenHash).Return(stored, nil)

	err := svc.ConfirmEmail(context.Background(), "some-token")
	require.ErrorIs(t, err, ErrVerificationTokenExpired)
	verificationRepo.AssertNotCalled(t, "MarkUsed", mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountService_ConfirmEmail_AlreadyUsed(t *testing.T) {
	verificationRepo := new(mockVerificationRepository)
	svc := newTestAccountService(new(mockAccountRepository), verificationRepo, clock.NewFake(authTestTime))

	usedAt := authTestTime.Add(-time.Minute)
	stored := &domain.VerificationToken{
		ID:        "tok-1",
		AccountID: 7,
		TokenHash: crypto.HashToken("some-token"),
		ExpiresAt: authTestTime.Add(time.Hour),
		UsedAt:    &usedAt,
	}
	verificationRepo.On("GetByHash", mock.Anything, stored.TokenHash).Return(stored, nil)

	err := svc.ConfirmEmail(context.Background(), "some-token")
	require.ErrorIs(t, err, ErrVerificationTokenUsed)
}

func TestAccountService_ConfirmEmail_Unknown(t *testing.T) {
	verificationRepo := new(mockVerificationRepository)
	svc := newTestAccountService(new(mockAccountRepository), verificationRepo, clock.NewFake(authTestTime))

	verificationRepo.On("GetByHash", mock.Anything, mock.Anything).Return(nil, domain.ErrVerificationTokenNotFound)

	err := svc.ConfirmEmail(context.Background(), "bogus")
	require.ErrorIs(t, err, ErrVerificationTokenInvalid)
}

func TestAccountService_SweepExpiredTokens(t *testing.T) {
	verificationRepo := new(mockVerificationRepository)
	clk := clock.NewFake(authTestTime)
	svc := newTestAccountService(new(mockAccountRepository), verificationRepo, clk)

	verificationRepo.On("DeleteExpired", mock.Anything, authTestTime).Return(int64(3), nil)

	deleted, err := svc.SweepExpiredTokens(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)
}
