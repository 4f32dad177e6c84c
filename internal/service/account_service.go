// Package service provides business logic services for Sentinel Identity.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/metrics"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
	"github.com/prn-tf/sentinel-identity/internal/pkg/crypto"
	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// accountCacheTTL bounds staleness of the read-through account cache. All
// writes invalidate the entry, so the TTL only matters for out-of-band
// database changes.
const accountCacheTTL = 5 * time.Minute

func accountCacheKey(id int64) string {
	return "account:" + strconv.FormatInt(id, 10)
}

// cachedAccount is the cache envelope for an account. The Account JSON tags
// hide the credential and lockout fields from API responses, so the envelope
// carries them explicitly; a cache hit must round-trip the full
// authentication state, not the public view.
type cachedAccount struct {
	Account             domain.Account `json:"account"`
	PasswordHash        string         `json:"password_hash"`
	FailedLoginAttempts int            `json:"failed_login_attempts"`
	LockedUntil         *time.Time     `json:"locked_until,omitempty"`
}

func newCachedAccount(account *domain.Account) cachedAccount {
	return cachedAccount{
		Account:             *account,
		PasswordHash:        account.PasswordHash,
		FailedLoginAttempts: account.FailedLoginAttempts,
		LockedUntil:         account.LockedUntil,
	}
}

func (c cachedAccount) account() *domain.Account {
	account := c.Account
	account.PasswordHash = c.PasswordHash
	account.FailedLoginAttempts = c.FailedLoginAttempts
	account.LockedUntil = c.LockedUntil
	return &account
}

// AccountService handles account lifecycle operations: registration, profile
// and password changes, soft delete, and email verification.
type AccountService struct {
	accountRepo      repository.AccountRepository
	verificationRepo repository.VerificationTokenRepository
	cache            repository.Cache
	verificationTTL  time.Duration
	clock            clock.Clock
	metrics          *metrics.Metrics
	logger           zerolog.Logger
}

// NewAccountService creates a new AccountService. Cache and metrics may be
// nil.
func NewAccountService(
	accountRepo repository.AccountRepository,
	verificationRepo repository.VerificationTokenRepository,
	cache repository.Cache,
	verificationTTL time.Duration,
	clk clock.Clock,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *AccountService {
	if verificationTTL <= 0 {
		verificationTTL = 48 * time.Hour
	}
	if clk == nil {
		clk = clock.New()
	}
	return &AccountService{
		accountRepo:      accountRepo,
		verificationRepo: verificationRepo,
		cache:            cache,
		verificationTTL:  verificationTTL,
		clock:            clk,
		metrics:          m,
		logger:           logger.With().Str("service", "account").Logger(),
	}
}

// RegisterInput contains the data needed to register a new account.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Bio         string
	RoleLabel   string
	IsStaff     bool
	IsSuperuser bool
}

// RegisterOutput contains the result of registering an account.
type RegisterOutput struct {
	Account *domain.Account
}

// Register creates a new account.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*RegisterOutput, error) {
	if err := s.validateRegisterInput(input); err != nil {
		return nil, err
	}

	exists, err := s.accountRepo.ExistsByUsername(ctx, input.Username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to check username existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: username '%s'", ErrAccountAlreadyExists, input.Username)
	}

	exists, err = s.accountRepo.ExistsByEmail(ctx, input.Email)
	if err != nil {
		s.logger.Error().Err(err).Str("email", input.Email).Msg("failed to check email existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: email '%s'", ErrAccountAlreadyExists, input.Email)
	}

	passwordHash, err := crypto.HashPassword(input.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	account := domain.NewAccount(input.Username, input.Email, passwordHash)
	account.FirstName = input.FirstName
	account.LastName = input.LastName
	account.PhoneNumber = input.PhoneNumber
	account.Bio = input.Bio
	account.RoleLabel = input.RoleLabel
	account.IsStaff = input.IsStaff
	account.IsSuperuser = input.IsSuperuser

	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			return nil, ErrAccountAlreadyExists
		}
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to create account")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if s.metrics != nil {
		s.metrics.RecordRegistration()
	}
	s.logger.Info().
		Int64("account_id", account.ID).
		Str("username", account.Username).
		Bool("is_staff", account.IsStaff).
		Msg("account registered")

	return &RegisterOutput{Account: account}, nil
}

// GetByID retrieves an account by ID, reading through the cache.
func (s *AccountService) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, accountCacheKey(id)); err == nil {
			var cached cachedAccount
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached.account(), nil
			}
		}
	}

	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		s.logger.Error().Err(err).Int64("account_id", id).Msg("failed to get account")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.cacheAccount(ctx, account)
	return account, nil
}

// GetByUsername retrieves an account by username.
func (s *AccountService) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		s.logger.Error().Err(err).Str("username", username).Msg("failed to get account")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return account, nil
}

// UpdateProfileInput contains the mutable profile fields.
type UpdateProfileInput struct {
	AccountID   int64
	FirstName   string
	LastName    string
	PhoneNumber string
	Bio         string
	RoleLabel   string
}

// UpdateProfile updates the profile fields of an account.
func (s *AccountService) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	account.FirstName = input.FirstName
	account.LastName = input.LastName
	account.PhoneNumber = input.PhoneNumber
	account.Bio = input.Bio
	account.RoleLabel = input.RoleLabel
	account.UpdatedAt = s.clock.Now()

	if err := s.accountRepo.UpdateProfile(ctx, account); err != nil {
		s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to update profile")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, account.ID)
	s.logger.Info().Int64("account_id", account.ID).Msg("profile updated")
	return account, nil
}

// UpdatePasswordInput contains the data needed to change a password.
type UpdatePasswordInput struct {
	AccountID   int64
	OldPassword string
	NewPassword string
}

// UpdatePassword changes an account's password after verifying the old one.
func (s *AccountService) UpdatePassword(ctx context.Context, input UpdatePasswordInput) error {
	account, err := s.accountRepo.GetByID(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if !crypto.CheckPassword(account.PasswordHash, input.OldPassword) {
		return ErrInvalidCredentials
	}

	if len(input.NewPassword) < 8 {
		return ErrInvalidPassword
	}

	newHash, err := crypto.HashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	if err := s.accountRepo.UpdatePasswordHash(ctx, account.ID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, account.ID)
	s.logger.Info().Int64("account_id", account.ID).Msg("password updated")
	return nil
}

// SetActive activates or deactivates an account. Deactivation is the soft
// delete; the record stays and login is refused.
func (s *AccountService) SetActive(ctx context.Context, accountID int64, isActive bool) error {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	var change *domain.ActiveStatusChanged
	if isActive {
		change = account.Activate()
	} else {
		change = account.Deactivate()
	}

	if err := s.accountRepo.ApplyActiveStatus(ctx, change); err != nil {
		s.logger.Error().Err(err).Int64("account_id", accountID).Msg("failed to update active status")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, accountID)
	s.logger.Info().
		Int64("account_id", accountID).
		Bool("is_active", isActive).
		Msg("account active status updated")
	return nil
}

// Delete hard-deletes an account. Application flows soft-delete through
// SetActive; this exists for the admin CLI.
func (s *AccountService) Delete(ctx context.Context, accountID int64) error {
	if err := s.accountRepo.Delete(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, accountID)
	s.logger.Info().Int64("account_id", accountID).Msg("account deleted")
	return nil
}

// ListAccountsInput contains pagination options for listing accounts.
type ListAccountsInput struct {
	Limit  int
	Offset int
}

// ListAccountsOutput contains the result of listing accounts.
type ListAccountsOutput struct {
	Accounts   []*domain.Account
	TotalCount int64
}

// List returns accounts with pagination.
func (s *AccountService) List(ctx context.Context, input ListAccountsInput) (*ListAccountsOutput, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}
	if input.Limit > 100 {
		input.Limit = 100
	}

	result, err := s.accountRepo.List(ctx, repository.ListOptions{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list accounts")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &ListAccountsOutput{
		Accounts:   result.Items,
		TotalCount: result.Total,
	}, nil
}

// IssueEmailVerification creates a verification token for the account and
// returns the plaintext once. Delivery to the user is the caller's concern.
func (s *AccountService) IssueEmailVerification(ctx context.Context, accountID int64) (string, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	plaintext, err := crypto.GenerateVerificationToken()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	now := s.clock.Now()
	record := &domain.VerificationToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: crypto.HashToken(plaintext),
		CreatedAt: now,
		ExpiresAt: now.Add(s.verificationTTL),
	}
	if err := s.verificationRepo.Create(ctx, record); err != nil {
		s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to store verification token")
		return "", fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Int64("account_id", account.ID).
		Time("expires_at", record.ExpiresAt).
		Msg("email verification token issued")
	return plaintext, nil
}

// ConfirmEmail consumes a verification token and marks the account's email
// verified. Tokens are single-use and expire.
func (s *AccountService) ConfirmEmail(ctx context.Context, plaintext string) error {
	record, err := s.verificationRepo.GetByHash(ctx, crypto.HashToken(plaintext))
	if err != nil {
		if errors.Is(err, domain.ErrVerificationTokenNotFound) {
			s.recordVerification(metrics.OutcomeError)
			return ErrVerificationTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	now := s.clock.Now()
	if record.IsUsed() {
		s.recordVerification(metrics.OutcomeError)
		return ErrVerificationTokenUsed
	}
	if record.IsExpired(now) {
		s.recordVerification(metrics.OutcomeError)
		return ErrVerificationTokenExpired
	}

	if err := s.verificationRepo.MarkUsed(ctx, record.ID, now); err != nil {
		if errors.Is(err, domain.ErrVerificationTokenUsed) {
			s.recordVerification(metrics.OutcomeError)
			return ErrVerificationTokenUsed
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	account, err := s.accountRepo.GetByID(ctx, record.AccountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if err := s.accountRepo.ApplyEmailVerified(ctx, account.MarkEmailVerified()); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, record.AccountID)
	s.recordVerification(metrics.OutcomeSuccess)
	s.logger.Info().Int64("account_id", record.AccountID).Msg("email verified")
	return nil
}

// SweepExpiredTokens removes verification tokens past their expiry and
// returns the number deleted.
func (s *AccountService) SweepExpiredTokens(ctx context.Context) (int64, error) {
	deleted, err := s.verificationRepo.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("expired verification tokens swept")
	}
	return deleted, nil
}

func (s *AccountService) recordVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordVerification(outcome)
	}
}

func (s *AccountService) cacheAccount(ctx context.Context, account *domain.Account) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(newCachedAccount(account))
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, accountCacheKey(account.ID), data, accountCacheTTL); err != nil {
		s.logger.Debug().Err(err).Int64("account_id", account.ID).Msg("failed to cache account")
	}
}

func (s *AccountService) invalidate(ctx context.Context, accountID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, accountCacheKey(accountID)); err != nil {
		s.logger.Debug().Err(err).Int64("account_id", accountID).Msg("failed to invalidate account cache")
	}
}

// validateRegisterInput validates the input for registering an account.
func (s *AccountService) validateRegisterInput(input RegisterInput) error {
	if len(input.Username) < 3 || len(input.Username) > 150 {
		return ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return ErrInvalidEmail
	}
	if len(input.Password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}
