// Package service provides business logic services for Sentinel Identity.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/lock"
	"github.com/prn-tf/sentinel-identity/internal/metrics"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
	"github.com/prn-tf/sentinel-identity/internal/pkg/crypto"
	"github.com/prn-tf/sentinel-identity/internal/repository"
	"github.com/prn-tf/sentinel-identity/internal/token"
)

// Login pipeline lock parameters.
const (
	loginLockTTL        = 5 * time.Second
	loginLockMaxRetries = 3
	loginLockRetryDelay = 50 * time.Millisecond

	// casMaxRetries bounds reload-and-retry when a concurrent attempt wins
	// the counter compare-and-swap despite the per-account lock (e.g. two
	// nodes with memory lockers).
	casMaxRetries = 3

	// velocityWindow and velocityThreshold throttle login attempts per
	// username before the account is even resolved, so unknown usernames
	// cannot be hammered either.
	velocityWindow    = 15 * time.Minute
	velocityThreshold = 20
)

// LockoutPolicy is the account lockout policy applied by the login pipeline.
type LockoutPolicy struct {
	// MaxFailedAttempts is the counter value at which the lock is applied.
	MaxFailedAttempts int

	// LockDuration is the length of the lock window.
	LockDuration time.Duration
}

// AuthService runs the authentication pipeline: credential verification,
// failed-attempt counting, lockout, and session issuance.
type AuthService struct {
	accountRepo repository.AccountRepository
	attemptRepo repository.LoginAttemptRepository
	locker      lock.Locker
	cache       repository.Cache
	issuer      *token.Issuer
	policy      LockoutPolicy
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewAuthService creates a new AuthService. Cache and metrics may be nil; the
// cache, when present, is the account read-through cache shared with
// AccountService and is invalidated on every authentication state write.
func NewAuthService(
	accountRepo repository.AccountRepository,
	attemptRepo repository.LoginAttemptRepository,
	locker lock.Locker,
	cache repository.Cache,
	issuer *token.Issuer,
	policy LockoutPolicy,
	clk clock.Clock,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *AuthService {
	if policy.MaxFailedAttempts <= 0 {
		policy.MaxFailedAttempts = 5
	}
	if policy.LockDuration <= 0 {
		policy.LockDuration = domain.DefaultLockDuration
	}
	if clk == nil {
		clk = clock.New()
	}
	return &AuthService{
		accountRepo: accountRepo,
		attemptRepo: attemptRepo,
		locker:      locker,
		cache:       cache,
		issuer:      issuer,
		policy:      policy,
		clock:       clk,
		metrics:     m,
		logger:      logger.With().Str("service", "auth").Logger(),
	}
}

// LoginInput contains the credentials and request metadata for a login.
type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginOutput contains the result of a successful login.
type LoginOutput struct {
	Account     *domain.Account
	AccessToken string
}

// Login authenticates the credentials and returns a session token.
//
// The pipeline: resolve the account, gate on active status and lock window,
// verify the password, then either count the failure (locking at the policy
// threshold) or reset the counter and issue a token. All state transitions
// run under a per-account lock so concurrent attempts serialize.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	if s.throttled(ctx, input.Username) {
		s.audit(ctx, nil, input, false, "too many attempts")
		s.record(metrics.OutcomeThrottled)
		return nil, ErrTooManyAttempts
	}

	account, err := s.resolveAccount(ctx, input.Username)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			// Burn a hash comparison so unknown usernames are not
			// distinguishable by timing.
			crypto.CheckPassword("$2a$10$0000000000000000000000uGZwCvAP3pzJkBv8RnBAmblqoT8bQa.", input.Password)
			s.audit(ctx, nil, input, false, "unknown username")
			s.record(metrics.OutcomeInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to load account for login")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	lockKey := lock.Keys.AccountLogin(account.ID)
	acquired, err := s.locker.AcquireWithRetry(ctx, lockKey, loginLockTTL, loginLockMaxRetries, loginLockRetryDelay)
	if err != nil {
		s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to acquire login lock")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !acquired {
		s.record(metrics.OutcomeError)
		return nil, ErrTooManyAttempts
	}
	defer func() {
		if _, err := s.locker.Release(ctx, lockKey); err != nil {
			s.logger.Warn().Err(err).Int64("account_id", account.ID).Msg("failed to release login lock")
		}
	}()

	now := s.clock.Now()

	if !account.IsActive {
		s.audit(ctx, account, input, false, "account inactive")
		s.record(metrics.OutcomeInactive)
		return nil, ErrAccountInactive
	}
	if account.IsLocked(now) {
		s.audit(ctx, account, input, false, "account locked")
		s.record(metrics.OutcomeLocked)
		return nil, ErrAccountLocked
	}

	if !crypto.CheckPassword(account.PasswordHash, input.Password) {
		if err := s.countFailure(ctx, account, now); err != nil {
			return nil, err
		}
		s.audit(ctx, account, input, false, "invalid credentials")
		s.record(metrics.OutcomeInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	change := account.RecordSuccessfulLogin(now, input.IPAddress)
	if err := s.accountRepo.ApplyLoginSucceeded(ctx, change); err != nil {
		s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to persist successful login")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	s.invalidate(ctx, account.ID)

	accessToken, err := s.issuer.Issue(account)
	if err != nil {
		s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to issue session token")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.audit(ctx, account, input, true, "")
	s.record(metrics.OutcomeSuccess)
	s.logger.Info().
		Int64("account_id", account.ID).
		Str("username", account.Username).
		Str("ip", input.IPAddress).
		Msg("login succeeded")

	return &LoginOutput{Account: account, AccessToken: accessToken}, nil
}

// resolveAccount looks the account up by username, falling back to the email
// address when the identifier looks like one. Both identifiers are unique, so
// the fallback never shadows a username.
func (s *AuthService) resolveAccount(ctx context.Context, identifier string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByUsername(ctx, identifier)
	if errors.Is(err, domain.ErrAccountNotFound) && strings.Contains(identifier, "@") {
		return s.accountRepo.GetByEmail(ctx, identifier)
	}
	return account, err
}

// throttled reports whether the username has accumulated too many recent
// failures across all sources. Counting errors fail open; throttling is a
// shield, not a gate logins depend on.
func (s *AuthService) throttled(ctx context.Context, username string) bool {
	since := s.clock.Now().Add(-velocityWindow)
	count, err := s.attemptRepo.CountRecentFailures(ctx, username, since)
	if err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("failed to count recent failures")
		return false
	}
	return count >= velocityThreshold
}

// countFailure increments the failed-login counter and applies the lockout
// policy at the threshold. Lost compare-and-swap races reload the account and
// retry, so every concurrent failure is counted exactly once.
func (s *AuthService) countFailure(ctx context.Context, account *domain.Account, now time.Time) error {
	for attempt := 0; ; attempt++ {
		change := account.RecordFailedLogin()
		err := s.accountRepo.ApplyFailedLogin(ctx, change)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt >= casMaxRetries {
			s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to persist failed login")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}

		reloaded, err := s.accountRepo.GetByID(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		*account = *reloaded
	}
	s.invalidate(ctx, account.ID)

	s.logger.Debug().
		Int64("account_id", account.ID).
		Int("failed_attempts", account.FailedLoginAttempts).
		Msg("failed login counted")

	if account.FailedLoginAttempts < s.policy.MaxFailedAttempts {
		return nil
	}

	lockChange, err := account.Lock(now, s.policy.LockDuration)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if err := s.accountRepo.ApplyLock(ctx, lockChange); err != nil {
		s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to persist account lock")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	s.invalidate(ctx, account.ID)

	if s.metrics != nil {
		s.metrics.RecordLockout()
	}
	s.logger.Warn().
		Int64("account_id", account.ID).
		Str("username", account.Username).
		Time("locked_until", lockChange.Until).
		Msg("account locked after repeated failed logins")

	return nil
}

// Unlock clears an account's lock window and failed-login counter. This is
// the administrative override; normal unlock happens by the window elapsing.
func (s *AuthService) Unlock(ctx context.Context, accountID int64) error {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.accountRepo.ApplyUnlock(ctx, account.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	s.invalidate(ctx, account.ID)

	if s.metrics != nil {
		s.metrics.RecordUnlock()
	}
	s.logger.Info().Int64("account_id", accountID).Msg("account unlocked by administrator")
	return nil
}

// VerifyToken validates a session token and returns its claims.
func (s *AuthService) VerifyToken(tokenString string) (*token.Claims, error) {
	return s.issuer.Verify(tokenString)
}

// RecentAttempts returns the newest audit records for an account.
func (s *AuthService) RecentAttempts(ctx context.Context, accountID int64, limit int) ([]*domain.LoginAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	attempts, err := s.attemptRepo.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return attempts, nil
}

// PruneAttempts deletes audit records older than the retention period and
// returns the number removed.
func (s *AuthService) PruneAttempts(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-retention)
	deleted, err := s.attemptRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned login attempts")
	}
	return deleted, nil
}

// audit stores the attempt in the audit trail. Audit failures are logged and
// swallowed; they never fail the login itself.
func (s *AuthService) audit(ctx context.Context, account *domain.Account, input LoginInput, success bool, reason string) {
	attempt := &domain.LoginAttempt{
		ID:            uuid.NewString(),
		Username:      input.Username,
		IPAddress:     input.IPAddress,
		UserAgent:     input.UserAgent,
		Success:       success,
		FailureReason: reason,
		AttemptedAt:   s.clock.Now(),
	}
	if account != nil {
		attempt.AccountID = account.ID
	}
	if err := s.attemptRepo.Record(ctx, attempt); err != nil {
		s.logger.Warn().Err(err).Str("username", input.Username).Msg("failed to record login attempt")
	}
}

// invalidate drops the cached copy of the account so reads observe the new
// authentication state.
func (s *AuthService) invalidate(ctx context.Context, accountID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, accountCacheKey(accountID)); err != nil {
		s.logger.Debug().Err(err).Int64("account_id", accountID).Msg("failed to invalidate account cache")
	}
}

func (s *AuthService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(outcome)
	}
}
