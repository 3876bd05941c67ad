package otpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/northpay/authflow"
	"github.com/northpay/authflow/internal"
	"github.com/northpay/authflow/internal/rate"
)

// Defaults applied by NewService when the corresponding config field is zero.
const (
	DefaultCodeTTL           = 5 * time.Minute
	DefaultCodeDigits        = 6
	DefaultMaxAttempts       = 5
	DefaultPasswordMinLength = 6
)

// MagicLinkMinter mints a one-time session-establishing link for an
// identifier whose code was verified without a prior password step.
type MagicLinkMinter interface {
	MintMagicLink(ctx context.Context, identifier string) (string, error)
}

// CredentialStore applies a verified password change.
type CredentialStore interface {
	UpdatePassword(ctx context.Context, identifier, newPassword string) error
}

// ServiceConfig defines a public type used by the otp service APIs.
// ServiceConfig instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type ServiceConfig struct {
	CodeTTL           time.Duration
	CodeDigits        int
	MaxAttempts       int
	PasswordMinLength int
}

// Service is the authoritative side of the code lifecycle: issuance,
// purpose-scoped verification with attempt counting, and the password reset
// commit. It implements [authflow.OTPService].
type Service struct {
	store   Store
	sender  Sender
	limiter *rate.Limiter
	minter  MagicLinkMinter
	creds   CredentialStore
	config  ServiceConfig
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService describes the new service operation and its observable behavior.
func NewService(store Store, sender Sender, config ServiceConfig) *Service {
	if config.CodeTTL <= 0 {
		config.CodeTTL = DefaultCodeTTL
	}
	if config.CodeDigits <= 0 {
		config.CodeDigits = DefaultCodeDigits
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.PasswordMinLength <= 0 {
		config.PasswordMinLength = DefaultPasswordMinLength
	}
	return &Service{
		store:  store,
		sender: sender,
		config: config,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
}

// WithRateLimit bounds issuance per (identifier, purpose) over a fixed window
// backed by redis.
func (s *Service) WithRateLimit(redisClient redis.UniversalClient, maxIssues int, window time.Duration) *Service {
	s.limiter = rate.New(redisClient, rate.Config{
		MaxIssuesPerWindow: maxIssues,
		Window:             window,
	})
	return s
}

// WithMagicLinks enables passwordless login: code verifications issued
// without an account id return a one-time link minted by m.
func (s *Service) WithMagicLinks(m MagicLinkMinter) *Service {
	s.minter = m
	return s
}

// WithCredentialStore enables the password reset commit.
func (s *Service) WithCredentialStore(cs CredentialStore) *Service {
	s.creds = cs
	return s
}

// WithLogger describes the with logger operation and its observable behavior.
func (s *Service) WithLogger(logger zerolog.Logger) *Service {
	s.logger = logger
	return s
}

// WithClock overrides the time source, intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// RequestCode issues a fresh code for (identifier, purpose), superseding any
// outstanding code for the same pair. The challenge is persisted before
// delivery and rolled back if delivery fails, so a reported issuance always
// has a code in flight.
func (s *Service) RequestCode(
	ctx context.Context,
	identifier string,
	purpose authflow.Purpose,
	accountID string,
) (authflow.IssueResult, error) {
	if s.limiter != nil {
		if err := s.limiter.CheckIssue(ctx, identifier, string(purpose)); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return authflow.IssueResult{}, authflow.ErrRequestRateLimited
			}
			return authflow.IssueResult{}, fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
		}
	}

	code, err := internal.NewOTP(s.config.CodeDigits)
	if err != nil {
		return authflow.IssueResult{}, fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
	}

	expiresAt := s.now().Add(s.config.CodeTTL)
	record := &Record{
		AccountID: accountID,
		CodeHash:  internal.HashCode(code),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := s.store.Save(ctx, identifier, purpose, record, s.config.CodeTTL); err != nil {
		return authflow.IssueResult{}, fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
	}

	if err := s.sender.Send(ctx, identifier, code, purpose, expiresAt); err != nil {
		if _, delErr := s.store.Delete(ctx, identifier, purpose); delErr != nil {
			s.logger.Warn().Err(delErr).Str("purpose", string(purpose)).
				Msg("challenge rollback failed after delivery error")
		}
		return authflow.IssueResult{}, fmt.Errorf("%w: %v", authflow.ErrDeliveryFailed, err)
	}

	s.logger.Debug().Str("purpose", string(purpose)).Time("expires_at", expiresAt).
		Msg("code issued")
	return authflow.IssueResult{ExpiresAt: expiresAt}, nil
}

// VerifyCode checks a submitted code against the outstanding challenge for
// (identifier, purpose). Login codes are consumed on success; password reset
// codes survive verification and are consumed only by ResetPassword, which
// re-checks them.
func (s *Service) VerifyCode(
	ctx context.Context,
	identifier, code string,
	purpose authflow.Purpose,
) (authflow.VerifyResult, error) {
	record, err := s.store.Get(ctx, identifier, purpose)
	if err != nil {
		return authflow.VerifyResult{}, mapChallengeError(err)
	}

	if !internal.HashEqual(record.CodeHash, internal.HashCode(code)) {
		exceeded, err := s.store.RecordFailure(ctx, identifier, purpose, s.config.MaxAttempts)
		if err != nil {
			return authflow.VerifyResult{}, mapChallengeError(err)
		}
		if exceeded {
			return authflow.VerifyResult{}, authflow.ErrCodeAttemptsExceeded
		}
		return authflow.VerifyResult{}, authflow.ErrCodeInvalid
	}

	if purpose == authflow.PurposePasswordReset {
		return authflow.VerifyResult{Valid: true}, nil
	}

	existed, err := s.store.Delete(ctx, identifier, purpose)
	if err != nil {
		return authflow.VerifyResult{}, fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
	}
	if !existed {
		// Lost a consume race; treat the replay as a bad code.
		return authflow.VerifyResult{}, authflow.ErrCodeInvalid
	}

	result := authflow.VerifyResult{Valid: true}
	if record.AccountID == "" {
		if s.minter == nil {
			return authflow.VerifyResult{}, fmt.Errorf("%w: magic links not configured", authflow.ErrServiceUnavailable)
		}
		link, err := s.minter.MintMagicLink(ctx, identifier)
		if err != nil {
			return authflow.VerifyResult{}, fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
		}
		result.MagicLink = link
	}
	return result, nil
}

// ResetPassword commits a password change. The reset code is re-verified here
// regardless of any earlier VerifyCode call, and is consumed only when the
// new password has been applied.
func (s *Service) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	if len(newPassword) < s.config.PasswordMinLength {
		return authflow.ErrPasswordPolicy
	}
	if s.creds == nil {
		return fmt.Errorf("%w: credential store not configured", authflow.ErrServiceUnavailable)
	}

	record, err := s.store.Get(ctx, identifier, authflow.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, ErrChallengeBackend) {
			return fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
		}
		return authflow.ErrResetInvalid
	}
	if !internal.HashEqual(record.CodeHash, internal.HashCode(code)) {
		if _, err := s.store.RecordFailure(ctx, identifier, authflow.PurposePasswordReset, s.config.MaxAttempts); err != nil &&
			errors.Is(err, ErrChallengeBackend) {
			return fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
		}
		return authflow.ErrResetInvalid
	}

	if err := s.creds.UpdatePassword(ctx, identifier, newPassword); err != nil {
		return fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
	}

	if _, err := s.store.Delete(ctx, identifier, authflow.PurposePasswordReset); err != nil {
		s.logger.Warn().Err(err).Msg("reset challenge consume failed")
	}
	if s.limiter != nil {
		if err := s.limiter.ResetIssue(ctx, identifier, string(authflow.PurposePasswordReset)); err != nil {
			s.logger.Warn().Err(err).Msg("issue counter reset failed")
		}
	}
	return nil
}

func mapChallengeError(err error) error {
	switch {
	case errors.Is(err, ErrChallengeNotFound):
		return authflow.ErrCodeInvalid
	case errors.Is(err, ErrChallengeExpired):
		return authflow.ErrCodeExpired
	case errors.Is(err, ErrChallengeExceeded):
		return authflow.ErrCodeAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", authflow.ErrServiceUnavailable, err)
	}
}
