package authflow

import (
	"errors"
	"time"
)

const (
	// DefaultCodeTTL is an exported constant or variable used by the authentication flow.
	DefaultCodeTTL = 5 * time.Minute
	// DefaultResendWindow is the single canonical resend threshold: a
	// replacement code may be requested once fewer than this much of the
	// validity window remains. Both the eligibility check and countdown
	// labels derive from this constant so the two cannot drift.
	DefaultResendWindow = 30 * time.Second
	// DefaultCodeDigits is an exported constant or variable used by the authentication flow.
	DefaultCodeDigits = 6
	// DefaultPasswordMinLength is an exported constant or variable used by the authentication flow.
	DefaultPasswordMinLength = 6
)

// Config defines a public type used by authflow APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	OTP      OTPConfig
	Password PasswordPolicyConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// OTPConfig defines a public type used by authflow APIs.
//
// OTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPConfig struct {
	// TTL is the client-side expectation of the code validity window. The
	// server's ExpiresAt from the issuance response is authoritative; TTL is
	// used only for validation and countdown defaults.
	TTL time.Duration
	// ResendWindow gates resend eligibility: resend is allowed only when
	// remaining < ResendWindow or the code has expired.
	ResendWindow time.Duration
	// Digits is the exact code length. Any other length fails locally
	// without a server round-trip.
	Digits int
}

// PasswordPolicyConfig defines a public type used by authflow APIs.
//
// PasswordPolicyConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordPolicyConfig struct {
	// MinLength is the advisory client-side minimum for a new password; the
	// server remains the source of truth.
	MinLength int
}

// AuditConfig defines a public type used by authflow APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authflow APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			TTL:          DefaultCodeTTL,
			ResendWindow: DefaultResendWindow,
			Digits:       DefaultCodeDigits,
		},
		Password: PasswordPolicyConfig{
			MinLength: DefaultPasswordMinLength,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.OTP.TTL <= 0 {
		return errors.New("otp ttl must be positive")
	}
	if cfg.OTP.ResendWindow <= 0 || cfg.OTP.ResendWindow >= cfg.OTP.TTL {
		return errors.New("resend window must be positive and shorter than the code ttl")
	}
	if cfg.OTP.Digits < 4 || cfg.OTP.Digits > 10 {
		return errors.New("code digits out of range")
	}
	if cfg.Password.MinLength < 6 {
		return errors.New("password minimum length below 6")
	}
	return nil
}
