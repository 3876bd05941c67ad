package authflow

import (
	"context"
	"time"
)

// Purpose is the trust scope a one-time code is bound to. A code issued for
// one purpose must be rejected when presented for the other, even if the
// digits match; the binding is enforced server-side and the client never
// assumes otherwise.
type Purpose string

const (
	// PurposeLogin is an exported constant or variable used by the authentication flow.
	PurposeLogin Purpose = "login"
	// PurposePasswordReset is an exported constant or variable used by the authentication flow.
	PurposePasswordReset Purpose = "password_reset"
)

// AuthMode is the controller's current state in the top-level authentication
// state machine. Exactly one mode is active at a time.
type AuthMode uint8

const (
	// ModePassword is an exported constant or variable used by the authentication flow.
	ModePassword AuthMode = iota
	// ModePasswordOTPVerify is an exported constant or variable used by the authentication flow.
	ModePasswordOTPVerify
	// ModeOTPRequest is an exported constant or variable used by the authentication flow.
	ModeOTPRequest
	// ModeOTPVerify is an exported constant or variable used by the authentication flow.
	ModeOTPVerify
	// ModeForgotPassword is an exported constant or variable used by the authentication flow.
	ModeForgotPassword
	// ModeForgotPasswordOTP is an exported constant or variable used by the authentication flow.
	ModeForgotPasswordOTP
	// ModeResetPassword is an exported constant or variable used by the authentication flow.
	ModeResetPassword
)

// String describes the string operation and its observable behavior.
func (m AuthMode) String() string {
	switch m {
	case ModePassword:
		return "password"
	case ModePasswordOTPVerify:
		return "password-otp-verify"
	case ModeOTPRequest:
		return "otp-request"
	case ModeOTPVerify:
		return "otp-verify"
	case ModeForgotPassword:
		return "forgot-password"
	case ModeForgotPasswordOTP:
		return "forgot-password-otp"
	case ModeResetPassword:
		return "reset-password"
	default:
		return "unknown"
	}
}

// Session is an identity provider session as observed by the client. The
// token is opaque to this package.
type Session struct {
	AccountID  string
	Identifier string
	Token      string
	ExpiresAt  time.Time
}

// Verification status values reported by the account-status store.
const (
	// VerificationActive is an exported constant or variable used by the authentication flow.
	VerificationActive = "active"
	// VerificationDeleted is an exported constant or variable used by the authentication flow.
	VerificationDeleted = "deleted"
)

// AccountStatus is the blocked/deleted flag record returned by the
// account-status store.
type AccountStatus struct {
	Blocked            bool
	BlockedReason      string
	VerificationStatus string
}

// IssueResult is returned by [OTPService.RequestCode]. ExpiresAt is the
// server-authoritative deadline the client countdown is reconstructed from.
type IssueResult struct {
	ExpiresAt time.Time
}

// VerifyResult is returned by [OTPService.VerifyCode]. MagicLink is set only
// for passwordless login verification; second-factor and reset verification
// return validity alone.
type VerifyResult struct {
	Valid     bool
	MagicLink string
}

// IdentityProvider is the external identity collaborator. SignIn may
// establish a session as a side effect of verifying credentials, and session
// change notifications fire on the provider's own goroutine, unordered
// relative to caller code.
type IdentityProvider interface {
	SignIn(ctx context.Context, identifier, secret string) (*Session, error)
	SignOut(ctx context.Context) error
	// OnSessionChange registers fn for session-change notifications (nil
	// session on sign-out). The returned function unsubscribes.
	OnSessionChange(fn func(*Session)) (unsubscribe func())
	// GetSession is a point-in-time read of the current session, used only at
	// mount to decide an initial redirect.
	GetSession(ctx context.Context) (*Session, error)
	// ExchangeMagicLink redeems a one-time session-establishing link returned
	// by passwordless code verification.
	ExchangeMagicLink(ctx context.Context, link string) (*Session, error)
}

// OTPService is the external code delivery/verification collaborator. Code
// generation, storage, expiry, attempt counting and rate limiting all live
// behind these three calls.
type OTPService interface {
	RequestCode(ctx context.Context, identifier string, purpose Purpose, accountID string) (IssueResult, error)
	VerifyCode(ctx context.Context, identifier, code string, purpose Purpose) (VerifyResult, error)
	ResetPassword(ctx context.Context, identifier, code, newPassword string) error
}

// AccountStatusStore reports blocked/deleted flags for an account id.
type AccountStatusStore interface {
	GetStatus(ctx context.Context, accountID string) (AccountStatus, error)
}

// Challenge is the ephemeral record of one outstanding code. It is
// reconstructed from the issuance response, mutated only by the server, and
// discarded on successful verification, cancellation or mode reset.
type Challenge struct {
	Identifier string
	Purpose    Purpose
	AccountID  string
	ExpiresAt  time.Time
}

// Remaining describes the remaining operation and its observable behavior.
func (c *Challenge) Remaining(now time.Time) time.Duration {
	if c == nil {
		return 0
	}
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired describes the expired operation and its observable behavior.
func (c *Challenge) Expired(now time.Time) bool {
	return c != nil && !now.Before(c.ExpiresAt)
}

// ResendAllowed reports whether a replacement code may be requested: only
// once fewer than window seconds of the validity period remain, or the code
// has already expired.
func (c *Challenge) ResendAllowed(now time.Time, window time.Duration) bool {
	if c == nil {
		return false
	}
	return c.Remaining(now) < window
}
