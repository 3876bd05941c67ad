package authflow

import "errors"

var (
	// ErrControllerNotReady is an exported constant or variable used by the authentication flow.
	ErrControllerNotReady = errors.New("controller not initialized")
	// ErrInvalidTransition is an exported constant or variable used by the authentication flow.
	ErrInvalidTransition = errors.New("event not valid in current auth mode")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication flow.
	ErrInvalidCredentials = errors.New("email or password incorrect")
	// ErrEmailUnconfirmed is an exported constant or variable used by the authentication flow.
	ErrEmailUnconfirmed = errors.New("email address not confirmed")
	// ErrAccountBlocked is an exported constant or variable used by the authentication flow.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrAccountDeleted is an exported constant or variable used by the authentication flow.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrNoChallenge is an exported constant or variable used by the authentication flow.
	ErrNoChallenge = errors.New("no outstanding code challenge")
	// ErrCodeInvalid is an exported constant or variable used by the authentication flow.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrCodeExpired is an exported constant or variable used by the authentication flow.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeAttemptsExceeded is an exported constant or variable used by the authentication flow.
	ErrCodeAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrDeliveryFailed is an exported constant or variable used by the authentication flow.
	ErrDeliveryFailed = errors.New("verification code could not be delivered")
	// ErrResendThrottled is an exported constant or variable used by the authentication flow.
	ErrResendThrottled = errors.New("resend not yet available")
	// ErrRequestRateLimited is an exported constant or variable used by the authentication flow.
	ErrRequestRateLimited = errors.New("code request rate limited")
	// ErrPasswordMismatch is an exported constant or variable used by the authentication flow.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication flow.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrResetInvalid is an exported constant or variable used by the authentication flow.
	ErrResetInvalid = errors.New("reset code invalid or expired")
	// ErrServiceUnavailable is an exported constant or variable used by the authentication flow.
	ErrServiceUnavailable = errors.New("collaborator backend unavailable")
)
