package authflow

import (
	"context"
	"sync"
	"time"
)

// otpLifecycle tracks the single outstanding code challenge for the
// controller: issuance, local fast-fail verification, resend throttling and
// the countdown. It never mutates the controller's mode or gate; it returns
// results and the controller decides transitions.
type otpLifecycle struct {
	service      OTPService
	digits       int
	resendWindow time.Duration
	now          func() time.Time

	mu        sync.Mutex
	challenge *Challenge
}

// Request triggers server-side issuance for (identifier, purpose), which
// invalidates any prior unconsumed code for that pair, and resets the local
// countdown from the returned deadline. On delivery failure no challenge is
// recorded: the UI must never believe a code was sent when it was not.
func (l *otpLifecycle) Request(ctx context.Context, identifier string, purpose Purpose, accountID string) (*Challenge, error) {
	res, err := l.service.RequestCode(ctx, identifier, purpose, accountID)
	if err != nil {
		return nil, err
	}

	ch := &Challenge{
		Identifier: identifier,
		Purpose:    purpose,
		AccountID:  accountID,
		ExpiresAt:  res.ExpiresAt,
	}

	l.mu.Lock()
	l.challenge = ch
	l.mu.Unlock()

	return ch, nil
}

// Verify checks code against the outstanding challenge. Non-6-digit input and
// locally-known expiry fail without a server round-trip; everything else is
// the server's call.
func (l *otpLifecycle) Verify(ctx context.Context, code string) (VerifyResult, error) {
	l.mu.Lock()
	ch := l.challenge
	l.mu.Unlock()

	if ch == nil {
		return VerifyResult{}, ErrNoChallenge
	}
	if !validCode(code, l.digits) {
		return VerifyResult{}, ErrCodeInvalid
	}
	if ch.Expired(l.now()) {
		return VerifyResult{}, ErrCodeExpired
	}

	res, err := l.service.VerifyCode(ctx, ch.Identifier, code, ch.Purpose)
	if err != nil {
		return VerifyResult{}, err
	}
	if !res.Valid {
		return VerifyResult{}, ErrCodeInvalid
	}
	return res, nil
}

// Resend re-issues the outstanding challenge, re-targeting the same account.
// Policy: allowed only once fewer than resendWindow of the validity period
// remain, or the code has already expired.
func (l *otpLifecycle) Resend(ctx context.Context) (*Challenge, error) {
	l.mu.Lock()
	ch := l.challenge
	l.mu.Unlock()

	if ch == nil {
		return nil, ErrNoChallenge
	}
	if !ch.ResendAllowed(l.now(), l.resendWindow) {
		return nil, ErrResendThrottled
	}
	return l.Request(ctx, ch.Identifier, ch.Purpose, ch.AccountID)
}

// Current returns the outstanding challenge, or nil.
func (l *otpLifecycle) Current() *Challenge {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.challenge
}

// Remaining recomputes the countdown. Zero means expired or no challenge.
func (l *otpLifecycle) Remaining() time.Duration {
	return l.Current().Remaining(l.now())
}

// ResendAllowed reports the current resend eligibility.
func (l *otpLifecycle) ResendAllowed() bool {
	l.mu.Lock()
	ch := l.challenge
	l.mu.Unlock()
	if ch == nil {
		return false
	}
	return ch.ResendAllowed(l.now(), l.resendWindow)
}

// Discard drops the outstanding challenge. The server-side code is left to
// expire naturally; no cancellation call exists.
func (l *otpLifecycle) Discard() {
	l.mu.Lock()
	l.challenge = nil
	l.mu.Unlock()
}

// validCode reports whether code is exactly digits decimal digits.
func validCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
