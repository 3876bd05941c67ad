package authflow

import (
	"context"
	"errors"
	"fmt"
)

// credentialVerifier checks a password against the identity provider and the
// account-status store. The provider may establish a session as a side effect
// of a successful check; the verifier always signs that session back out
// before returning, so callers receive only an account id; a session must
// exist, at the end of the whole flow, only after the second factor clears.
//
// Callers hold the session gate around VerifyPassword: the teardown of a
// blocked or deleted account's side-effect session must complete inside the
// gate's protective window, or the provider's session-established
// notification could slip through and redirect a blocked user.
type credentialVerifier struct {
	idp    IdentityProvider
	status AccountStatusStore
}

// VerifyPassword returns the account id on success. Credential failures
// surface as the generic ErrInvalidCredentials (no account-existence
// disclosure beyond what the provider itself reveals); unconfirmed email is
// the one provider error passed through distinctly.
func (v *credentialVerifier) VerifyPassword(ctx context.Context, identifier, password string) (string, error) {
	sess, err := v.idp.SignIn(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, ErrEmailUnconfirmed) {
			return "", ErrEmailUnconfirmed
		}
		return "", ErrInvalidCredentials
	}

	status, err := v.status.GetStatus(ctx, sess.AccountID)
	if err != nil {
		_ = v.idp.SignOut(ctx)
		return "", fmt.Errorf("%w: account status read: %v", ErrServiceUnavailable, err)
	}
	if status.Blocked {
		if err := v.idp.SignOut(ctx); err != nil {
			return "", fmt.Errorf("%w: sign-out after blocked check: %v", ErrServiceUnavailable, err)
		}
		return "", ErrAccountBlocked
	}
	if status.VerificationStatus == VerificationDeleted {
		if err := v.idp.SignOut(ctx); err != nil {
			return "", fmt.Errorf("%w: sign-out after deleted check: %v", ErrServiceUnavailable, err)
		}
		return "", ErrAccountDeleted
	}

	// The session was only a side effect of checking the password.
	if err := v.idp.SignOut(ctx); err != nil {
		return "", fmt.Errorf("%w: sign-out after credential check: %v", ErrServiceUnavailable, err)
	}
	return sess.AccountID, nil
}
