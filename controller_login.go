package authflow

import (
	"context"
	"errors"
)

// SubmitPassword handles a credential submission from ModePassword. On
// success the gate is held, a login-purpose code is issued and the mode
// advances to ModePasswordOTPVerify; no session survives this call. On any
// failure the mode stays at ModePassword and the gate is not left held.
func (c *Controller) SubmitPassword(ctx context.Context, identifier, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModePassword {
		return ErrInvalidTransition
	}
	if identifier == "" || password == "" {
		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", identifier, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return ErrInvalidCredentials
	}

	// The provider may establish a session as a side effect of checking the
	// password; the gate must be held before that can happen.
	c.gate.Hold()

	accountID, err := c.verifier.VerifyPassword(ctx, identifier, password)
	if err != nil {
		c.gate.Release()
		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", identifier, err, nil)
		if errors.Is(err, ErrAccountBlocked) || errors.Is(err, ErrAccountDeleted) || errors.Is(err, ErrEmailUnconfirmed) {
			return err
		}
		if errors.Is(err, ErrServiceUnavailable) {
			return err
		}
		return ErrInvalidCredentials
	}

	if _, err := c.otp.Request(ctx, identifier, PurposeLogin, accountID); err != nil {
		c.gate.Release()
		c.metricInc(MetricOTPDeliveryFailure)
		c.emitAudit(ctx, auditEventOTPIssued, false, accountID, identifier, err, nil)
		return err
	}

	c.pendingAccountID = accountID
	c.pendingIdentifier = identifier
	c.pendingPassword = password
	c.setMode(ModePasswordOTPVerify)

	c.metricInc(MetricOTPRequired)
	c.metricInc(MetricOTPIssued)
	c.emitAudit(ctx, auditEventOTPIssued, true, accountID, identifier, nil, func() map[string]string {
		return map[string]string{"purpose": string(PurposeLogin)}
	})
	return nil
}

// SubmitLoginCode completes the password + OTP flow. On a verified code the
// credential sign-in is re-run (this time allowed to persist), the gate is
// released, and the mode returns to ModePassword immediately before the
// caller navigates. On a failed or expired code the mode is unchanged so the
// user can retry or resend.
func (c *Controller) SubmitLoginCode(ctx context.Context, code string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModePasswordOTPVerify {
		return nil, ErrInvalidTransition
	}

	if _, err := c.otp.Verify(ctx, code); err != nil {
		c.metricInc(MetricOTPVerifyFailure)
		if errors.Is(err, ErrCodeExpired) {
			c.metricInc(MetricOTPExpired)
		}
		c.emitAudit(ctx, auditEventOTPFailure, false, c.pendingAccountID, c.pendingIdentifier, err, nil)
		if errors.Is(err, ErrCodeAttemptsExceeded) {
			c.resetToPasswordLocked()
		}
		return nil, err
	}

	sess, err := c.idp.SignIn(ctx, c.pendingIdentifier, c.pendingPassword)
	if err != nil {
		// The second factor cleared but the terminal sign-in failed; nothing
		// to do but abandon the flow without a dangling hold.
		c.emitAudit(ctx, auditEventLoginFailure, false, c.pendingAccountID, c.pendingIdentifier, err, func() map[string]string {
			return map[string]string{"reason": "post_otp_signin"}
		})
		c.resetToPasswordLocked()
		c.metricInc(MetricLoginFailure)
		if errors.Is(err, ErrEmailUnconfirmed) {
			return nil, ErrEmailUnconfirmed
		}
		return nil, ErrInvalidCredentials
	}

	accountID, identifier := c.pendingAccountID, c.pendingIdentifier
	c.otp.Discard()
	c.pendingAccountID = ""
	c.pendingIdentifier = ""
	c.pendingPassword = ""
	c.setMode(ModePassword)
	c.gate.Release()
	c.session = sess

	c.metricInc(MetricLoginSuccess)
	c.metricInc(MetricSessionEstablished)
	c.emitAudit(ctx, auditEventLoginSuccess, true, accountID, identifier, nil, nil)
	return sess, nil
}

// BeginCodeLogin switches from password entry to passwordless code login.
// Any typed password is dropped.
func (c *Controller) BeginCodeLogin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModePassword {
		return ErrInvalidTransition
	}
	c.pendingPassword = ""
	c.setMode(ModeOTPRequest)
	return nil
}

// SubmitCodeLoginEmail requests a login-purpose code for identifier and
// advances to ModeOTPVerify. No account id is known yet; the server resolves
// the identifier on its side.
func (c *Controller) SubmitCodeLoginEmail(ctx context.Context, identifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModeOTPRequest {
		return ErrInvalidTransition
	}

	if _, err := c.otp.Request(ctx, identifier, PurposeLogin, ""); err != nil {
		c.metricInc(MetricOTPDeliveryFailure)
		c.emitAudit(ctx, auditEventOTPIssued, false, "", identifier, err, nil)
		return err
	}

	c.pendingIdentifier = identifier
	c.setMode(ModeOTPVerify)

	c.metricInc(MetricOTPIssued)
	c.emitAudit(ctx, auditEventOTPIssued, true, "", identifier, nil, func() map[string]string {
		return map[string]string{"purpose": string(PurposeLogin)}
	})
	return nil
}

// SubmitCodeLoginCode completes passwordless login: a verified code returns a
// one-time magic link, redeemed at the identity provider for a session. No
// password step exists here and no gate is held; the session is the intended
// terminal outcome.
func (c *Controller) SubmitCodeLoginCode(ctx context.Context, code string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModeOTPVerify {
		return nil, ErrInvalidTransition
	}

	res, err := c.otp.Verify(ctx, code)
	if err != nil {
		c.metricInc(MetricOTPVerifyFailure)
		if errors.Is(err, ErrCodeExpired) {
			c.metricInc(MetricOTPExpired)
		}
		c.emitAudit(ctx, auditEventOTPFailure, false, "", c.pendingIdentifier, err, nil)
		if errors.Is(err, ErrCodeAttemptsExceeded) {
			c.resetToPasswordLocked()
		}
		return nil, err
	}
	if res.MagicLink == "" {
		c.emitAudit(ctx, auditEventLoginFailure, false, "", c.pendingIdentifier, ErrServiceUnavailable, func() map[string]string {
			return map[string]string{"reason": "missing_magic_link"}
		})
		return nil, ErrServiceUnavailable
	}

	sess, err := c.idp.ExchangeMagicLink(ctx, res.MagicLink)
	if err != nil {
		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", c.pendingIdentifier, err, func() map[string]string {
			return map[string]string{"reason": "magic_link_exchange"}
		})
		return nil, ErrServiceUnavailable
	}

	identifier := c.pendingIdentifier
	c.otp.Discard()
	c.pendingIdentifier = ""
	c.setMode(ModePassword)
	c.session = sess

	c.metricInc(MetricLoginSuccess)
	c.metricInc(MetricSessionEstablished)
	c.emitAudit(ctx, auditEventLoginSuccess, true, sess.AccountID, identifier, nil, func() map[string]string {
		return map[string]string{"method": "code_login"}
	})
	return sess, nil
}
