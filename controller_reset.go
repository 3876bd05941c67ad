package authflow

import (
	"context"
	"errors"
)

// BeginForgotPassword enters the password-reset sequence from ModePassword.
// No session exists yet, so the gate is never involved in this flow.
func (c *Controller) BeginForgotPassword() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModePassword {
		return ErrInvalidTransition
	}
	c.pendingPassword = ""
	c.setMode(ModeForgotPassword)
	return nil
}

// SubmitForgotEmail requests a reset-purpose code for identifier and advances
// to ModeForgotPasswordOTP.
func (c *Controller) SubmitForgotEmail(ctx context.Context, identifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModeForgotPassword {
		return ErrInvalidTransition
	}

	if _, err := c.otp.Request(ctx, identifier, PurposePasswordReset, ""); err != nil {
		c.metricInc(MetricOTPDeliveryFailure)
		c.emitAudit(ctx, auditEventResetRequest, false, "", identifier, err, nil)
		return err
	}

	c.pendingIdentifier = identifier
	c.setMode(ModeForgotPasswordOTP)

	c.metricInc(MetricResetRequest)
	c.emitAudit(ctx, auditEventResetRequest, true, "", identifier, nil, nil)
	return nil
}

// SubmitResetCode verifies the reset-purpose code. The verified code is
// retained and submitted again by the reset call itself: the server performs
// its own authoritative check of (identifier, code, purpose); the client
// never treats a verified-in-memory code as sufficient.
func (c *Controller) SubmitResetCode(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModeForgotPasswordOTP {
		return ErrInvalidTransition
	}

	if _, err := c.otp.Verify(ctx, code); err != nil {
		c.metricInc(MetricOTPVerifyFailure)
		if errors.Is(err, ErrCodeExpired) {
			c.metricInc(MetricOTPExpired)
		}
		c.emitAudit(ctx, auditEventOTPFailure, false, "", c.pendingIdentifier, err, nil)
		if errors.Is(err, ErrCodeAttemptsExceeded) {
			c.resetToPasswordLocked()
		}
		return err
	}

	// Challenge deliberately kept: the reset operation is bound to this code.
	c.resetCode = code
	c.setMode(ModeResetPassword)
	return nil
}

// SubmitNewPassword completes the reset. Matching and minimum-length checks
// are advisory fast-fails; the server is the source of truth for code
// validity and purpose binding. Success clears all reset fields and returns
// to ModePassword.
func (c *Controller) SubmitNewPassword(ctx context.Context, newPassword, confirmPassword string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != ModeResetPassword {
		return ErrInvalidTransition
	}
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if len(newPassword) < c.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	ch := c.otp.Current()
	if ch == nil || c.resetCode == "" {
		return ErrNoChallenge
	}

	if err := c.otp.service.ResetPassword(ctx, ch.Identifier, c.resetCode, newPassword); err != nil {
		c.metricInc(MetricResetFailure)
		c.emitAudit(ctx, auditEventResetConfirm, false, "", ch.Identifier, err, nil)
		switch {
		case errors.Is(err, ErrResetInvalid), errors.Is(err, ErrPasswordPolicy):
			return err
		default:
			return ErrServiceUnavailable
		}
	}

	identifier := ch.Identifier
	c.otp.Discard()
	c.resetCode = ""
	c.pendingIdentifier = ""
	c.setMode(ModePassword)

	c.metricInc(MetricResetSuccess)
	c.emitAudit(ctx, auditEventResetConfirm, true, "", identifier, nil, nil)
	return nil
}
