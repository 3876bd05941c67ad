package authflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Controller is the top-level authentication state machine. It owns the
// current [AuthMode], the [SessionGate] and the outstanding [Challenge], and
// drives transitions between password entry, OTP verification, passwordless
// code login and the three-step password reset sequence.
//
// The controller is the single writer of all flow state. Collaborators return
// results; only controller methods transition modes or touch the gate. The
// provider's session-change handler reads the gate and the mode from atomics,
// never through the mutex, so its decision cannot be deferred behind an
// in-flight flow.
type Controller struct {
	config   Config
	idp      IdentityProvider
	verifier credentialVerifier
	otp      otpLifecycle
	gate     SessionGate
	audit    *auditDispatcher
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time

	mode atomic.Uint32

	mu                sync.Mutex
	pendingAccountID  string
	pendingIdentifier string
	pendingPassword   string
	resetCode         string
	session           *Session

	onAuthenticated func(*Session)
	unsubscribe     func()
	closeOnce       sync.Once
}

// Mode returns the active [AuthMode]. Readable from any goroutine.
func (c *Controller) Mode() AuthMode {
	return AuthMode(c.mode.Load())
}

// setMode is called only with c.mu held.
func (c *Controller) setMode(m AuthMode) {
	c.mode.Store(uint32(m))
}

// Close unsubscribes from provider notifications and drains the audit
// dispatcher.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		if c.audit != nil {
			c.audit.Close()
		}
	})
}

// HandleSessionChange is the identity provider notification handler,
// registered at Build time. It runs on the provider's goroutine and can fire
// before, during or after the mode transition triggered by the same logical
// action; the gate makes the effective ordering deterministic. The brief
// window between the transition into ModePasswordOTPVerify and a gate hold is
// covered by treating that mode as an equivalent hold.
func (c *Controller) HandleSessionChange(sess *Session) {
	if sess == nil {
		// Sign-out notifications never redirect anywhere.
		return
	}
	if c.gate.Held() || c.Mode() == ModePasswordOTPVerify {
		c.metricInc(MetricGateSuppressed)
		c.emitAudit(context.Background(), auditEventGateSuppressed, true, sess.AccountID, sess.Identifier, nil, nil)
		c.logger.Debug().Str("account_id", sess.AccountID).Msg("session notification suppressed by gate")
		return
	}

	c.mu.Lock()
	c.session = sess
	fn := c.onAuthenticated
	c.mu.Unlock()

	c.metricInc(MetricSessionEstablished)
	if fn != nil {
		fn(sess)
	}
}

// Bootstrap performs the point-in-time session read done once at mount to
// decide an initial redirect. A session is reported only from ModePassword:
// any in-flight challenge means the redirect decision belongs to the flow.
func (c *Controller) Bootstrap(ctx context.Context) (*Session, error) {
	if c.Mode() != ModePassword || c.gate.Held() {
		return nil, nil
	}
	sess, err := c.idp.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return sess, nil
}

// CurrentSession returns the most recently established session, or nil.
func (c *Controller) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Challenge returns the outstanding code challenge, or nil.
func (c *Controller) Challenge() *Challenge {
	return c.otp.Current()
}

// Remaining recomputes the countdown for the outstanding challenge.
func (c *Controller) Remaining() time.Duration {
	return c.otp.Remaining()
}

// ResendAllowed reports whether a replacement code may be requested now.
func (c *Controller) ResendAllowed() bool {
	return c.otp.ResendAllowed()
}

// Resend re-issues the outstanding challenge for the same account. Valid in
// every OTP sub-flow; throttled until fewer than the resend window remain.
func (c *Controller) Resend(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.Mode() {
	case ModePasswordOTPVerify, ModeOTPVerify, ModeForgotPasswordOTP:
	default:
		return ErrInvalidTransition
	}

	ch, err := c.otp.Resend(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrResendThrottled):
			c.metricInc(MetricOTPResendThrottled)
		case errors.Is(err, ErrDeliveryFailed):
			c.metricInc(MetricOTPDeliveryFailure)
		}
		c.emitAudit(ctx, auditEventOTPResend, false, c.pendingAccountID, c.pendingIdentifier, err, nil)
		return err
	}

	c.metricInc(MetricOTPResend)
	c.emitAudit(ctx, auditEventOTPResend, true, ch.AccountID, ch.Identifier, nil, func() map[string]string {
		return map[string]string{"purpose": string(ch.Purpose)}
	})
	return nil
}

// Cancel aborts any OTP sub-flow: releases the gate if held, discards the
// in-memory challenge and reset fields, and returns the mode to ModePassword.
// The server-side code simply expires naturally.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode := c.Mode()
	if mode == ModePassword {
		return
	}
	c.resetToPasswordLocked()
	c.metricInc(MetricFlowCancelled)
	c.emitAudit(context.Background(), auditEventFlowCancelled, true, "", "", nil, func() map[string]string {
		return map[string]string{"from_mode": mode.String()}
	})
}

// resetToPasswordLocked clears all flow state. Called only with c.mu held.
func (c *Controller) resetToPasswordLocked() {
	if c.Mode() == ModePasswordOTPVerify {
		c.gate.Release()
	}
	c.otp.Discard()
	c.pendingAccountID = ""
	c.pendingIdentifier = ""
	c.pendingPassword = ""
	c.resetCode = ""
	c.setMode(ModePassword)
}

// RunCountdown drives the 1-second countdown tick until ctx is cancelled.
// Ticks are idempotent and side-effect-free beyond recomputing the remaining
// time; a tick arriving after the challenge was verified or cancelled reports
// nothing.
func (c *Controller) RunCountdown(ctx context.Context, onTick func(remaining time.Duration, resendAllowed bool)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.otp.Current() == nil {
				continue
			}
			if onTick != nil {
				onTick(c.otp.Remaining(), c.otp.ResendAllowed())
			}
		}
	}
}

func (c *Controller) metricInc(id MetricID) {
	c.metrics.Inc(id)
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events dropped under backpressure.
func (c *Controller) AuditDropped() uint64 {
	return c.audit.Dropped()
}

func (c *Controller) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	identifier string,
	cause error,
	metadata func() map[string]string,
) {
	if c.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  c.now(),
		EventType:  eventType,
		AccountID:  accountID,
		Identifier: identifier,
		Mode:       c.Mode().String(),
		Success:    success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}
	c.audit.Emit(ctx, event)
}
