package authflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubmitPasswordAdvancesToOTPVerify(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}
	rig.idp.Flush()

	if got := rig.controller.Mode(); got != ModePasswordOTPVerify {
		t.Fatalf("expected ModePasswordOTPVerify, got %v", got)
	}
	if rig.otp.lastRequest.purpose != PurposeLogin {
		t.Fatalf("expected login-purpose issuance, got %q", rig.otp.lastRequest.purpose)
	}
	if rig.otp.lastRequest.accountID != "acct-1" {
		t.Fatalf("expected issuance bound to account, got %q", rig.otp.lastRequest.accountID)
	}

	// The side-effect session from the credential check must not leak.
	if rig.controller.CurrentSession() != nil {
		t.Fatal("no session may survive the password step")
	}
	if got := rig.authenticatedCount(); got != 0 {
		t.Fatalf("expected 0 authenticated callbacks mid-flow, got %d", got)
	}
}

func TestSubmitPasswordEmptyInputFastFails(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	for _, pair := range [][2]string{{"", "pw"}, {"user@site.com", ""}, {"", ""}} {
		if err := rig.controller.SubmitPassword(ctx, pair[0], pair[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials for %q/%q, got %v", pair[0], pair[1], err)
		}
	}
	if rig.idp.signInCalls != 0 {
		t.Fatalf("empty input must not reach the provider, got %d calls", rig.idp.signInCalls)
	}
	if rig.controller.gate.Held() {
		t.Fatal("gate must not dangle after a fast fail")
	}
}

func TestSubmitPasswordWrongCredential(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	err := rig.controller.SubmitPassword(ctx, "nobody@site.com", "hunter22")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("mode must stay at ModePassword, got %v", got)
	}
	if rig.controller.gate.Held() {
		t.Fatal("gate must not dangle after a failed credential check")
	}
}

func TestSubmitPasswordBlockedAccountShortCircuits(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.status.statuses["acct-1"] = AccountStatus{Blocked: true, BlockedReason: "fraud review"}

	err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22")
	if !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}
	rig.idp.Flush()

	if rig.otp.requestCalls != 0 {
		t.Fatal("no code may be issued for a blocked account")
	}
	if got := rig.authenticatedCount(); got != 0 {
		t.Fatalf("blocked account must never surface a session, got %d callbacks", got)
	}
	if rig.controller.gate.Held() {
		t.Fatal("gate must not dangle after blocked short-circuit")
	}

	sess, err := rig.idp.GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess != nil {
		t.Fatal("side-effect session must be torn down for blocked accounts")
	}
}

func TestSubmitPasswordDeletedAccount(t *testing.T) {
	rig := newTestRig(t)
	rig.status.statuses["acct-1"] = AccountStatus{VerificationStatus: VerificationDeleted}

	err := rig.controller.SubmitPassword(context.Background(), "user@site.com", "hunter22")
	if !errors.Is(err, ErrAccountDeleted) {
		t.Fatalf("expected ErrAccountDeleted, got %v", err)
	}
	if rig.otp.requestCalls != 0 {
		t.Fatal("no code may be issued for a deleted account")
	}
}

func TestSubmitPasswordDeliveryFailureStaysAtPassword(t *testing.T) {
	rig := newTestRig(t)
	rig.otp.requestErr = ErrDeliveryFailed

	err := rig.controller.SubmitPassword(context.Background(), "user@site.com", "hunter22")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("mode must stay at ModePassword on delivery failure, got %v", got)
	}
	if rig.controller.gate.Held() {
		t.Fatal("gate must not dangle after delivery failure")
	}
	if rig.controller.Challenge() != nil {
		t.Fatal("no challenge may be recorded on delivery failure")
	}
}

func TestTwoStepLoginEndToEnd(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	sess, err := rig.controller.SubmitLoginCode(ctx, "123456")
	if err != nil {
		t.Fatalf("SubmitLoginCode failed: %v", err)
	}
	rig.idp.Flush()

	if sess == nil || sess.AccountID != "acct-1" {
		t.Fatalf("expected established session for acct-1, got %+v", sess)
	}
	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("mode must return to ModePassword before navigation, got %v", got)
	}
	if rig.controller.gate.Held() {
		t.Fatal("gate must be released after login completes")
	}
	if rig.controller.Challenge() != nil {
		t.Fatal("challenge must be discarded after success")
	}
	if rig.otp.lastVerify.purpose != PurposeLogin {
		t.Fatalf("verification must carry the login purpose, got %q", rig.otp.lastVerify.purpose)
	}
	if rig.idp.signInCalls != 2 {
		t.Fatalf("expected verify + terminal sign-in (2 calls), got %d", rig.idp.signInCalls)
	}

	snap := rig.controller.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
}

func TestSubmitLoginCodeInvalidKeepsMode(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	rig.otp.mu.Lock()
	rig.otp.verifyErr = ErrCodeInvalid
	rig.otp.mu.Unlock()

	if _, err := rig.controller.SubmitLoginCode(ctx, "654321"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if got := rig.controller.Mode(); got != ModePasswordOTPVerify {
		t.Fatalf("failed code must keep the verify mode, got %v", got)
	}
	if !rig.controller.gate.Held() {
		t.Fatal("gate must stay held while the flow continues")
	}
}

func TestSubmitLoginCodeAttemptsExceededResets(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	rig.otp.mu.Lock()
	rig.otp.verifyErr = ErrCodeAttemptsExceeded
	rig.otp.mu.Unlock()

	if _, err := rig.controller.SubmitLoginCode(ctx, "654321"); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected ErrCodeAttemptsExceeded, got %v", err)
	}
	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("exceeded attempts must reset to ModePassword, got %v", got)
	}
	if rig.controller.gate.Held() {
		t.Fatal("gate must not dangle after attempt exhaustion")
	}
	if rig.controller.Challenge() != nil {
		t.Fatal("challenge must be discarded after attempt exhaustion")
	}
}

func TestSubmitLoginCodeMalformedSkipsServer(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	if _, err := rig.controller.SubmitLoginCode(ctx, "1234"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for 4-digit code, got %v", err)
	}
	if rig.otp.verifyCalls != 0 {
		t.Fatalf("malformed code must not reach the server, got %d calls", rig.otp.verifyCalls)
	}
	if got := rig.controller.Mode(); got != ModePasswordOTPVerify {
		t.Fatalf("malformed code must keep the verify mode, got %v", got)
	}
}

func TestSessionNotificationSuppressedDuringOTPVerify(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	// A stray provider notification landing mid-flow must be swallowed.
	rig.controller.HandleSessionChange(&Session{AccountID: "acct-1", Identifier: "user@site.com"})
	if got := rig.authenticatedCount(); got != 0 {
		t.Fatalf("expected suppression during OTP verify, got %d callbacks", got)
	}

	snap := rig.controller.MetricsSnapshot()
	if snap.Counters[MetricGateSuppressed] == 0 {
		t.Fatal("expected gate suppression to be counted")
	}
}

func TestCancelFromOTPVerify(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	rig.controller.Cancel()
	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("cancel must return to ModePassword, got %v", got)
	}
	if rig.controller.gate.Held() {
		t.Fatal("cancel must release the gate")
	}
	if rig.controller.Challenge() != nil {
		t.Fatal("cancel must discard the challenge")
	}

	// Cancel from ModePassword is a no-op.
	rig.controller.Cancel()
	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("unexpected mode after idle cancel: %v", got)
	}
}

func TestCodeLoginFlow(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.idp.magicSessions["link-1"] = &Session{AccountID: "acct-1", Identifier: "user@site.com", Token: "tok-magic"}
	rig.otp.verifyRes = VerifyResult{Valid: true, MagicLink: "link-1"}

	if err := rig.controller.BeginCodeLogin(); err != nil {
		t.Fatalf("BeginCodeLogin failed: %v", err)
	}
	if got := rig.controller.Mode(); got != ModeOTPRequest {
		t.Fatalf("expected ModeOTPRequest, got %v", got)
	}

	if err := rig.controller.SubmitCodeLoginEmail(ctx, "user@site.com"); err != nil {
		t.Fatalf("SubmitCodeLoginEmail failed: %v", err)
	}
	if got := rig.controller.Mode(); got != ModeOTPVerify {
		t.Fatalf("expected ModeOTPVerify, got %v", got)
	}
	if rig.otp.lastRequest.accountID != "" {
		t.Fatalf("code login issuance must carry no account id, got %q", rig.otp.lastRequest.accountID)
	}

	sess, err := rig.controller.SubmitCodeLoginCode(ctx, "123456")
	if err != nil {
		t.Fatalf("SubmitCodeLoginCode failed: %v", err)
	}
	if sess.AccountID != "acct-1" {
		t.Fatalf("expected session for acct-1, got %+v", sess)
	}
	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("expected return to ModePassword, got %v", got)
	}
}

func TestCodeLoginMissingMagicLink(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.otp.verifyRes = VerifyResult{Valid: true}

	if err := rig.controller.BeginCodeLogin(); err != nil {
		t.Fatalf("BeginCodeLogin failed: %v", err)
	}
	if err := rig.controller.SubmitCodeLoginEmail(ctx, "user@site.com"); err != nil {
		t.Fatalf("SubmitCodeLoginEmail failed: %v", err)
	}

	if _, err := rig.controller.SubmitCodeLoginCode(ctx, "123456"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable without magic link, got %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.controller.SubmitLoginCode(ctx, "123456"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from ModePassword, got %v", err)
	}
	if err := rig.controller.SubmitCodeLoginEmail(ctx, "user@site.com"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition outside ModeOTPRequest, got %v", err)
	}
	if err := rig.controller.Resend(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for resend outside OTP modes, got %v", err)
	}
	if err := rig.controller.SubmitResetCode(ctx, "123456"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition outside ModeForgotPasswordOTP, got %v", err)
	}
}

func TestBootstrapReportsExistingSession(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.idp.session = &Session{AccountID: "acct-1", Identifier: "user@site.com"}

	sess, err := rig.controller.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if sess == nil || sess.AccountID != "acct-1" {
		t.Fatalf("expected bootstrap session, got %+v", sess)
	}
}

func TestBootstrapIgnoredMidFlow(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.idp.session = &Session{AccountID: "acct-1", Identifier: "user@site.com"}

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	sess, err := rig.controller.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if sess != nil {
		t.Fatal("bootstrap must report nothing while a flow is in flight")
	}
}

func TestResendInOTPVerify(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	if err := rig.controller.Resend(ctx); !errors.Is(err, ErrResendThrottled) {
		t.Fatalf("expected throttled resend right after issuance, got %v", err)
	}

	rig.clock.Advance(DefaultCodeTTL - DefaultResendWindow + time.Second)
	if err := rig.controller.Resend(ctx); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if rig.otp.requestCalls != 2 {
		t.Fatalf("expected 2 issuance calls after resend, got %d", rig.otp.requestCalls)
	}
	if got := rig.controller.Remaining(); got != DefaultCodeTTL {
		t.Fatalf("resend must restart the countdown, got %v", got)
	}
}

func TestResendMetricsByFailureKind(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if err := rig.controller.SubmitPassword(ctx, "user@site.com", "hunter22"); err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}

	if err := rig.controller.Resend(ctx); !errors.Is(err, ErrResendThrottled) {
		t.Fatalf("expected throttled resend right after issuance, got %v", err)
	}

	rig.clock.Advance(DefaultCodeTTL - DefaultResendWindow + time.Second)
	rig.otp.requestErr = ErrDeliveryFailed
	if err := rig.controller.Resend(ctx); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}

	snap := rig.controller.MetricsSnapshot()
	if snap.Counters[MetricOTPResendThrottled] != 1 {
		t.Fatalf("expected 1 throttled resend, got %d", snap.Counters[MetricOTPResendThrottled])
	}
	if snap.Counters[MetricOTPDeliveryFailure] != 1 {
		t.Fatalf("expected 1 delivery failure, got %d", snap.Counters[MetricOTPDeliveryFailure])
	}
}
