package authflow

import (
	"context"
	"errors"
	"testing"
)

func startResetFlow(t *testing.T, rig *testRig) {
	t.Helper()
	ctx := context.Background()

	if err := rig.controller.BeginForgotPassword(); err != nil {
		t.Fatalf("BeginForgotPassword failed: %v", err)
	}
	if err := rig.controller.SubmitForgotEmail(ctx, "user@site.com"); err != nil {
		t.Fatalf("SubmitForgotEmail failed: %v", err)
	}
}

func TestResetFlowEndToEnd(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	startResetFlow(t, rig)
	if got := rig.controller.Mode(); got != ModeForgotPasswordOTP {
		t.Fatalf("expected ModeForgotPasswordOTP, got %v", got)
	}
	if rig.otp.lastRequest.purpose != PurposePasswordReset {
		t.Fatalf("expected reset-purpose issuance, got %q", rig.otp.lastRequest.purpose)
	}

	if err := rig.controller.SubmitResetCode(ctx, "123456"); err != nil {
		t.Fatalf("SubmitResetCode failed: %v", err)
	}
	if got := rig.controller.Mode(); got != ModeResetPassword {
		t.Fatalf("expected ModeResetPassword, got %v", got)
	}
	if rig.controller.Challenge() == nil {
		t.Fatal("challenge must survive reset-code verification")
	}

	if err := rig.controller.SubmitNewPassword(ctx, "new-password", "new-password"); err != nil {
		t.Fatalf("SubmitNewPassword failed: %v", err)
	}

	// The reset call re-submits the exact verified code for the server's own
	// authoritative check.
	if rig.otp.resetCalls != 1 {
		t.Fatalf("expected exactly 1 reset call, got %d", rig.otp.resetCalls)
	}
	if rig.otp.lastReset.identifier != "user@site.com" {
		t.Fatalf("reset must target the challenge identifier, got %q", rig.otp.lastReset.identifier)
	}
	if rig.otp.lastReset.code != "123456" {
		t.Fatalf("reset must carry the verified code, got %q", rig.otp.lastReset.code)
	}
	if rig.otp.lastReset.newPassword != "new-password" {
		t.Fatalf("reset must carry the new password, got %q", rig.otp.lastReset.newPassword)
	}

	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("expected return to ModePassword, got %v", got)
	}
	if rig.controller.Challenge() != nil {
		t.Fatal("challenge must be discarded after a successful reset")
	}
	if rig.controller.CurrentSession() != nil {
		t.Fatal("a password reset never establishes a session")
	}
}

func TestSubmitNewPasswordMismatch(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	startResetFlow(t, rig)
	if err := rig.controller.SubmitResetCode(ctx, "123456"); err != nil {
		t.Fatalf("SubmitResetCode failed: %v", err)
	}

	if err := rig.controller.SubmitNewPassword(ctx, "new-password", "other-password"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if rig.otp.resetCalls != 0 {
		t.Fatal("mismatched passwords must not reach the server")
	}
	if got := rig.controller.Mode(); got != ModeResetPassword {
		t.Fatalf("mismatch must keep ModeResetPassword, got %v", got)
	}
}

func TestSubmitNewPasswordTooShort(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	startResetFlow(t, rig)
	if err := rig.controller.SubmitResetCode(ctx, "123456"); err != nil {
		t.Fatalf("SubmitResetCode failed: %v", err)
	}

	if err := rig.controller.SubmitNewPassword(ctx, "short", "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if rig.otp.resetCalls != 0 {
		t.Fatal("short passwords must not reach the server")
	}
}

func TestSubmitNewPasswordServerRejection(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	startResetFlow(t, rig)
	if err := rig.controller.SubmitResetCode(ctx, "123456"); err != nil {
		t.Fatalf("SubmitResetCode failed: %v", err)
	}

	rig.otp.mu.Lock()
	rig.otp.resetErr = ErrResetInvalid
	rig.otp.mu.Unlock()

	if err := rig.controller.SubmitNewPassword(ctx, "new-password", "new-password"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid passthrough, got %v", err)
	}
	if got := rig.controller.Mode(); got != ModeResetPassword {
		t.Fatalf("server rejection must keep ModeResetPassword for retry, got %v", got)
	}
}

func TestSubmitResetCodeInvalid(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	startResetFlow(t, rig)

	rig.otp.mu.Lock()
	rig.otp.verifyErr = ErrCodeInvalid
	rig.otp.mu.Unlock()

	if err := rig.controller.SubmitResetCode(ctx, "654321"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if got := rig.controller.Mode(); got != ModeForgotPasswordOTP {
		t.Fatalf("invalid code must keep ModeForgotPasswordOTP, got %v", got)
	}
}

func TestResetFlowNeverTouchesGate(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	startResetFlow(t, rig)
	if rig.controller.gate.Held() {
		t.Fatal("reset flow must not hold the gate")
	}
	if err := rig.controller.SubmitResetCode(ctx, "123456"); err != nil {
		t.Fatalf("SubmitResetCode failed: %v", err)
	}
	if err := rig.controller.SubmitNewPassword(ctx, "new-password", "new-password"); err != nil {
		t.Fatalf("SubmitNewPassword failed: %v", err)
	}
	if rig.controller.gate.Held() {
		t.Fatal("reset flow must never leave the gate held")
	}
}

func TestCancelFromResetFlow(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	startResetFlow(t, rig)
	if err := rig.controller.SubmitResetCode(ctx, "123456"); err != nil {
		t.Fatalf("SubmitResetCode failed: %v", err)
	}

	rig.controller.Cancel()
	if got := rig.controller.Mode(); got != ModePassword {
		t.Fatalf("cancel must return to ModePassword, got %v", got)
	}

	// The retained reset code must not survive the cancel.
	if err := rig.controller.BeginForgotPassword(); err != nil {
		t.Fatalf("BeginForgotPassword failed: %v", err)
	}
	if err := rig.controller.SubmitForgotEmail(ctx, "user@site.com"); err != nil {
		t.Fatalf("SubmitForgotEmail failed: %v", err)
	}
	if err := rig.controller.SubmitResetCode(ctx, "222333"); err != nil {
		t.Fatalf("SubmitResetCode failed: %v", err)
	}
	if err := rig.controller.SubmitNewPassword(ctx, "new-password", "new-password"); err != nil {
		t.Fatalf("SubmitNewPassword failed: %v", err)
	}
	if rig.otp.lastReset.code != "222333" {
		t.Fatalf("reset must carry the second flow's code, got %q", rig.otp.lastReset.code)
	}
}
