// Package authflow implements the challenge-gated authentication state machine
// used by the back office login screens: password + emailed one-time passcode,
// passwordless code login, and the OTP-gated password reset pipeline.
//
// The package is the client-visible orchestration layer. It owns the current
// [AuthMode], the in-memory [Challenge], and the [SessionGate] that suppresses
// the identity provider's asynchronous session-established notifications while
// a multi-step challenge is in flight. Credential verification, code issuance
// and session handling are delegated to injected collaborators
// ([IdentityProvider], [OTPService], [AccountStatusStore]); reference
// implementations live in the identity and otpserver subpackages.
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Controller], [Builder], [Config],
// the collaborator interfaces, and value types (Challenge, Session,
// MetricsSnapshot). The controller is the single writer of AuthMode and the
// gate; collaborators return results and never mutate flow state.
//
// # What this package must NOT do
//
//   - Persist the Challenge or AuthMode anywhere. Both are in-memory only; an
//     interrupted flow restarts from ModePassword.
//   - Hold a live session as a side effect of password checking. A session may
//     exist only after the second factor clears (or via magic-link exchange).
//   - Duplicate server-side policy client-side: attempt counters, purpose
//     binding and code validity are authoritative on the OTP service.
package authflow
