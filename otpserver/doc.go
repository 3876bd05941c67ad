// Package otpserver is the reference implementation of the OTP
// delivery/verification collaborator: purpose-scoped code issuance with
// superseding semantics, attempt-capped verification, magic-link minting for
// passwordless login, and the code-bound password reset operation.
//
// Codes are stored hashed, keyed by (identifier, purpose): issuing a new code
// for a pair invalidates any prior unconsumed code for that pair only. Two
// store drivers are provided, Redis and in-memory.
package otpserver
