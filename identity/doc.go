// Package identity is an in-process identity provider backing the
// authentication flow: argon2id credential checks, JWT session tokens,
// session change fan-out, and one-time magic links for passwordless login.
//
// It implements the flow's IdentityProvider, AccountStatusStore and the otp
// service's MagicLinkMinter and CredentialStore, so a single Provider can
// serve a complete deployment. Production systems with an external identity
// backend supply their own implementations instead.
package identity
