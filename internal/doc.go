// Package internal holds shared helpers that must not leak into the public
// API: code generation, hashing, and the issuance rate limiter.
package internal
