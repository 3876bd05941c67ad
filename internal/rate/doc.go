// Package rate implements the fixed-window Redis counter used to throttle
// code issuance per (identifier, purpose).
package rate
