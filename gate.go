package authflow

import "sync/atomic"

// SessionGate suppresses the identity provider's asynchronous
// session-established notifications while a multi-step challenge is in
// flight. The provider's callback can fire at any point relative to the flow
// that is trying to suppress it, so the gate must be readable synchronously
// from the notification goroutine; it is an atomic depth counter, never state
// derived from the controller's mutex-guarded fields.
//
// The gate is reentrant: nested holds stack, and the gate reads as held until
// every hold is released. Release below zero is a no-op rather than a panic;
// a dangling or double release is a programming defect asserted against in
// tests, not a recoverable runtime state.
type SessionGate struct {
	depth atomic.Int32
}

// Hold marks the start of a protected window.
func (g *SessionGate) Hold() {
	g.depth.Add(1)
}

// Release ends one protected window. Releasing an unheld gate is a no-op.
func (g *SessionGate) Release() {
	for {
		d := g.depth.Load()
		if d <= 0 {
			return
		}
		if g.depth.CompareAndSwap(d, d-1) {
			return
		}
	}
}

// Held reports whether any protected window is open. Safe to call from any
// goroutine, including the provider's notification callback.
func (g *SessionGate) Held() bool {
	return g.depth.Load() > 0
}

// WithHeld runs fn with the gate held and releases it on return, including
// panics.
func (g *SessionGate) WithHeld(fn func() error) error {
	g.Hold()
	defer g.Release()
	return fn()
}
