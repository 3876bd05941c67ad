package authflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Builder wires a [Controller] from its collaborators. Construction is
// allocation-only until Build; no I/O happens before the first controller
// method call.
type Builder struct {
	config Config

	idp    IdentityProvider
	otp    OTPService
	status AccountStatusStore

	logger          zerolog.Logger
	auditSink       AuditSink
	clock           func() time.Time
	onAuthenticated func(*Session)

	built bool
}

// New describes the new operation and its observable behavior.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithIdentityProvider describes the withidentityprovider operation and its observable behavior.
func (b *Builder) WithIdentityProvider(idp IdentityProvider) *Builder {
	b.idp = idp
	return b
}

// WithOTPService describes the withotpservice operation and its observable behavior.
func (b *Builder) WithOTPService(svc OTPService) *Builder {
	b.otp = svc
	return b
}

// WithStatusStore describes the withstatusstore operation and its observable behavior.
func (b *Builder) WithStatusStore(store AccountStatusStore) *Builder {
	b.status = store
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock injects the time source used for countdowns and expiry checks.
// Tests use it to simulate the passage of time.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithAuthenticatedFunc registers the navigation callback invoked when a
// session is established outside a gated window.
func (b *Builder) WithAuthenticatedFunc(fn func(*Session)) *Builder {
	b.onAuthenticated = fn
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the controller, and subscribes it
// to the identity provider's session-change notifications.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.idp == nil {
		return nil, fmt.Errorf("%w: identity provider is required", ErrControllerNotReady)
	}
	if b.otp == nil {
		return nil, fmt.Errorf("%w: otp service is required", ErrControllerNotReady)
	}
	if b.status == nil {
		return nil, fmt.Errorf("%w: account status store is required", ErrControllerNotReady)
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		config: b.config,
		idp:    b.idp,
		verifier: credentialVerifier{
			idp:    b.idp,
			status: b.status,
		},
		otp: otpLifecycle{
			service:      b.otp,
			digits:       b.config.OTP.Digits,
			resendWindow: b.config.OTP.ResendWindow,
			now:          now,
		},
		audit:           newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:         NewMetrics(b.config.Metrics),
		logger:          b.logger,
		now:             now,
		onAuthenticated: b.onAuthenticated,
	}
	c.setMode(ModePassword)
	c.unsubscribe = b.idp.OnSessionChange(c.HandleSessionChange)

	b.built = true
	return c, nil
}
