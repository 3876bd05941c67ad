package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/northpay/authflow"
)

var (
	// ErrNilMeter is an exported constant or variable used by the metrics exporter.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is an exported constant or variable used by the metrics exporter.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   authflow.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{authflow.MetricLoginSuccess, "authflow_login_success_total", "Completed two-factor logins."},
	{authflow.MetricLoginFailure, "authflow_login_failure_total", "Rejected password submissions."},
	{authflow.MetricOTPRequired, "authflow_otp_required_total", "Password verifications that advanced to the code step."},
	{authflow.MetricOTPIssued, "authflow_otp_issued_total", "Codes issued across all purposes."},
	{authflow.MetricOTPVerifyFailure, "authflow_otp_verify_failure_total", "Rejected code submissions."},
	{authflow.MetricOTPExpired, "authflow_otp_expired_total", "Code submissions rejected for expiry."},
	{authflow.MetricOTPDeliveryFailure, "authflow_otp_delivery_failure_total", "Code issuances that failed delivery."},
	{authflow.MetricOTPResend, "authflow_otp_resend_total", "Replacement codes issued."},
	{authflow.MetricOTPResendThrottled, "authflow_otp_resend_throttled_total", "Resend requests rejected by the local threshold."},
	{authflow.MetricGateSuppressed, "authflow_gate_suppressed_total", "Session notifications suppressed by the session gate."},
	{authflow.MetricSessionEstablished, "authflow_session_established_total", "Sessions surfaced to the authenticated callback."},
	{authflow.MetricFlowCancelled, "authflow_flow_cancelled_total", "Flows cancelled back to the password mode."},
	{authflow.MetricResetRequest, "authflow_reset_request_total", "Password reset codes requested."},
	{authflow.MetricResetSuccess, "authflow_reset_success_total", "Password resets committed."},
	{authflow.MetricResetFailure, "authflow_reset_failure_total", "Password resets rejected."},
}

type observedCounter struct {
	id         authflow.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter defines a public type used by the metrics exporter APIs.
// Exporter instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers the controller's counters on meter.
func NewExporter(meter metric.Meter, controller *authflow.Controller) (*Exporter, error) {
	return NewExporterFromSource(meter, controller)
}

// NewExporterFromSource describes the new exporter from source operation and its observable behavior.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(counterDefs)),
	}

	observables := make([]metric.Observable, 0, len(counterDefs)+1)
	for _, def := range counterDefs {
		ins, err := meter.Int64ObservableCounter(def.name, metric.WithDescription(def.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.id, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"authflow_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close describes the close operation and its observable behavior.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
