package authflow

import "sync/atomic"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant or variable used by the authentication flow.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the authentication flow.
	MetricLoginFailure
	// MetricOTPRequired is an exported constant or variable used by the authentication flow.
	MetricOTPRequired
	// MetricOTPIssued is an exported constant or variable used by the authentication flow.
	MetricOTPIssued
	// MetricOTPVerifyFailure is an exported constant or variable used by the authentication flow.
	MetricOTPVerifyFailure
	// MetricOTPExpired is an exported constant or variable used by the authentication flow.
	MetricOTPExpired
	// MetricOTPDeliveryFailure is an exported constant or variable used by the authentication flow.
	MetricOTPDeliveryFailure
	// MetricOTPResend is an exported constant or variable used by the authentication flow.
	MetricOTPResend
	// MetricOTPResendThrottled is an exported constant or variable used by the authentication flow.
	MetricOTPResendThrottled
	// MetricGateSuppressed is an exported constant or variable used by the authentication flow.
	MetricGateSuppressed
	// MetricSessionEstablished is an exported constant or variable used by the authentication flow.
	MetricSessionEstablished
	// MetricFlowCancelled is an exported constant or variable used by the authentication flow.
	MetricFlowCancelled
	// MetricResetRequest is an exported constant or variable used by the authentication flow.
	MetricResetRequest
	// MetricResetSuccess is an exported constant or variable used by the authentication flow.
	MetricResetSuccess
	// MetricResetFailure is an exported constant or variable used by the authentication flow.
	MetricResetFailure

	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters for the flow. When disabled, all operations
// are no-ops.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

// Enabled describes the enabled operation and its observable behavior.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc describes the inc operation and its observable behavior.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value describes the value operation and its observable behavior.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricIDCount),
	}
	if m == nil {
		return snapshot
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snapshot.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snapshot
}
