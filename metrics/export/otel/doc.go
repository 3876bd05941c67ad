// Package otel bridges controller counters into OpenTelemetry as observable
// instruments. Registration is pull-based: counters are read from a snapshot
// inside the meter callback, so the hot path never touches the exporter.
package otel
