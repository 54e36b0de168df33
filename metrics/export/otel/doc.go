// Package otel publishes session counters through an OpenTelemetry
// metric.Meter using observable instruments.
//
// The caller owns the MeterProvider and its readers; [Exporter.Close] only
// unregisters the collection callback.
package otel
