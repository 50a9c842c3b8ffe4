// Package otel mirrors goFeedback client metrics into OpenTelemetry instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per client counter
// and one Int64ObservableGauge per latency bucket. A single callback reads
// [goFeedback.Client.MetricsSnapshot] on each collection.
//
// The caller owns the MeterProvider.
package otel
