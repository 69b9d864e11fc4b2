// Package otel exposes adminauth engine metrics through an OpenTelemetry
// Meter.
//
// Each counter becomes an Int64ObservableCounter and the latency histogram
// becomes one Int64ObservableGauge per cumulative bucket plus a count. A
// single callback reads [adminauth.Engine.MetricsSnapshot] per collection.
package otel
