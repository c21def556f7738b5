// Package otel publishes portalauth engine metrics through an
// OpenTelemetry meter supplied by the caller.
//
// Counters become Int64ObservableCounter instruments. The latency histogram
// is exposed as one cumulative gauge per bucket plus a count gauge, all
// observed from a single snapshot per collection.
package otel
