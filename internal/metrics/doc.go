// Package metrics counts session lifecycle outcomes in process.
//
// Every counter is an atomic slot indexed by MetricID, and the one latency
// histogram has eight fixed buckets from 5ms to +Inf. Recording never
// allocates or locks. Exporters in metrics/export read Snapshot values.
package metrics
