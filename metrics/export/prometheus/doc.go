// Package prometheus renders portalauth engine metrics in the Prometheus
// text exposition format.
//
// Counter names are prefixed portalauth_ and end in _total. The single
// histogram is portalauth_initialize_latency_seconds. Nothing is registered
// globally; callers mount [Exporter.Handler] wherever they serve metrics.
package prometheus
