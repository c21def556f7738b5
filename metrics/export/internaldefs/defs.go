package internaldefs

import (
	"github.com/hwlegacy/portalauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

const AuditDroppedName = "portalauth_audit_dropped_total"

const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

var CounterDefs = []CounterDef{
	{ID: portalauth.MetricInitializeCycle, Name: "portalauth_initialize_cycles_total", Help: "Initialization cycles started."},
	{ID: portalauth.MetricInitializeShortCircuit, Name: "portalauth_initialize_short_circuit_total", Help: "Initialize calls answered from an already authenticated store."},
	{ID: portalauth.MetricInitializeCoalesced, Name: "portalauth_initialize_coalesced_total", Help: "Initialize calls that joined a cycle in flight."},
	{ID: portalauth.MetricInitializeAnonymous, Name: "portalauth_initialize_anonymous_total", Help: "Cycles that resolved to the signed-out state."},
	{ID: portalauth.MetricInitializeUserMissing, Name: "portalauth_initialize_user_missing_total", Help: "Cycles with a session but no resolvable user."},
	{ID: portalauth.MetricInitializeAuthenticated, Name: "portalauth_initialize_authenticated_total", Help: "Cycles that resolved a non-admin user."},
	{ID: portalauth.MetricInitializeAdmin, Name: "portalauth_initialize_admin_total", Help: "Cycles that resolved an administrator."},
	{ID: portalauth.MetricInitializeRecovered, Name: "portalauth_initialize_recovered_total", Help: "Cycles recovered from a panic."},
	{ID: portalauth.MetricRoleLookupFailure, Name: "portalauth_role_lookup_failure_total", Help: "Failed role lookups."},
	{ID: portalauth.MetricAuthEvent, Name: "portalauth_auth_events_total", Help: "Identity provider change notifications handled."},
	{ID: portalauth.MetricRedirect, Name: "portalauth_redirect_total", Help: "Post-authentication redirects fired."},
	{ID: portalauth.MetricSignInSuccess, Name: "portalauth_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: portalauth.MetricSignInFailure, Name: "portalauth_sign_in_failure_total", Help: "Failed sign-ins."},
	{ID: portalauth.MetricSignUpSuccess, Name: "portalauth_sign_up_success_total", Help: "Successful registrations."},
	{ID: portalauth.MetricSignUpFailure, Name: "portalauth_sign_up_failure_total", Help: "Failed registrations."},
	{ID: portalauth.MetricSignOut, Name: "portalauth_sign_out_total", Help: "Successful sign-outs."},
	{ID: portalauth.MetricSignOutFailure, Name: "portalauth_sign_out_failure_total", Help: "Failed sign-outs."},
	{ID: portalauth.MetricRehydrate, Name: "portalauth_rehydrate_total", Help: "Stores rehydrated from durable storage."},
	{ID: portalauth.MetricPersistWrite, Name: "portalauth_persist_writes_total", Help: "Writes of the persisted store state."},
}

var HistogramDefs = []HistogramDef{
	{ID: portalauth.MetricInitializeLatency, Name: "portalauth_initialize_latency_seconds", Help: "Initialization cycle latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight latency
// buckets.
var HistogramBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix renders HistogramBounds for instrument names.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// CumulativeBuckets converts raw per-bucket counts (shorter inputs are zero
// padded) into cumulative counts.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
