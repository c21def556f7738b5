package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram slot.
type MetricID uint16

const (
	MetricInitializeCycle MetricID = iota
	MetricInitializeShortCircuit
	MetricInitializeCoalesced
	MetricInitializeAnonymous
	MetricInitializeUserMissing
	MetricInitializeAuthenticated
	MetricInitializeAdmin
	MetricInitializeRecovered
	MetricRoleLookupFailure
	MetricAuthEvent
	MetricRedirect
	MetricSignInSuccess
	MetricSignInFailure
	MetricSignUpSuccess
	MetricSignUpFailure
	MetricSignOut
	MetricSignOutFailure
	MetricRehydrate
	MetricPersistWrite
	MetricInitializeLatency
	MetricIDCount
)

// LatencyBounds are the inclusive upper bounds of the first seven latency
// buckets; the eighth takes everything slower.
var LatencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const bucketCount = len(LatencyBounds) + 1

// Config toggles collection. EnableLatency has no effect without Enabled.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	enabled bool
	latency bool
	counts  [MetricIDCount]atomic.Uint64
	buckets [bucketCount]atomic.Uint64
}

// Snapshot copies counter values and raw (non-cumulative) bucket counts.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled, latency: cfg.Enabled && cfg.EnableLatency}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= MetricInitializeLatency {
		return
	}
	m.counts[id].Add(1)
}

// Observe records one initialization cycle duration. Other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricInitializeLatency {
		return
	}
	m.buckets[bucketFor(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricInitializeLatency {
		return 0
	}
	return m.counts[id].Load()
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	if !m.Enabled() {
		return snap
	}
	for id := MetricID(0); id < MetricInitializeLatency; id++ {
		snap.Counters[id] = m.counts[id].Load()
	}
	if m.latency {
		raw := make([]uint64, bucketCount)
		for i := range raw {
			raw[i] = m.buckets[i].Load()
		}
		snap.Histograms[MetricInitializeLatency] = raw
	}
	return snap
}

func bucketFor(d time.Duration) int {
	for i, bound := range LatencyBounds {
		if d <= bound {
			return i
		}
	}
	return bucketCount - 1
}
