package portalauth

import (
	"io"

	"github.com/hwlegacy/portalauth/identity"
	internalaudit "github.com/hwlegacy/portalauth/internal/audit"
	internalmetrics "github.com/hwlegacy/portalauth/internal/metrics"
)

// State is a point-in-time copy of the session store. Initializing reports
// whether a cycle is in flight; it is never persisted and can not be set.
type State struct {
	User         *identity.User
	Session      *identity.Session
	IsAdmin      bool
	Initialized  bool
	Initializing bool
}

// Authenticated reports whether the state holds a resolved user and session.
func (s State) Authenticated() bool {
	return s.User != nil && s.Session != nil
}

// Phase derives the authentication phase of s.
func (s State) Phase() Phase {
	switch {
	case s.Initializing || !s.Initialized:
		return PhaseInitializing
	case s.User == nil:
		return PhaseAnonymous
	case s.IsAdmin:
		return PhaseAuthenticatedAdmin
	default:
		return PhaseAuthenticatedUser
	}
}

// Phase is the externally visible state machine of the store.
type Phase uint8

const (
	PhaseAnonymous Phase = iota
	PhaseInitializing
	PhaseAuthenticatedUser
	PhaseAuthenticatedAdmin
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticatedUser:
		return "authenticated"
	case PhaseAuthenticatedAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Navigator is the routing surface used for the post-authentication
// redirect.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// AuditEvent is one audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.Discard

// ChannelSink forwards audit events to a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON line per audit event.
type JSONWriterSink = internalaudit.JSONLinesSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONLinesSink(w)
}

// MetricID identifies an engine metric.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of engine metrics.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricInitializeCycle         = internalmetrics.MetricInitializeCycle
	MetricInitializeShortCircuit  = internalmetrics.MetricInitializeShortCircuit
	MetricInitializeCoalesced     = internalmetrics.MetricInitializeCoalesced
	MetricInitializeAnonymous     = internalmetrics.MetricInitializeAnonymous
	MetricInitializeUserMissing   = internalmetrics.MetricInitializeUserMissing
	MetricInitializeAuthenticated = internalmetrics.MetricInitializeAuthenticated
	MetricInitializeAdmin         = internalmetrics.MetricInitializeAdmin
	MetricInitializeRecovered     = internalmetrics.MetricInitializeRecovered
	MetricRoleLookupFailure       = internalmetrics.MetricRoleLookupFailure
	MetricAuthEvent               = internalmetrics.MetricAuthEvent
	MetricRedirect                = internalmetrics.MetricRedirect
	MetricSignInSuccess           = internalmetrics.MetricSignInSuccess
	MetricSignInFailure           = internalmetrics.MetricSignInFailure
	MetricSignUpSuccess           = internalmetrics.MetricSignUpSuccess
	MetricSignUpFailure           = internalmetrics.MetricSignUpFailure
	MetricSignOut                 = internalmetrics.MetricSignOut
	MetricSignOutFailure          = internalmetrics.MetricSignOutFailure
	MetricRehydrate               = internalmetrics.MetricRehydrate
	MetricPersistWrite            = internalmetrics.MetricPersistWrite
	MetricInitializeLatency       = internalmetrics.MetricInitializeLatency
)
