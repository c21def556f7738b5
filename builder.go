package portalauth

import (
	"errors"

	"github.com/hwlegacy/portalauth/identity"
	internalaudit "github.com/hwlegacy/portalauth/internal/audit"
	internalmetrics "github.com/hwlegacy/portalauth/internal/metrics"
	"github.com/hwlegacy/portalauth/roles"
	"github.com/hwlegacy/portalauth/storage"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config

	provider  identity.Provider
	roles     roles.Lookup
	backend   storage.Backend
	guarded   *storage.Guarded
	navigator Navigator
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithProvider sets the identity provider. Required.
func (b *Builder) WithProvider(p identity.Provider) *Builder {
	b.provider = p
	return b
}

// WithRoles sets the role lookup. Without one every user is a non-admin.
func (b *Builder) WithRoles(lookup roles.Lookup) *Builder {
	b.roles = lookup
	return b
}

// WithStorage sets the durable backend. It is probed once at Build time.
func (b *Builder) WithStorage(backend storage.Backend) *Builder {
	b.backend = backend
	b.guarded = nil
	return b
}

// WithGuardedStorage shares an already probed backend, for example with
// the local identity provider.
func (b *Builder) WithGuardedStorage(g *storage.Guarded) *Builder {
	b.guarded = g
	b.backend = nil
	return b
}

// WithNavigator sets the routing surface for the post-authentication
// redirect.
func (b *Builder) WithNavigator(nav Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink also enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, probes storage, rehydrates the store
// and returns an Engine that has not started consuming provider events.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}

	guarded := b.guarded
	if guarded == nil && cfg.Persistence.Enabled {
		guarded = storage.Guard(b.backend)
	}

	m := internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		EnableLatency: cfg.Metrics.EnableLatencyHistograms,
	})
	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	tel := telemetry{metrics: m, audit: dispatcher}

	store := newStore(cfg, b.provider, b.roles, guarded, tel)
	coordinator := newCoordinator(cfg, store, b.provider, b.navigator, tel)

	b.built = true
	return &Engine{
		config:      cfg,
		provider:    b.provider,
		store:       store,
		coordinator: coordinator,
		audit:       dispatcher,
		metrics:     m,
		tel:         tel,
	}, nil
}
