package portalauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full engine configuration. Start from defaultConfig (via
// New) or ConfigFromEnv and override fields before Build.
type Config struct {
	Initialize  InitializeConfig  `envconfig:"INITIALIZE"`
	Redirect    RedirectConfig    `envconfig:"REDIRECT"`
	Persistence PersistenceConfig `envconfig:"PERSISTENCE"`
	Events      EventsConfig      `envconfig:"EVENTS"`
	Audit       AuditConfig       `envconfig:"AUDIT"`
	Metrics     MetricsConfig     `envconfig:"METRICS"`
}

/*
====================================
INITIALIZE CONFIG
====================================
*/

// RoleFailurePolicy decides the terminal state of an initialization cycle
// whose role lookup failed.
type RoleFailurePolicy int

const (
	// RoleFailureDegrade publishes the resolved user and session as a
	// non-admin.
	RoleFailureDegrade RoleFailurePolicy = iota
	// RoleFailureClear publishes the anonymous state.
	RoleFailureClear
)

func (p RoleFailurePolicy) String() string {
	switch p {
	case RoleFailureDegrade:
		return "degrade"
	case RoleFailureClear:
		return "clear"
	default:
		return fmt.Sprintf("RoleFailurePolicy(%d)", int(p))
	}
}

// UnmarshalText accepts "degrade" or "clear".
func (p *RoleFailurePolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "degrade", "":
		*p = RoleFailureDegrade
	case "clear":
		*p = RoleFailureClear
	default:
		return fmt.Errorf("unknown role failure policy %q", string(text))
	}
	return nil
}

// InitializeConfig bounds a single initialization cycle. Timeout applies to
// the detached cycle, not to callers waiting on it.
type InitializeConfig struct {
	Timeout           time.Duration     `envconfig:"TIMEOUT"`
	RoleFailurePolicy RoleFailurePolicy `envconfig:"ROLE_FAILURE_POLICY"`
}

/*
====================================
REDIRECT CONFIG
====================================
*/

// RedirectConfig drives the one-shot post-authentication redirect.
type RedirectConfig struct {
	AuthPaths    []string `envconfig:"AUTH_PATHS"`
	AdminPath    string   `envconfig:"ADMIN_PATH"`
	InvestorPath string   `envconfig:"INVESTOR_PATH"`
	LoginPath    string   `envconfig:"LOGIN_PATH"`
}

/*
====================================
PERSISTENCE CONFIG
====================================
*/

// PersistenceConfig names the durable storage key of the session store.
type PersistenceConfig struct {
	Enabled bool   `envconfig:"ENABLED"`
	Key     string `envconfig:"KEY"`
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig sizes the provider subscription used by the coordinator.
type EventsConfig struct {
	Buffer int `envconfig:"BUFFER"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `envconfig:"ENABLED"`
	BufferSize int  `envconfig:"BUFFER_SIZE"`
	DropIfFull bool `envconfig:"DROP_IF_FULL"`
}

// MetricsConfig toggles in-process counters and the initialize latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool `envconfig:"ENABLED"`
	EnableLatencyHistograms bool `envconfig:"ENABLE_LATENCY_HISTOGRAMS"`
}

const (
	// DefaultStorageKey is the persisted session store key.
	DefaultStorageKey = "auth-store"
	// DefaultEnvPrefix is used by ConfigFromEnv when prefix is empty.
	DefaultEnvPrefix = "PORTALAUTH"
)

func defaultConfig() Config {
	return Config{
		Initialize: InitializeConfig{
			Timeout:           10 * time.Second,
			RoleFailurePolicy: RoleFailureDegrade,
		},
		Redirect: RedirectConfig{
			AuthPaths:    []string{"/login", "/register"},
			AdminPath:    "/admin",
			InvestorPath: "/dashboard",
			LoginPath:    "/login",
		},
		Persistence: PersistenceConfig{
			Enabled: true,
			Key:     DefaultStorageKey,
		},
		Events: EventsConfig{
			Buffer: 16,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return defaultConfig()
}

// ConfigFromEnv returns the default configuration overridden by environment
// variables under prefix (DefaultEnvPrefix when empty), for example
// PORTALAUTH_INITIALIZE_TIMEOUT=5s or PORTALAUTH_REDIRECT_AUTH_PATHS=/login,/signup.
func ConfigFromEnv(prefix string) (Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	cfg := defaultConfig()
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("portalauth: config from environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Redirect.AuthPaths = append([]string(nil), cfg.Redirect.AuthPaths...)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Initialize.Timeout <= 0 {
		return errors.New("Initialize Timeout must be > 0")
	}
	if c.Initialize.RoleFailurePolicy != RoleFailureDegrade && c.Initialize.RoleFailurePolicy != RoleFailureClear {
		return errors.New("Initialize RoleFailurePolicy is unknown")
	}

	if len(c.Redirect.AuthPaths) == 0 {
		return errors.New("Redirect AuthPaths must not be empty")
	}
	for _, p := range c.Redirect.AuthPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Redirect AuthPaths entry %q must start with /", p)
		}
	}
	for name, p := range map[string]string{
		"AdminPath":    c.Redirect.AdminPath,
		"InvestorPath": c.Redirect.InvestorPath,
		"LoginPath":    c.Redirect.LoginPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Redirect %s must start with /", name)
		}
	}

	if c.Persistence.Enabled && strings.TrimSpace(c.Persistence.Key) == "" {
		return errors.New("Persistence Key must be set when persistence is enabled")
	}

	if c.Events.Buffer <= 0 {
		return errors.New("Events Buffer must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
