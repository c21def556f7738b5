package portalauth

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "zero timeout",
			mutate:    func(c *Config) { c.Initialize.Timeout = 0 },
			wantValid: false,
		},
		{
			name:      "unknown role policy",
			mutate:    func(c *Config) { c.Initialize.RoleFailurePolicy = 7 },
			wantValid: false,
		},
		{
			name:      "clear role policy",
			mutate:    func(c *Config) { c.Initialize.RoleFailurePolicy = RoleFailureClear },
			wantValid: true,
		},
		{
			name:      "no auth paths",
			mutate:    func(c *Config) { c.Redirect.AuthPaths = nil },
			wantValid: false,
		},
		{
			name:      "relative auth path",
			mutate:    func(c *Config) { c.Redirect.AuthPaths = []string{"login"} },
			wantValid: false,
		},
		{
			name:      "relative admin path",
			mutate:    func(c *Config) { c.Redirect.AdminPath = "admin" },
			wantValid: false,
		},
		{
			name:      "blank persistence key",
			mutate:    func(c *Config) { c.Persistence.Key = " " },
			wantValid: false,
		},
		{
			name: "blank key with persistence disabled",
			mutate: func(c *Config) {
				c.Persistence.Enabled = false
				c.Persistence.Key = ""
			},
			wantValid: true,
		},
		{
			name:      "zero event buffer",
			mutate:    func(c *Config) { c.Events.Buffer = 0 },
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "latency without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected invalid config")
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PORTALAUTH_INITIALIZE_TIMEOUT", "3s")
	t.Setenv("PORTALAUTH_INITIALIZE_ROLE_FAILURE_POLICY", "clear")
	t.Setenv("PORTALAUTH_REDIRECT_AUTH_PATHS", "/login,/signup")
	t.Setenv("PORTALAUTH_REDIRECT_ADMIN_PATH", "/backoffice")
	t.Setenv("PORTALAUTH_PERSISTENCE_KEY", "portal-store")
	t.Setenv("PORTALAUTH_AUDIT_ENABLED", "true")

	cfg, err := ConfigFromEnv("")
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}
	if cfg.Initialize.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v", cfg.Initialize.Timeout)
	}
	if cfg.Initialize.RoleFailurePolicy != RoleFailureClear {
		t.Fatalf("policy = %s", cfg.Initialize.RoleFailurePolicy)
	}
	if len(cfg.Redirect.AuthPaths) != 2 || cfg.Redirect.AuthPaths[1] != "/signup" {
		t.Fatalf("auth paths = %v", cfg.Redirect.AuthPaths)
	}
	if cfg.Redirect.AdminPath != "/backoffice" || cfg.Redirect.InvestorPath != "/dashboard" {
		t.Fatalf("redirect = %+v", cfg.Redirect)
	}
	if cfg.Persistence.Key != "portal-store" || !cfg.Persistence.Enabled {
		t.Fatalf("persistence = %+v", cfg.Persistence)
	}
	if !cfg.Audit.Enabled || cfg.Audit.BufferSize != 256 {
		t.Fatalf("audit = %+v", cfg.Audit)
	}
}

func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("PORTALAUTH_INITIALIZE_ROLE_FAILURE_POLICY", "explode")
	if _, err := ConfigFromEnv(""); err == nil {
		t.Fatal("expected error for unknown role policy")
	}
}

func TestConfigFromEnvValidates(t *testing.T) {
	t.Setenv("APP_EVENTS_BUFFER", "0")
	if _, err := ConfigFromEnv("APP"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCloneConfigCopiesAuthPaths(t *testing.T) {
	cfg := defaultConfig()
	clone := cloneConfig(cfg)
	clone.Redirect.AuthPaths[0] = "/changed"
	if cfg.Redirect.AuthPaths[0] != "/login" {
		t.Fatal("cloneConfig must not share AuthPaths")
	}
}
