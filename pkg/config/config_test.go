package config

import (
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/ssohub/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "SSOHUB_TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "SSOHUB_TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"TRUE", "TRUE", false, true},
		{"1", "1", false, true},
		{"false", "false", true, false},
		{"garbage", "yes please", true, false},
		{"unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SSOHUB_TEST_BOOL", tt.envValue)
			if got := getEnvBool("SSOHUB_TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvNumbers tests the numeric and duration helpers
func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("SSOHUB_TEST_INT", "42")
	t.Setenv("SSOHUB_TEST_BAD_INT", "forty-two")
	t.Setenv("SSOHUB_TEST_FLOAT", "0.25")
	t.Setenv("SSOHUB_TEST_DURATION", "90s")
	t.Setenv("SSOHUB_TEST_BAD_DURATION", "soon")

	if got := getEnvInt("SSOHUB_TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("SSOHUB_TEST_BAD_INT", 1); got != 1 {
		t.Errorf("getEnvInt() with invalid value = %d, want default 1", got)
	}
	if got := getEnvFloat("SSOHUB_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
	if got := getEnvDuration("SSOHUB_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("SSOHUB_TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() with invalid value = %v, want default", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("SSOHUB_TEST_LIST", " https://a.example.com/hook,, https://b.example.com/hook ")

	got := getEnvList("SSOHUB_TEST_LIST")
	if strings.Join(got, "|") != "https://a.example.com/hook|https://b.example.com/hook" {
		t.Errorf("getEnvList() = %v", got)
	}
	if got := getEnvList("SSOHUB_TEST_LIST_UNSET"); got != nil {
		t.Errorf("getEnvList() for unset = %v, want nil", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" || cfg.Server.HealthPort != "9090" {
		t.Errorf("unexpected ports %s/%s", cfg.Server.Port, cfg.Server.HealthPort)
	}
	if cfg.SLO.MaxWorkers != 8 {
		t.Errorf("SLO.MaxWorkers = %d, want 8", cfg.SLO.MaxWorkers)
	}
	if cfg.SLO.RequestTimeout != 5*time.Second {
		t.Errorf("SLO.RequestTimeout = %v, want 5s", cfg.SLO.RequestTimeout)
	}
	if cfg.Registry.Type != "memory" {
		t.Errorf("Registry.Type = %s, want memory", cfg.Registry.Type)
	}
	if cfg.Services.Source != "file" || !cfg.Services.Watch {
		t.Errorf("unexpected services config %+v", cfg.Services)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.Observability.LogLevel)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SSOHUB_SLO_DISABLED", "true")
	t.Setenv("SSOHUB_SLO_MAX_WORKERS", "32")
	t.Setenv("SSOHUB_REGISTRY_TYPE", "Redis")
	t.Setenv("SSOHUB_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("SSOHUB_SERVICES_SOURCE", "postgres")
	t.Setenv("SSOHUB_POSTGRES_URL", "postgres://db/ssohub")
	t.Setenv("SSOHUB_AUDIT_ENABLED", "true")
	t.Setenv("SSOHUB_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.SLO.Disabled || cfg.SLO.MaxWorkers != 32 {
		t.Errorf("unexpected SLO config %+v", cfg.SLO)
	}
	if cfg.Registry.Type != "redis" || cfg.Registry.Redis.URL != "redis://cache:6379/2" {
		t.Errorf("unexpected registry config %+v", cfg.Registry)
	}
	if cfg.Audit.PostgresURL != "postgres://db/ssohub" {
		t.Errorf("audit should default to the services database, got %q", cfg.Audit.PostgresURL)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			SLO:      SLOConfig{MaxWorkers: 4, RequestTimeout: time.Second},
			Registry: RegistryConfig{Type: "memory"},
			Services: ServicesConfig{Source: "file", File: "services.yaml"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"no workers", func(c *Config) { c.SLO.MaxWorkers = 0 }, "max workers"},
		{"no timeout", func(c *Config) { c.SLO.RequestTimeout = 0 }, "request timeout"},
		{"saml key without cert", func(c *Config) { c.SLO.SAMLSigningKeyFile = "key.pem" }, "set together"},
		{"unknown registry", func(c *Config) { c.Registry.Type = "etcd" }, "invalid registry type"},
		{"redis without url", func(c *Config) { c.Registry.Type = "redis" }, "redis URL"},
		{"postgres services without url", func(c *Config) { c.Services.Source = "postgres" }, "postgres URL"},
		{"unknown services source", func(c *Config) { c.Services.Source = "ldap" }, "invalid services source"},
		{"audit without db", func(c *Config) { c.Audit.Enabled = true }, "audit"},
		{"otel without endpoint", func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelServiceName = "x" }, "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
