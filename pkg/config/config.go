package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/services"
	"github.com/platinummonkey/ssohub/pkg/tickets"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	SLO           SLOConfig
	Registry      RegistryConfig
	Services      ServicesConfig
	Events        EventsConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Issuer is the server's public URL, used as SAML issuer and OIDC iss
	Issuer string
}

// SLOConfig holds single logout settings
type SLOConfig struct {
	Disabled       bool
	MaxWorkers     int
	RequestTimeout time.Duration
	Async          bool
	UserAgent      string

	// PEM files. Without a SAML key logout requests are unsigned; without
	// an OIDC key the OIDC dispatcher is not registered.
	SAMLSigningKeyFile  string
	SAMLSigningCertFile string
	OIDCSigningKeyFile  string
	OIDCKeyID           string
}

// RegistryConfig selects the session registry
type RegistryConfig struct {
	Type  string // memory or redis
	Redis tickets.RedisConfig

	ReaperSchedule string
	ReaperWorkers  int
}

// ServicesConfig selects the relying party directory
type ServicesConfig struct {
	Source      string // file or postgres
	File        string
	Watch       bool
	PostgresURL string
	Cache       services.CacheConfig
}

// EventsConfig configures session termination webhooks
type EventsConfig struct {
	WebhookURLs      []string
	WebhookSecret    string
	WebhookTimeout   time.Duration
	RetryInterval    time.Duration
	RetryMaxAttempts int
}

// AuditConfig configures the logout audit trail
type AuditConfig struct {
	Enabled       bool
	PostgresURL   string
	RetentionDays int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		SLO:           loadSLOConfig(),
		Registry:      loadRegistryConfig(),
		Services:      loadServicesConfig(),
		Events:        loadEventsConfig(),
		Observability: loadObservabilityConfig(),
	}
	cfg.Audit = loadAuditConfig(cfg.Services.PostgresURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SSOHUB_HOST", "0.0.0.0"),
		Port:            getEnv("SSOHUB_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SSOHUB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SSOHUB_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("SSOHUB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SSOHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SSOHUB_HEALTH_PORT", "9090"),
		Issuer:          getEnv("SSOHUB_ISSUER", "http://localhost:8080"),
	}
}

func loadSLOConfig() SLOConfig {
	return SLOConfig{
		Disabled:            getEnvBool("SSOHUB_SLO_DISABLED", false),
		MaxWorkers:          getEnvInt("SSOHUB_SLO_MAX_WORKERS", 8),
		RequestTimeout:      getEnvDuration("SSOHUB_SLO_REQUEST_TIMEOUT", 5*time.Second),
		Async:               getEnvBool("SSOHUB_SLO_ASYNC", false),
		UserAgent:           getEnv("SSOHUB_SLO_USER_AGENT", "ssohub-slo/1.0"),
		SAMLSigningKeyFile:  getEnv("SSOHUB_SAML_SIGNING_KEY", ""),
		SAMLSigningCertFile: getEnv("SSOHUB_SAML_SIGNING_CERT", ""),
		OIDCSigningKeyFile:  getEnv("SSOHUB_OIDC_SIGNING_KEY", ""),
		OIDCKeyID:           getEnv("SSOHUB_OIDC_KEY_ID", ""),
	}
}

func loadRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Type: strings.ToLower(getEnv("SSOHUB_REGISTRY_TYPE", "memory")),
		Redis: tickets.RedisConfig{
			URL:        getEnv("SSOHUB_REDIS_URL", "redis://localhost:6379/0"),
			Password:   getEnv("SSOHUB_REDIS_PASSWORD", ""),
			DB:         getEnvInt("SSOHUB_REDIS_DB", 0),
			PoolSize:   getEnvInt("SSOHUB_REDIS_POOL_SIZE", 10),
			MaxRetries: getEnvInt("SSOHUB_REDIS_MAX_RETRIES", 3),
			KeyPrefix:  getEnv("SSOHUB_REDIS_KEY_PREFIX", "ssohub:"),
			Grace:      getEnvDuration("SSOHUB_REDIS_GRACE", 10*time.Minute),
		},
		ReaperSchedule: getEnv("SSOHUB_REAPER_SCHEDULE", "@every 1m"),
		ReaperWorkers:  getEnvInt("SSOHUB_REAPER_WORKERS", 4),
	}
}

func loadServicesConfig() ServicesConfig {
	cache := services.DefaultCacheConfig()
	if size := getEnvInt("SSOHUB_SERVICES_CACHE_SIZE", 0); size > 0 {
		cache.Size = size
	}
	if ttl := getEnvDuration("SSOHUB_SERVICES_CACHE_TTL", 0); ttl > 0 {
		cache.TTL = ttl
	}
	return ServicesConfig{
		Source:      strings.ToLower(getEnv("SSOHUB_SERVICES_SOURCE", "file")),
		File:        getEnv("SSOHUB_SERVICES_FILE", "services.yaml"),
		Watch:       getEnvBool("SSOHUB_SERVICES_WATCH", true),
		PostgresURL: getEnv("SSOHUB_POSTGRES_URL", ""),
		Cache:       cache,
	}
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		WebhookURLs:      getEnvList("SSOHUB_WEBHOOK_URLS"),
		WebhookSecret:    getEnv("SSOHUB_WEBHOOK_SECRET", ""),
		WebhookTimeout:   getEnvDuration("SSOHUB_WEBHOOK_TIMEOUT", 10*time.Second),
		RetryInterval:    getEnvDuration("SSOHUB_WEBHOOK_RETRY_INTERVAL", 30*time.Second),
		RetryMaxAttempts: getEnvInt("SSOHUB_WEBHOOK_MAX_ATTEMPTS", 5),
	}
}

func loadAuditConfig(servicesPostgresURL string) AuditConfig {
	return AuditConfig{
		Enabled:       getEnvBool("SSOHUB_AUDIT_ENABLED", false),
		PostgresURL:   getEnv("SSOHUB_AUDIT_POSTGRES_URL", servicesPostgresURL),
		RetentionDays: getEnvInt("SSOHUB_AUDIT_RETENTION_DAYS", 90),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("SSOHUB_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SSOHUB_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SSOHUB_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SSOHUB_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SSOHUB_OTEL_SERVICE_NAME", "ssohub"),
		OTelServiceVersion: getEnv("SSOHUB_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SSOHUB_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("SSOHUB_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.SLO.MaxWorkers <= 0 {
		return fmt.Errorf("SLO max workers must be positive")
	}
	if c.SLO.RequestTimeout <= 0 {
		return fmt.Errorf("SLO request timeout must be positive")
	}
	if (c.SLO.SAMLSigningKeyFile == "") != (c.SLO.SAMLSigningCertFile == "") {
		return fmt.Errorf("SAML signing key and certificate must be set together")
	}

	switch c.Registry.Type {
	case "memory":
	case "redis":
		if c.Registry.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for redis registry")
		}
	default:
		return fmt.Errorf("invalid registry type: %s (must be memory or redis)", c.Registry.Type)
	}

	switch c.Services.Source {
	case "file":
		if c.Services.File == "" {
			return fmt.Errorf("services file is required for file source")
		}
	case "postgres":
		if c.Services.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres service source")
		}
	default:
		return fmt.Errorf("invalid services source: %s (must be file or postgres)", c.Services.Source)
	}

	if c.Audit.Enabled && c.Audit.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required when audit is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
