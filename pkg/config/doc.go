// Package config loads ssohub configuration from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	SSOHUB_HOST="0.0.0.0"
//	SSOHUB_PORT="8080"
//	SSOHUB_HEALTH_PORT="9090"
//	SSOHUB_ISSUER="https://sso.example.com"
//
// Single logout:
//
//	SSOHUB_SLO_DISABLED="false"
//	SSOHUB_SLO_MAX_WORKERS="8"
//	SSOHUB_SLO_REQUEST_TIMEOUT="5s"
//	SSOHUB_SLO_ASYNC="false"
//	SSOHUB_SAML_SIGNING_KEY="/etc/ssohub/saml.key"
//	SSOHUB_SAML_SIGNING_CERT="/etc/ssohub/saml.crt"
//	SSOHUB_OIDC_SIGNING_KEY="/etc/ssohub/oidc.key"
//
// Session registry:
//
//	SSOHUB_REGISTRY_TYPE="redis"  # memory, redis
//	SSOHUB_REDIS_URL="redis://localhost:6379/0"
//	SSOHUB_REAPER_SCHEDULE="@every 1m"
//
// Relying parties:
//
//	SSOHUB_SERVICES_SOURCE="file"  # file, postgres
//	SSOHUB_SERVICES_FILE="services.yaml"
//	SSOHUB_POSTGRES_URL="postgres://localhost/ssohub"
//	SSOHUB_SERVICES_CACHE_TTL="5m"
//
// Events and audit:
//
//	SSOHUB_WEBHOOK_URLS="https://hooks.example.com/slo"
//	SSOHUB_WEBHOOK_SECRET="..."
//	SSOHUB_AUDIT_ENABLED="true"
//
// Observability:
//
//	SSOHUB_LOG_LEVEL="info"  # debug, info, warn, error
//	SSOHUB_METRICS_ENABLED="true"
//	SSOHUB_OTEL_ENABLED="true"
//	SSOHUB_OTEL_ENDPOINT="otel-collector:4317"
package config
