package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/platinummonkey/ssohub/pkg/api"
	"github.com/platinummonkey/ssohub/pkg/audit"
	"github.com/platinummonkey/ssohub/pkg/config"
	"github.com/platinummonkey/ssohub/pkg/events"
	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/services"
	"github.com/platinummonkey/ssohub/pkg/tickets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ssohub serves the single logout API and sweeps expired sessions
func main() {
	logLevel := flag.String("log-level", getEnv("SSOHUB_LOG_LEVEL", "info"), "Bootstrap log level (debug, info, warn, error)")
	flag.Parse()

	boot := setupLogger(*logLevel)
	boot.Info("Starting ssohub")

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg, boot); err != nil {
		boot.Fatalf("ssohub stopped: %v", err)
	}
	boot.Info("ssohub stopped")
}

func run(cfg *config.Config, boot *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		// Tracing is optional; keep serving without it.
		boot.Warnf("OpenTelemetry disabled: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
	}

	registry, redisClient, err := setupRegistry(cfg.Registry, metrics)
	if err != nil {
		return err
	}
	boot.Infof("Session registry: %s", cfg.Registry.Type)

	var db *sql.DB
	if cfg.Services.Source == "postgres" {
		db, err = connectDatabase(cfg.Services.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
	}

	directory, err := setupDirectory(ctx, cfg.Services, db, logger, metrics)
	if err != nil {
		return err
	}
	boot.Infof("Service directory: %s", cfg.Services.Source)

	dispatchers, err := setupDispatchers(cfg, directory, logger, metrics)
	if err != nil {
		return err
	}

	publishers := events.MultiPublisher{events.LogPublisher{Logger: logger}}

	var webhooks *events.WebhookPublisher
	if len(cfg.Events.WebhookURLs) > 0 {
		webhooks, err = setupWebhooks(cfg.Events, logger, metrics)
		if err != nil {
			return err
		}
		go webhooks.RunRetries(ctx, cfg.Events.RetryInterval)
		publishers = append(publishers, webhooks)
		boot.Infof("Publishing session events to %d webhook(s)", len(cfg.Events.WebhookURLs))
	}

	var (
		recorder *audit.DBRecorder
		auditDB  *sql.DB
	)
	if cfg.Audit.Enabled {
		auditDB = db
		if auditDB == nil || cfg.Audit.PostgresURL != cfg.Services.PostgresURL {
			auditDB, err = connectDatabase(cfg.Audit.PostgresURL)
			if err != nil {
				return fmt.Errorf("failed to connect to audit database: %w", err)
			}
			defer auditDB.Close()
		}
		recorder, err = audit.NewDBRecorder(ctx, auditDB, logger)
		if err != nil {
			return err
		}
		publishers = append(publishers, recorder)
		boot.Info("Audit trail enabled")
	}

	orchestrator := logout.NewOrchestrator(registry, dispatchers, publishers, logger, metrics, logout.OrchestratorConfig{
		MaxWorkers: cfg.SLO.MaxWorkers,
		Disabled:   cfg.SLO.Disabled,
	})
	if cfg.SLO.Disabled {
		boot.Warn("Single logout is disabled; sessions are removed without notifying services")
	}

	reaper := tickets.NewReaper(registry, orchestrator.Terminate, logger, tickets.ReaperConfig{
		Schedule:    cfg.Registry.ReaperSchedule,
		Workers:     cfg.Registry.ReaperWorkers,
		TaskTimeout: cfg.SLO.RequestTimeout * 4,
	})
	reaperCron, err := reaper.Start(ctx)
	if err != nil {
		return err
	}
	boot.Infof("Expired session reaper schedule: %s", cfg.Registry.ReaperSchedule)

	var retentionCron *cron.Cron
	if recorder != nil && cfg.Audit.RetentionDays > 0 {
		retentionCron, err = scheduleRetention(ctx, recorder, cfg.Audit.RetentionDays, logger)
		if err != nil {
			return err
		}
	}

	server := api.NewServer(orchestrator, registry, logout.NewDefaultURLValidator(), logger, metrics)
	if recorder != nil {
		server.RegisterRoutes(audit.NewHandlers(recorder))
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion)
	if redisClient != nil {
		health.Register("registry", true, observability.RedisCheck(redisClient))
	}
	if db != nil {
		health.Register("directory", true, observability.DatabaseCheck(db))
	}
	if auditDB != nil && auditDB != db {
		health.Register("audit", false, observability.DatabaseCheck(auditDB))
	}
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", observability.MetricsHandler(promRegistry))
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("http server", httpServer.Shutdown)
	shutdown.Register("background jobs", func(ctx context.Context) error {
		cancel()
		stopCron(ctx, reaperCron)
		stopCron(ctx, retentionCron)
		if webhooks != nil {
			webhooks.Wait()
		}
		return nil
	})
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	go func() {
		boot.Infof("Health and metrics listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			boot.Errorf("Health server failed: %v", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		boot.Infof("ssohub listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- shutdown.WaitForShutdown(ctx) }()

	select {
	case err := <-serveErr:
		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stop()
		_ = shutdown.Shutdown(shutdownCtx)
		return fmt.Errorf("http server failed: %w", err)
	case err := <-waitErr:
		return err
	}
}

func setupRegistry(cfg config.RegistryConfig, metrics *observability.Metrics) (tickets.Registry, *redis.Client, error) {
	var (
		registry tickets.Registry
		client   *redis.Client
	)
	switch cfg.Type {
	case "redis":
		var err error
		client, err = tickets.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		registry = tickets.NewRedisRegistry(client, cfg.Redis)
	default:
		registry = tickets.NewMemoryRegistry()
	}
	if metrics != nil {
		registry = tickets.WithMetrics(registry, metrics)
	}
	return registry, client, nil
}

func setupDirectory(ctx context.Context, cfg config.ServicesConfig, db *sql.DB, logger *observability.Logger,
	metrics *observability.Metrics) (services.Directory, error) {
	switch cfg.Source {
	case "postgres":
		dir, err := services.NewSQLDirectory(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("failed to open service directory: %w", err)
		}
		return services.NewCachingDirectory(dir, cfg.Cache, metrics), nil
	default:
		dir, err := services.NewFileDirectory(cfg.File, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load service directory: %w", err)
		}
		cached := services.NewCachingDirectory(dir, cfg.Cache, metrics)
		if cfg.Watch {
			go func() {
				if err := dir.Watch(ctx, cached.Purge); err != nil {
					logger.WithError(err).Error("service directory watcher stopped")
				}
			}()
		}
		return cached, nil
	}
}

func setupWebhooks(cfg config.EventsConfig, logger *observability.Logger, metrics *observability.Metrics) (*events.WebhookPublisher, error) {
	retry := events.DefaultRetryConfig()
	if cfg.RetryMaxAttempts > 0 {
		retry.MaxAttempts = cfg.RetryMaxAttempts
	}
	publisher := events.NewWebhookPublisher(events.WebhookConfig{
		Timeout: cfg.WebhookTimeout,
		Retry:   retry,
	}, logger, metrics)

	for _, url := range cfg.WebhookURLs {
		if _, err := publisher.Subscribe(events.Subscriber{
			URL:    url,
			Events: []events.EventType{events.EventSessionTerminated},
			Secret: cfg.WebhookSecret,
			Active: true,
		}); err != nil {
			return nil, fmt.Errorf("invalid webhook %s: %w", url, err)
		}
	}
	return publisher, nil
}

func scheduleRetention(ctx context.Context, recorder *audit.DBRecorder, days int, logger *observability.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc("@daily", func() {
		defer observability.RecoverPanic(logger, "audit retention")
		deleted, err := recorder.Cleanup(ctx, audit.RetentionPolicy{RetentionDays: days})
		if err != nil {
			logger.WithError(err).Error("audit retention cleanup failed")
			return
		}
		logger.WithField("deleted", deleted).Info("audit retention cleanup complete")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule audit retention: %w", err)
	}
	c.Start()
	return c, nil
}

func stopCron(ctx context.Context, c *cron.Cron) {
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func connectDatabase(connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
