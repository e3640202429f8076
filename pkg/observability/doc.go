// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing for ssohub.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("session_id", id).Info("single logout complete")
//
// Loggers travel on the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	ctx = observability.WithSessionID(ctx, id)
//	observability.FromContext(ctx).Warn("delivery failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.SLORequestsTotal.WithLabelValues("BACK_CHANNEL", "SUCCESS").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		Register("registry", true, observability.RedisCheck(redisClient)).
//		Register("directory", true, observability.DatabaseCheck(db))
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # Graceful Shutdown
//
// Steps run in registration order under one deadline:
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second)
//	sm.Register("http server", srv.Shutdown)
//	sm.Register("redis", func(context.Context) error { return client.Close() })
//	err := sm.WaitForShutdown(ctx)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//	ctx, span := observability.StartSpan(ctx, "slo.execute")
//	defer span.End()
package observability
