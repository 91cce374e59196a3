// Package main is the entry point for the regcycle workflow engine server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kaunda/regcycle/internal/activity"
	"github.com/kaunda/regcycle/internal/catalog"
	"github.com/kaunda/regcycle/internal/config"
	"github.com/kaunda/regcycle/internal/engine"
	"github.com/kaunda/regcycle/internal/escalation"
	"github.com/kaunda/regcycle/internal/observability"
	"github.com/kaunda/regcycle/internal/sla"
	"github.com/kaunda/regcycle/internal/transport"
	"github.com/kaunda/regcycle/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "regcycle-engine", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load and validate the activity catalog.
	loader := catalog.NewLoader()
	phases, err := loader.LoadAll(cfg.Catalog.Directories)
	if err != nil {
		metrics.RecordCatalogReload("failure")
		logger.Error("catalog loading failed", zap.Error(err))
		return 1
	}

	validator := catalog.NewValidator()
	verrs := validator.Validate(phases)
	if len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("catalog validation error", zap.String("error", ve.Error()))
		}
		metrics.RecordCatalogReload("failure")
		logger.Error("catalog validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := catalog.NewRegistry(phases)
	metrics.RecordCatalogReload("success")
	metrics.SetCatalogActivitiesLoaded(float64(countActivities(phases)))

	// Step 5: Initialize stores.
	activityStore, slaStore, eventStore, storeCloser, err := buildStores(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if storeCloser != nil {
		defer storeCloser()
	}

	// Step 6: Build the handler registry. Deployments with bespoke automated
	// work register phase-specific handlers here; the wildcard pair covers
	// the standard catalog kinds.
	handlers := buildHandlers(cfg.Retry, metrics)

	// Step 7: Build the transition engine and SLA tracker.
	tracker := sla.NewTracker(slaStore, cfg.SLA, logger)

	eng := engine.New(registry, activityStore, handlers, logger).WithMetrics(metrics)
	eng.AddListener(tracker)

	// Step 8: Build the escalation manager.
	roleResolver, err := escalation.NewStaticRoleResolver(cfg.Escalation.AudienceFile)
	if err != nil {
		logger.Error("audience file loading failed", zap.Error(err))
		return 1
	}

	var notifier model.Notifier
	if cfg.Escalation.Webhook.URL != "" {
		notifier = escalation.NewWebhookNotifier(cfg.Escalation.Webhook)
	} else {
		notifier = escalation.NewLogNotifier(logger)
	}

	manager := escalation.NewManager(tracker, eventStore, cfg.Escalation.Thresholds,
		roleResolver, notifier, logger).WithMetrics(metrics)

	// Step 9: Build HTTP router.
	var authenticate func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		authenticate, err = transport.JWTAuthenticator(cfg.Auth)
		if err != nil {
			logger.Error("authenticator initialization failed", zap.Error(err))
			return 1
		}
	}

	readiness := observability.ReadinessChecks{
		CatalogLoaded: func() bool { return len(registry.AllPhases()) > 0 },
	}
	if hc, ok := activityStore.(observability.HealthChecker); ok {
		readiness.ActivityStore = hc
	}
	if hc, ok := slaStore.(observability.HealthChecker); ok {
		readiness.SLAStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Engine:       eng,
		Tracker:      tracker,
		Escalation:   manager,
		Metrics:      metrics,
		Authenticate: authenticate,
		Readiness:    readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 10: Start the background breach sweep.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go runBreachSweep(bgCtx, manager, slaStore, metrics, cfg.SLA.SweepInterval, logger)

	// Step 11: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("phases", len(phases)),
		zap.String("store_driver", cfg.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel the background sweep.
	bgCancel()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// countActivities totals the activity definitions across all phases.
func countActivities(phases []model.PhaseDefinition) int {
	n := 0
	for _, p := range phases {
		n += len(p.Activities)
	}
	return n
}

// buildHandlers wires the default handler pair: manual activities wait for
// external completion, automated ones run a passthrough with the configured
// retry policy.
func buildHandlers(retryCfg config.RetryConfig, metrics *observability.Metrics) *engine.HandlerRegistry {
	handlers := engine.NewHandlerRegistry()
	retry := engine.RetryPolicy{
		MaxAttempts:       retryCfg.MaxAttempts,
		BackoffInitial:    retryCfg.BackoffInitial,
		BackoffMultiplier: retryCfg.BackoffMultiplier,
		BackoffMax:        retryCfg.BackoffMax,
	}

	passthrough := func(_ context.Context, _ model.ActivityDefinition, _ model.ActivityInstance) (map[string]any, error) {
		return nil, nil
	}

	manual := engine.NewManualHandler()
	handlers.Register(engine.WildcardPhase, model.ActivityKindStart,
		engine.NewAutomatedHandler(passthrough, retry, nil).WithMetrics(metrics))
	for _, kind := range []string{
		model.ActivityKindTask,
		model.ActivityKindReview,
		model.ActivityKindApproval,
		model.ActivityKindComplete,
	} {
		handlers.Register(engine.WildcardPhase, kind, manual)
	}
	return handlers
}

// buildStores creates the activity, SLA, and escalation stores based on the
// configured driver. The returned closer releases the shared connection pool.
func buildStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (activity.Store, sla.Store, escalation.EventStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		return activity.NewMemoryStore(), sla.NewMemoryStore(), escalation.NewMemoryStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, nil, nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxConns)
		poolCfg.MinConns = int32(cfg.MinConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("store: ping: %w", err)
		}

		return activity.NewPgStore(pool), sla.NewPgStore(pool), escalation.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// runBreachSweep periodically checks open SLA records for breaches and
// drives escalation. Each level fires at most once per record; re-running
// the sweep never re-fires a level already recorded.
func runBreachSweep(ctx context.Context, manager *escalation.Manager, slaStore sla.Store, metrics *observability.Metrics, interval time.Duration, logger *zap.Logger) {
	if interval == 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fired, err := manager.Sweep(ctx)
			if err != nil {
				logger.Error("breach sweep failed", zap.Error(err))
				continue
			}
			if fired > 0 {
				logger.Info("breach sweep fired escalations", zap.Int("count", fired))
			}
			if open, err := slaStore.ListOpen(ctx); err == nil {
				metrics.SetSLARecordsOpen(float64(len(open)))
			}
		}
	}
}
