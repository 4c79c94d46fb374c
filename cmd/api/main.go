package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/scheduler-api/internal/bootstrap"
	"github.com/jwalitptl/scheduler-api/internal/config"
	"github.com/jwalitptl/scheduler-api/internal/handler/health"
	schedulingHandler "github.com/jwalitptl/scheduler-api/internal/handler/scheduling"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/internal/router"
	schedulingService "github.com/jwalitptl/scheduler-api/internal/service/scheduling"
	"github.com/jwalitptl/scheduler-api/internal/worker"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := bootstrap.NewLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()

	// Initialize store
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to open store")
	}
	defer closeStore()

	// Initialize Redis message broker
	broker, err := bootstrap.OpenBroker(cfg.Redis, logger)
	if err != nil {
		logger.Fatal(err, "failed to connect to Redis")
	}
	if broker != nil {
		defer broker.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("scheduler").MustRegister(registry)

	// Initialize services
	scope, err := schedulingService.ParseConflictScope(cfg.Scheduling.ConflictScope)
	if err != nil {
		logger.Fatal(err, "invalid scheduling configuration")
	}
	schedulingSvc := schedulingService.NewService(store, schedulingService.Options{
		Policy: schedulingService.ConflictPolicy{
			Scope:  scope,
			Window: cfg.Scheduling.ConflictWindow,
		},
		MaxBulkItems: cfg.Scheduling.MaxBulkItems,
		Metrics:      m,
	}, logger.With("component", "scheduling"))

	// Initialize handlers
	var healthH *health.Handler
	if broker != nil {
		healthH = health.NewHandler(store, broker)
	} else {
		healthH = health.NewHandler(store, nil)
	}

	routerConfig := router.RouterConfig{
		CORSConfig:     middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...),
		RequestTimeout: cfg.Server.RequestTimeout,
		Registry:       registry,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = &middleware.RateLimiterConfig{
			RPS:     cfg.RateLimit.RequestsPerSecond,
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
		}
	}

	// Setup router
	r := router.NewRouter(
		middleware.NewAuthMiddleware(middleware.AuthConfig{
			Secret: cfg.JWT.Secret,
			Issuer: cfg.JWT.Issuer,
		}),
		schedulingHandler.NewHandler(schedulingSvc),
		healthH,
		logger,
		routerConfig,
	)
	r.Setup()

	// Optionally run the publishing dispatcher in-process
	var trigger *worker.Trigger
	if cfg.Dispatcher.Embedded {
		dispatcher, err := bootstrap.NewDispatcher(cfg, store, broker, logger, m)
		if err != nil {
			logger.Fatal(err, "failed to create dispatcher")
		}
		trigger, err = worker.NewTrigger(cfg.Dispatcher.Interval, dispatcher, logger)
		if err != nil {
			logger.Fatal(err, "failed to create dispatcher trigger")
		}
		trigger.Start()
	}

	// Create server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
	}
	if trigger != nil {
		select {
		case <-trigger.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("Dispatcher tick still running at shutdown")
		}
	}

	logger.Info("Server exited properly")
}
