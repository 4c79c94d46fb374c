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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/scheduler-api/internal/bootstrap"
	"github.com/jwalitptl/scheduler-api/internal/config"
	"github.com/jwalitptl/scheduler-api/internal/handler/health"
	"github.com/jwalitptl/scheduler-api/internal/worker"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

func setupHealthCheck(port int, h *health.Handler, gatherer prometheus.Gatherer, log *logger.Logger) *http.Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	h.RegisterRoutes(engine.Group(""))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	logger := bootstrap.NewLogger(cfg.Log).With("component", "worker")
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to open store")
	}
	defer closeStore()

	// Initialize Redis broker
	broker, err := bootstrap.OpenBroker(cfg.Redis, logger)
	if err != nil {
		logger.Fatal(err, "Failed to create Redis broker")
	}
	if broker != nil {
		defer broker.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("scheduler").MustRegister(registry)

	dispatcher, err := bootstrap.NewDispatcher(cfg, store, broker, logger, m)
	if err != nil {
		logger.Fatal(err, "Failed to create dispatcher")
	}

	trigger, err := worker.NewTrigger(cfg.Dispatcher.Interval, dispatcher, logger)
	if err != nil {
		logger.Fatal(err, "Failed to create trigger")
	}

	// Setup health check endpoints
	var healthH *health.Handler
	if broker != nil {
		healthH = health.NewHandler(store, broker)
	} else {
		healthH = health.NewHandler(store, nil)
	}
	healthSrv := setupHealthCheck(cfg.Dispatcher.HealthPort, healthH, registry, logger)

	trigger.Start()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Dispatcher.PublishTimeout+5*time.Second)
	defer shutdownCancel()

	select {
	case <-trigger.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("Dispatcher tick still running at shutdown")
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Health check server forced to shutdown")
	}

	logger.Info("Worker exited")
}
