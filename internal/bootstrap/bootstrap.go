// Package bootstrap wires the pieces shared by the api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jwalitptl/scheduler-api/internal/config"
	"github.com/jwalitptl/scheduler-api/internal/publisher"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/internal/repository/memory"
	"github.com/jwalitptl/scheduler-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduler-api/internal/worker"
	"github.com/jwalitptl/scheduler-api/pkg/circuitbreaker"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/messaging"
	"github.com/jwalitptl/scheduler-api/pkg/messaging/redis"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.JSON,
	})
}

// OpenStore returns the configured store and a close func.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, func() error, error) {
	if strings.EqualFold(cfg.Store.Driver, "memory") {
		log.Warn("Using in-memory store, data will not survive a restart")
		return memory.NewStore(), func() error { return nil }, nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("Database schema applied")
	}
	return postgres.NewStore(db), db.Close, nil
}

// OpenBroker connects to Redis. It returns nil without error when no URL is
// configured.
func OpenBroker(cfg config.RedisConfig, log *logger.Logger) (*redis.RedisBroker, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	return redis.NewRedisBroker(redis.Config{
		URL:          cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}, log.Zerolog())
}

// NewDispatcher builds the guarded publisher and the dispatcher around it.
// broker may be nil, in which case outcome events are not emitted.
func NewDispatcher(
	cfg *config.Config,
	store repository.Store,
	broker *redis.RedisBroker,
	log *logger.Logger,
	m *metrics.Metrics,
) (*worker.Dispatcher, error) {
	var platform publisher.Publisher
	switch strings.ToLower(cfg.Dispatcher.Publisher) {
	case "broker":
		if broker == nil {
			return nil, fmt.Errorf("publisher %q requires redis.url", cfg.Dispatcher.Publisher)
		}
		platform = publisher.NewBrokerPublisher(broker, cfg.Dispatcher.StreamPrefix, log)
	default:
		platform = publisher.NewLogPublisher(log)
	}

	guarded := publisher.NewGuarded(platform, publisher.GuardConfig{
		Timeout:       cfg.Dispatcher.PublishTimeout,
		RetryAttempts: cfg.Dispatcher.RetryAttempts,
		RetryDelay:    cfg.Dispatcher.RetryDelay,
		Breaker: circuitbreaker.Settings{
			Name:        "publisher",
			MaxFailures: cfg.Dispatcher.BreakerMaxFailures,
			Timeout:     cfg.Dispatcher.BreakerTimeout,
		},
	}, m)

	var events messaging.Broker
	if broker != nil {
		events = broker
	}

	return worker.NewDispatcher(store, guarded, events, worker.DispatcherConfig{
		BatchSize:            cfg.Dispatcher.BatchSize,
		AdvanceContentOnPost: cfg.Dispatcher.AdvanceContentOnPost,
		EventChannel:         cfg.Redis.EventChannel,
	}, log, m), nil
}
