package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/pkg/messaging"
)

const streamMaxLen = 100000

type RedisBroker struct {
	client *redis.Client
	logger *zerolog.Logger
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

func NewRedisBroker(config Config, logger *zerolog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		opts.MinRetryBackoff = config.RetryBackoff
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, logger *zerolog.Logger) *RedisBroker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisBroker{client: client, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	receivers, err := b.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	b.logger.Debug().Str("channel", channel).Int64("receivers", receivers).Msg("message published")
	return nil
}

// Enqueue appends the message to a capped stream and returns the entry id.
func (b *RedisBroker) Enqueue(ctx context.Context, stream string, message interface{}) (string, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue to %s: %w", stream, err)
	}
	return id, nil
}

// Ping checks the connection, used by readiness probes.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var (
	_ messaging.Broker = (*RedisBroker)(nil)
	_ messaging.Queue  = (*RedisBroker)(nil)
)
