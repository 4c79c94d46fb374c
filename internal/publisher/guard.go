package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/pkg/circuitbreaker"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

// ErrTimeout is returned when a platform does not answer within the
// configured publish timeout.
var ErrTimeout = errors.New("publish timed out")

type GuardConfig struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Breaker       circuitbreaker.Settings
}

// Guarded wraps a Publisher with a per-call timeout, retries and one circuit
// breaker per platform.
type Guarded struct {
	next     Publisher
	config   GuardConfig
	breakers *circuitbreaker.Group
	metrics  *metrics.Metrics
}

func NewGuarded(next Publisher, config GuardConfig, m *metrics.Metrics) *Guarded {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	if config.Breaker.Name == "" {
		config.Breaker.Name = "publisher"
	}
	return &Guarded{
		next:     next,
		config:   config,
		breakers: circuitbreaker.NewGroup(config.Breaker),
		metrics:  m,
	}
}

// Publish returns circuitbreaker.ErrOpen without calling the platform while
// that platform's breaker is open.
func (g *Guarded) Publish(ctx context.Context, platform model.Platform, payload model.PublishPayload) error {
	cb := g.breakers.Get(string(platform))
	return cb.Execute(func() error {
		return retry(ctx, g.config.RetryAttempts, g.config.RetryDelay, func() error {
			if g.metrics != nil {
				timer := prometheus.NewTimer(g.metrics.PublishLatency.WithLabelValues(string(platform)))
				defer timer.ObserveDuration()
			}
			return g.publishOnce(ctx, platform, payload)
		})
	})
}

func (g *Guarded) publishOnce(ctx context.Context, platform model.Platform, payload model.PublishPayload) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.next.Publish(ctx, platform, payload)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, g.config.Timeout)
		}
		return ctx.Err()
	}
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(delay):
			}
		}
	}
	return err
}
