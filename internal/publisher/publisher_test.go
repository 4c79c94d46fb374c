package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/pkg/circuitbreaker"
	"github.com/jwalitptl/scheduler-api/pkg/messaging/redis"
)

type stubPublisher struct {
	calls atomic.Int32
	fn    func(ctx context.Context) error
}

func (s *stubPublisher) Publish(ctx context.Context, platform model.Platform, payload model.PublishPayload) error {
	s.calls.Add(1)
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx)
}

func TestBrokerPublisherWritesPlatformStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	p := NewBrokerPublisher(redis.NewWithClient(client, nil), "publish:", nil)
	payload := model.PublishPayload{
		BookingID: uuid.New(),
		ContentID: uuid.New(),
		Platform:  model.PlatformInstagram,
		Title:     "Spring launch",
		MediaURLs: []string{"https://cdn.example.com/a.png"},
	}
	require.NoError(t, p.Publish(context.Background(), model.PlatformInstagram, payload))

	entries, err := mr.Stream("publish:instagram")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Values, 2)

	var got model.PublishPayload
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values[1]), &got))
	assert.Equal(t, payload.BookingID, got.BookingID)
	assert.Equal(t, payload.MediaURLs, got.MediaURLs)
}

func TestGuardedTimesOutSlowPlatform(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := &stubPublisher{fn: func(ctx context.Context) error {
		<-release
		return nil
	}}

	g := NewGuarded(slow, GuardConfig{Timeout: 20 * time.Millisecond}, nil)
	err := g.Publish(context.Background(), model.PlatformFacebook, model.PublishPayload{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGuardedRetries(t *testing.T) {
	flaky := &stubPublisher{}
	flaky.fn = func(ctx context.Context) error {
		if flaky.calls.Load() < 3 {
			return errors.New("temporary")
		}
		return nil
	}

	g := NewGuarded(flaky, GuardConfig{Timeout: time.Second, RetryAttempts: 3, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, g.Publish(context.Background(), model.PlatformLinkedIn, model.PublishPayload{}))
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestGuardedOpensBreakerPerPlatform(t *testing.T) {
	down := &stubPublisher{fn: func(ctx context.Context) error { return errors.New("503") }}
	g := NewGuarded(down, GuardConfig{
		Timeout: time.Second,
		Breaker: circuitbreaker.Settings{MaxFailures: 2, Timeout: time.Hour},
	}, nil)
	ctx := context.Background()

	assert.Error(t, g.Publish(ctx, model.PlatformTikTok, model.PublishPayload{}))
	assert.Error(t, g.Publish(ctx, model.PlatformTikTok, model.PublishPayload{}))
	err := g.Publish(ctx, model.PlatformTikTok, model.PublishPayload{})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), down.calls.Load())

	// other platforms keep their own breaker
	err = g.Publish(ctx, model.PlatformYouTube, model.PublishPayload{})
	assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestLogPublisherHonoursCancellation(t *testing.T) {
	p := NewLogPublisher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, model.PlatformTwitter, model.PublishPayload{}), context.Canceled)
}
