package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduler-api/internal/config"
	"github.com/jwalitptl/scheduler-api/internal/repository/memory"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "memory"},
		Dispatcher: config.DispatcherConfig{
			Interval:       time.Minute,
			BatchSize:      10,
			PublishTimeout: time.Second,
			Publisher:      "log",
		},
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, closeFn, err := OpenStore(context.Background(), testConfig(), logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	assert.NoError(t, closeFn())
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenBroker(t *testing.T) {
	b, err := OpenBroker(config.RedisConfig{}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, b)

	mr := miniredis.RunT(t)
	b, err = OpenBroker(config.RedisConfig{URL: "redis://" + mr.Addr()}, logger.Nop())
	require.NoError(t, err)
	require.NotNil(t, b)
	defer b.Close()
	assert.NoError(t, b.Ping(context.Background()))
}

func TestNewDispatcher(t *testing.T) {
	cfg := testConfig()
	store := memory.NewStore()

	d, err := NewDispatcher(cfg, store, nil, logger.Nop(), nil)
	require.NoError(t, err)
	report, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Due)

	cfg.Dispatcher.Publisher = "broker"
	_, err = NewDispatcher(cfg, store, nil, logger.Nop(), nil)
	assert.Error(t, err)
}
