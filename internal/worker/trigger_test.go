package worker

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduler-api/pkg/logger"
)

func TestTriggerRecoversFromPanics(t *testing.T) {
	var runs atomic.Int32
	job := cron.FuncJob(func() {
		if runs.Add(1) == 1 {
			panic("first run blows up")
		}
	})

	trig, err := NewTrigger(time.Second, job, nil)
	require.NoError(t, err)
	trig.Start()
	defer func() { <-trig.Stop().Done() }()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestTriggerRejectsZeroInterval(t *testing.T) {
	_, err := NewTrigger(0, cron.FuncJob(func() {}), nil)
	assert.Error(t, err)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTriggerSkipsRunsWhileBusy(t *testing.T) {
	out := &lockedBuffer{}
	log := logger.NewLogger(&logger.Config{Level: logger.DebugLevel, Output: out, JSON: true})

	var runs atomic.Int32
	release := make(chan struct{})
	job := cron.FuncJob(func() {
		if runs.Add(1) == 1 {
			<-release
		}
	})

	trig, err := NewTrigger(time.Second, job, log)
	require.NoError(t, err)
	trig.Start()
	defer func() { <-trig.Stop().Done() }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"message":"skip"`)
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}
