package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/scheduler-api/pkg/logger"
)

// Trigger fires a job on a fixed interval. A run that is still going when
// the next one is due causes that run to be skipped, and job panics are recovered.
type Trigger struct {
	cron     *cron.Cron
	interval time.Duration
	logger   *logger.Logger
}

// cronLogger demotes cron's per-run chatter to debug.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(err, msg, keysAndValues...)
}

func NewTrigger(interval time.Duration, job cron.Job, log *logger.Logger) (*Trigger, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("trigger interval must be greater than 0")
	}
	if log == nil {
		log = logger.Nop()
	}
	cl := cronLogger{l: log.With("component", "trigger")}

	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddJob(fmt.Sprintf("@every %s", interval), job); err != nil {
		return nil, fmt.Errorf("failed to register trigger job: %w", err)
	}

	return &Trigger{cron: c, interval: interval, logger: log}, nil
}

func (t *Trigger) Start() {
	t.logger.Info("Starting trigger", "interval", t.interval.String())
	t.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running job
// has returned.
func (t *Trigger) Stop() context.Context {
	t.logger.Info("Stopping trigger")
	return t.cron.Stop()
}
