package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/publisher"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/messaging"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

// ErrTickInProgress is returned by Tick while another tick is still running.
var ErrTickInProgress = errors.New("dispatcher tick already in progress")

const (
	EventBookingPosted = "booking.posted"
	EventBookingFailed = "booking.failed"

	msgContentNotFound = "content not found"
)

type DispatcherConfig struct {
	BatchSize int
	// AdvanceContentOnPost moves content to published once a booking posts.
	AdvanceContentOnPost bool
	// EventChannel receives booking outcome events when a broker is set.
	EventChannel string
}

// TickReport summarises one pass over the due set.
type TickReport struct {
	Due      int `json:"due"`
	Posted   int `json:"posted"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Deferred int `json:"deferred"`
}

type outcome int

const (
	outcomePosted outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeDeferred
)

func (o outcome) String() string {
	switch o {
	case outcomePosted:
		return "posted"
	case outcomeFailed:
		return "failed"
	case outcomeDeferred:
		return "deferred"
	default:
		return "skipped"
	}
}

// Dispatcher publishes due bookings and records their outcome.
type Dispatcher struct {
	store     repository.Store
	publisher publisher.Publisher
	broker    messaging.Broker
	config    DispatcherConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	running   atomic.Bool
}

func NewDispatcher(
	store repository.Store,
	pub publisher.Publisher,
	broker messaging.Broker,
	config DispatcherConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.EventChannel == "" {
		config.EventChannel = "scheduling.events"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		store:     store,
		publisher: pub,
		broker:    broker,
		config:    config,
		logger:    log.With("component", "dispatcher"),
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock replaces the dispatcher's clock.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run satisfies cron.Job.
func (d *Dispatcher) Run() {
	if _, err := d.Tick(context.Background()); err != nil && !errors.Is(err, ErrTickInProgress) {
		d.logger.Error(err, "Dispatcher tick failed")
	}
}

// Tick processes the bookings due at the current time, one at a time, oldest
// first. A failing booking never stops the rest of the batch. Bookings
// deferred by an open circuit do not count against BatchSize, so the scan
// pages past them and reaches due bookings on other platforms.
func (d *Dispatcher) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport

	if !d.running.CompareAndSwap(false, true) {
		if d.metrics != nil {
			d.metrics.TicksSkipped.Inc()
		}
		d.logger.Warn("Previous tick still running, skipping")
		return report, ErrTickInProgress
	}
	defer d.running.Store(false)

	if d.metrics != nil {
		timer := prometheus.NewTimer(d.metrics.TickDuration)
		defer timer.ObserveDuration()
	}

	now := d.now().UTC()
	attempted := 0
	var after *model.DueCursor

scan:
	for attempted < d.config.BatchSize {
		page, err := d.store.Schedules().ListDue(ctx, now, after, d.config.BatchSize)
		d.observeDB("list_due", err)
		if err != nil {
			return report, fmt.Errorf("failed to load due bookings: %w", err)
		}

		for _, booking := range page {
			if attempted >= d.config.BatchSize {
				break scan
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}

			report.Due++
			result := d.dispatch(ctx, booking)
			switch result {
			case outcomePosted:
				report.Posted++
			case outcomeFailed:
				report.Failed++
			case outcomeDeferred:
				report.Deferred++
			default:
				report.Skipped++
			}
			if result != outcomeDeferred {
				attempted++
			}
		}

		if len(page) < d.config.BatchSize {
			break
		}
		after = page[len(page)-1].Cursor()
	}

	if d.metrics != nil {
		d.metrics.DueSetSize.Set(float64(report.Due))
	}
	if report.Due > 0 {
		d.logger.Info("Dispatcher tick finished",
			"due", report.Due,
			"posted", report.Posted,
			"failed", report.Failed,
			"skipped", report.Skipped,
			"deferred", report.Deferred,
		)
	}
	return report, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, booking *model.ScheduleBooking) outcome {
	result, err := d.process(ctx, booking)
	if err != nil {
		d.logger.Error(err, "Failed to process booking",
			"booking_id", booking.ID.String(),
			"platform", string(booking.Platform),
		)
		result = outcomeSkipped
	}
	if d.metrics != nil {
		d.metrics.BookingsProcessed.WithLabelValues(string(booking.Platform), result.String()).Inc()
	}
	return result
}

// process returns an error only for store faults; the booking then stays
// scheduled and is picked up again by a later tick.
func (d *Dispatcher) process(ctx context.Context, booking *model.ScheduleBooking) (outcome, error) {
	content, err := d.store.Contents().Get(ctx, booking.OwnerID, booking.ContentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return d.markFailed(ctx, booking, msgContentNotFound)
		}
		return outcomeSkipped, fmt.Errorf("failed to load content: %w", err)
	}

	payload := model.NewPublishPayload(booking, content)
	if err := d.publisher.Publish(ctx, booking.Platform, payload); err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			d.logger.Warn("Platform circuit open, deferring booking",
				"booking_id", booking.ID.String(),
				"platform", string(booking.Platform),
			)
			return outcomeDeferred, nil
		}
		if ctx.Err() != nil {
			// shutting down; leave the booking for the next run
			return outcomeSkipped, nil
		}
		failure := publishFailure(booking.Platform, err)
		d.logger.Error(err, "Publish failed",
			"booking_id", booking.ID.String(),
			"platform", string(booking.Platform),
		)
		return d.markFailed(ctx, booking, failure.PublicMessage())
	}

	return d.markPosted(ctx, booking)
}

// publishFailure keeps transport detail out of the message stored on the
// booking, which tenants read back from the failed list.
func publishFailure(platform model.Platform, err error) *apperrors.AppError {
	if errors.Is(err, publisher.ErrTimeout) {
		return apperrors.Upstream(fmt.Sprintf("%s did not respond in time", platform), err)
	}
	return apperrors.Upstream(fmt.Sprintf("publishing to %s failed", platform), err)
}

func (d *Dispatcher) markPosted(ctx context.Context, booking *model.ScheduleBooking) (outcome, error) {
	now := d.now().UTC()
	var moved bool
	err := d.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		moved, err = tx.Schedules().TransitionStatus(ctx, booking.ID,
			model.BookingStatusScheduled, model.BookingStatusPosted,
			repository.StatusChange{At: now, PostedAt: &now, AttemptedAt: &now})
		if err != nil || !moved {
			return err
		}

		if d.config.AdvanceContentOnPost {
			advanced, err := tx.Contents().UpdateStatus(ctx, booking.ContentID, model.ContentStatusScheduled, model.ContentStatusPublished)
			if err != nil {
				return err
			}
			if !advanced {
				d.logger.Warn("Content was not in scheduled status after post",
					"booking_id", booking.ID.String(),
					"content_id", booking.ContentID.String(),
				)
			}
		}
		return nil
	})
	d.observeDB("mark_posted", err)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to mark booking posted: %w", err)
	}
	if !moved {
		d.logger.Warn("Booking left scheduled status while publishing", "booking_id", booking.ID.String())
		return outcomeSkipped, nil
	}

	booking.Status = model.BookingStatusPosted
	booking.PostedAt = &now
	booking.AttemptedAt = &now
	d.emit(ctx, EventBookingPosted, booking)
	return outcomePosted, nil
}

func (d *Dispatcher) markFailed(ctx context.Context, booking *model.ScheduleBooking, reason string) (outcome, error) {
	now := d.now().UTC()
	moved, err := d.store.Schedules().TransitionStatus(ctx, booking.ID,
		model.BookingStatusScheduled, model.BookingStatusFailed,
		repository.StatusChange{At: now, ErrorMessage: &reason, AttemptedAt: &now})
	d.observeDB("mark_failed", err)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to mark booking failed: %w", err)
	}
	if !moved {
		d.logger.Warn("Booking left scheduled status while publishing", "booking_id", booking.ID.String())
		return outcomeSkipped, nil
	}

	d.logger.Warn("Booking failed",
		"booking_id", booking.ID.String(),
		"platform", string(booking.Platform),
		"error", reason,
	)
	booking.Status = model.BookingStatusFailed
	booking.ErrorMessage = &reason
	booking.AttemptedAt = &now
	d.emit(ctx, EventBookingFailed, booking)
	return outcomeFailed, nil
}

func (d *Dispatcher) emit(ctx context.Context, eventType string, booking *model.ScheduleBooking) {
	if d.broker == nil {
		return
	}
	msg := messaging.Message{
		Type:       eventType,
		Payload:    booking,
		OccurredAt: d.now().UTC(),
	}
	if err := d.broker.Publish(ctx, d.config.EventChannel, msg); err != nil {
		d.logger.Error(err, "Failed to publish booking event",
			"event_type", eventType,
			"booking_id", booking.ID.String(),
		)
	}
}

func (d *Dispatcher) observeDB(op string, err error) {
	if d.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	d.metrics.DatabaseOperations.WithLabelValues(op, status).Inc()
}
