package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

const (
	DefaultUpcomingLimit = 10
	MaxUpcomingLimit     = 100
	DefaultListLimit     = 100
	MaxListLimit         = 500
	DefaultMaxBulkItems  = 100
)

const (
	msgNotApproved   = "Content must be approved before scheduling"
	msgPastTime      = "Scheduled time must be in the future"
	msgConflict      = "Scheduling conflict detected for this platform and time"
	msgOnlyUpdate    = "Only scheduled content can be updated"
	msgOnlyCancel    = "Only scheduled content can be cancelled"
	defaultTimezone  = "UTC"
	bookingResource  = "scheduled content"
	contentResource  = "content"
	campaignResource = "campaign"
)

type Options struct {
	Policy       ConflictPolicy
	MaxBulkItems int
	// Now overrides the clock; defaults to time.Now.
	Now     func() time.Time
	Metrics *metrics.Metrics
}

type Service struct {
	store        repository.Store
	policy       ConflictPolicy
	maxBulkItems int
	now          func() time.Time
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewService(store repository.Store, opts Options, log *logger.Logger) *Service {
	if opts.Policy.Scope == "" {
		opts.Policy.Scope = ScopeOwner
	}
	if opts.MaxBulkItems <= 0 {
		opts.MaxBulkItems = DefaultMaxBulkItems
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:        store,
		policy:       opts.Policy,
		maxBulkItems: opts.MaxBulkItems,
		now:          opts.Now,
		logger:       log.With("component", "scheduling"),
		metrics:      opts.Metrics,
	}
}

// ScheduleContent books an approved content item onto a platform. The
// booking insert and the content status change commit together.
func (s *Service) ScheduleContent(ctx context.Context, ownerID uuid.UUID, req model.CreateScheduleRequest) (*model.ScheduleBooking, error) {
	if req.ContentID == uuid.Nil {
		return nil, apperrors.InvalidInput("content_id is required", nil)
	}
	platform, ok := model.ParsePlatform(string(req.Platform))
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported platform %q", req.Platform), nil)
	}
	if req.ScheduledTime == nil || req.ScheduledTime.IsZero() {
		return nil, apperrors.InvalidInput("scheduled_time is required", nil)
	}
	timezone, err := normalizeTimezone(req.Timezone)
	if err != nil {
		return nil, err
	}

	var booking *model.ScheduleBooking
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		content, err := tx.Contents().Get(ctx, ownerID, req.ContentID)
		if err != nil {
			return lookupError(contentResource, err)
		}
		if content.Status != model.ContentStatusApproved {
			return apperrors.InvalidState(msgNotApproved)
		}

		now := s.now().UTC()
		if !req.ScheduledTime.After(now) {
			return apperrors.InvalidInput(msgPastTime, nil)
		}

		if req.CampaignID != nil {
			if _, err := tx.Campaigns().Get(ctx, ownerID, *req.CampaignID); err != nil {
				return lookupError(campaignResource, err)
			}
		}

		if err := s.checkConflicts(ctx, tx, ownerID, platform, *req.ScheduledTime, nil); err != nil {
			return err
		}

		booking = &model.ScheduleBooking{
			Base:        model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			ContentID:   content.ID,
			OwnerID:     ownerID,
			CampaignID:  req.CampaignID,
			Platform:    platform,
			ScheduledAt: req.ScheduledTime.UTC(),
			Timezone:    timezone,
			Status:      model.BookingStatusScheduled,
		}
		if err := tx.Schedules().Create(ctx, booking); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.Conflict("Content already has an active booking")
			}
			return apperrors.Store(err)
		}

		moved, err := tx.Contents().UpdateStatus(ctx, content.ID, model.ContentStatusApproved, model.ContentStatusScheduled)
		if err != nil {
			return apperrors.Store(err)
		}
		if !moved {
			return apperrors.InvalidState(msgNotApproved)
		}
		return nil
	})
	s.observe("schedule_content", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("content scheduled",
		"booking_id", booking.ID.String(),
		"content_id", booking.ContentID.String(),
		"platform", string(booking.Platform),
		"scheduled_at", booking.ScheduledAt,
	)
	return booking, nil
}

// UpdateScheduledContent applies a partial update to a booking that is still
// scheduled. Losing the race against the dispatcher or a cancel returns the
// booking as it now stands.
func (s *Service) UpdateScheduledContent(ctx context.Context, ownerID, bookingID uuid.UUID, req model.UpdateScheduleRequest) (*model.ScheduleBooking, error) {
	if req.Empty() {
		return nil, apperrors.InvalidInput("no fields to update", nil)
	}

	var result *model.ScheduleBooking
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Schedules().Get(ctx, ownerID, bookingID)
		if err != nil {
			return lookupError(bookingResource, err)
		}
		if current.Status != model.BookingStatusScheduled {
			return apperrors.InvalidState(msgOnlyUpdate)
		}

		next := *current
		slotChanged := false

		if req.ScheduledTime != nil {
			if !req.ScheduledTime.After(s.now()) {
				return apperrors.InvalidInput(msgPastTime, nil)
			}
			next.ScheduledAt = req.ScheduledTime.UTC()
			slotChanged = slotChanged || !next.ScheduledAt.Equal(current.ScheduledAt)
		}
		if req.Platform != nil {
			platform, ok := model.ParsePlatform(string(*req.Platform))
			if !ok {
				return apperrors.InvalidInput(fmt.Sprintf("unsupported platform %q", *req.Platform), nil)
			}
			next.Platform = platform
			slotChanged = slotChanged || platform != current.Platform
		}
		if req.Timezone != nil {
			tz, err := normalizeTimezone(*req.Timezone)
			if err != nil {
				return err
			}
			next.Timezone = tz
		}
		if req.CampaignID != nil {
			if _, err := tx.Campaigns().Get(ctx, ownerID, *req.CampaignID); err != nil {
				return lookupError(campaignResource, err)
			}
			next.CampaignID = req.CampaignID
		}

		if slotChanged {
			if err := s.checkConflicts(ctx, tx, ownerID, next.Platform, next.ScheduledAt, &next.ID); err != nil {
				return err
			}
		}

		updated, err := tx.Schedules().Update(ctx, &next, model.BookingStatusScheduled)
		if err != nil {
			return apperrors.Store(err)
		}
		if !updated {
			s.logger.Warn("booking changed state during update",
				"booking_id", bookingID.String(),
			)
			result, err = s.reload(ctx, tx, ownerID, bookingID)
			return err
		}
		result = &next
		return nil
	})
	s.observe("update_schedule", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RescheduleContent moves a booking to a new instant.
func (s *Service) RescheduleContent(ctx context.Context, ownerID, bookingID uuid.UUID, scheduledAt *time.Time) (*model.ScheduleBooking, error) {
	if scheduledAt == nil || scheduledAt.IsZero() {
		return nil, apperrors.InvalidInput("scheduled_time is required", nil)
	}
	return s.UpdateScheduledContent(ctx, ownerID, bookingID, model.UpdateScheduleRequest{ScheduledTime: scheduledAt})
}

// CancelScheduledContent cancels a scheduled booking and hands the content
// back to approved.
func (s *Service) CancelScheduledContent(ctx context.Context, ownerID, bookingID uuid.UUID) (*model.ScheduleBooking, error) {
	var result *model.ScheduleBooking
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Schedules().Get(ctx, ownerID, bookingID)
		if err != nil {
			return lookupError(bookingResource, err)
		}
		if current.Status != model.BookingStatusScheduled {
			return apperrors.InvalidState(msgOnlyCancel)
		}

		now := s.now().UTC()
		moved, err := tx.Schedules().TransitionStatus(ctx, current.ID,
			model.BookingStatusScheduled, model.BookingStatusCancelled,
			repository.StatusChange{At: now})
		if err != nil {
			return apperrors.Store(err)
		}
		if !moved {
			s.logger.Warn("booking changed state during cancel",
				"booking_id", bookingID.String(),
			)
			result, err = s.reload(ctx, tx, ownerID, bookingID)
			return err
		}

		reverted, err := tx.Contents().UpdateStatus(ctx, current.ContentID, model.ContentStatusScheduled, model.ContentStatusApproved)
		if err != nil {
			return apperrors.Store(err)
		}
		if !reverted {
			s.logger.Warn("content was not in scheduled status on cancel",
				"booking_id", bookingID.String(),
				"content_id", current.ContentID.String(),
			)
		}

		current.Status = model.BookingStatusCancelled
		current.UpdatedAt = now
		result = current
		return nil
	})
	s.observe("cancel_schedule", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking cancelled", "booking_id", bookingID.String())
	return result, nil
}

func (s *Service) GetScheduledContent(ctx context.Context, ownerID, bookingID uuid.UUID) (*model.ScheduleBooking, error) {
	booking, err := s.store.Schedules().Get(ctx, ownerID, bookingID)
	if err != nil {
		return nil, lookupError(bookingResource, err)
	}
	return booking, nil
}

// ListScheduledContent lists the owner's bookings. The owner on filters is
// always overwritten with ownerID.
func (s *Service) ListScheduledContent(ctx context.Context, ownerID uuid.UUID, filters model.ScheduleFilters) ([]*model.ScheduleBooking, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported status %q", filters.Status), nil)
	}
	if filters.Platform != "" {
		platform, ok := model.ParsePlatform(string(filters.Platform))
		if !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported platform %q", filters.Platform), nil)
		}
		filters.Platform = platform
	}
	if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
		return nil, apperrors.InvalidInput("end_date must not be before start_date", nil)
	}
	filters.OwnerID = ownerID
	filters.Limit = clampLimit(filters.Limit, DefaultListLimit, MaxListLimit)

	bookings, err := s.store.Schedules().List(ctx, &filters)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return nonNil(bookings), nil
}

// GetUpcomingScheduledContent returns scheduled bookings from now on,
// soonest first.
func (s *Service) GetUpcomingScheduledContent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*model.ScheduleBooking, error) {
	now := s.now().UTC()
	bookings, err := s.store.Schedules().List(ctx, &model.ScheduleFilters{
		OwnerID:   ownerID,
		Status:    model.BookingStatusScheduled,
		StartDate: &now,
		Limit:     clampLimit(limit, DefaultUpcomingLimit, MaxUpcomingLimit),
	})
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return nonNil(bookings), nil
}

// GetFailedScheduledContent returns the most recently failed bookings.
func (s *Service) GetFailedScheduledContent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*model.ScheduleBooking, error) {
	bookings, err := s.store.Schedules().List(ctx, &model.ScheduleFilters{
		OwnerID:     ownerID,
		Status:      model.BookingStatusFailed,
		NewestFirst: true,
		Limit:       clampLimit(limit, DefaultUpcomingLimit, MaxUpcomingLimit),
	})
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return nonNil(bookings), nil
}

func (s *Service) checkConflicts(ctx context.Context, tx repository.Store, ownerID uuid.UUID, platform model.Platform, at time.Time, exclude *uuid.UUID) error {
	if err := tx.Schedules().LockSlot(ctx, s.policy.lockKey(ownerID, platform)); err != nil {
		return apperrors.Store(err)
	}
	conflicts, err := tx.Schedules().FindConflicts(ctx, s.policy.probe(ownerID, platform, at, exclude))
	if err != nil {
		return apperrors.Store(err)
	}
	if len(conflicts) > 0 {
		return apperrors.Conflict(msgConflict)
	}
	return nil
}

func (s *Service) reload(ctx context.Context, tx repository.Store, ownerID, bookingID uuid.UUID) (*model.ScheduleBooking, error) {
	booking, err := tx.Schedules().Get(ctx, ownerID, bookingID)
	if err != nil {
		return nil, lookupError(bookingResource, err)
	}
	return booking, nil
}

func (s *Service) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = apperrors.As(err).Kind.String()
	}
	s.metrics.DatabaseOperations.WithLabelValues(op, status).Inc()
}

func lookupError(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return apperrors.Store(err)
}

func normalizeTimezone(tz string) (string, error) {
	if tz == "" {
		return defaultTimezone, nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", apperrors.InvalidInput(fmt.Sprintf("invalid timezone %q", tz), err)
	}
	return tz, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func nonNil(bookings []*model.ScheduleBooking) []*model.ScheduleBooking {
	if bookings == nil {
		return []*model.ScheduleBooking{}
	}
	return bookings
}
