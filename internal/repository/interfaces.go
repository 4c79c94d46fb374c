package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

var (
	// ErrNotFound is returned when no row matches the owner-scoped lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness guard.
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	ContentRepository interface {
		Get(ctx context.Context, ownerID, id uuid.UUID) (*model.ContentItem, error)
		// UpdateStatus moves content from one status to another. It reports
		// false when the row was not in the expected status.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.ContentStatus) (bool, error)
	}

	CampaignRepository interface {
		Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Campaign, error)
	}

	ScheduleRepository interface {
		Create(ctx context.Context, booking *model.ScheduleBooking) error
		Get(ctx context.Context, ownerID, id uuid.UUID) (*model.ScheduleBooking, error)
		// Update writes the mutable booking fields if the stored status still
		// equals expect.
		Update(ctx context.Context, booking *model.ScheduleBooking, expect model.BookingStatus) (bool, error)
		// TransitionStatus is the dispatcher/cancel write: status moves from
		// -> to only if the row is still in from.
		TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, change StatusChange) (bool, error)
		List(ctx context.Context, filters *model.ScheduleFilters) ([]*model.ScheduleBooking, error)
		// ListDue returns scheduled bookings at or before the cutoff, oldest
		// first. A non-nil after resumes the scan past that position.
		ListDue(ctx context.Context, before time.Time, after *model.DueCursor, limit int) ([]*model.ScheduleBooking, error)
		FindConflicts(ctx context.Context, probe model.ConflictProbe) ([]*model.ScheduleBooking, error)
		// LockSlot serialises conflict checks on key until the surrounding
		// transaction ends.
		LockSlot(ctx context.Context, key string) error
	}

	// Store groups the repositories so that services can run several writes
	// in one transaction.
	Store interface {
		Contents() ContentRepository
		Schedules() ScheduleRepository
		Campaigns() CampaignRepository
		WithTx(ctx context.Context, fn func(tx Store) error) error
		Ping(ctx context.Context) error
	}
)

// StatusChange carries the columns written alongside a status transition.
type StatusChange struct {
	At           time.Time
	ErrorMessage *string
	PostedAt     *time.Time
	AttemptedAt  *time.Time
}
