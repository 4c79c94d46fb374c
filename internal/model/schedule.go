package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusScheduled BookingStatus = "scheduled"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusPosted    BookingStatus = "posted"
	BookingStatusFailed    BookingStatus = "failed"
)

// Terminal reports whether the dispatcher will never move the booking again.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusPosted || s == BookingStatusFailed
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusScheduled, BookingStatusCancelled, BookingStatusPosted, BookingStatusFailed:
		return true
	}
	return false
}

// ScheduleBooking books one content item onto one platform at one instant.
type ScheduleBooking struct {
	Base
	ContentID    uuid.UUID     `db:"content_id" json:"content_id"`
	OwnerID      uuid.UUID     `db:"owner_id" json:"owner_id"`
	CampaignID   *uuid.UUID    `db:"campaign_id" json:"campaign_id,omitempty"`
	Platform     Platform      `db:"platform" json:"platform"`
	ScheduledAt  time.Time     `db:"scheduled_at" json:"scheduled_time"`
	Timezone     string        `db:"timezone" json:"timezone"`
	Status       BookingStatus `db:"status" json:"status"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	PostedAt     *time.Time    `db:"posted_at" json:"posted_at,omitempty"`
	AttemptedAt  *time.Time    `db:"attempted_at" json:"attempted_at,omitempty"`
}

// Location resolves the booking's timezone label, falling back to UTC.
func (b *ScheduleBooking) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CreateScheduleRequest struct {
	ContentID     uuid.UUID  `json:"content_id" binding:"required"`
	CampaignID    *uuid.UUID `json:"campaign_id"`
	Platform      Platform   `json:"platform" binding:"required,platform"`
	ScheduledTime *time.Time `json:"scheduled_time" binding:"required"`
	Timezone      string     `json:"timezone" binding:"omitempty,max=64,timezone"`
}

// UpdateScheduleRequest is a partial update; nil fields are left alone.
type UpdateScheduleRequest struct {
	ScheduledTime *time.Time `json:"scheduled_time"`
	Timezone      *string    `json:"timezone" binding:"omitempty,max=64,timezone"`
	Platform      *Platform  `json:"platform" binding:"omitempty,platform"`
	CampaignID    *uuid.UUID `json:"campaign_id"`
}

func (r *UpdateScheduleRequest) Empty() bool {
	return r.ScheduledTime == nil && r.Timezone == nil && r.Platform == nil && r.CampaignID == nil
}

type RescheduleRequest struct {
	ScheduledTime *time.Time `json:"scheduled_time" binding:"required"`
}

type BulkScheduleRequest struct {
	ScheduleItems []CreateScheduleRequest `json:"scheduleItems" binding:"required,min=1"`
}

// BulkItemError records why one bulk item was rejected.
type BulkItemError struct {
	Index     int       `json:"index"`
	ContentID uuid.UUID `json:"content_id"`
	Error     string    `json:"error"`
}

type BulkScheduleResult struct {
	Success int                `json:"success"`
	Failed  int                `json:"failed"`
	Results []*ScheduleBooking `json:"results"`
	Errors  []BulkItemError    `json:"errors"`
}

type ScheduleFilters struct {
	OwnerID    uuid.UUID
	Status     BookingStatus
	Platform   Platform
	CampaignID *uuid.UUID
	StartDate  *time.Time
	EndDate    *time.Time
	// ExcludeCancelled drops cancelled bookings when Status is unset.
	ExcludeCancelled bool
	// NewestFirst orders by updated_at descending instead of scheduled_at ascending.
	NewestFirst bool
	Limit       int
}

// ConflictProbe describes a requested slot for conflict detection.
type ConflictProbe struct {
	// OwnerID scopes the probe; uuid.Nil means every tenant.
	OwnerID     uuid.UUID
	Platform    Platform
	ScheduledAt time.Time
	Window      time.Duration
	ExcludeID   *uuid.UUID
}

// Overlaps applies the probe's window rule to one booked instant.
func (p ConflictProbe) Overlaps(at time.Time) bool {
	if p.Window <= 0 {
		return at.Equal(p.ScheduledAt)
	}
	d := at.Sub(p.ScheduledAt)
	if d < 0 {
		d = -d
	}
	return d < p.Window
}

// DueCursor marks the last booking of a due-set page. Pages are ordered by
// scheduled_at, then id.
type DueCursor struct {
	ScheduledAt time.Time
	ID          uuid.UUID
}

// Cursor returns the position just after b in the due-set order.
func (b *ScheduleBooking) Cursor() *DueCursor {
	return &DueCursor{ScheduledAt: b.ScheduledAt, ID: b.ID}
}

// PublishPayload is what the platform publisher receives for a due booking.
type PublishPayload struct {
	BookingID   uuid.UUID `json:"booking_id"`
	ContentID   uuid.UUID `json:"content_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Platform    Platform  `json:"platform"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	MediaURLs   []string  `json:"media_urls"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func NewPublishPayload(b *ScheduleBooking, c *ContentItem) PublishPayload {
	return PublishPayload{
		BookingID:   b.ID,
		ContentID:   c.ID,
		OwnerID:     b.OwnerID,
		Platform:    b.Platform,
		Title:       c.Title,
		Body:        c.Body,
		MediaURLs:   []string(c.MediaURLs),
		ScheduledAt: b.ScheduledAt,
	}
}
