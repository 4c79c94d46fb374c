package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
)

const scheduleColumns = `
	id, content_id, owner_id, campaign_id, platform, scheduled_at, timezone,
	status, error_message, posted_at, attempted_at, created_at, updated_at
`

type scheduleRepository struct {
	q queryer
}

func (r *scheduleRepository) Create(ctx context.Context, booking *model.ScheduleBooking) error {
	query := `
		INSERT INTO content_schedule (
			id, content_id, owner_id, campaign_id, platform, scheduled_at,
			timezone, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	booking.UpdatedAt = booking.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		booking.ID,
		booking.ContentID,
		booking.OwnerID,
		booking.CampaignID,
		booking.Platform,
		booking.ScheduledAt,
		booking.Timezone,
		booking.Status,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", mapError(err))
	}
	return nil
}

func (r *scheduleRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.ScheduleBooking, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM content_schedule
		WHERE id = $1 AND owner_id = $2
	`
	var booking model.ScheduleBooking
	if err := r.q.GetContext(ctx, &booking, query, id, ownerID); err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", mapError(err))
	}
	return &booking, nil
}

func (r *scheduleRepository) Update(ctx context.Context, booking *model.ScheduleBooking, expect model.BookingStatus) (bool, error) {
	query := `
		UPDATE content_schedule
		SET campaign_id = $1, platform = $2, scheduled_at = $3, timezone = $4, updated_at = $5
		WHERE id = $6 AND owner_id = $7 AND status = $8
	`
	booking.UpdatedAt = time.Now().UTC()

	result, err := r.q.ExecContext(ctx, query,
		booking.CampaignID,
		booking.Platform,
		booking.ScheduledAt,
		booking.Timezone,
		booking.UpdatedAt,
		booking.ID,
		booking.OwnerID,
		expect,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update schedule: %w", mapError(err))
	}
	return affected(result)
}

func (r *scheduleRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, change repository.StatusChange) (bool, error) {
	query := `
		UPDATE content_schedule
		SET status = $1,
			error_message = $2,
			posted_at = COALESCE($3, posted_at),
			attempted_at = COALESCE($4, attempted_at),
			updated_at = $5
		WHERE id = $6 AND status = $7
	`
	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	result, err := r.q.ExecContext(ctx, query,
		to,
		change.ErrorMessage,
		change.PostedAt,
		change.AttemptedAt,
		at,
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition schedule status: %w", err)
	}
	return affected(result)
}

func (r *scheduleRepository) List(ctx context.Context, filters *model.ScheduleFilters) ([]*model.ScheduleBooking, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM content_schedule
		WHERE owner_id = $1
	`
	args := []interface{}{filters.OwnerID}
	argCount := 2

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	} else if filters.ExcludeCancelled {
		query += fmt.Sprintf(" AND status <> $%d", argCount)
		args = append(args, model.BookingStatusCancelled)
		argCount++
	}

	if filters.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argCount)
		args = append(args, filters.Platform)
		argCount++
	}

	if filters.CampaignID != nil {
		query += fmt.Sprintf(" AND campaign_id = $%d", argCount)
		args = append(args, *filters.CampaignID)
		argCount++
	}

	if filters.StartDate != nil {
		query += fmt.Sprintf(" AND scheduled_at >= $%d", argCount)
		args = append(args, *filters.StartDate)
		argCount++
	}

	if filters.EndDate != nil {
		query += fmt.Sprintf(" AND scheduled_at <= $%d", argCount)
		args = append(args, *filters.EndDate)
		argCount++
	}

	if filters.NewestFirst {
		query += " ORDER BY updated_at DESC, id"
	} else {
		query += " ORDER BY scheduled_at ASC, id"
	}

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filters.Limit)
	}

	var bookings []*model.ScheduleBooking
	if err := r.q.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return bookings, nil
}

func (r *scheduleRepository) ListDue(ctx context.Context, before time.Time, after *model.DueCursor, limit int) ([]*model.ScheduleBooking, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM content_schedule
		WHERE status = $1 AND scheduled_at <= $2
	`
	args := []interface{}{model.BookingStatusScheduled, before}
	argCount := 3

	if after != nil {
		query += fmt.Sprintf(" AND (scheduled_at, id) > ($%d, $%d)", argCount, argCount+1)
		args = append(args, after.ScheduledAt, after.ID.String())
		argCount += 2
	}

	query += fmt.Sprintf(" ORDER BY scheduled_at ASC, id LIMIT $%d", argCount)
	args = append(args, limit)

	var bookings []*model.ScheduleBooking
	if err := r.q.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	return bookings, nil
}

func (r *scheduleRepository) FindConflicts(ctx context.Context, probe model.ConflictProbe) ([]*model.ScheduleBooking, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM content_schedule
		WHERE status = $1 AND platform = $2
	`
	args := []interface{}{model.BookingStatusScheduled, probe.Platform}
	argCount := 3

	if probe.Window > 0 {
		query += fmt.Sprintf(" AND scheduled_at > $%d AND scheduled_at < $%d", argCount, argCount+1)
		args = append(args, probe.ScheduledAt.Add(-probe.Window), probe.ScheduledAt.Add(probe.Window))
		argCount += 2
	} else {
		query += fmt.Sprintf(" AND scheduled_at = $%d", argCount)
		args = append(args, probe.ScheduledAt)
		argCount++
	}

	if probe.OwnerID != uuid.Nil {
		query += fmt.Sprintf(" AND owner_id = $%d", argCount)
		args = append(args, probe.OwnerID)
		argCount++
	}

	if probe.ExcludeID != nil {
		query += fmt.Sprintf(" AND id <> $%d", argCount)
		args = append(args, *probe.ExcludeID)
	}

	query += " ORDER BY scheduled_at ASC, id"

	var bookings []*model.ScheduleBooking
	if err := r.q.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find schedule conflicts: %w", err)
	}
	return bookings, nil
}

// LockSlot takes a transaction-scoped advisory lock. Outside a transaction
// the lock is released as soon as the statement finishes.
func (r *scheduleRepository) LockSlot(ctx context.Context, key string) error {
	if _, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to lock schedule slot: %w", err)
	}
	return nil
}
