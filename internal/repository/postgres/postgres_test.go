package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
)

var scheduleRowColumns = []string{
	"id", "content_id", "owner_id", "campaign_id", "platform", "scheduled_at", "timezone",
	"status", "error_message", "posted_at", "attempted_at", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestContentGetScopedByOwner(t *testing.T) {
	store, mock := newMockStore(t)
	id, owner := uuid.New(), uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "body", "media_urls", "status", "created_at", "updated_at"}).
		AddRow(id.String(), owner.String(), "Launch", "Hello", "{https://cdn/a.png}", "approved", now, now)
	mock.ExpectQuery(`SELECT id, owner_id, title, body, media_urls, status, created_at, updated_at FROM content WHERE id = \$1 AND owner_id = \$2`).
		WithArgs(id.String(), owner.String()).
		WillReturnRows(rows)

	item, err := store.Contents().Get(context.Background(), owner, id)
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, model.ContentStatusApproved, item.Status)
	assert.Equal(t, pq.StringArray{"https://cdn/a.png"}, item.MediaURLs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentGetMapsNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM content`).WillReturnError(sql.ErrNoRows)

	_, err := store.Contents().Get(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestContentUpdateStatusIsConditional(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE content SET status = \$1, updated_at = \$2 WHERE id = \$3 AND status = \$4`).
		WithArgs("scheduled", sqlmock.AnyArg(), id.String(), "approved").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.Contents().UpdateStatus(context.Background(), id, model.ContentStatusApproved, model.ContentStatusScheduled)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO content_schedule`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Schedules().Create(context.Background(), &model.ScheduleBooking{
		ContentID:   uuid.New(),
		OwnerID:     uuid.New(),
		Platform:    model.PlatformFacebook,
		ScheduledAt: time.Now().Add(time.Hour),
		Status:      model.BookingStatusScheduled,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestScheduleListBuildsFilters(t *testing.T) {
	store, mock := newMockStore(t)
	owner, campaign := uuid.New(), uuid.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM content_schedule WHERE owner_id = \$1 AND status <> \$2 AND platform = \$3 AND campaign_id = \$4 AND scheduled_at >= \$5 ORDER BY scheduled_at ASC, id LIMIT \$6`).
		WithArgs(owner.String(), "cancelled", "instagram", campaign.String(), start, 10).
		WillReturnRows(sqlmock.NewRows(scheduleRowColumns))

	bookings, err := store.Schedules().List(context.Background(), &model.ScheduleFilters{
		OwnerID:          owner,
		Platform:         model.PlatformInstagram,
		CampaignID:       &campaign,
		StartDate:        &start,
		ExcludeCancelled: true,
		Limit:            10,
	})
	require.NoError(t, err)
	assert.Empty(t, bookings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleListDueOrdersOldestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, content, owner := uuid.New(), uuid.New(), uuid.New()

	rows := sqlmock.NewRows(scheduleRowColumns).
		AddRow(id.String(), content.String(), owner.String(), nil, "linkedin", cutoff.Add(-time.Minute), "UTC",
			"scheduled", nil, nil, nil, cutoff, cutoff)
	mock.ExpectQuery(`WHERE status = \$1 AND scheduled_at <= \$2 ORDER BY scheduled_at ASC, id LIMIT \$3`).
		WithArgs("scheduled", cutoff, 50).
		WillReturnRows(rows)

	due, err := store.Schedules().ListDue(context.Background(), cutoff, nil, 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.Nil(t, due[0].CampaignID)
	assert.Equal(t, model.PlatformLinkedIn, due[0].Platform)
}

func TestScheduleListDueResumesAfterCursor(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	after := &model.DueCursor{ScheduledAt: cutoff.Add(-time.Hour), ID: uuid.New()}

	mock.ExpectQuery(`WHERE status = \$1 AND scheduled_at <= \$2 AND \(scheduled_at, id\) > \(\$3, \$4\) ORDER BY scheduled_at ASC, id LIMIT \$5`).
		WithArgs("scheduled", cutoff, after.ScheduledAt, after.ID.String(), 2).
		WillReturnRows(sqlmock.NewRows(scheduleRowColumns))

	due, err := store.Schedules().ListDue(context.Background(), cutoff, after, 2)
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleFindConflictsWindowAndScope(t *testing.T) {
	store, mock := newMockStore(t)
	owner, exclude := uuid.New(), uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE status = \$1 AND platform = \$2 AND scheduled_at > \$3 AND scheduled_at < \$4 AND owner_id = \$5 AND id <> \$6`).
		WithArgs("scheduled", "facebook", at.Add(-time.Minute), at.Add(time.Minute), owner.String(), exclude.String()).
		WillReturnRows(sqlmock.NewRows(scheduleRowColumns))

	_, err := store.Schedules().FindConflicts(context.Background(), model.ConflictProbe{
		OwnerID:     owner,
		Platform:    model.PlatformFacebook,
		ScheduledAt: at,
		Window:      time.Minute,
		ExcludeID:   &exclude,
	})
	require.NoError(t, err)

	// platform-wide, exact instant
	mock.ExpectQuery(`WHERE status = \$1 AND platform = \$2 AND scheduled_at = \$3 ORDER BY`).
		WithArgs("scheduled", "facebook", at).
		WillReturnRows(sqlmock.NewRows(scheduleRowColumns))

	_, err = store.Schedules().FindConflicts(context.Background(), model.ConflictProbe{
		Platform:    model.PlatformFacebook,
		ScheduledAt: at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleTransitionStatusReportsLostRace(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	msg := "platform rejected post"

	mock.ExpectExec(`UPDATE content_schedule SET status = \$1`).
		WithArgs("failed", msg, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), id.String(), "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	ok, err := store.Schedules().TransitionStatus(context.Background(), id,
		model.BookingStatusScheduled, model.BookingStatusFailed,
		repository.StatusChange{At: now, ErrorMessage: &msg, AttemptedAt: &now})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("slot:facebook").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx repository.Store) error {
		return tx.Schedules().LockSlot(context.Background(), "slot:facebook")
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = store.WithTx(context.Background(), func(tx repository.Store) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
