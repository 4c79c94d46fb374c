package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
)

const dateLayout = "2006-01-02"

// CalendarQuery holds the raw calendar parameters. Dates are YYYY-MM-DD
// (UTC days) or RFC3339 instants.
type CalendarQuery struct {
	StartDate string
	EndDate   string
	Platform  string
}

// Calendar maps a YYYY-MM-DD day to that day's bookings in time order.
type Calendar map[string][]*model.ScheduleBooking

// GetSchedulingCalendar groups the owner's non-cancelled bookings in the
// range by the local day of each booking's timezone.
//
// The range is selected in UTC while the day keys are local, so a booking
// late on the last UTC day of the range can appear under the following
// local day, e.g. 23:30Z on 2026-03-02 for Europe/Berlin is keyed
// "2026-03-03".
func (s *Service) GetSchedulingCalendar(ctx context.Context, ownerID uuid.UUID, q CalendarQuery) (Calendar, error) {
	if q.StartDate == "" || q.EndDate == "" {
		return nil, apperrors.InvalidInput("start_date and end_date are required", nil)
	}
	start, err := ParseRangeStart(q.StartDate)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid start_date %q", q.StartDate), err)
	}
	end, err := ParseRangeEnd(q.EndDate)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid end_date %q", q.EndDate), err)
	}
	if end.Before(start) {
		return nil, apperrors.InvalidInput("end_date must not be before start_date", nil)
	}

	filters := model.ScheduleFilters{
		OwnerID:          ownerID,
		StartDate:        &start,
		EndDate:          &end,
		ExcludeCancelled: true,
	}
	if q.Platform != "" {
		platform, ok := model.ParsePlatform(q.Platform)
		if !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported platform %q", q.Platform), nil)
		}
		filters.Platform = platform
	}

	bookings, err := s.store.Schedules().List(ctx, &filters)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return groupByDay(bookings), nil
}

func groupByDay(bookings []*model.ScheduleBooking) Calendar {
	calendar := make(Calendar)
	for _, b := range bookings {
		day := b.ScheduledAt.In(b.Location()).Format(dateLayout)
		calendar[day] = append(calendar[day], b)
	}
	return calendar
}

// ParseRangeStart parses the lower bound of a date range. A YYYY-MM-DD value
// is the start of that UTC day.
func ParseRangeStart(v string) (time.Time, error) {
	t, _, err := parseDate(v)
	return t, err
}

// ParseRangeEnd parses the upper bound of a date range. A YYYY-MM-DD value
// includes the whole UTC day.
func ParseRangeEnd(v string) (time.Time, error) {
	t, dateOnly, err := parseDate(v)
	if err != nil {
		return time.Time{}, err
	}
	if dateOnly {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseDate(v string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}
