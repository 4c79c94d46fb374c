// Package memory is a process-local repository.Store used for development
// runs and service tests. Transactions are serialised and roll back by
// restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
)

type dataset struct {
	contents  map[uuid.UUID]model.ContentItem
	campaigns map[uuid.UUID]model.Campaign
	schedules map[uuid.UUID]model.ScheduleBooking
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		contents:  make(map[uuid.UUID]model.ContentItem, len(d.contents)),
		campaigns: make(map[uuid.UUID]model.Campaign, len(d.campaigns)),
		schedules: make(map[uuid.UUID]model.ScheduleBooking, len(d.schedules)),
	}
	for k, v := range d.contents {
		c.contents[k] = v
	}
	for k, v := range d.campaigns {
		c.campaigns[k] = v
	}
	for k, v := range d.schedules {
		c.schedules[k] = v
	}
	return c
}

type Store struct {
	mu   *sync.Mutex
	data **dataset
	inTx bool
	now  func() time.Time
}

func NewStore() *Store {
	d := &dataset{
		contents:  make(map[uuid.UUID]model.ContentItem),
		campaigns: make(map[uuid.UUID]model.Campaign),
		schedules: make(map[uuid.UUID]model.ScheduleBooking),
	}
	return &Store{mu: &sync.Mutex{}, data: &d, now: func() time.Time { return time.Now().UTC() }}
}

// lock guards a single operation. Inside WithTx the transaction already
// holds the mutex.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Contents() repository.ContentRepository   { return &contentRepository{s} }
func (s *Store) Schedules() repository.ScheduleRepository { return &scheduleRepository{s} }
func (s *Store) Campaigns() repository.CampaignRepository { return &campaignRepository{s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := (*s.data).clone()
	tx := &Store{mu: s.mu, data: s.data, inTx: true, now: s.now}

	defer func() {
		if p := recover(); p != nil {
			*s.data = snapshot
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		*s.data = snapshot
		return err
	}
	return nil
}

// PutContent inserts or replaces a content item.
func (s *Store) PutContent(item model.ContentItem) {
	defer s.lock()()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	(*s.data).contents[item.ID] = item
}

func (s *Store) PutCampaign(c model.Campaign) {
	defer s.lock()()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	(*s.data).campaigns[c.ID] = c
}

// PutSchedule stores a booking as-is, bypassing uniqueness checks.
func (s *Store) PutSchedule(b model.ScheduleBooking) {
	defer s.lock()()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	(*s.data).schedules[b.ID] = b
}

type contentRepository struct{ s *Store }

func (r *contentRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.ContentItem, error) {
	defer r.s.lock()()
	item, ok := (*r.s.data).contents[id]
	if !ok || item.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (r *contentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.ContentStatus) (bool, error) {
	defer r.s.lock()()
	item, ok := (*r.s.data).contents[id]
	if !ok || item.Status != from {
		return false, nil
	}
	item.Status = to
	item.UpdatedAt = r.s.now()
	(*r.s.data).contents[id] = item
	return true, nil
}

type campaignRepository struct{ s *Store }

func (r *campaignRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Campaign, error) {
	defer r.s.lock()()
	c, ok := (*r.s.data).campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type scheduleRepository struct{ s *Store }

func (r *scheduleRepository) Create(ctx context.Context, booking *model.ScheduleBooking) error {
	defer r.s.lock()()
	d := *r.s.data

	if booking.Status == model.BookingStatusScheduled {
		for _, b := range d.schedules {
			if b.ContentID == booking.ContentID && b.Status == model.BookingStatusScheduled {
				return repository.ErrDuplicate
			}
		}
	}
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if _, exists := d.schedules[booking.ID]; exists {
		return repository.ErrDuplicate
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = r.s.now()
	}
	booking.UpdatedAt = booking.CreatedAt
	d.schedules[booking.ID] = *booking
	return nil
}

func (r *scheduleRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.ScheduleBooking, error) {
	defer r.s.lock()()
	b, ok := (*r.s.data).schedules[id]
	if !ok || b.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r *scheduleRepository) Update(ctx context.Context, booking *model.ScheduleBooking, expect model.BookingStatus) (bool, error) {
	defer r.s.lock()()
	d := *r.s.data
	stored, ok := d.schedules[booking.ID]
	if !ok || stored.OwnerID != booking.OwnerID || stored.Status != expect {
		return false, nil
	}
	booking.UpdatedAt = r.s.now()
	stored.CampaignID = booking.CampaignID
	stored.Platform = booking.Platform
	stored.ScheduledAt = booking.ScheduledAt
	stored.Timezone = booking.Timezone
	stored.UpdatedAt = booking.UpdatedAt
	d.schedules[booking.ID] = stored
	return true, nil
}

func (r *scheduleRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, change repository.StatusChange) (bool, error) {
	defer r.s.lock()()
	d := *r.s.data
	b, ok := d.schedules[id]
	if !ok || b.Status != from {
		return false, nil
	}
	if to == model.BookingStatusScheduled {
		for _, other := range d.schedules {
			if other.ID != id && other.ContentID == b.ContentID && other.Status == model.BookingStatusScheduled {
				return false, repository.ErrDuplicate
			}
		}
	}
	at := change.At
	if at.IsZero() {
		at = r.s.now()
	}
	b.Status = to
	b.ErrorMessage = change.ErrorMessage
	if change.PostedAt != nil {
		b.PostedAt = change.PostedAt
	}
	if change.AttemptedAt != nil {
		b.AttemptedAt = change.AttemptedAt
	}
	b.UpdatedAt = at
	d.schedules[id] = b
	return true, nil
}

func (r *scheduleRepository) List(ctx context.Context, filters *model.ScheduleFilters) ([]*model.ScheduleBooking, error) {
	defer r.s.lock()()
	var out []*model.ScheduleBooking
	for _, b := range (*r.s.data).schedules {
		if !matches(b, filters) {
			continue
		}
		b := b
		out = append(out, &b)
	}

	if filters.NewestFirst {
		sort.Slice(out, func(i, j int) bool {
			if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].UpdatedAt.After(out[j].UpdatedAt)
			}
			return out[i].ID.String() < out[j].ID.String()
		})
	} else {
		sortBySchedule(out)
	}

	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func matches(b model.ScheduleBooking, f *model.ScheduleFilters) bool {
	if b.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" {
		if b.Status != f.Status {
			return false
		}
	} else if f.ExcludeCancelled && b.Status == model.BookingStatusCancelled {
		return false
	}
	if f.Platform != "" && b.Platform != f.Platform {
		return false
	}
	if f.CampaignID != nil && (b.CampaignID == nil || *b.CampaignID != *f.CampaignID) {
		return false
	}
	if f.StartDate != nil && b.ScheduledAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && b.ScheduledAt.After(*f.EndDate) {
		return false
	}
	return true
}

func (r *scheduleRepository) ListDue(ctx context.Context, before time.Time, after *model.DueCursor, limit int) ([]*model.ScheduleBooking, error) {
	defer r.s.lock()()
	var out []*model.ScheduleBooking
	for _, b := range (*r.s.data).schedules {
		if b.Status != model.BookingStatusScheduled || b.ScheduledAt.After(before) {
			continue
		}
		if after != nil && !pastCursor(b, after) {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sortBySchedule(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *scheduleRepository) FindConflicts(ctx context.Context, probe model.ConflictProbe) ([]*model.ScheduleBooking, error) {
	defer r.s.lock()()
	var out []*model.ScheduleBooking
	for _, b := range (*r.s.data).schedules {
		if b.Status != model.BookingStatusScheduled || b.Platform != probe.Platform {
			continue
		}
		if probe.OwnerID != uuid.Nil && b.OwnerID != probe.OwnerID {
			continue
		}
		if probe.ExcludeID != nil && b.ID == *probe.ExcludeID {
			continue
		}
		if !probe.Overlaps(b.ScheduledAt) {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sortBySchedule(out)
	return out, nil
}

// LockSlot is a no-op: transactions already run one at a time.
func (r *scheduleRepository) LockSlot(ctx context.Context, key string) error {
	return ctx.Err()
}

func pastCursor(b model.ScheduleBooking, c *model.DueCursor) bool {
	if !b.ScheduledAt.Equal(c.ScheduledAt) {
		return b.ScheduledAt.After(c.ScheduledAt)
	}
	return b.ID.String() > c.ID.String()
}

func sortBySchedule(out []*model.ScheduleBooking) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
}

var _ repository.Store = (*Store)(nil)
