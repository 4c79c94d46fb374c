package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/scheduler-api/internal/repository"
)

// uniqueViolation is the postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store provides the repositories over one connection pool or transaction.
type Store struct {
	db *sqlx.DB
	q  queryer
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Contents() repository.ContentRepository {
	return &contentRepository{q: s.q}
}

func (s *Store) Schedules() repository.ScheduleRepository {
	return &scheduleRepository{q: s.q}
}

func (s *Store) Campaigns() repository.CampaignRepository {
	return &campaignRepository{q: s.q}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes a function within a transaction. Nested calls reuse the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if _, inTx := s.q.(*sqlx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

var _ repository.Store = (*Store)(nil)
