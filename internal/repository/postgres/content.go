package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

type contentRepository struct {
	q queryer
}

func (r *contentRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.ContentItem, error) {
	query := `
		SELECT id, owner_id, title, body, media_urls, status, created_at, updated_at
		FROM content
		WHERE id = $1 AND owner_id = $2
	`
	var item model.ContentItem
	if err := r.q.GetContext(ctx, &item, query, id, ownerID); err != nil {
		return nil, fmt.Errorf("failed to get content: %w", mapError(err))
	}
	return &item, nil
}

func (r *contentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.ContentStatus) (bool, error) {
	query := `
		UPDATE content
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.q.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update content status: %w", err)
	}
	return affected(result)
}
