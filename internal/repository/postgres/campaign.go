package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

type campaignRepository struct {
	q queryer
}

func (r *campaignRepository) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Campaign, error) {
	query := `
		SELECT id, owner_id, name, created_at
		FROM campaigns
		WHERE id = $1 AND owner_id = $2
	`
	var campaign model.Campaign
	if err := r.q.GetContext(ctx, &campaign, query, id, ownerID); err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", mapError(err))
	}
	return &campaign, nil
}
