package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
)

const msgBulkInterrupted = "Request ended before this item was scheduled"

// BulkScheduleContent schedules each item on its own. One item failing never
// stops the others; the result counts both outcomes. If ctx ends mid-batch the
// items already committed are still reported and the rest are marked failed.
func (s *Service) BulkScheduleContent(ctx context.Context, ownerID uuid.UUID, items []model.CreateScheduleRequest) (*model.BulkScheduleResult, error) {
	if len(items) == 0 {
		return nil, apperrors.InvalidInput("scheduleItems must contain at least one item", nil)
	}
	if len(items) > s.maxBulkItems {
		return nil, apperrors.InvalidInput(fmt.Sprintf("scheduleItems must not contain more than %d items", s.maxBulkItems), nil)
	}

	result := &model.BulkScheduleResult{
		Results: make([]*model.ScheduleBooking, 0, len(items)),
		Errors:  []model.BulkItemError{},
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("bulk schedule interrupted", "scheduled", result.Success, "remaining", len(items)-i)
			for j := i; j < len(items); j++ {
				result.Failed++
				result.Errors = append(result.Errors, model.BulkItemError{
					Index:     j,
					ContentID: items[j].ContentID,
					Error:     msgBulkInterrupted,
				})
			}
			break
		}

		booking, err := s.ScheduleContent(ctx, ownerID, item)
		if err != nil {
			appErr := apperrors.As(err)
			if appErr.Kind == apperrors.KindStore {
				s.logger.Error(err, "bulk item failed", "index", i, "content_id", item.ContentID.String())
			}
			result.Failed++
			result.Errors = append(result.Errors, model.BulkItemError{
				Index:     i,
				ContentID: item.ContentID,
				Error:     appErr.PublicMessage(),
			})
			continue
		}
		result.Success++
		result.Results = append(result.Results, booking)
	}

	s.logger.Info("bulk schedule finished", "success", result.Success, "failed", result.Failed)
	return result, nil
}
