package api_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

var (
	bgCtx   = context.Background()
	slotMu  sync.Mutex
	slotSeq int
)

// createContent seeds a content item for the test owner
func createContent(status model.ContentStatus) uuid.UUID {
	id := uuid.New()
	store.PutContent(model.ContentItem{
		Base:    model.Base{ID: id, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		OwnerID: ownerID,
		Title:   "Test Content " + id.String()[:8],
		Body:    "Hello from the scheduler",
		Status:  status,
	})
	return id
}

func contentStatus(id uuid.UUID) model.ContentStatus {
	item, err := store.Contents().Get(bgCtx, ownerID, id)
	if err != nil {
		return ""
	}
	return item.Status
}

// slot returns a unique future instant so tests never collide with each other
func slot(offset time.Duration) string {
	slotMu.Lock()
	defer slotMu.Unlock()
	slotSeq++
	return time.Now().Add(offset + time.Duration(slotSeq)*time.Hour).UTC().Format(time.RFC3339)
}
