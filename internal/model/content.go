package model

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusApproved  ContentStatus = "approved"
	ContentStatusScheduled ContentStatus = "scheduled"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusRejected  ContentStatus = "rejected"
	ContentStatusFailed    ContentStatus = "failed"
)

// ContentItem is a piece of marketing content. Its payload is opaque to
// scheduling and handed as-is to the platform publisher.
type ContentItem struct {
	Base
	OwnerID   uuid.UUID      `db:"owner_id" json:"owner_id"`
	Title     string         `db:"title" json:"title"`
	Body      string         `db:"body" json:"body"`
	MediaURLs pq.StringArray `db:"media_urls" json:"media_urls"`
	Status    ContentStatus  `db:"status" json:"status"`
}
