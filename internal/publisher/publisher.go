// Package publisher hands due content to the social platforms.
package publisher

import (
	"context"
	"fmt"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/messaging"
)

// Publisher posts one content payload to one platform. A nil error means the
// platform accepted the post.
type Publisher interface {
	Publish(ctx context.Context, platform model.Platform, payload model.PublishPayload) error
}

// BrokerPublisher appends the payload to the platform's stream, where the
// platform integration consumes it.
type BrokerPublisher struct {
	queue  messaging.Queue
	prefix string
	logger *logger.Logger
}

func NewBrokerPublisher(queue messaging.Queue, streamPrefix string, log *logger.Logger) *BrokerPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &BrokerPublisher{queue: queue, prefix: streamPrefix, logger: log}
}

func (p *BrokerPublisher) Publish(ctx context.Context, platform model.Platform, payload model.PublishPayload) error {
	stream := p.prefix + string(platform)
	id, err := p.queue.Enqueue(ctx, stream, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue post for %s: %w", platform, err)
	}
	p.logger.Debug("post enqueued",
		"stream", stream,
		"entry_id", id,
		"booking_id", payload.BookingID.String(),
	)
	return nil
}

// LogPublisher only logs. It backs dry runs and local development.
type LogPublisher struct {
	logger *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &LogPublisher{logger: log}
}

func (p *LogPublisher) Publish(ctx context.Context, platform model.Platform, payload model.PublishPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.Info("dry run publish",
		"platform", string(platform),
		"booking_id", payload.BookingID.String(),
		"content_id", payload.ContentID.String(),
		"title", payload.Title,
	)
	return nil
}
