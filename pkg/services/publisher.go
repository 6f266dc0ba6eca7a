package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docstream/queryengine/pkg/eventbus"
	"github.com/docstream/queryengine/pkg/events"
	"github.com/docstream/queryengine/pkg/models"
)

type stampable interface {
	Stamp(id string, eventType events.EventType, queryID, actor string)
}

// publishEvent stamps and publishes a domain event. Publication failures are
// logged and swallowed: the mutation already committed, and events are a
// best-effort side channel.
func publishEvent(ctx context.Context, bus eventbus.EventPublisher, logger *slog.Logger, eventType events.EventType, queryID string, identity models.Identity, event eventbus.Event) {
	if bus == nil {
		return
	}

	if target, ok := event.(stampable); ok {
		target.Stamp(uuid.New().String(), eventType, queryID, identity.UserID)
	}

	if err := bus.Publish(ctx, string(eventType), event); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "event_type", eventType, "error", err)
	}
}
