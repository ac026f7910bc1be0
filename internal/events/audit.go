package events

import (
	"context"

	"drivebot/internal/logger"
)

// Sink receives a copy of every event, e.g. a Forwarder.
type Sink interface {
	Forward(ctx context.Context, ev Event) error
}

// StartAudit logs every event on the bus and hands it to sink when one is given.
func StartAudit(ctx context.Context, bus *Bus, log logger.ILogger, sink Sink) error {
	if log == nil {
		log = logger.NewNop()
	}
	return bus.Subscribe(ctx, "audit", func(ctx context.Context, ev Event) error {
		log.Info(module, "event", map[string]interface{}{
			"type":        ev.Type,
			"chat_id":     ev.ChatID,
			"data":        ev.Data,
			"occurred_at": ev.OccurredAt,
		})
		if sink == nil {
			return nil
		}
		return sink.Forward(ctx, ev)
	})
}
