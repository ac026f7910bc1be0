package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"drivebot/internal/logger"
)

// Handler processes one event. A returned error is logged; the event is not retried.
type Handler func(ctx context.Context, ev Event) error

// Bus is an in-process pub/sub on top of a watermill go channel.
type Bus struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger
}

func NewBus(log logger.ILogger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, newWatermillLogger(log)),
		logger: log,
	}
}

// Publish sends ev to every current subscriber.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", ev.Type)
	if err := b.pubSub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Emit publishes ev and logs a failure instead of returning it.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	if err := b.Publish(ctx, ev); err != nil {
		b.logger.Warn(module, "failed to publish event", map[string]interface{}{
			"type":  ev.Type,
			"error": err.Error(),
		})
	}
}

// Subscribe runs handler for every event published after the call, until ctx ends or
// the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, name string, handler Handler) error {
	messages, err := b.pubSub.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", name, err)
	}
	go func() {
		for msg := range messages {
			b.process(ctx, name, msg, handler)
		}
	}()
	return nil
}

func (b *Bus) process(ctx context.Context, name string, msg *message.Message, handler Handler) {
	// always ack: a poison or failing event must not be redelivered forever
	defer msg.Ack()

	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.logger.Error(module, "failed to decode event", map[string]interface{}{
			"consumer": name,
			"uuid":     msg.UUID,
			"error":    err.Error(),
		})
		return
	}
	if err := handler(ctx, ev); err != nil {
		b.logger.Warn(module, "event handler failed", map[string]interface{}{
			"consumer": name,
			"type":     ev.Type,
			"error":    err.Error(),
		})
	}
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}

// watermillLogger routes watermill's internal logging through ILogger.
type watermillLogger struct {
	log    logger.ILogger
	fields watermill.LogFields
}

func newWatermillLogger(log logger.ILogger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (w *watermillLogger) details(fields watermill.LogFields) map[string]interface{} {
	out := make(map[string]interface{}, len(w.fields)+len(fields))
	for k, v := range w.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	d := w.details(fields)
	if err != nil {
		d["error"] = err.Error()
	}
	w.log.Error(module, msg, d)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.log.Info(module, msg, w.details(fields))
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.log.Debug(module, msg, w.details(fields))
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: w.log, fields: w.fields.Add(fields)}
}
