// Package events carries domain events from the bot flows to consumers that must not
// slow those flows down: the audit log and, when configured, a NATS JetStream stream.
package events

import (
	"context"
	"time"
)

const module = "EVENTS"

// Topic is the watermill topic every event is published on.
const Topic = "drivebot.events"

const (
	TypeFolderSelected = "folder.selected"
	TypeFileIngested   = "file.ingested"
)

type Event struct {
	Type       string                 `json:"type"`
	ChatID     int64                  `json:"chat_id"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// New stamps an event with the current time.
func New(eventType string, chatID int64, data map[string]interface{}) Event {
	return Event{Type: eventType, ChatID: chatID, Data: data, OccurredAt: time.Now().UTC()}
}

// Emitter is what the bot flows depend on. Emit never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
