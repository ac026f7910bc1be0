package models

import "time"

// MessageRef identifies one message inside one chat.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports whether the reference points nowhere.
func (r MessageRef) IsZero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}

// Message is an inbound chat message reduced to what the bot needs.
type Message struct {
	Ref      MessageRef `json:"ref"`
	SenderID int64      `json:"sender_id"`
	Private  bool       `json:"private"`
	Text     string     `json:"text"`
	Media    Media      `json:"-"`
	SentAt   time.Time  `json:"sent_at"`
}

// Callback is a button press on a message the bot sent.
type Callback struct {
	ID       string     `json:"id"`
	SenderID int64      `json:"sender_id"`
	Message  MessageRef `json:"message"`
	Data     string     `json:"data"`
}

// Choice is one inline button.
type Choice struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}
