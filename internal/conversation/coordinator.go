// Package conversation turns asynchronous chat messages into a synchronous
// "ask a question, get an answer" call.
//
// A handler calls Ask, which registers a pending wait for the chat, sends the
// prompt and suspends until the update loop hands the chat's next text message to
// Deliver, the timeout fires or the caller's context ends. Exactly one of those
// outcomes wins, and the pending wait is always gone when Ask returns.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"drivebot/internal/logger"
	"drivebot/internal/models"
)

const module = "CONVERSATION"

// TimeoutNotice replaces the prompt text when nobody answered in time.
const TimeoutNotice = "⌛ Timeout! Please try the command again."

// DefaultTimeout is used when Ask is called with a non-positive timeout.
const DefaultTimeout = 60 * time.Second

// ErrBusy is returned when the chat already has a question waiting for an answer.
var ErrBusy = errors.New("conversation: chat already has a pending question")

// Sender is the part of the chat transport the coordinator needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (models.MessageRef, error)
	EditMessage(ctx context.Context, ref models.MessageRef, text string) error
}

type Status int

const (
	Answered Status = iota + 1
	TimedOut
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Answered:
		return "answered"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the result of one Ask. Message is set only when Status is Answered.
type Outcome struct {
	Status  Status
	Message *models.Message
	Prompt  models.MessageRef
}

// pendingWait is settled at most once: whoever removes it from the table owns it.
type pendingWait struct {
	answer chan *models.Message
	prompt models.MessageRef
}

// Coordinator owns the table of pending waits, one per chat.
type Coordinator struct {
	sender Sender
	logger logger.ILogger

	mu      sync.Mutex
	pending map[int64]*pendingWait
}

func NewCoordinator(sender Sender, log logger.ILogger) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Coordinator{
		sender:  sender,
		logger:  log,
		pending: make(map[int64]*pendingWait),
	}
}

// Ask sends prompt to chatID and waits for the chat's next text message.
//
// The wait is registered before the prompt is sent so a fast reply cannot miss it.
// A second Ask for a chat that is already waiting fails with ErrBusy and leaves the
// first question untouched. On timeout the prompt is edited to TimeoutNotice.
func (c *Coordinator) Ask(ctx context.Context, chatID int64, prompt string, timeout time.Duration) (Outcome, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	w := &pendingWait{answer: make(chan *models.Message, 1)}
	c.mu.Lock()
	if _, busy := c.pending[chatID]; busy {
		c.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	c.pending[chatID] = w
	c.mu.Unlock()

	ref, err := c.sender.SendMessage(ctx, chatID, prompt)
	if err != nil {
		if msg, settled := c.release(chatID, w); settled {
			// the answer raced the failed send; hand it back anyway
			return Outcome{Status: Answered, Message: msg}, nil
		}
		return Outcome{}, fmt.Errorf("send prompt: %w", err)
	}
	c.mu.Lock()
	w.prompt = ref
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-w.answer:
		return Outcome{Status: Answered, Message: msg, Prompt: ref}, nil
	case <-timer.C:
		if msg, settled := c.release(chatID, w); settled {
			return Outcome{Status: Answered, Message: msg, Prompt: ref}, nil
		}
		c.logger.Debug(module, "question timed out", map[string]interface{}{
			"chat_id": chatID,
			"timeout": timeout.String(),
		})
		// the caller's context may be nearly spent; the edit is best effort
		editCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := c.sender.EditMessage(editCtx, ref, TimeoutNotice); err != nil {
			c.logger.Warn(module, "failed to mark prompt as timed out", map[string]interface{}{
				"chat_id": chatID,
				"error":   err.Error(),
			})
		}
		return Outcome{Status: TimedOut, Prompt: ref}, nil
	case <-ctx.Done():
		if msg, settled := c.release(chatID, w); settled {
			return Outcome{Status: Answered, Message: msg, Prompt: ref}, nil
		}
		return Outcome{Status: Cancelled, Prompt: ref}, ctx.Err()
	}
}

// release removes w from the table if it is still there. When the router got there
// first, the settled message is returned instead.
func (c *Coordinator) release(chatID int64, w *pendingWait) (*models.Message, bool) {
	c.mu.Lock()
	if current, ok := c.pending[chatID]; ok && current == w {
		delete(c.pending, chatID)
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Unlock()
	return <-w.answer, true
}

// Pending reports whether chatID has a question waiting.
func (c *Coordinator) Pending(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[chatID]
	return ok
}

// Len returns the number of chats with a question waiting.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
