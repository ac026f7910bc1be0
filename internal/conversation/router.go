package conversation

import "drivebot/internal/models"

// Deliver hands msg to the question pending for chatID, if any. It returns true only
// for the call that settled the wait; the caller must then skip every other text
// handler for msg. Unknown chats, duplicates and late replies return false.
func (c *Coordinator) Deliver(chatID int64, msg *models.Message) bool {
	if msg == nil {
		return false
	}
	c.mu.Lock()
	w, ok := c.pending[chatID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, chatID)
	prompt := w.prompt
	c.mu.Unlock()

	// buffered and written once: the only writer is whoever deleted w
	w.answer <- msg
	c.logger.Debug(module, "reply delivered", map[string]interface{}{
		"chat_id":    chatID,
		"message_id": msg.Ref.MessageID,
		"prompt_id":  prompt.MessageID,
	})
	return true
}
