package bot

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"drivebot/internal/models"
)

func toMessage(m *tgbotapi.Message) *models.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	out := &models.Message{
		Ref:     models.MessageRef{ChatID: m.Chat.ID, MessageID: m.MessageID},
		Private: m.Chat.IsPrivate(),
		Text:    m.Text,
		Media:   toMedia(m),
		SentAt:  time.Unix(int64(m.Date), 0).UTC(),
	}
	if m.From != nil {
		out.SenderID = m.From.ID
	}
	return out
}

// toMedia picks the attachment in the order document, video, audio, photo, sticker.
func toMedia(m *tgbotapi.Message) models.Media {
	switch {
	case m.Document != nil:
		return models.Document{Name: m.Document.FileName, Bytes: int64(m.Document.FileSize)}
	case m.Video != nil:
		return models.Video{Name: m.Video.FileName, Bytes: int64(m.Video.FileSize)}
	case m.Audio != nil:
		return models.Audio{Name: m.Audio.FileName, Bytes: int64(m.Audio.FileSize)}
	case len(m.Photo) > 0:
		// sizes are ordered smallest first; the largest is what gets stored
		return models.Photo{Bytes: int64(m.Photo[len(m.Photo)-1].FileSize)}
	case m.Sticker != nil:
		return models.Sticker{Bytes: int64(m.Sticker.FileSize)}
	default:
		return nil
	}
}

func toCallback(q *tgbotapi.CallbackQuery) models.Callback {
	cb := models.Callback{ID: q.ID, Data: q.Data}
	if q.From != nil {
		cb.SenderID = q.From.ID
	}
	if q.Message != nil && q.Message.Chat != nil {
		cb.Message = models.MessageRef{ChatID: q.Message.Chat.ID, MessageID: q.Message.MessageID}
	}
	return cb
}
