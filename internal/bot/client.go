package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"drivebot/internal/ingest"
	"drivebot/internal/markup"
	"drivebot/internal/models"
)

// botAPI is the subset of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client adapts the Telegram Bot API to the chat operations the flows need. Texts
// use **bold**, `code` and [link](url) and are rendered to Telegram HTML.
type Client struct {
	api            botAPI
	storageChannel int64
}

// NewClient logs in with token. endpoint overrides the Bot API server, e.g. a local
// bot API server with larger file limits; it uses the tgbotapi.APIEndpoint format.
func NewClient(token, endpoint string, storageChannel int64) (*Client, *tgbotapi.BotAPI, error) {
	var (
		api *tgbotapi.BotAPI
		err error
	)
	if endpoint != "" {
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	} else {
		api, err = tgbotapi.NewBotAPI(token)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create bot api: %w", err)
	}
	return newClient(api, storageChannel), api, nil
}

func newClient(api botAPI, storageChannel int64) *Client {
	return &Client{api: api, storageChannel: storageChannel}
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (models.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return models.MessageRef{}, err
	}
	msg := tgbotapi.NewMessage(chatID, markup.Render(text))
	msg.ParseMode = tgbotapi.ModeHTML
	sent, err := c.api.Send(msg)
	if err != nil {
		return models.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return models.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (c *Client) Reply(ctx context.Context, to models.MessageRef, text string) (models.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return models.MessageRef{}, err
	}
	msg := tgbotapi.NewMessage(to.ChatID, markup.Render(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = to.MessageID
	msg.AllowSendingWithoutReply = true
	sent, err := c.api.Send(msg)
	if err != nil {
		return models.MessageRef{}, fmt.Errorf("reply: %w", err)
	}
	return models.MessageRef{ChatID: to.ChatID, MessageID: sent.MessageID}, nil
}

// SendChoices replies to `to` with one button per row.
func (c *Client) SendChoices(ctx context.Context, to models.MessageRef, text string, choices []models.Choice) (models.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return models.MessageRef{}, err
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, ch := range choices {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(ch.Label, ch.Data)))
	}
	msg := tgbotapi.NewMessage(to.ChatID, markup.Render(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = to.MessageID
	msg.AllowSendingWithoutReply = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	sent, err := c.api.Send(msg)
	if err != nil {
		return models.MessageRef{}, fmt.Errorf("send choices: %w", err)
	}
	return models.MessageRef{ChatID: to.ChatID, MessageID: sent.MessageID}, nil
}

// EditMessage replaces the text of ref and drops its keyboard.
func (c *Client) EditMessage(ctx context.Context, ref models.MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, markup.Render(text))
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := c.api.Request(edit); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, ref models.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// DuplicateMedia copies src into the storage channel. copyMessage only returns the
// new message id; the copy carries the same file, so its size is the source's.
func (c *Client) DuplicateMedia(ctx context.Context, src *models.Message) (ingest.Duplicated, error) {
	if err := ctx.Err(); err != nil {
		return ingest.Duplicated{}, err
	}
	id, err := c.api.CopyMessage(tgbotapi.NewCopyMessage(c.storageChannel, src.Ref.ChatID, src.Ref.MessageID))
	if err != nil {
		return ingest.Duplicated{}, fmt.Errorf("copy to storage channel: %w", err)
	}
	var size int64
	if src.Media != nil {
		size = src.Media.Size()
	}
	return ingest.Duplicated{
		Ref:  models.MessageRef{ChatID: c.storageChannel, MessageID: id.MessageID},
		Size: size,
	}, nil
}

// StorageChannel is the chat media is copied into.
func (c *Client) StorageChannel() int64 {
	return c.storageChannel
}
