// Package bot is the Telegram side of drivebot: it receives updates, drops anything
// that is not a private message from an admin, and routes the rest to the flows.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"drivebot/internal/handshake"
	"drivebot/internal/ingest"
	"drivebot/internal/logger"
	"drivebot/internal/markup"
	"drivebot/internal/models"
	"drivebot/internal/worker"
)

const module = "BOT"

const (
	StartupNotice   = "🔔 Main Bot Started -> TG Drive's Bot Mode Enabled"
	NoFolderText    = "ℹ️ No folder is currently set. Use /set_folder to set one."
	ClearedText     = "🗑 Upload folder cleared. Use /set_folder to set a new one."
	NothingToCancel = "ℹ️ Nothing to cancel."
	BusyText        = "⏳ Too many requests right now, please try again in a moment."

	StartText = "🚀 **Welcome To TG Drive's Bot Mode**\n\n" +
		"You can use this bot to upload files to your TG Drive website directly instead of doing it from website.\n\n" +
		"🗄 **Commands:**\n" +
		"/set_folder - Set folder for file uploads\n" +
		"/current_folder - Check current folder\n" +
		"/clear_folder - Stop using the current folder\n\n" +
		"📤 **How To Upload Files:** Send a file to this bot and it will be uploaded to your TG Drive website. " +
		"You can also set a folder for file uploads using /set_folder command.\n\n" +
		"Read more about [TG Drive's Bot Mode](https://github.com/TechShreyash/TGDrive#tg-drives-bot-mode)"
)

// Transport is what the bot itself says through.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) (models.MessageRef, error)
	Reply(ctx context.Context, to models.MessageRef, text string) (models.MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Router interface {
	Deliver(chatID int64, msg *models.Message) bool
}

type Handshaker interface {
	Start(ctx context.Context, chatID int64, replyTo models.MessageRef) (handshake.State, error)
	Choose(ctx context.Context, cb models.Callback) (handshake.State, error)
}

type Ingestor interface {
	Ingest(ctx context.Context, msg *models.Message) ingest.Result
}

type Session interface {
	Current() (models.Folder, bool)
	Clear(ctx context.Context)
}

type Submitter interface {
	Submit(job worker.Job) error
	CancelChat(chatID int64) int
}

// Updates is the long-poll side of the Bot API.
type Updates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Admins interface {
	IsAdmin(userID int64) bool
}

type Deps struct {
	Transport      Transport
	Router         Router
	Handshake      Handshaker
	Ingest         Ingestor
	Session        Session
	Jobs           Submitter
	Admins         Admins
	Logger         logger.ILogger
	StorageChannel int64
	PollTimeout    int
}

type Bot struct {
	transport      Transport
	router         Router
	handshake      Handshaker
	ingest         Ingestor
	session        Session
	jobs           Submitter
	admins         Admins
	logger         logger.ILogger
	storageChannel int64
	pollTimeout    int
}

func New(d Deps) *Bot {
	b := &Bot{
		transport:      d.Transport,
		router:         d.Router,
		handshake:      d.Handshake,
		ingest:         d.Ingest,
		session:        d.Session,
		jobs:           d.Jobs,
		admins:         d.Admins,
		logger:         d.Logger,
		storageChannel: d.StorageChannel,
		pollTimeout:    d.PollTimeout,
	}
	if b.logger == nil {
		b.logger = logger.NewNop()
	}
	if b.pollTimeout <= 0 {
		b.pollTimeout = 60
	}
	return b
}

// Run announces itself in the storage channel and handles updates until ctx ends.
func (b *Bot) Run(ctx context.Context, api Updates) error {
	if _, err := b.transport.SendMessage(ctx, b.storageChannel, StartupNotice); err != nil {
		b.logger.Warn(module, "startup notice failed", map[string]interface{}{"error": err.Error()})
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	b.logger.Info(module, "bot started, waiting for updates", nil)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return errors.New("update channel closed")
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate routes one update. Text replies are delivered to a waiting question
// right here, in arrival order; everything else becomes a per-chat job.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, raw *tgbotapi.Message) {
	msg := toMessage(raw)
	if msg == nil || !msg.Private {
		return
	}
	if !b.admins.IsAdmin(msg.SenderID) {
		b.logger.Debug(module, "ignoring message from non-admin", map[string]interface{}{
			"sender_id": msg.SenderID,
		})
		return
	}

	if raw.IsCommand() {
		b.handleCommand(ctx, strings.ToLower(raw.Command()), msg)
		return
	}
	if msg.Media != nil {
		b.submit(ctx, msg.Ref, "ingest", func(ctx context.Context) {
			res := b.ingest.Ingest(ctx, msg)
			switch {
			case res.IsFailure():
				b.logger.Warn(module, "ingest failed", map[string]interface{}{
					"chat_id": msg.Ref.ChatID,
					"result":  res.Err.String(),
				})
			case res.Err != ingest.ErrNone:
				b.logger.Debug(module, "ingest finished without record", map[string]interface{}{
					"chat_id": msg.Ref.ChatID,
					"result":  res.Err.String(),
				})
			}
		})
		return
	}
	if msg.Text != "" && !b.router.Deliver(msg.Ref.ChatID, msg) {
		b.logger.Debug(module, "text without pending question ignored", map[string]interface{}{
			"chat_id": msg.Ref.ChatID,
		})
	}
}

func (b *Bot) handleCommand(ctx context.Context, cmd string, msg *models.Message) {
	switch cmd {
	case "cancel":
		// an answer to a pending question, not a job
		answer := *msg
		answer.Text = "/cancel"
		if b.router.Deliver(msg.Ref.ChatID, &answer) {
			return
		}
		if n := b.jobs.CancelChat(msg.Ref.ChatID); n > 0 {
			b.logger.Info(module, "queued jobs cancelled", map[string]interface{}{
				"chat_id": msg.Ref.ChatID,
				"jobs":    n,
			})
			b.reply(ctx, msg.Ref, handshake.CancelledText)
			return
		}
		b.reply(ctx, msg.Ref, NothingToCancel)
	case "start", "help":
		b.submit(ctx, msg.Ref, cmd, func(ctx context.Context) {
			b.reply(ctx, msg.Ref, StartText)
		})
	case "set_folder":
		b.submit(ctx, msg.Ref, cmd, func(ctx context.Context) {
			state, err := b.handshake.Start(ctx, msg.Ref.ChatID, msg.Ref)
			b.logFlow("set_folder", msg.Ref.ChatID, state, err)
		})
	case "current_folder":
		b.submit(ctx, msg.Ref, cmd, func(ctx context.Context) {
			b.reply(ctx, msg.Ref, b.currentFolderText())
		})
	case "clear_folder":
		b.submit(ctx, msg.Ref, cmd, func(ctx context.Context) {
			b.session.Clear(ctx)
			b.reply(ctx, msg.Ref, ClearedText)
		})
	default:
		b.logger.Debug(module, "unknown command ignored", map[string]interface{}{"command": cmd})
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	cb := toCallback(q)
	if !b.admins.IsAdmin(cb.SenderID) {
		b.logger.Debug(module, "ignoring callback from non-admin", map[string]interface{}{
			"sender_id": cb.SenderID,
		})
		return
	}
	if !strings.HasPrefix(cb.Data, handshake.CallbackPrefix) || cb.Message.IsZero() {
		if err := b.transport.AnswerCallback(ctx, cb.ID, ""); err != nil {
			b.logger.Warn(module, "callback answer failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	b.submit(ctx, cb.Message, "choose_folder", func(ctx context.Context) {
		state, err := b.handshake.Choose(ctx, cb)
		b.logFlow("choose_folder", cb.Message.ChatID, state, err)
	})
}

func (b *Bot) currentFolderText() string {
	folder, ok := b.session.Current()
	if !ok {
		return NoFolderText
	}
	return CurrentFolderText(folder)
}

// CurrentFolderText describes the folder uploads go to.
func CurrentFolderText(f models.Folder) string {
	return fmt.Sprintf("📂 **Current Folder**\n\n📍 Path: `%s`\n📛 Name: %s", markup.Escape(f.Path), markup.Escape(f.Name))
}

func (b *Bot) submit(ctx context.Context, origin models.MessageRef, name string, run func(ctx context.Context)) {
	err := b.jobs.Submit(worker.Job{ChatID: origin.ChatID, Name: name, Run: run})
	if err == nil {
		return
	}
	b.logger.Warn(module, "job not accepted", map[string]interface{}{
		"chat_id": origin.ChatID,
		"job":     name,
		"error":   err.Error(),
	})
	if errors.Is(err, worker.ErrDispatcherBusy) {
		b.reply(ctx, origin, BusyText)
	}
}

func (b *Bot) reply(ctx context.Context, to models.MessageRef, text string) {
	if _, err := b.transport.Reply(ctx, to, text); err != nil {
		b.logger.Warn(module, "reply failed", map[string]interface{}{
			"chat_id": to.ChatID,
			"error":   err.Error(),
		})
	}
}

func (b *Bot) logFlow(flow string, chatID int64, state handshake.State, err error) {
	details := map[string]interface{}{
		"flow":    flow,
		"chat_id": chatID,
		"state":   state.String(),
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		details["error"] = err.Error()
		b.logger.Error(module, "flow failed", details)
		return
	}
	b.logger.Info(module, "flow finished", details)
}
