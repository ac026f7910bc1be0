// Package handshake resolves a folder name typed by the admin into a concrete upload
// folder: ask for a name, search the index, offer the matches as buttons and commit
// the one that is pressed.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"drivebot/internal/conversation"
	"drivebot/internal/events"
	"drivebot/internal/logger"
	"drivebot/internal/markup"
	"drivebot/internal/models"
	"drivebot/internal/selection"
)

const module = "HANDSHAKE"

// CallbackPrefix marks button data produced by this package.
const CallbackPrefix = "set_folder:"

const (
	QueryPrompt     = "📁 Send the folder name where you want to upload files\n\n/cancel to cancel"
	SelectPrompt    = "📂 Select the folder where you want to upload files:"
	CancelledText   = "❌ Cancelled"
	ExpiredText     = "⌛ Request expired, please send /set_folder again"
	BusyText        = "⏳ Please answer the pending question first."
	FailedText      = "❌ Something went wrong, please try again."
	noFolderFormat  = "❌ No folder found with name '%s'"
	folderSetFormat = "✅ Folder set to: %s"
)

type State int

const (
	AwaitingQuery State = iota + 1
	AwaitingSelection
	Resolved
	Cancelled
	Expired
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingQuery:
		return "awaiting_query"
	case AwaitingSelection:
		return "awaiting_selection"
	case Resolved:
		return "resolved"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Asker interface {
	Ask(ctx context.Context, chatID int64, prompt string, timeout time.Duration) (conversation.Outcome, error)
}

// Messenger is the part of the chat transport the handshake talks through.
type Messenger interface {
	Reply(ctx context.Context, to models.MessageRef, text string) (models.MessageRef, error)
	SendChoices(ctx context.Context, to models.MessageRef, text string, choices []models.Choice) (models.MessageRef, error)
	EditMessage(ctx context.Context, ref models.MessageRef, text string) error
	DeleteMessage(ctx context.Context, ref models.MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Index interface {
	Search(ctx context.Context, query string) (map[string]*models.Item, error)
}

type FolderSetter interface {
	SetFolder(ctx context.Context, folder models.Folder) error
}

type Deps struct {
	Asker     Asker
	Messenger Messenger
	Index     Index
	Session   FolderSetter
	Tokens    *selection.Store
	Events    events.Emitter
	Logger    logger.ILogger
	// Timeout bounds the wait for the folder name.
	Timeout time.Duration
}

type Handshake struct {
	asker     Asker
	messenger Messenger
	index     Index
	session   FolderSetter
	tokens    *selection.Store
	events    events.Emitter
	logger    logger.ILogger
	timeout   time.Duration
}

// New wires a handshake and registers it to retire keyboards whose token expired.
func New(d Deps) *Handshake {
	h := &Handshake{
		asker:     d.Asker,
		messenger: d.Messenger,
		index:     d.Index,
		session:   d.Session,
		tokens:    d.Tokens,
		events:    d.Events,
		logger:    d.Logger,
		timeout:   d.Timeout,
	}
	if h.events == nil {
		h.events = events.Nop{}
	}
	if h.logger == nil {
		h.logger = logger.NewNop()
	}
	if h.timeout <= 0 {
		h.timeout = conversation.DefaultTimeout
	}
	h.tokens.OnExpire(h.retirePrompt)
	return h
}

// Start runs the query phase for chatID. On success the chat is left looking at a
// keyboard and the returned state is AwaitingSelection; replyTo is the command that
// started the handshake.
func (h *Handshake) Start(ctx context.Context, chatID int64, replyTo models.MessageRef) (State, error) {
	out, err := h.asker.Ask(ctx, chatID, QueryPrompt, h.timeout)
	switch {
	case errors.Is(err, conversation.ErrBusy):
		h.reply(ctx, replyTo, BusyText)
		return Cancelled, nil
	case err != nil && out.Status == conversation.Cancelled:
		return Cancelled, err
	case err != nil:
		h.reply(ctx, replyTo, FailedText)
		return Failed, fmt.Errorf("ask folder name: %w", err)
	}
	if out.Status == conversation.TimedOut {
		return TimedOut, nil
	}

	answer := out.Message
	query := strings.TrimSpace(answer.Text)
	if strings.EqualFold(query, "/cancel") {
		h.reply(ctx, answer.Ref, CancelledText)
		return Cancelled, nil
	}

	found, err := h.index.Search(ctx, query)
	if err != nil {
		h.reply(ctx, answer.Ref, FailedText)
		return Failed, fmt.Errorf("search %q: %w", query, err)
	}
	candidates := folders(found)
	if len(candidates) == 0 {
		h.reply(ctx, answer.Ref, fmt.Sprintf(noFolderFormat, markup.Escape(query)))
		return Cancelled, nil
	}

	choices := make(map[string]models.Folder, len(candidates))
	for _, item := range candidates {
		choices[item.ID] = models.Folder{Path: item.FullPath(), Name: item.Name}
	}
	tokenID := h.tokens.Put(chatID, models.MessageRef{}, choices)

	buttons := make([]models.Choice, 0, len(candidates))
	for _, item := range candidates {
		buttons = append(buttons, models.Choice{Label: item.Name, Data: CallbackData(tokenID, item.ID)})
	}
	prompt, err := h.messenger.SendChoices(ctx, answer.Ref, SelectPrompt, buttons)
	if err != nil {
		h.tokens.Discard(tokenID)
		h.reply(ctx, answer.Ref, FailedText)
		return Failed, fmt.Errorf("send folder choices: %w", err)
	}
	h.tokens.SetPrompt(tokenID, prompt)

	h.logger.Debug(module, "folder choices sent", map[string]interface{}{
		"chat_id":    chatID,
		"token":      tokenID,
		"candidates": len(candidates),
	})
	return AwaitingSelection, nil
}

// Choose commits the folder behind a pressed button. Stale, forged or reused
// buttons end in Expired and leave the session untouched.
func (h *Handshake) Choose(ctx context.Context, cb models.Callback) (State, error) {
	tokenID, key, ok := ParseCallbackData(cb.Data)
	if !ok {
		return h.expire(ctx, cb, true), nil
	}
	folder, err := h.tokens.Consume(tokenID, key)
	switch {
	case errors.Is(err, selection.ErrUnknownChoice):
		// the keyboard itself is still valid
		return h.expire(ctx, cb, false), nil
	case err != nil:
		return h.expire(ctx, cb, true), nil
	}

	if err := h.session.SetFolder(ctx, folder); err != nil {
		h.answer(ctx, cb.ID, FailedText)
		return Failed, fmt.Errorf("set folder %s: %w", folder.Path, err)
	}
	h.answer(ctx, cb.ID, fmt.Sprintf(folderSetFormat, folder.Name))
	if err := h.messenger.EditMessage(ctx, cb.Message, ConfirmationText(folder)); err != nil {
		h.logger.Warn(module, "failed to edit selection prompt", map[string]interface{}{
			"chat_id": cb.Message.ChatID,
			"error":   err.Error(),
		})
	}
	h.events.Emit(ctx, events.New(events.TypeFolderSelected, cb.Message.ChatID, map[string]interface{}{
		"path": folder.Path,
		"name": folder.Name,
	}))
	return Resolved, nil
}

func (h *Handshake) expire(ctx context.Context, cb models.Callback, deletePrompt bool) State {
	h.answer(ctx, cb.ID, ExpiredText)
	if deletePrompt && !cb.Message.IsZero() {
		if err := h.messenger.DeleteMessage(ctx, cb.Message); err != nil {
			h.logger.Warn(module, "failed to delete stale prompt", map[string]interface{}{
				"chat_id": cb.Message.ChatID,
				"error":   err.Error(),
			})
		}
	}
	return Expired
}

// retirePrompt runs from the token janitor.
func (h *Handshake) retirePrompt(e selection.Expired) {
	if e.Prompt.IsZero() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.messenger.EditMessage(ctx, e.Prompt, ExpiredText); err != nil {
		h.logger.Warn(module, "failed to retire expired prompt", map[string]interface{}{
			"chat_id": e.ChatID,
			"token":   e.ID,
			"error":   err.Error(),
		})
	}
}

func (h *Handshake) reply(ctx context.Context, to models.MessageRef, text string) {
	if _, err := h.messenger.Reply(ctx, to, text); err != nil {
		h.logger.Warn(module, "reply failed", map[string]interface{}{
			"chat_id": to.ChatID,
			"error":   err.Error(),
		})
	}
}

func (h *Handshake) answer(ctx context.Context, callbackID, text string) {
	if err := h.messenger.AnswerCallback(ctx, callbackID, text); err != nil {
		h.logger.Warn(module, "callback answer failed", map[string]interface{}{
			"callback_id": callbackID,
			"error":       err.Error(),
		})
	}
}

// folders keeps folder items, ordered by name then id.
func folders(found map[string]*models.Item) []*models.Item {
	out := make([]*models.Item, 0, len(found))
	for _, item := range found {
		if item.IsFolder() {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ConfirmationText is what the selection prompt turns into once a folder is chosen.
func ConfirmationText(f models.Folder) string {
	return fmt.Sprintf("📁 **Folder Set Successfully**\n\n📍 Path: `%s`\n📛 Name: %s\n\n"+
		"Now you can send files to me and they will be uploaded to this folder.", markup.Escape(f.Path), markup.Escape(f.Name))
}

func CallbackData(tokenID, key string) string {
	return CallbackPrefix + tokenID + ":" + key
}

// ParseCallbackData splits data produced by CallbackData.
func ParseCallbackData(data string) (tokenID, key string, ok bool) {
	rest, found := strings.CutPrefix(data, CallbackPrefix)
	if !found {
		return "", "", false
	}
	tokenID, key, found = strings.Cut(rest, ":")
	if !found || tokenID == "" || key == "" {
		return "", "", false
	}
	return tokenID, key, true
}
