// Package ingest files media sent to the bot into the current upload folder.
package ingest

import (
	"context"
	"fmt"

	"drivebot/internal/events"
	"drivebot/internal/logger"
	"drivebot/internal/markup"
	"drivebot/internal/models"
)

const module = "INGEST"

const (
	NoFolderText = "❌ No upload folder set!\nPlease set a folder first using /set_folder command."
	FailedText   = "❌ Failed to upload file!\nPlease try again or check logs for details."
)

// ErrKind classifies how an ingestion ended.
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrNoFolder
	ErrNoMedia
	ErrCopy
	ErrIndex
)

func (k ErrKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrNoFolder:
		return "no_folder"
	case ErrNoMedia:
		return "no_media"
	case ErrCopy:
		return "copy"
	case ErrIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Ingest. Record is set only when Err is ErrNone.
type Result struct {
	Record *models.Item
	Err    ErrKind
	Cause  error
}

// Duplicated is the storage copy of a media message.
type Duplicated struct {
	Ref  models.MessageRef
	Size int64
}

type Transport interface {
	// DuplicateMedia copies src into the storage channel.
	DuplicateMedia(ctx context.Context, src *models.Message) (Duplicated, error)
	Reply(ctx context.Context, to models.MessageRef, text string) (models.MessageRef, error)
}

type Index interface {
	NewFile(ctx context.Context, folderPath, name string, ref models.MessageRef, size int64) (*models.Item, error)
}

type FolderSource interface {
	Current() (models.Folder, bool)
}

type Ingestor struct {
	transport Transport
	index     Index
	session   FolderSource
	events    events.Emitter
	logger    logger.ILogger
}

func New(transport Transport, index Index, session FolderSource, emitter events.Emitter, log logger.ILogger) *Ingestor {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Ingestor{transport: transport, index: index, session: session, events: emitter, logger: log}
}

// Ingest copies msg's media to storage, records it in the index and tells the sender
// how it went. It never panics and never returns an error: the Result carries it.
func (in *Ingestor) Ingest(ctx context.Context, msg *models.Message) (res Result) {
	if msg == nil || msg.Media == nil {
		return Result{Err: ErrNoMedia}
	}
	defer func() {
		if r := recover(); r != nil {
			res = in.fail(ctx, msg, ErrCopy, fmt.Errorf("panic during ingest: %v", r))
		}
	}()

	// read once: a concurrent /set_folder must not split one upload across folders
	folder, ok := in.session.Current()
	if !ok {
		in.reply(ctx, msg.Ref, NoFolderText)
		return Result{Err: ErrNoFolder}
	}

	dup, err := in.transport.DuplicateMedia(ctx, msg)
	if err != nil {
		return in.fail(ctx, msg, ErrCopy, err)
	}
	name := msg.Media.FileName(msg.Ref.MessageID)
	size := dup.Size
	if size == 0 {
		size = msg.Media.Size()
	}

	record, err := in.index.NewFile(ctx, folder.Path, name, dup.Ref, size)
	if err != nil {
		in.logger.Warn(module, "storage copy left without index entry", map[string]interface{}{
			"storage_chat_id":    dup.Ref.ChatID,
			"storage_message_id": dup.Ref.MessageID,
		})
		return in.fail(ctx, msg, ErrIndex, err)
	}

	in.reply(ctx, msg.Ref, SuccessText(name, folder.Name, size))
	in.logger.Info(module, "file ingested", map[string]interface{}{
		"chat_id": msg.Ref.ChatID,
		"item_id": record.ID,
		"name":    name,
		"folder":  folder.Path,
		"size":    size,
		"kind":    string(msg.Media.Kind()),
	})
	in.events.Emit(ctx, events.New(events.TypeFileIngested, msg.Ref.ChatID, map[string]interface{}{
		"item_id": record.ID,
		"name":    name,
		"folder":  folder.Path,
		"size":    size,
	}))
	return Result{Record: record, Err: ErrNone}
}

func (in *Ingestor) fail(ctx context.Context, msg *models.Message, kind ErrKind, cause error) Result {
	in.logger.Error(module, "error uploading file", map[string]interface{}{
		"chat_id":    msg.Ref.ChatID,
		"message_id": msg.Ref.MessageID,
		"stage":      kind.String(),
		"error":      cause.Error(),
	})
	in.reply(ctx, msg.Ref, FailedText)
	return Result{Err: kind, Cause: cause}
}

func (in *Ingestor) reply(ctx context.Context, to models.MessageRef, text string) {
	if _, err := in.transport.Reply(ctx, to, text); err != nil {
		in.logger.Warn(module, "reply failed", map[string]interface{}{
			"chat_id": to.ChatID,
			"error":   err.Error(),
		})
	}
}

// SuccessText is the confirmation sent for a stored file.
func SuccessText(name, folderName string, size int64) string {
	return fmt.Sprintf("✅ **File Uploaded Successfully**\n\n📄 Name: `%s`\n📁 Folder: %s\n📦 Size: %s",
		markup.Escape(name), markup.Escape(folderName), FormatSize(size))
}

// IsFailure reports whether r ended with a copy or index error.
func (r Result) IsFailure() bool {
	return r.Err == ErrCopy || r.Err == ErrIndex
}
