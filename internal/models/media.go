package models

import "fmt"

// MediaKind names the variant of an uploaded media attachment.
type MediaKind string

const (
	KindDocument MediaKind = "document"
	KindVideo    MediaKind = "video"
	KindAudio    MediaKind = "audio"
	KindPhoto    MediaKind = "photo"
	KindSticker  MediaKind = "sticker"
)

// Media is the closed set of attachments the bot accepts. Every variant decides how
// its file is named and how large it is; the unexported method keeps the set closed.
type Media interface {
	Kind() MediaKind
	// FileName returns the declared name, or a name derived from messageID.
	FileName(messageID int) string
	// Size returns the byte size, or 0 when the kind does not report one.
	Size() int64
	media()
}

type Document struct {
	Name  string
	Bytes int64
}

type Video struct {
	Name  string
	Bytes int64
}

type Audio struct {
	Name  string
	Bytes int64
}

// Photo has no declared name.
type Photo struct {
	Bytes int64
}

// Sticker has no declared name.
type Sticker struct {
	Bytes int64
}

func (Document) Kind() MediaKind { return KindDocument }
func (Video) Kind() MediaKind    { return KindVideo }
func (Audio) Kind() MediaKind    { return KindAudio }
func (Photo) Kind() MediaKind    { return KindPhoto }
func (Sticker) Kind() MediaKind  { return KindSticker }

func (d Document) FileName(messageID int) string {
	return declaredOr(d.Name, "document_%d", messageID)
}

func (v Video) FileName(messageID int) string {
	return declaredOr(v.Name, "video_%d.mp4", messageID)
}

func (a Audio) FileName(messageID int) string {
	return declaredOr(a.Name, "audio_%d.mp3", messageID)
}

func (Photo) FileName(messageID int) string {
	return fmt.Sprintf("photo_%d.jpg", messageID)
}

func (Sticker) FileName(messageID int) string {
	return fmt.Sprintf("sticker_%d.webp", messageID)
}

func (d Document) Size() int64 { return d.Bytes }
func (v Video) Size() int64    { return v.Bytes }
func (a Audio) Size() int64    { return a.Bytes }
func (p Photo) Size() int64    { return p.Bytes }
func (s Sticker) Size() int64  { return s.Bytes }

func (Document) media() {}
func (Video) media()    {}
func (Audio) media()    {}
func (Photo) media()    {}
func (Sticker) media()  {}

func declaredOr(name, format string, messageID int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf(format, messageID)
}
