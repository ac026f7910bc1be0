// Package session holds the bot's current upload folder.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"drivebot/internal/logger"
	"drivebot/internal/models"
)

const module = "SESSION"

var ErrInvalidFolder = errors.New("session: folder path must be absolute")

// Mirror persists the folder outside the process and reports changes made by other
// bot instances.
type Mirror interface {
	Save(ctx context.Context, folder models.Folder) error
	Load(ctx context.Context) (models.Folder, bool, error)
	Watch(ctx context.Context, apply func(models.Folder)) error
}

// Session is the process-wide "current upload folder" cell. Concurrent writers race
// last-write-wins.
type Session struct {
	mu      sync.RWMutex
	current models.Folder

	mirror Mirror
	logger logger.ILogger
}

// New creates a session; mirror may be nil.
func New(mirror Mirror, log logger.ILogger) *Session {
	if log == nil {
		log = logger.NewNop()
	}
	return &Session{mirror: mirror, logger: log}
}

// Current returns the folder uploads go to, if one is set.
func (s *Session) Current() (models.Folder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, !s.current.IsZero()
}

// SetFolder makes folder the upload target. Mirror failures are logged, not returned:
// the in-process value is authoritative.
func (s *Session) SetFolder(ctx context.Context, folder models.Folder) error {
	if !strings.HasPrefix(folder.Path, "/") {
		return ErrInvalidFolder
	}
	s.set(folder)
	s.save(ctx, folder)
	s.logger.Info(module, "upload folder changed", map[string]interface{}{
		"path": folder.Path,
		"name": folder.Name,
	})
	return nil
}

// Clear unsets the upload folder.
func (s *Session) Clear(ctx context.Context) {
	s.set(models.Folder{})
	s.save(ctx, models.Folder{})
	s.logger.Info(module, "upload folder cleared", nil)
}

// Restore loads the mirrored folder and follows changes made elsewhere until ctx ends.
func (s *Session) Restore(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	folder, ok, err := s.mirror.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		s.set(folder)
		s.logger.Info(module, "upload folder restored", map[string]interface{}{"path": folder.Path})
	}
	return s.mirror.Watch(ctx, s.set)
}

func (s *Session) set(folder models.Folder) {
	s.mu.Lock()
	s.current = folder
	s.mu.Unlock()
}

func (s *Session) save(ctx context.Context, folder models.Folder) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Save(ctx, folder); err != nil {
		s.logger.Warn(module, "failed to mirror upload folder", map[string]interface{}{"error": err.Error()})
	}
}
