package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"drivebot/internal/logger"
	"drivebot/internal/models"
	"drivebot/internal/redis"
)

const (
	redisFolderKey         = "drivebot:session:folder"
	redisInvalidateChannel = "drivebot:session:invalidate"
)

type invalidateMessage struct {
	Instance string        `json:"instance"`
	Folder   models.Folder `json:"folder"`
}

// RedisMirror keeps the upload folder in redis and broadcasts changes so every bot
// instance sharing the redis database agrees on the target.
type RedisMirror struct {
	client   *redis.Client
	instance string
	logger   logger.ILogger
}

func NewRedisMirror(client *redis.Client, log logger.ILogger) *RedisMirror {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisMirror{client: client, instance: uuid.NewString(), logger: log}
}

func (m *RedisMirror) Save(ctx context.Context, folder models.Folder) error {
	if folder.IsZero() {
		if err := m.client.Del(ctx, redisFolderKey); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
			return fmt.Errorf("clear folder: %w", err)
		}
	} else {
		data, err := json.Marshal(folder)
		if err != nil {
			return fmt.Errorf("marshal folder: %w", err)
		}
		if err := m.client.Set(ctx, redisFolderKey, data, 0); err != nil {
			return fmt.Errorf("store folder: %w", err)
		}
	}
	payload, err := json.Marshal(invalidateMessage{Instance: m.instance, Folder: folder})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if err := m.client.Publish(ctx, redisInvalidateChannel, payload); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (m *RedisMirror) Load(ctx context.Context) (models.Folder, bool, error) {
	raw, err := m.client.Get(ctx, redisFolderKey)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return models.Folder{}, false, nil
		}
		return models.Folder{}, false, fmt.Errorf("load folder: %w", err)
	}
	var folder models.Folder
	if err := json.Unmarshal([]byte(raw), &folder); err != nil {
		return models.Folder{}, false, fmt.Errorf("decode folder: %w", err)
	}
	return folder, !folder.IsZero(), nil
}

// Watch applies folders published by other instances.
func (m *RedisMirror) Watch(ctx context.Context, apply func(models.Folder)) error {
	return m.client.Subscribe(ctx, redisInvalidateChannel, func(payload string) {
		var msg invalidateMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			m.logger.Warn(module, "invalidation decode failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if msg.Instance == m.instance {
			return
		}
		apply(msg.Folder)
	})
}
