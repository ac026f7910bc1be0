// Package auth decides who may drive the bot: Telegram admins by user id, and HTTP
// callers by the admin API key.
package auth

import (
	"crypto/subtle"
	"errors"
)

// Service holds the admin allowlist and the admin API key.
type Service struct {
	admins     map[int64]struct{}
	apiKey     string
	headerName string
	keyHeader  string
}

func NewService(apiKey string, adminIDs []int64) *Service {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Service{
		admins:     admins,
		apiKey:     apiKey,
		headerName: "Authorization",
		keyHeader:  "X-Admin-Key",
	}
}

// IsAdmin reports whether the Telegram user may use the bot.
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// Admins returns the number of allowed Telegram users.
func (s *Service) Admins() int {
	return len(s.admins)
}

// ValidateKey checks an API key presented over HTTP.
func (s *Service) ValidateKey(key string) error {
	if s.apiKey == "" {
		return errors.New("admin api is disabled")
	}
	if key == "" {
		return errors.New("api key required")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
		return errors.New("invalid api key")
	}
	return nil
}
