package selection

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivebot/internal/models"
)

func twoFolders() map[string]models.Folder {
	return map[string]models.Folder{
		"f1": {Path: "/f1", Name: "Docs"},
		"f2": {Path: "/a/f2", Name: "Docs old"},
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	s := NewStore(time.Minute, time.Minute)
	id := s.Put(1, models.MessageRef{ChatID: 1, MessageID: 3}, twoFolders())

	folder, err := s.Consume(id, "f2")
	require.NoError(t, err)
	assert.Equal(t, models.Folder{Path: "/a/f2", Name: "Docs old"}, folder)

	_, err = s.Consume(id, "f2")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = s.Consume(id, "f1")
	assert.ErrorIs(t, err, ErrTokenNotFound, "sibling choices die with the token")
	assert.Equal(t, 0, s.Len())
}

func TestUnknownChoiceKeepsToken(t *testing.T) {
	s := NewStore(time.Minute, time.Minute)
	id := s.Put(1, models.MessageRef{}, twoFolders())

	_, err := s.Consume(id, "nope")
	require.ErrorIs(t, err, ErrUnknownChoice)

	_, err = s.Consume(id, "f1")
	require.NoError(t, err)
}

func TestTokenIDsAreUnique(t *testing.T) {
	s := NewStore(time.Minute, time.Minute)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := s.Put(1, models.MessageRef{}, nil)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	s := NewStore(time.Minute, time.Minute)
	id := s.Put(1, models.MessageRef{}, twoFolders())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(id, "f1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestExpiredTokensAreCollected(t *testing.T) {
	s := NewStore(10*time.Millisecond, time.Hour)

	var expired []Expired
	s.OnExpire(func(e Expired) { expired = append(expired, e) })

	stale := s.Put(5, models.MessageRef{}, twoFolders())
	s.SetPrompt(stale, models.MessageRef{ChatID: 5, MessageID: 42})
	used := s.Put(5, models.MessageRef{}, twoFolders())
	_, err := s.Consume(used, "f1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = s.Consume(stale, "f1")
	assert.ErrorIs(t, err, ErrTokenNotFound, "expired tokens cannot be used before the sweep")

	s.Sweep()
	assert.Equal(t, 0, s.Len())
	require.Len(t, expired, 1)
	assert.Equal(t, stale, expired[0].ID)
	assert.Equal(t, models.MessageRef{ChatID: 5, MessageID: 42}, expired[0].Prompt)
}

func TestDiscardDoesNotFireExpiry(t *testing.T) {
	s := NewStore(time.Minute, time.Hour)
	fired := false
	s.OnExpire(func(Expired) { fired = true })

	id := s.Put(1, models.MessageRef{}, twoFolders())
	s.Discard(id)

	assert.False(t, fired)
	_, err := s.Consume(id, "f1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
