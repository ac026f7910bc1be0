// Package selection keeps the server side of inline-keyboard choices: each token maps
// the keys carried by a keyboard's buttons to the folders they stand for. Tokens are
// single use and expire after a TTL so abandoned keyboards are collected.
package selection

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"drivebot/internal/models"
)

const (
	DefaultTTL   = 5 * time.Minute
	DefaultSweep = time.Minute
)

var (
	ErrTokenNotFound = errors.New("selection: token expired or already used")
	ErrUnknownChoice = errors.New("selection: choice is not part of the token")
)

// Token is one presented keyboard.
type Token struct {
	ID        string
	ChatID    int64
	Prompt    models.MessageRef
	Choices   map[string]models.Folder
	CreatedAt time.Time

	consumed atomic.Bool
}

// Store is the process-wide table of live tokens.
type Store struct {
	mu       sync.Mutex
	cache    *cache.Cache
	seq      atomic.Uint64
	onExpire atomic.Pointer[func(Expired)]
}

// Expired describes a token the janitor collected before anyone chose from it.
type Expired struct {
	ID     string
	ChatID int64
	Prompt models.MessageRef
}

// NewStore creates a store whose tokens live for ttl and are swept every sweep.
func NewStore(ttl, sweep time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweep <= 0 {
		sweep = DefaultSweep
	}
	s := &Store{cache: cache.New(ttl, sweep)}
	s.cache.OnEvicted(func(_ string, v interface{}) {
		tok, ok := v.(*Token)
		if !ok || tok.consumed.Load() {
			return
		}
		fn := s.onExpire.Load()
		if fn == nil {
			return
		}
		s.mu.Lock()
		exp := Expired{ID: tok.ID, ChatID: tok.ChatID, Prompt: tok.Prompt}
		s.mu.Unlock()
		(*fn)(exp)
	})
	return s
}

// OnExpire registers fn to run when an unused token is swept.
func (s *Store) OnExpire(fn func(Expired)) {
	if fn == nil {
		s.onExpire.Store(nil)
		return
	}
	s.onExpire.Store(&fn)
}

// Put stores a new token and returns its id.
func (s *Store) Put(chatID int64, prompt models.MessageRef, choices map[string]models.Folder) string {
	id := strconv.FormatUint(s.seq.Add(1), 36)
	tok := &Token{
		ID:        id,
		ChatID:    chatID,
		Prompt:    prompt,
		Choices:   choices,
		CreatedAt: time.Now(),
	}
	s.cache.Set(id, tok, cache.DefaultExpiration)
	return id
}

// SetPrompt records the message that shows the token's keyboard.
func (s *Store) SetPrompt(id string, prompt models.MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(id); ok {
		v.(*Token).Prompt = prompt
	}
}

// Consume resolves key within token id and deletes the whole token. A key the token
// does not know leaves the token in place.
func (s *Store) Consume(id, key string) (models.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(id)
	if !ok {
		return models.Folder{}, ErrTokenNotFound
	}
	tok := v.(*Token)
	folder, ok := tok.Choices[key]
	if !ok {
		return models.Folder{}, ErrUnknownChoice
	}
	tok.consumed.Store(true)
	s.cache.Delete(id)
	return folder, nil
}

// Discard drops a token without firing the expiry hook.
func (s *Store) Discard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(id); ok {
		v.(*Token).consumed.Store(true)
		s.cache.Delete(id)
	}
}

// Sweep removes expired tokens now instead of waiting for the janitor. It must not be
// called while holding the store lock.
func (s *Store) Sweep() {
	s.cache.DeleteExpired()
}

// Len returns the number of stored tokens, including expired ones not yet swept.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
