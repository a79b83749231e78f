// Package history keeps the per-connection conversation log. Each
// connection identity owns an ordered, length-bounded sequence of turns
// that exists only while the connection is live.
package history

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxLength bounds a session to five user/assistant exchanges.
const DefaultMaxLength = 10

// Role tags a turn with its speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Immutable once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store maps connection identities to their session history. All methods
// are safe for concurrent use; AppendExchange applies its append and trim
// as one atomic step under the store lock.
type Store struct {
	mu       sync.Mutex
	maxLen   int
	sessions map[string][]Turn
	log      zerolog.Logger
}

// NewStore creates a store bounding each session to maxLen turns.
// maxLen <= 0 selects DefaultMaxLength.
func NewStore(maxLen int) *Store {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	return &Store{
		maxLen:   maxLen,
		sessions: map[string][]Turn{},
		log:      log.With().Str("component", "history").Logger(),
	}
}

// Open creates an empty session for id if none exists. Idempotent.
func (s *Store) Open(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(id)
}

func (s *Store) openLocked(id string) {
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = []Turn{}
		s.log.Debug().Str("conn_id", id).Msg("session opened")
	}
}

// Get returns a copy of the session history for id, opening the session if
// needed so connected callers never observe a missing-key error. The copy
// means callers cannot alias the stored slice.
func (s *Store) Get(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(id)
	turns := s.sessions[id]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// AppendExchange appends a user turn followed by the assistant turn, then
// trims from the front until the session is back within the bound. If the
// session was already closed the write is dropped: the client is gone, so a
// late provider completion has nobody left to read it.
func (s *Store) AppendExchange(id, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns, ok := s.sessions[id]
	if !ok {
		s.log.Debug().Str("conn_id", id).Msg("dropping exchange for closed session")
		return
	}
	turns = append(turns,
		Turn{Role: RoleUser, Content: userText},
		Turn{Role: RoleAssistant, Content: assistantText},
	)
	if len(turns) > s.maxLen {
		turns = turns[len(turns)-s.maxLen:]
		s.log.Debug().Str("conn_id", id).Int("max_len", s.maxLen).Msg("session trimmed")
	}
	s.sessions[id] = turns
}

// Close discards all history for id. Safe to call for ids that were never
// opened.
func (s *Store) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		s.log.Debug().Str("conn_id", id).Msg("session closed")
	}
}

// ExchangeCount reports the number of complete user/assistant pairs stored
// for id. Diagnostics only.
func (s *Store) ExchangeCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[id]) / 2
}

// Len reports the number of turns stored for id.
func (s *Store) Len(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[id])
}
