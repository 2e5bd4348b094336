package state

import (
	"sort"
	"sync"

	"github.com/TKeians/xuanxuan/internal/domain"
)

// Store is the in-memory chat cache shared by the sync core. Chats are
// keyed by gid; messages are keyed by (cgid, message gid) so every
// upsert is an idempotent merge by identity, never by position.
type Store struct {
	mu       sync.RWMutex
	chats    map[string]*domain.Chat
	messages map[string]map[string]*domain.ChatMessage
	onChange func()
}

func New(onChange func()) *Store {
	return &Store{
		chats:    make(map[string]*domain.Chat),
		messages: make(map[string]map[string]*domain.ChatMessage),
		onChange: onChange,
	}
}

func (s *Store) SetOnChange(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = f
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// ChatByGid returns the cached chat instance for a gid, or nil. The
// returned pointer is the cached instance itself: direct-chat
// deduplication relies on resolvers getting the same object back.
func (s *Store) ChatByGid(gid string) *domain.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats[gid]
}

// UpdateChat upserts a chat by gid.
func (s *Store) UpdateChat(c *domain.Chat) {
	if c == nil || c.Gid == "" {
		return
	}
	s.mu.Lock()
	s.chats[c.Gid] = c
	s.mu.Unlock()
	s.changed()
}

func (s *Store) Chats() []*domain.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Gid < out[j].Gid })
	return out
}

// UpdateChatMessages upserts message snapshots keyed by message gid.
// Later revisions of the same message overwrite earlier ones, which is
// how attachment progress updates replace their placeholder.
func (s *Store) UpdateChatMessages(msgs ...*domain.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	for _, m := range msgs {
		if m == nil || m.Gid == "" {
			continue
		}
		byGid := s.messages[m.Cgid]
		if byGid == nil {
			byGid = make(map[string]*domain.ChatMessage)
			s.messages[m.Cgid] = byGid
		}
		byGid[m.Gid] = m.Clone()
	}
	s.mu.Unlock()
	s.changed()
}

// Message returns a copy of one cached message, or nil.
func (s *Store) Message(cgid, gid string) *domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m := s.messages[cgid][gid]; m != nil {
		return m.Clone()
	}
	return nil
}

// Messages returns copies of a chat's cached messages ordered by date,
// then by gid for a stable order within the same instant.
func (s *Store) Messages(cgid string) []*domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byGid := s.messages[cgid]
	out := make([]*domain.ChatMessage, 0, len(byGid))
	for _, m := range byGid {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Gid < out[j].Gid
	})
	return out
}

func (s *Store) MessageCount(cgid string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[cgid])
}
