package store

import (
	"sort"
	"sync"

	"sellzy/internal/domain/entity"
)

// ConversationStore is the in-memory cache of conversation summaries for one
// session. The conversation service owns the source of truth; this store is a
// disposable projection kept sorted by recency. Mutated only by the session
// controller and inbound-event handlers; everything else reads.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations []*entity.Conversation
	touched       map[string]int64
	seq           int64
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		touched: make(map[string]int64),
	}
}

// ListAll returns the conversations ordered by last-message time descending.
// Ties (including conversations with no messages yet, which sort last) break
// toward the most recently touched entry.
func (s *ConversationStore) ListAll() []*entity.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Get returns the cached summary for id, or nil.
func (s *ConversationStore) Get(id string) *entity.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Upsert replaces the conversation by id if present, otherwise adds it, and
// re-sorts. Callers never observe an unsorted view.
func (s *ConversationStore) Upsert(conversation *entity.Conversation) {
	if conversation == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, c := range s.conversations {
		if c.ID == conversation.ID {
			s.conversations[i] = conversation
			replaced = true
			break
		}
	}
	if !replaced {
		s.conversations = append(s.conversations, conversation)
	}

	s.seq++
	s.touched[conversation.ID] = s.seq
	s.resort()
}

// Replace swaps the whole cache for a fresh list from the service. This is
// the reconciliation path after (re)connects and refreshes.
func (s *ConversationStore) Replace(conversations []*entity.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make([]*entity.Conversation, 0, len(conversations))
	for _, c := range conversations {
		if c == nil {
			continue
		}
		s.conversations = append(s.conversations, c)
		if _, ok := s.touched[c.ID]; !ok {
			s.seq++
			s.touched[c.ID] = s.seq
		}
	}
	s.resort()
}

// UnreadTotal sums the viewer's unread counters across all conversations.
func (s *ConversationStore) UnreadTotal(viewerID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, c := range s.conversations {
		total += c.UnreadFor(viewerID)
	}
	return total
}

// Clear drops every cached conversation. Used on logout so nothing leaks
// into the next session.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.touched = make(map[string]int64)
	s.seq = 0
}

func (s *ConversationStore) resort() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		a, b := s.conversations[i], s.conversations[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return s.touched[a.ID] > s.touched[b.ID]
	})
}
