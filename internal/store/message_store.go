package store

import (
	"context"
	"sync"

	"sellzy/internal/domain/entity"
	"sellzy/internal/domain/repository"
	"sellzy/pkg/errors"
)

// MessageStore holds the per-conversation message logs, lazily populated on
// first open. Like the conversation store it is a disposable projection; the
// EnsureLoaded fetch is the only path that refreshes a log from the source
// of truth.
type MessageStore struct {
	mu       sync.Mutex
	service  repository.ChatService
	pageSize int
	logs     map[string][]*entity.Message
	inflight map[string]chan struct{}
}

func NewMessageStore(service repository.ChatService, pageSize int) *MessageStore {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &MessageStore{
		service:  service,
		pageSize: pageSize,
		logs:     make(map[string][]*entity.Message),
		inflight: make(map[string]chan struct{}),
	}
}

// EnsureLoaded fetches the most recent page of messages for the conversation
// if no log entry exists yet, reversing the service's newest-first order into
// chronological order. A second call with cached data performs no fetch.
func (s *MessageStore) EnsureLoaded(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.BadRequest("conversation id is required", nil)
	}

	s.mu.Lock()
	if _, ok := s.logs[conversationID]; ok {
		s.mu.Unlock()
		return nil
	}
	if wait, ok := s.inflight[conversationID]; ok {
		// Another caller is already filling this log.
		s.mu.Unlock()
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	s.inflight[conversationID] = done
	s.mu.Unlock()

	page := repository.MessagePage{Page: 0, Size: s.pageSize}
	messages, err := s.service.ListMessages(ctx, conversationID, page)

	s.mu.Lock()
	delete(s.inflight, conversationID)
	close(done)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	chronological := make([]*entity.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		chronological = append(chronological, messages[i])
	}

	// An inbound push may have created the log while the fetch was in
	// flight; merge those messages back in rather than dropping them.
	existing := s.logs[conversationID]
	s.logs[conversationID] = chronological
	for _, m := range existing {
		s.insertLocked(conversationID, m)
	}
	s.mu.Unlock()
	return nil
}

// Messages returns the chronological log for a conversation. A nil result
// means the conversation has never been loaded or touched.
func (s *MessageStore) Messages(conversationID string) []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[conversationID]
	if !ok {
		return nil
	}
	out := make([]*entity.Message, len(log))
	copy(out, log)
	return out
}

// Append adds a confirmed message to the conversation's log, creating the
// log if it does not exist. Messages are kept in non-decreasing sentAt order:
// the common in-order case is a plain append, a late arrival is inserted at
// its position.
func (s *MessageStore) Append(conversationID string, message *entity.Message) {
	if message == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(conversationID, message)
}

// AppendPending adds a tentative local message awaiting its server echo.
// Pending entries always go to the end of the log.
func (s *MessageStore) AppendPending(conversationID string, message *entity.Message) {
	if message == nil {
		return
	}
	message.Delivery = entity.DeliveryPending

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[conversationID] = append(s.logs[conversationID], message)
}

// ConfirmEcho matches a server-pushed message against the oldest pending
// entry with the same sender and content, replacing it in place. Returns
// false when no pending entry matches, in which case the caller should
// append the message normally.
func (s *MessageStore) ConfirmEcho(conversationID string, message *entity.Message) bool {
	if message == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[conversationID]
	for i, m := range log {
		if m.Delivery == entity.DeliveryPending &&
			m.SenderID == message.SenderID &&
			m.Content == message.Content {
			message.Delivery = entity.DeliveryConfirmed
			// Drop the tentative entry and re-insert at the authoritative
			// sentAt position.
			s.logs[conversationID] = append(log[:i], log[i+1:]...)
			s.insertLocked(conversationID, message)
			return true
		}
	}
	return false
}

// MarkFailed tags a pending local message as failed.
func (s *MessageStore) MarkFailed(conversationID, localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.logs[conversationID] {
		if m.LocalID == localID {
			m.Delivery = entity.DeliveryFailed
			return
		}
	}
}

// RemoveLocal drops a tentative local message, e.g. before retrying over the
// fallback path.
func (s *MessageStore) RemoveLocal(conversationID, localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[conversationID]
	for i, m := range log {
		if m.LocalID == localID {
			s.logs[conversationID] = append(log[:i], log[i+1:]...)
			return
		}
	}
}

// Clear drops every log. Used on logout.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = make(map[string][]*entity.Message)
}

func (s *MessageStore) insertLocked(conversationID string, message *entity.Message) {
	log := s.logs[conversationID]

	if message.Delivery == entity.DeliveryPending {
		s.logs[conversationID] = append(log, message)
		return
	}

	// Pending entries hold the tail of the log until their echo arrives;
	// a confirmed message never passes them on the way in.
	end := len(log)
	for end > 0 && log[end-1].Delivery == entity.DeliveryPending {
		end--
	}

	// Fast path: in-order arrival.
	if end == len(log) && (end == 0 || !log[end-1].SentAt.After(message.SentAt)) {
		s.logs[conversationID] = append(log, message)
		return
	}

	i := end
	for i > 0 && log[i-1].SentAt.After(message.SentAt) {
		i--
	}
	log = append(log, nil)
	copy(log[i+1:], log[i:])
	log[i] = message
	s.logs[conversationID] = log
}
