package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sellzy/internal/domain/entity"
	"sellzy/internal/domain/repository"
	"sellzy/internal/infrastructure/stomp"
	"sellzy/internal/store"
	"sellzy/pkg/auth"
	"sellzy/pkg/errors"
	"sellzy/pkg/logger"
)

// Connection states of a chat session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateDegraded means the REST service is reachable but the realtime
	// link is not; sends silently take the fallback path.
	StateDegraded State = "degraded"
)

// Broker destinations, matching the conversation service's STOMP layout.
const (
	DestInboundMessages      = "/user/queue/chat/messages"
	DestInboundConversations = "/user/queue/chat/conversations"
	DestSend                 = "/app/chat/send"
)

// Transport is the realtime push link the session owns. Only the session
// may activate or deactivate it.
type Transport interface {
	Activate(ctx context.Context, events stomp.Events)
	Deactivate()
	Subscribe(destination string, handler func(body []byte)) error
	Publish(destination string, body []byte) error
	Connected() bool
}

// Notifier receives one-shot user-visible notifications (transport drops,
// load failures, send failures). The default just logs.
type Notifier func(message string)

type ChatSessionOptions struct {
	// CurrentUserID overrides the participant id derived from the token
	// claims when the token does not carry one.
	CurrentUserID int64
	Notify        Notifier
}

// ChatSession is the orchestrating controller for one authenticated chat
// session: it owns the connection lifecycle, the per-session caches, and
// every conversation/message operation the UI calls.
type ChatSession struct {
	service   repository.ChatService
	transport Transport

	conversations *store.ConversationStore
	messages      *store.MessageStore

	notify Notifier

	mu         sync.Mutex
	credential *auth.Credential
	userID     int64
	state      State
	activeID   string
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewChatSession(
	service repository.ChatService,
	transport Transport,
	conversations *store.ConversationStore,
	messages *store.MessageStore,
	credential *auth.Credential,
	opts ChatSessionOptions,
) *ChatSession {
	notify := opts.Notify
	if notify == nil {
		notify = func(message string) { logger.Warn("%s", message) }
	}

	userID := opts.CurrentUserID
	if userID == 0 && credential != nil {
		userID = credential.UserID
	}

	return &ChatSession{
		service:       service,
		transport:     transport,
		conversations: conversations,
		messages:      messages,
		notify:        notify,
		credential:    credential,
		userID:        userID,
		state:         StateDisconnected,
	}
}

// Connect starts the session: kicks off the initial conversation-list load
// and activates the realtime transport. Without a valid credential the
// session stays disconnected and exposes nothing.
func (s *ChatSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if !s.credential.Valid() {
		s.mu.Unlock()
		return errors.Unauthorized("no valid session credential", nil)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateConnecting
	runCtx := s.ctx
	s.mu.Unlock()

	go s.refreshConversations(runCtx)

	s.transport.Activate(runCtx, stomp.Events{
		OnConnect: s.handleConnected,
		OnError:   s.handleTransportError,
	})
	return nil
}

// Logout tears the session down: the transport is deactivated, in-flight
// work is cancelled, and both caches are cleared so nothing leaks into the
// next user's session.
func (s *ChatSession) Logout() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = nil, nil
	s.credential = nil
	s.activeID = ""
	s.state = StateDisconnected
	s.mu.Unlock()

	s.transport.Deactivate()
	s.conversations.Clear()
	s.messages.Clear()
	logger.Info("Chat session closed")
}

func (s *ChatSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ChatSession) CurrentUserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Conversations returns the cached summaries, most recent first.
func (s *ChatSession) Conversations() []*entity.Conversation {
	return s.conversations.ListAll()
}

// Messages returns the chronological log for one conversation.
func (s *ChatSession) Messages(conversationID string) []*entity.Message {
	return s.messages.Messages(conversationID)
}

// UnreadTotal is the badge count: the viewer's unread counters summed.
func (s *ChatSession) UnreadTotal() int {
	return s.conversations.UnreadTotal(s.CurrentUserID())
}

// ReplaceConversations feeds a freshly fetched list into the cache, the
// same way the session's own refresh path does.
func (s *ChatSession) ReplaceConversations(conversations []*entity.Conversation) {
	s.conversations.Replace(conversations)
}

func (s *ChatSession) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// OpenConversation makes a conversation active, lazily loads its message
// log, and marks it read. Mark-read is best-effort: failures are logged,
// never surfaced, and do not block the open.
func (s *ChatSession) OpenConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.BadRequest("conversation id is required", nil)
	}

	s.mu.Lock()
	s.activeID = conversationID
	s.mu.Unlock()

	if err := s.messages.EnsureLoaded(ctx, conversationID); err != nil {
		s.notify("Failed to load messages")
		logger.Error("OpenConversation: failed to load messages for %s: %v", conversationID, err)
		return err
	}

	if updated, err := s.service.MarkRead(ctx, conversationID); err != nil {
		logger.Warn("OpenConversation: failed to mark %s as read: %v", conversationID, err)
	} else if updated != nil {
		s.conversations.Upsert(updated)
	}
	return nil
}

// StartConversationWithSeller finds or creates the buyer's conversation with
// a seller and opens it. On failure the caller gets no conversation handle.
func (s *ChatSession) StartConversationWithSeller(ctx context.Context, sellerID int64) (*entity.Conversation, error) {
	conversation, err := s.service.CreateConversationWithSeller(ctx, sellerID)
	if err != nil {
		s.notify("Failed to start conversation")
		logger.Error("StartConversationWithSeller: seller %d: %v", sellerID, err)
		return nil, err
	}

	s.conversations.Upsert(conversation)
	if err := s.OpenConversation(ctx, conversation.ID); err != nil {
		return conversation, err
	}
	return conversation, nil
}

// StartConversationWithCustomer is the seller-initiated counterpart.
func (s *ChatSession) StartConversationWithCustomer(ctx context.Context, userID int64) (*entity.Conversation, error) {
	conversation, err := s.service.CreateConversationWithCustomer(ctx, userID)
	if err != nil {
		s.notify("Failed to start conversation")
		logger.Error("StartConversationWithCustomer: user %d: %v", userID, err)
		return nil, err
	}

	s.conversations.Upsert(conversation)
	if err := s.OpenConversation(ctx, conversation.ID); err != nil {
		return conversation, err
	}
	return conversation, nil
}

type outboundMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// SendMessage delivers a message, preferring the realtime publish and
// falling back to the synchronous REST path when no live connection exists.
// Blank content and missing conversation ids are silently dropped; neither
// path is ever invoked for them.
func (s *ChatSession) SendMessage(ctx context.Context, conversationID, content string) error {
	if conversationID == "" || strings.TrimSpace(content) == "" {
		return nil
	}

	if s.transport.Connected() {
		return s.sendRealtime(ctx, conversationID, content)
	}
	return s.sendFallback(ctx, conversationID, content)
}

// sendRealtime publishes over the broker after appending a tentative local
// entry; the server echo confirms it. If the publish itself fails, the
// fallback path takes over: its result replaces the tentative entry, and
// when the fallback fails too the entry stays in the log marked failed.
func (s *ChatSession) sendRealtime(ctx context.Context, conversationID, content string) error {
	pending := &entity.Message{
		LocalID:        uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       s.CurrentUserID(),
		Content:        content,
		SentAt:         time.Now(),
	}
	s.messages.AppendPending(conversationID, pending)

	body, _ := json.Marshal(outboundMessage{
		ConversationID: conversationID,
		Content:        content,
	})

	if err := s.transport.Publish(DestSend, body); err != nil {
		logger.Warn("SendMessage: realtime publish failed, using fallback: %v", err)
		if fallbackErr := s.sendFallback(ctx, conversationID, content); fallbackErr != nil {
			s.messages.MarkFailed(conversationID, pending.LocalID)
			return fallbackErr
		}
		s.messages.RemoveLocal(conversationID, pending.LocalID)
	}
	return nil
}

// sendFallback POSTs the message and appends the persisted result directly;
// there is no server push to rely on for this path. Failed sends leave no
// orphaned entry in the log.
func (s *ChatSession) sendFallback(ctx context.Context, conversationID, content string) error {
	message, err := s.service.SendMessage(ctx, conversationID, content)
	if err != nil {
		s.notify("Failed to send message")
		logger.Error("SendMessage: fallback send to %s failed: %v", conversationID, err)
		return err
	}

	s.messages.Append(conversationID, message)
	return nil
}

// handleConnected runs after every successful broker connect, including
// reconnects: subscriptions never survive a reconnect, so both per-user
// destinations are re-subscribed, then the conversation list is refetched to
// reconcile unread counts missed while degraded.
func (s *ChatSession) handleConnected() {
	if err := s.transport.Subscribe(DestInboundMessages, s.handleInboundMessage); err != nil {
		logger.Error("Failed to subscribe to inbound messages: %v", err)
		return
	}
	if err := s.transport.Subscribe(DestInboundConversations, s.handleConversationUpdate); err != nil {
		logger.Error("Failed to subscribe to conversation updates: %v", err)
		return
	}

	s.mu.Lock()
	s.state = StateConnected
	runCtx := s.ctx
	s.mu.Unlock()

	logger.Info("Chat session connected")
	if runCtx != nil {
		go s.refreshConversations(runCtx)
	}
}

// handleTransportError degrades the session without tearing down any state;
// the transport keeps retrying on its own. The notification is one-shot per
// transition into the degraded state.
func (s *ChatSession) handleTransportError(err error) {
	s.mu.Lock()
	wasLive := s.state == StateConnected || s.state == StateConnecting
	if wasLive {
		s.state = StateDegraded
	}
	s.mu.Unlock()

	if wasLive {
		s.notify("Chat connection lost; messages will be sent directly")
	}
	logger.Debug("Transport error: %v", err)
}

func (s *ChatSession) handleInboundMessage(body []byte) {
	var message entity.Message
	if err := json.Unmarshal(body, &message); err != nil {
		logger.Error("Failed to decode inbound chat message: %v", err)
		return
	}
	message.Delivery = entity.DeliveryConfirmed

	if message.SenderID == s.CurrentUserID() &&
		s.messages.ConfirmEcho(message.ConversationID, &message) {
		return
	}
	s.messages.Append(message.ConversationID, &message)
}

// handleConversationUpdate upserts every pushed summary, covering both new
// conversations and unread/preview changes. Unread accounting is entirely
// server-authoritative; nothing is recomputed client-side.
func (s *ChatSession) handleConversationUpdate(body []byte) {
	var conversation entity.Conversation
	if err := json.Unmarshal(body, &conversation); err != nil {
		logger.Error("Failed to decode conversation update: %v", err)
		return
	}
	s.conversations.Upsert(&conversation)
}

// refreshConversations replaces the conversation cache from the source of
// truth. Failures keep the prior cached state; stale-but-present beats
// empty.
func (s *ChatSession) refreshConversations(ctx context.Context) {
	conversations, err := s.service.ListConversations(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.notify("Failed to load conversations")
		logger.Error("Failed to refresh conversation list: %v", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.conversations.Replace(conversations)
}
