package repository

import (
	"context"
	"time"

	"sellzy/internal/domain/entity"
)

// MessagePage bounds a page request against the message log. Before is an
// optional upper bound on sentAt; zero means "most recent".
type MessagePage struct {
	Page   int
	Size   int
	Before time.Time
}

// ChatService is the external conversation/message service. It is the source
// of truth for everything the client caches; all methods map to REST calls
// carrying the session bearer credential.
type ChatService interface {
	// ListConversations returns every conversation the authenticated
	// participant belongs to, unsorted; ordering is the caller's concern.
	ListConversations(ctx context.Context) ([]*entity.Conversation, error)

	// CreateConversationWithSeller finds or creates the unique conversation
	// between the authenticated buyer and the given seller.
	CreateConversationWithSeller(ctx context.Context, sellerID int64) (*entity.Conversation, error)

	// CreateConversationWithCustomer is the seller-initiated counterpart.
	CreateConversationWithCustomer(ctx context.Context, userID int64) (*entity.Conversation, error)

	// ListMessages returns one server page of messages, newest first.
	ListMessages(ctx context.Context, conversationID string, page MessagePage) ([]*entity.Message, error)

	// MarkRead zeroes the caller's unread counter and returns the updated
	// conversation summary.
	MarkRead(ctx context.Context, conversationID string) (*entity.Conversation, error)

	// SendMessage is the fallback delivery path: a synchronous POST that
	// returns the persisted message.
	SendMessage(ctx context.Context, conversationID, content string) (*entity.Message, error)
}
