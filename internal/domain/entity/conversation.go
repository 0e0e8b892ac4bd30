package entity

import "time"

type ParticipantType string

const (
	ParticipantUser   ParticipantType = "USER"
	ParticipantSeller ParticipantType = "SELLER"
)

// Participant is the denormalized snapshot of one side of a conversation,
// as the conversation service serializes it.
type Participant struct {
	ParticipantID   int64           `json:"participantId"`
	ParticipantType ParticipantType `json:"participantType"`
	DisplayName     string          `json:"displayName"`
	AvatarURL       string          `json:"avatarUrl,omitempty"`
}

// Conversation is a buyer-seller messaging thread summary. The service owns
// the source of truth; the client keeps these only as a disposable cache.
type Conversation struct {
	ID                 string      `json:"id"`
	User               Participant `json:"user"`
	Seller             Participant `json:"seller"`
	LastMessageSnippet string      `json:"lastMessageSnippet,omitempty"`
	LastMessageAt      time.Time   `json:"lastMessageAt,omitempty"`
	UserUnreadCount    int         `json:"userUnreadCount"`
	SellerUnreadCount  int         `json:"sellerUnreadCount"`
}

// PartnerOf returns the counterpart participant from the viewer's
// perspective: the user half when the viewer is the seller, and vice versa.
func (c *Conversation) PartnerOf(viewerID int64) Participant {
	if c.Seller.ParticipantID == viewerID {
		return c.User
	}
	return c.Seller
}

// UnreadFor returns the unread counter belonging to the viewer, i.e. the
// counter for whichever role the viewer occupies in this conversation.
func (c *Conversation) UnreadFor(viewerID int64) int {
	if c.Seller.ParticipantID == viewerID {
		return c.SellerUnreadCount
	}
	return c.UserUnreadCount
}
