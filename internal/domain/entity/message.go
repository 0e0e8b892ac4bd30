package entity

import "time"

// Delivery status of a locally known message. Realtime sends start out
// pending and are confirmed by the server echo; everything fetched from or
// persisted by the service is confirmed.
const (
	DeliveryPending   = "pending"
	DeliveryConfirmed = "confirmed"
	DeliveryFailed    = "failed"
)

type Attachment struct {
	AttachmentID string `json:"attachmentId"`
	FileName     string `json:"fileName"`
	ContentType  string `json:"contentType"`
	FileSize     int64  `json:"fileSize"`
	URL          string `json:"url"`
}

type Message struct {
	ID             string                        `json:"id"`
	ConversationID string                        `json:"conversationId"`
	SenderID       int64                         `json:"senderId"`
	SenderType     ParticipantType               `json:"senderType"`
	Content        string                        `json:"content"`
	Attachments    []Attachment                  `json:"attachments,omitempty"`
	SentAt         time.Time                     `json:"sentAt"`
	DeliveredAt    time.Time                     `json:"deliveredAt,omitempty"`
	ReadBy         map[ParticipantType]time.Time `json:"readBy,omitempty"`

	// Delivery is client-side only: it tracks the two-phase lifecycle of an
	// optimistic realtime send and is never sent to the service.
	Delivery string `json:"-"`

	// LocalID is the client-generated id a pending message is keyed by until
	// the server echo assigns the authoritative one.
	LocalID string `json:"-"`
}
