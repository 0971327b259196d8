package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

// MessageType describes what a message body carries.
type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeAttachment MessageType = "attachment"
	MessageTypeLocation   MessageType = "location"
	MessageTypeSystem     MessageType = "system"
)

// DeliveryState tracks the local send lifecycle of an optimistic message.
// Messages received from the server are always Delivered.
type DeliveryState string

const (
	// DeliveryPending marks a locally inserted message awaiting server confirmation.
	DeliveryPending DeliveryState = "pending"
	// DeliveryDelivered marks a message confirmed by the server.
	DeliveryDelivered DeliveryState = "delivered"
	// DeliveryFailed marks an optimistic message whose send failed. It stays
	// visible so the user can retry.
	DeliveryFailed DeliveryState = "failed"
)

// Message is a single chat message. Within a room, messages are totally
// ordered by (CreatedAt, ID) and the store never holds two entries with the
// same ID.
type Message struct {
	ID                 string        `json:"id"`
	RoomID             string        `json:"chat_id"`
	AuthorID           string        `json:"author_id"`
	Body               string        `json:"message"`
	Type               MessageType   `json:"message_type"`
	AttachmentURL      string        `json:"attachment_url,omitempty"`
	AttachmentFilename string        `json:"attachment_filename,omitempty"`
	ReplyToID          string        `json:"reply_to_id,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	Edited             bool          `json:"is_edited,omitempty"`
	EditedAt           *time.Time    `json:"edited_at,omitempty"`
	ReadBy             []string      `json:"read_by,omitempty"`
	Delivery           DeliveryState `json:"-"`
}

// Before reports whether m sorts strictly before other in the room's total
// order: creation timestamp first, ID as tiebreak.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// ReadByUser reports whether the given user has a read receipt on the message.
func (m Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// OutboundMessage is the payload for a send request, validated before it
// leaves the client.
type OutboundMessage struct {
	Body               string      `json:"message" validate:"required,max=4000"`
	Type               MessageType `json:"message_type" validate:"required,oneof=text attachment location system"`
	AttachmentURL      string      `json:"attachment_url,omitempty" validate:"omitempty,url"`
	AttachmentFilename string      `json:"attachment_filename,omitempty" validate:"omitempty,max=255"`
	ReplyToID          string      `json:"reply_to_id,omitempty"`
}

// Validate checks the outbound payload against its constraints.
func (o OutboundMessage) Validate() error {
	return validatorInstance.Struct(o)
}
