package domain

import "time"

// RoomKind distinguishes what a conversation is bound to.
type RoomKind string

const (
	RoomKindDirect   RoomKind = "direct"
	RoomKindGroup    RoomKind = "group"
	RoomKindListing  RoomKind = "listing"
	RoomKindExchange RoomKind = "exchange"
)

// Room is a conversation context. Listing/exchange bindings are opaque to the
// chat core; the originating collaborator passes them at creation time.
type Room struct {
	ID           string    `json:"id"`
	Kind         RoomKind  `json:"kind"`
	Participants []string  `json:"participants"`
	ListingID    string    `json:"listing_id,omitempty"`
	ExchangeID   string    `json:"exchange_id,omitempty"`
	LastMessage  string    `json:"last_message_id,omitempty"`
	UnreadCount  int       `json:"unread_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasParticipant reports whether the user belongs to the room.
func (r Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
