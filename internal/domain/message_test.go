package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Before(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	earlier := Message{ID: "z", CreatedAt: base}
	later := Message{ID: "a", CreatedAt: base.Add(time.Second)}
	assert.True(t, earlier.Before(later), "timestamp dominates id")
	assert.False(t, later.Before(earlier))

	// Equal timestamps fall back to the id tiebreak.
	tieA := Message{ID: "m1", CreatedAt: base}
	tieB := Message{ID: "m2", CreatedAt: base}
	assert.True(t, tieA.Before(tieB))
	assert.False(t, tieB.Before(tieA))
	assert.False(t, tieA.Before(tieA), "the order is strict")
}

func TestOutboundMessage_Validate(t *testing.T) {
	valid := OutboundMessage{Body: "hello", Type: MessageTypeText}
	assert.NoError(t, valid.Validate())

	assert.Error(t, OutboundMessage{Type: MessageTypeText}.Validate(), "body is required")
	assert.Error(t, OutboundMessage{Body: "hi", Type: "carrier-pigeon"}.Validate(), "unknown type")
	assert.Error(t, OutboundMessage{Body: "hi", Type: MessageTypeText, AttachmentURL: "not a url"}.Validate())

	long := make([]byte, 4001)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, OutboundMessage{Body: string(long), Type: MessageTypeText}.Validate(), "body over 4000 runes")
}

func TestRoom_HasParticipant(t *testing.T) {
	room := Room{ID: "r1", Participants: []string{"alice", "bob"}}
	assert.True(t, room.HasParticipant("alice"))
	assert.False(t, room.HasParticipant("carol"))
}
