package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind categorizes streaming events.
type EventKind string

const (
	EventUpdate       EventKind = "update"
	EventNotification EventKind = "notification"
	EventMention      EventKind = "mention"
	EventDelete       EventKind = "delete"
	// EventStatusUpdate replaces a status in place (edit or poll vote).
	EventStatusUpdate EventKind = "status.update"
)

// IsValid reports whether k is a known kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventUpdate, EventNotification, EventMention, EventDelete, EventStatusUpdate:
		return true
	}
	return false
}

// StreamEvent is one event delivered by a channel subscription.
type StreamEvent struct {
	// AccountID is the local account the subscription belongs to.
	AccountID string `json:"account_id"`

	// Channel is the channel that delivered the event.
	Channel Channel `json:"channel"`

	Kind EventKind `json:"kind"`

	// Payload is the raw server payload: a status, a notification, or a
	// JSON string id for deletes.
	Payload json.RawMessage `json:"payload"`

	ReceivedAt time.Time `json:"received_at"`
}

func (e StreamEvent) String() string {
	return fmt.Sprintf("%s/%s/%s", e.AccountID, e.Channel, e.Kind)
}

// NewDeleteEvent builds a delete event for id.
func NewDeleteEvent(accountID string, channel Channel, id string) StreamEvent {
	payload, _ := json.Marshal(id)
	return StreamEvent{
		AccountID:  accountID,
		Channel:    channel,
		Kind:       EventDelete,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
}
