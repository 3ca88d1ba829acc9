package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EntryKind tells what a timeline entry holds.
type EntryKind string

const (
	EntryStatus       EntryKind = "status"
	EntryNotification EntryKind = "notification"
)

// Entry is an opaque timeline record keyed by a stable id.
type Entry struct {
	ID   string    `json:"id"`
	Kind EntryKind `json:"kind"`

	// RefID is the id of the status this entry wraps: the original of a
	// reblog, or the status a notification points at.
	RefID string `json:"ref_id,omitempty"`

	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Matches reports whether a delete or replace for id concerns this entry.
func (e Entry) Matches(id string) bool {
	if id == "" {
		return false
	}
	return e.ID == id || e.RefID == id
}

// ReplaceStatus returns e with status swapped in. The second result is false
// when e does not hold status.
func (e Entry) ReplaceStatus(status Entry) (Entry, bool) {
	if e.ID == status.ID && e.Kind == status.Kind {
		return status, true
	}
	if e.RefID == "" || e.RefID != status.ID {
		return e, false
	}

	field := "reblog"
	if e.Kind == EntryNotification {
		field = "status"
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &fields); err != nil {
		return e, false
	}
	fields[field] = status.Payload
	payload, err := json.Marshal(fields)
	if err != nil {
		return e, false
	}
	out := e
	out.Payload = payload
	return out, true
}

type statusRef struct {
	ID string `json:"id"`
}

type statusPayload struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Reblog    *statusRef `json:"reblog"`
}

type notificationPayload struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
	Status    *statusRef `json:"status"`
}

// DecodeStatus parses a status payload.
func DecodeStatus(payload json.RawMessage) (Entry, error) {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Entry{}, fmt.Errorf("%w: status: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return Entry{}, fmt.Errorf("%w: status: %v", ErrMalformedPayload, ErrMissingEntryID)
	}
	entry := Entry{
		ID:        p.ID,
		Kind:      EntryStatus,
		CreatedAt: p.CreatedAt,
		Payload:   cloneRaw(payload),
	}
	if p.Reblog != nil {
		entry.RefID = p.Reblog.ID
	}
	return entry, nil
}

// DecodeNotification parses a notification payload.
func DecodeNotification(payload json.RawMessage) (Entry, error) {
	var p notificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Entry{}, fmt.Errorf("%w: notification: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return Entry{}, fmt.Errorf("%w: notification: %v", ErrMalformedPayload, ErrMissingEntryID)
	}
	entry := Entry{
		ID:        p.ID,
		Kind:      EntryNotification,
		CreatedAt: p.CreatedAt,
		Payload:   cloneRaw(payload),
	}
	if p.Status != nil {
		entry.RefID = p.Status.ID
	}
	return entry, nil
}

// NotificationType returns the "type" field of a notification payload.
func NotificationType(payload json.RawMessage) string {
	var p notificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.Type
}

// DecodeDeletedID parses the id carried by a delete event. Both a JSON string
// and a bare id are accepted.
func DecodeDeletedID(payload json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: delete: %v", ErrMalformedPayload, ErrMissingEntryID)
	}
	if trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", fmt.Errorf("%w: delete: %v", ErrMalformedPayload, err)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return "", fmt.Errorf("%w: delete: %v", ErrMalformedPayload, ErrMissingEntryID)
		}
		return id, nil
	}
	if bytes.ContainsAny(trimmed, "{}[]\" ") {
		return "", fmt.Errorf("%w: delete: unexpected %q", ErrMalformedPayload, trimmed)
	}
	return string(trimmed), nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
