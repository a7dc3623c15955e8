package model

import (
	"time"
)

// EventType represents the type of session event.
type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventMessageReplaced EventType = "message_replaced"
	EventStateChanged    EventType = "state_changed"
	EventSessionClosed   EventType = "session_closed"
)

// SessionEvent describes one mutation of a conversation session. ScrollTo is
// the index of the newest message once the whole batch of events from that
// mutation is applied, not as of this event's message: the user message of a
// submit already carries the index of the pending placeholder after it.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Message   *Message  `json:"message,omitempty"`
	Index     int       `json:"index"`
	State     string    `json:"state"`
	ScrollTo  int       `json:"scroll_to"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSnapshot is a point-in-time copy of a session.
type SessionSnapshot struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	State     string    `json:"state"`
	Messages  []Message `json:"messages"`
	ScrollTo  int       `json:"scroll_to"`
	CreatedAt time.Time `json:"created_at"`
}
