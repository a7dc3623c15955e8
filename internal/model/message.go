// Package model defines data structures for the navigation assistant.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus marks whether a message is final or a placeholder awaiting a reply.
type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusComplete MessageStatus = "complete"
)

// Message is one entry of a conversation session.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// IsPending reports whether m is the placeholder for an outstanding reply.
func (m Message) IsPending() bool {
	return m.Status == StatusPending
}

// SendMessageRequest is the request to submit user input to a session.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SubmitResponse acknowledges an accepted submit.
type SubmitResponse struct {
	Accepted bool   `json:"accepted"`
	State    string `json:"state"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	State    string    `json:"state"`
	ScrollTo int       `json:"scroll_to"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
