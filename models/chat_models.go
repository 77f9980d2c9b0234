package models

import (
	"fmt"
	"strconv"
	"time"
)

// ChatRequest is the body a host posts to /chat: the whole message list
// plus loose metadata.
type ChatRequest struct {
	Messages     []ChatMessage `json:"messages"`
	ChatID       string        `json:"chat_id,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	Metadata     Metadata      `json:"metadata,omitempty"`
	HostMetadata Metadata      `json:"host_metadata,omitempty"`
	User         *UserProfile  `json:"user,omitempty"`
}

// ChatMessage represents a single message in conversation history
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ChatResponse represents the relayed reply
type ChatResponse struct {
	BaseResponse
	Message   string `json:"message"`
	ChatID    string `json:"chat_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// WSIncoming is a message sent by a websocket client.
type WSIncoming struct {
	Text   string       `json:"text"`
	ChatID string       `json:"chat_id,omitempty"`
	UserID string       `json:"user_id,omitempty"`
	User   *UserProfile `json:"user,omitempty"`
}

// WSResponse is pushed to websocket clients.
type WSResponse struct {
	Type      string `json:"type"` // connected, typing, message, error
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
