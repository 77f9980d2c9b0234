package models

import "time"

// QueueEnvelope is the JSON stored in the "envelope" field of a stream entry.
type QueueEnvelope struct {
	MessageID string      `json:"message_id"`
	ChatID    string      `json:"chat_id"`
	SessionID string      `json:"session_id"`
	Channel   string      `json:"channel"`
	User      UserProfile `json:"user"`
	Text      string      `json:"text"`
	Metadata  Metadata    `json:"metadata,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// QueueReply is published on the session's reply channel.
type QueueReply struct {
	Type      string `json:"type"` // message or error
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}
