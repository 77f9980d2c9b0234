package models

import (
	"encoding/json"
	"time"
)

// ChatTurn is one user message plus the metadata bundle the host attaches to it.
type ChatTurn struct {
	Message   string
	ChatID    string
	MessageID string
	SessionID string
	User      UserProfile
	Metadata  Metadata
	HostBody  json.RawMessage // only forwarded when debug body forwarding is on
}

// UserProfile carries the user id and the optional profile attributes a host may know about.
type UserProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Role     string `json:"role,omitempty"`
	Language string `json:"language,omitempty"`
	Location string `json:"location,omitempty"`
	Picture  string `json:"picture,omitempty"` // avatar URL or data reference
}

// AgentInfo identifies the relay to the workflow.
type AgentInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PayloadUser is the user block of the outgoing body. Only ID is always present.
type PayloadUser struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Role     string `json:"role,omitempty"`
	Language string `json:"language,omitempty"`
	Location string `json:"location,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

// RelayPayload is the JSON body posted to the webhook.
type RelayPayload struct {
	Agent     AgentInfo       `json:"agent"`
	Message   string          `json:"message"`
	ChatID    string          `json:"chat_id"`
	MessageID string          `json:"message_id"`
	SessionID string          `json:"session_id"`
	User      PayloadUser     `json:"user"`
	Metadata  Metadata        `json:"metadata"`
	HostBody  json.RawMessage `json:"host_body,omitempty"`
}

// WebhookResponse is the item returned by the workflow's "Respond to Webhook" node.
type WebhookResponse struct {
	Output            json.RawMessage `json:"output"`
	IntermediateSteps json.RawMessage `json:"intermediateSteps,omitempty"`
}

// RelayResult is a successful relay call.
type RelayResult struct {
	Output            string
	IntermediateSteps []json.RawMessage
	StatusCode        int
	Duration          time.Duration
}
