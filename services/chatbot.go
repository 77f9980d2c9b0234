package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"webhookrelay/models"
	"webhookrelay/utils"
)

// Chatbot turns host requests into chat turns and relays them.
type Chatbot struct {
	relay     *WebhookRelay
	startTime time.Time
}

// NewChatbot creates a new chatbot instance on top of a relay
func NewChatbot(relay *WebhookRelay) *Chatbot {
	return &Chatbot{
		relay:     relay,
		startTime: time.Now(),
	}
}

// ProcessMessage relays the latest user message of req. It never fails:
// relay errors come back as the message text with an error status.
func (c *Chatbot) ProcessMessage(ctx context.Context, req models.ChatRequest) models.ChatResponse {
	cfg := c.relay.Config()

	turn := ResolveTurn(req)
	if cfg.IncludeDebugRequestBody {
		if body, err := json.Marshal(req); err == nil {
			turn.HostBody = body
		}
	}

	reply, ok := c.processTurn(ctx, cfg, turn)

	resp := models.ChatResponse{
		BaseResponse: models.BaseResponse{
			Status:    models.StatusSuccess,
			Timestamp: time.Now(),
		},
		Message:   reply,
		ChatID:    turn.ChatID,
		MessageID: turn.MessageID,
		SessionID: turn.SessionID,
	}
	if !ok {
		resp.Status = models.StatusError
		resp.Error = reply
	}
	return resp
}

// ProcessTurn relays one turn. ok is false when reply is an error text.
func (c *Chatbot) ProcessTurn(ctx context.Context, turn models.ChatTurn) (reply string, ok bool) {
	return c.processTurn(ctx, c.relay.Config(), turn)
}

func (c *Chatbot) processTurn(ctx context.Context, cfg models.RelayConfig, turn models.ChatTurn) (string, bool) {
	log := utils.LoggerFromContext(ctx).With("session_id", turn.SessionID)

	result, err := c.relay.forward(ctx, cfg, turn)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			log.Error("relay not configured", "error", err)
		} else {
			log.Warn("relay failed", "error", err)
		}
		return ReplyText(err), false
	}
	return result.Output, true
}

// ResolveTurn picks the message to relay and collects the identifiers.
// Metadata sources are merged in order, later ones winning: req.Metadata, req.HostMetadata.
func ResolveTurn(req models.ChatRequest) models.ChatTurn {
	md := models.Metadata{}
	for _, source := range []models.Metadata{req.Metadata, req.HostMetadata} {
		for k, v := range source {
			md[k] = v
		}
	}

	var lastMessageID string
	if n := len(req.Messages); n > 0 {
		lastMessageID = req.Messages[n-1].ID
	}

	turn := models.ChatTurn{
		Message:   LatestUserMessage(req.Messages),
		ChatID:    firstNonEmpty(md.First("chat_id", "chatId"), req.ChatID),
		MessageID: firstNonEmpty(md.First("message_id", "messageId"), lastMessageID),
		SessionID: firstNonEmpty(md.First("session_id", "sessionId"), req.SessionID),
		Metadata:  md,
	}

	if req.User != nil {
		turn.User = *req.User
	}
	if turn.User.ID == "" {
		turn.User.ID = md.First("user_id", "userId")
	}

	if len(md) == 0 {
		turn.Metadata = nil
	}
	return turn
}

// LatestUserMessage returns the content of the last message with role "user",
// falling back to the last message of any role.
func LatestUserMessage(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetStatus returns the current status of the chatbot
func (c *Chatbot) GetStatus(ctx context.Context) map[string]interface{} {
	cfg := c.relay.Config()

	webhook := map[string]interface{}{
		"server_address":  cfg.ServerAddress,
		"webhook_env":     cfg.WebhookEnv,
		"webhook_path":    cfg.WebhookPath,
		"auth_header_key": cfg.AuthHeaderKey,
		"auth_value":      cfg.MaskedAuthValue(),
		"timeout":         cfg.Timeout.String(),
		"connect_timeout": cfg.ConnectTimeout.String(),
	}
	if endpoint, err := WebhookURL(cfg); err == nil {
		webhook["url"] = endpoint
		webhook["configured"] = true
	} else {
		webhook["configured"] = false
	}

	if err := c.relay.Ping(ctx); err != nil {
		webhook["reachable"] = false
		webhook["error"] = err.Error()
	} else {
		webhook["reachable"] = true
	}

	return map[string]interface{}{
		"status":  "active",
		"uptime":  time.Since(c.startTime).String(),
		"agent":   AgentName + " " + AgentVersion,
		"webhook": webhook,
		"metadata": map[string]bool{
			"user_name":          cfg.IncludeUserName,
			"user_email":         cfg.IncludeUserEmail,
			"user_timezone":      cfg.IncludeUserTimezone,
			"user_role":          cfg.IncludeUserRole,
			"user_language":      cfg.IncludeUserLanguage,
			"user_location":      cfg.IncludeUserLocation,
			"user_picture":       cfg.IncludeUserPicture,
			"debug_request_body": cfg.IncludeDebugRequestBody,
		},
	}
}
