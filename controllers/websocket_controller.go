package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"webhookrelay/models"
	"webhookrelay/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler relays each {"text": ...} frame and answers with a typing
// notice followed by the reply. Frames on one connection are handled in order.
func (c *Controller) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	log := utils.LoggerFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	if err := conn.WriteJSON(models.WSResponse{Type: "connected", SessionID: sessionID}); err != nil {
		log.Warn("failed to send connected message", "error", err)
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var incoming models.WSIncoming
		if err := json.Unmarshal(message, &incoming); err != nil {
			if err := conn.WriteJSON(models.WSResponse{
				Type: "error",
				Text: "Invalid message format. Send JSON with a 'text' field.",
			}); err != nil {
				log.Warn("failed to write to websocket", "error", err)
				return
			}
			continue
		}
		if strings.TrimSpace(incoming.Text) == "" {
			continue
		}

		turn := turnFromWebSocket(sessionID, incoming)

		if err := conn.WriteJSON(models.WSResponse{Type: "typing", SessionID: sessionID}); err != nil {
			return
		}

		reply, ok := c.chatbot.ProcessTurn(r.Context(), turn)
		out := models.WSResponse{
			Type:      "message",
			Text:      reply,
			SessionID: sessionID,
			MessageID: turn.MessageID,
		}
		if !ok {
			out.Type = "error"
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Warn("failed to write to websocket", "error", err)
			return
		}
	}
}

func turnFromWebSocket(sessionID string, in models.WSIncoming) models.ChatTurn {
	turn := models.ChatTurn{
		Message:   in.Text,
		ChatID:    in.ChatID,
		MessageID: uuid.New().String(),
		SessionID: sessionID,
		Metadata:  models.Metadata{"channel": "websocket"},
	}
	if turn.ChatID == "" {
		turn.ChatID = sessionID
	}
	if in.User != nil {
		turn.User = *in.User
	}
	if turn.User.ID == "" {
		turn.User.ID = in.UserID
	}
	return turn
}
