package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"webhookrelay/models"
	"webhookrelay/services"
)

const maxChatBodyBytes = 1 << 20

// ChatHandler relays the latest user message of a chat request.
// Relay failures still answer 200 with status "error" and the failure text.
func (c *Controller) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	if strings.TrimSpace(services.LatestUserMessage(req.Messages)) == "" {
		writeError(w, r, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	response := c.chatbot.ProcessMessage(r.Context(), req)

	writeJSON(w, r, http.StatusOK, response)
}
