package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"webhookrelay/models"
	"webhookrelay/utils"
)

// HealthHandler answers liveness probes without calling the webhook
func (c *Controller) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"component": "n8n-webhook-relay",
		"endpoints": []string{"/chat", "/health", "/status", "/ws"},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if c.discordService != nil {
		health["discord"] = c.discordService.GetStatus()
	}

	writeJSON(w, r, http.StatusOK, health)
}

// StatusHandler reports the relay settings and whether the n8n server answers
func (c *Controller) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"chatbot": c.chatbot.GetStatus(r.Context()),
	}
	if c.discordService != nil {
		status["discord"] = c.discordService.GetStatus()
	}

	writeJSON(w, r, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		utils.LoggerFromContext(r.Context()).Error("error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	writeJSON(w, r, code, models.BaseResponse{
		Status:    models.StatusError,
		Error:     message,
		Timestamp: time.Now(),
	})
}
