package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"webhookrelay/services"
	"webhookrelay/utils"
)

// Controller exposes the chatbot over HTTP and owns the background bindings
type Controller struct {
	chatbot        *services.Chatbot
	discordService *services.DiscordService
}

// NewController creates a new controller instance. discordService may be nil.
func NewController(chatbot *services.Chatbot, discordService *services.DiscordService) *Controller {
	return &Controller{
		chatbot:        chatbot,
		discordService: discordService,
	}
}

// StartServices starts all background services (Discord bot, etc.)
func (c *Controller) StartServices(enableDiscord bool) error {
	log := utils.Logger()

	switch {
	case !enableDiscord:
		log.Info("discord binding disabled via command line flag")
	case c.discordService == nil || !c.discordService.IsEnabled():
		log.Warn("discord binding requested but not configured (missing DISCORD_BOT_TOKEN)")
	default:
		if err := c.discordService.Start(); err != nil {
			log.Error("failed to start discord binding", "error", err)
			return err
		}
	}

	return nil
}

// StopServices stops all background services
func (c *Controller) StopServices() error {
	if c.discordService != nil {
		return c.discordService.Stop()
	}
	return nil
}

// Routes registers the HTTP API on a new router
func (c *Controller) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, accessLogMiddleware)

	router.HandleFunc("/chat", c.ChatHandler).Methods("POST")
	router.HandleFunc("/health", c.HealthHandler).Methods("GET")
	router.HandleFunc("/status", c.StatusHandler).Methods("GET")
	router.HandleFunc("/ws", c.WebSocketHandler).Methods("GET")

	return router
}

// Handler returns the routes wrapped with CORS
func (c *Controller) Handler() http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
	})
	return corsHandler.Handler(c.Routes())
}
