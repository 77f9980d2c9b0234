package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"webhookrelay/controllers"
	"webhookrelay/models"
	"webhookrelay/services"
	"webhookrelay/utils"
)

func main() {
	if err := utils.LoadEnvWithFallback(); err != nil {
		utils.Logger().Warn("could not load .env file", "error", err)
	}

	configPath := flag.String("config", utils.GetEnv("RELAY_CONFIG", ""), "Path to the relay settings YAML file")
	port := flag.String("port", utils.GetEnv("PORT", "8080"), "HTTP listen port")
	enableDiscord := flag.Bool("discord", false, "Enable the Discord binding (requires DISCORD_BOT_TOKEN)")
	redisAddr := flag.String("redis", utils.GetEnv("REDIS_ADDR", ""), "Redis address for the stream binding (empty disables it)")
	message := flag.String("message", "", "Relay a single message, print the reply and exit")
	sessionID := flag.String("session", "", "Session id for -message (default: random)")
	watch := flag.Bool("watch", true, "Reload the settings file when it changes")
	flag.Parse()

	config, err := services.NewFileConfig(*configPath)
	if err != nil {
		color.Red("configuration error: %v", err)
		os.Exit(1)
	}

	relay := services.NewWebhookRelay(config, nil)
	chatbot := services.NewChatbot(relay)

	if *message != "" {
		os.Exit(runOnce(relay, *message, *sessionID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := utils.Logger()

	if *watch && config.Path() != "" {
		if err := config.Watch(ctx); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			log.Info("watching config file", "config", config.Path())
		}
	}

	discordService := services.NewDiscordService(chatbot, models.DiscordConfig{
		Token:         os.Getenv("DISCORD_BOT_TOKEN"),
		CommandPrefix: os.Getenv("DISCORD_COMMAND_PREFIX"),
		Enabled:       *enableDiscord,
	})

	controller := controllers.NewController(chatbot, discordService)
	if err := controller.StartServices(*enableDiscord); err != nil {
		log.Error("failed to start services", "error", err)
	}

	if *redisAddr != "" {
		go runQueue(ctx, *redisAddr, chatbot)
	}

	addr := *port
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           controller.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", addr, "webhook_env", config.Current().WebhookEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := controller.StopServices(); err != nil {
		log.Error("error stopping services", "error", err)
	}
}

// runOnce relays a single message from the command line and returns the exit code.
func runOnce(relay *services.WebhookRelay, message, sessionID string) int {
	if sessionID == "" {
		sessionID = "cli_" + uuid.New().String()
	}

	turn := models.ChatTurn{
		Message:   message,
		ChatID:    sessionID,
		MessageID: uuid.New().String(),
		SessionID: sessionID,
		User:      models.UserProfile{ID: utils.GetEnv("USER", "cli")},
		Metadata:  models.Metadata{"channel": "cli"},
	}

	result, err := relay.Forward(context.Background(), turn)
	if err != nil {
		color.Red("%s", services.ReplyText(err))
		return 1
	}

	color.Green("%s", result.Output)
	fmt.Fprintf(os.Stderr, "(%d in %s)\n", result.StatusCode, result.Duration.Round(time.Millisecond))
	return 0
}

func runQueue(ctx context.Context, addr string, chatbot *services.Chatbot) {
	log := utils.Logger().With("binding", "redis", "addr", addr)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis unreachable, stream binding disabled", "error", err)
		return
	}

	consumer := services.NewQueueConsumer(rdb, chatbot, utils.GetEnv("REDIS_CONSUMER", ""))
	if err := consumer.EnsureConsumerGroup(ctx); err != nil {
		log.Error("stream binding disabled", "error", err)
		return
	}

	consumer.ConsumeLoop(ctx)
}
