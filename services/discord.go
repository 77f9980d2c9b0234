package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"webhookrelay/models"
	"webhookrelay/utils"
)

const (
	discordMessageLimit = 2000
	discordChunkSize    = 1900
)

// DiscordService relays prefixed Discord messages to the webhook
type DiscordService struct {
	session       *discordgo.Session
	chatbot       *Chatbot
	commandPrefix string
	enabled       bool
	startTime     time.Time
}

// NewDiscordService creates a Discord binding. Without a token it stays disabled.
func NewDiscordService(chatbot *Chatbot, cfg models.DiscordConfig) *DiscordService {
	prefix := cfg.CommandPrefix
	if prefix == "" {
		prefix = "!n8n "
	}

	service := &DiscordService{
		chatbot:       chatbot,
		commandPrefix: prefix,
		startTime:     time.Now(),
	}

	log := utils.Logger().With("binding", "discord")

	if cfg.Token == "" {
		log.Info("discord binding disabled: DISCORD_BOT_TOKEN not set")
		return service
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		log.Error("error creating discord session", "error", err)
		return service
	}

	service.session = session

	session.AddHandler(func(s *discordgo.Session, event *discordgo.Ready) {
		log.Info("discord bot online", "user", event.User.Username, "guilds", len(event.Guilds))
	})
	session.AddHandler(service.messageCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	service.enabled = true
	log.Info("discord binding initialized", "prefix", prefix)

	return service
}

// Start opens the gateway connection
func (d *DiscordService) Start() error {
	if !d.enabled {
		return fmt.Errorf("discord binding not enabled (missing bot token)")
	}
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("error opening Discord connection: %w", err)
	}
	return nil
}

// Stop closes the gateway connection
func (d *DiscordService) Stop() error {
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

func (d *DiscordService) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	turn, ok := TurnFromDiscord(m, d.commandPrefix)
	if !ok {
		return
	}

	if turn.Message == "" {
		d.sendMessage(s, m.ChannelID, fmt.Sprintf("Please provide a message after `%s`", strings.TrimSpace(d.commandPrefix)))
		return
	}

	_ = s.ChannelTyping(m.ChannelID)

	ctx := utils.WithRequestID(context.Background(), "discord-"+m.ID)
	reply, _ := d.chatbot.ProcessTurn(ctx, turn)

	d.sendMessage(s, m.ChannelID, reply)
}

// TurnFromDiscord maps a prefixed Discord message to a chat turn.
// ok is false for bot messages and messages without the prefix.
func TurnFromDiscord(m *discordgo.MessageCreate, prefix string) (models.ChatTurn, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return models.ChatTurn{}, false
	}
	if !strings.HasPrefix(m.Content, prefix) {
		return models.ChatTurn{}, false
	}

	user := models.UserProfile{
		ID:       m.Author.ID,
		Name:     m.Author.Username,
		Language: m.Author.Locale,
	}
	if m.Author.GlobalName != "" {
		user.Name = m.Author.GlobalName
	}
	if m.Author.Avatar != "" {
		user.Picture = m.Author.AvatarURL("")
	}

	md := models.Metadata{
		"channel":    "discord",
		"channel_id": m.ChannelID,
	}
	if m.GuildID != "" {
		md["guild_id"] = m.GuildID
	}

	return models.ChatTurn{
		Message:   strings.TrimSpace(m.Content[len(prefix):]),
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		SessionID: fmt.Sprintf("discord_%s_%s", m.Author.ID, m.ChannelID),
		User:      user,
		Metadata:  md,
	}, true
}

// sendMessage sends a message to Discord, handling length limits
func (d *DiscordService) sendMessage(s *discordgo.Session, channelID, message string) {
	log := utils.Logger().With("binding", "discord", "channel_id", channelID)

	if utf8.RuneCountInString(message) <= discordMessageLimit {
		if _, err := s.ChannelMessageSend(channelID, message); err != nil {
			log.Error("error sending discord message", "error", err)
		}
		return
	}

	chunks := SplitMessage(message, discordChunkSize)
	for i, chunk := range chunks {
		if i > 0 {
			chunk = "...continued:\n" + chunk
		}
		if i < len(chunks)-1 {
			chunk = chunk + "\n..."
		}

		if _, err := s.ChannelMessageSend(channelID, chunk); err != nil {
			log.Error("error sending discord message chunk", "chunk", i, "error", err)
		}

		// stay under the per-channel rate limit
		time.Sleep(200 * time.Millisecond)
	}
}

// SplitMessage splits a message into chunks of at most maxLength characters,
// preferring word boundaries in the second half of each chunk.
func SplitMessage(message string, maxLength int) []string {
	runes := []rune(message)
	if len(runes) <= maxLength {
		return []string{message}
	}

	var chunks []string
	for len(runes) > maxLength {
		splitIndex := maxLength
		for i := maxLength - 1; i > maxLength/2; i-- {
			if runes[i] == ' ' {
				splitIndex = i
				break
			}
		}

		chunks = append(chunks, string(runes[:splitIndex]))
		runes = runes[splitIndex:]
		if len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}

	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}

	return chunks
}

// IsEnabled returns whether the Discord binding is enabled
func (d *DiscordService) IsEnabled() bool {
	return d.enabled
}

// GetStatus returns the current status of the Discord binding
func (d *DiscordService) GetStatus() models.DiscordStatus {
	status := models.DiscordStatus{
		Enabled:       d.enabled,
		CommandPrefix: d.commandPrefix,
		Uptime:        time.Since(d.startTime).String(),
	}

	switch {
	case d.enabled && d.session != nil && d.session.State != nil && d.session.State.User != nil:
		status.Status = "connected"
		status.User = &models.DiscordUser{
			ID:       d.session.State.User.ID,
			Username: d.session.State.User.Username,
			Bot:      d.session.State.User.Bot,
		}
		status.Guilds = len(d.session.State.Guilds)
	case d.enabled:
		status.Status = "initialized_not_started"
	default:
		status.Status = "disabled"
	}

	return status
}
