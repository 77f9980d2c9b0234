package services_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"webhookrelay/models"
	"webhookrelay/services"
)

func discordMessage(content string, bot bool) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "900",
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		Content:   content,
		Author:    &discordgo.User{ID: "42", Username: "ada", Locale: "en-GB", Bot: bot},
	}}
}

func TestTurnFromDiscord(t *testing.T) {
	turn, ok := services.TurnFromDiscord(discordMessage("!n8n  what's up? ", false), "!n8n ")
	if !ok {
		t.Fatalf("expected prefixed message to be relayed")
	}
	if turn.Message != "what's up?" {
		t.Fatalf("unexpected message %q", turn.Message)
	}
	if turn.ChatID != "chan-1" || turn.MessageID != "900" {
		t.Fatalf("unexpected ids %+v", turn)
	}
	if turn.SessionID != "discord_42_chan-1" {
		t.Fatalf("unexpected session id %q", turn.SessionID)
	}
	if turn.User.ID != "42" || turn.User.Name != "ada" || turn.User.Language != "en-GB" {
		t.Fatalf("unexpected user %+v", turn.User)
	}
	if turn.Metadata["channel"] != "discord" || turn.Metadata["guild_id"] != "guild-1" {
		t.Fatalf("unexpected metadata %v", turn.Metadata)
	}
}

func TestTurnFromDiscordIgnores(t *testing.T) {
	tests := map[string]*discordgo.MessageCreate{
		"no prefix":   discordMessage("hello", false),
		"bot author":  discordMessage("!n8n hello", true),
		"nil message": {},
	}
	for name, m := range tests {
		t.Run(name, func(t *testing.T) {
			if _, ok := services.TurnFromDiscord(m, "!n8n "); ok {
				t.Fatalf("expected message to be ignored")
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	if got := services.SplitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected split %q", got)
	}

	long := strings.TrimSpace(strings.Repeat("word ", 1000))
	chunks := services.SplitMessage(long, 1900)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 1900 {
			t.Fatalf("chunk %d too long: %d", i, len(c))
		}
		if strings.HasPrefix(c, " ") {
			t.Fatalf("chunk %d starts with a space", i)
		}
	}
	if got := strings.Join(chunks, " "); got != long {
		t.Fatalf("chunks do not reassemble to the original text")
	}

	unbroken := strings.Repeat("x", 4500)
	chunks = services.SplitMessage(unbroken, 2000)
	if len(chunks) != 3 || len(chunks[0]) != 2000 || len(chunks[2]) != 500 {
		t.Fatalf("unexpected hard split %d chunks", len(chunks))
	}
}

func TestSplitMessageMultiByte(t *testing.T) {
	euros := strings.Repeat("€", 1500)
	if got := services.SplitMessage(euros, 1900); len(got) != 1 || got[0] != euros {
		t.Fatalf("1500 characters fit in one 1900-character chunk, got %d chunks", len(got))
	}

	long := strings.Repeat("€", 4500)
	chunks := services.SplitMessage(long, 2000)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d is invalid UTF-8", i)
		}
		if n := utf8.RuneCountInString(c); n > 2000 {
			t.Fatalf("chunk %d has %d characters", i, n)
		}
	}
	if strings.Join(chunks, "") != long {
		t.Fatalf("chunks do not reassemble to the original text")
	}

	mixed := strings.TrimSpace(strings.Repeat("héllo wörld ", 400))
	for i, c := range services.SplitMessage(mixed, 1900) {
		if !utf8.ValidString(c) || utf8.RuneCountInString(c) > 1900 {
			t.Fatalf("chunk %d is invalid or too long", i)
		}
	}
}

func TestDiscordServiceWithoutToken(t *testing.T) {
	d := services.NewDiscordService(nil, models.DiscordConfig{})
	if d.IsEnabled() {
		t.Fatalf("expected binding to be disabled without a token")
	}
	if err := d.Start(); err == nil {
		t.Fatalf("expected Start to fail when disabled")
	}
	status := d.GetStatus()
	if status.Status != "disabled" || status.CommandPrefix != "!n8n " {
		t.Fatalf("unexpected status %+v", status)
	}
}
