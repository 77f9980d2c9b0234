package models

// DiscordConfig represents Discord binding configuration
type DiscordConfig struct {
	Token         string `json:"-"`
	CommandPrefix string `json:"command_prefix"`
	Enabled       bool   `json:"enabled"`
}

// DiscordStatus represents Discord binding status
type DiscordStatus struct {
	Enabled       bool         `json:"enabled"`
	Status        string       `json:"status"`
	CommandPrefix string       `json:"command_prefix"`
	Uptime        string       `json:"uptime"`
	User          *DiscordUser `json:"user,omitempty"`
	Guilds        int          `json:"guilds,omitempty"`
}

// DiscordUser represents a Discord user
type DiscordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}
