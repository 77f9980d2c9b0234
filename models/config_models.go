package models

import (
	"fmt"
	"time"
)

// WebhookEnv selects the n8n webhook flavour.
type WebhookEnv string

const (
	EnvProduction WebhookEnv = "production"
	EnvTest       WebhookEnv = "test"
)

// Prefix returns the URL segment n8n serves this environment under.
func (e WebhookEnv) Prefix() string {
	if e == EnvTest {
		return "webhook-test"
	}
	return "webhook"
}

const (
	DefaultServerAddress  = "http://n8n:5678"
	DefaultAuthHeaderKey  = "Authorization"
	DefaultTimeout        = 120 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	MaxTimeout            = 600 * time.Second
)

// RelayConfig holds the relay settings ("valves"). A copy is taken per request.
type RelayConfig struct {
	// Connection / endpoint
	ServerAddress string     `yaml:"server_address" json:"server_address"`
	WebhookEnv    WebhookEnv `yaml:"webhook_env" json:"webhook_env"`
	WebhookPath   string     `yaml:"webhook_path" json:"webhook_path"`

	// Auth / headers
	AuthHeaderKey   string            `yaml:"auth_header_key" json:"auth_header_key"`
	AuthHeaderValue string            `yaml:"auth_header_value" json:"-"`
	ExtraHeaders    map[string]string `yaml:"extra_headers" json:"extra_headers,omitempty"`

	// Behaviour
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	DebugLogIDs    bool          `yaml:"debug_log_ids" json:"debug_log_ids"`

	// Metadata options; ids are always sent
	IncludeUserName     bool `yaml:"include_user_name" json:"include_user_name"`
	IncludeUserEmail    bool `yaml:"include_user_email" json:"include_user_email"`
	IncludeUserTimezone bool `yaml:"include_user_timezone" json:"include_user_timezone"`
	IncludeUserRole     bool `yaml:"include_user_role" json:"include_user_role"`
	IncludeUserLanguage bool `yaml:"include_user_language" json:"include_user_language"`
	IncludeUserLocation bool `yaml:"include_user_location" json:"include_user_location"`
	IncludeUserPicture  bool `yaml:"include_user_picture" json:"include_user_picture"`

	IncludeDebugRequestBody bool `yaml:"include_debug_request_body" json:"include_debug_request_body"`
}

// DefaultRelayConfig returns the settings used when nothing is configured.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		ServerAddress:       DefaultServerAddress,
		WebhookEnv:          EnvProduction,
		AuthHeaderKey:       DefaultAuthHeaderKey,
		Timeout:             DefaultTimeout,
		ConnectTimeout:      DefaultConnectTimeout,
		IncludeUserName:     true,
		IncludeUserTimezone: true,
		IncludeUserRole:     true,
		IncludeUserLanguage: true,
		IncludeUserLocation: true,
	}
}

// Validate checks the settings that would make a request impossible to build.
// A missing server address or webhook path is reported by the relay instead.
func (c RelayConfig) Validate() error {
	switch c.WebhookEnv {
	case EnvProduction, EnvTest:
	default:
		return fmt.Errorf("webhook_env must be %q or %q, got %q", EnvProduction, EnvTest, c.WebhookEnv)
	}
	if c.Timeout <= 0 || c.Timeout > MaxTimeout {
		return fmt.Errorf("timeout must be in (0, %s], got %s", MaxTimeout, c.Timeout)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	return nil
}

// MaskedAuthValue hides the auth value for status output. Only values of at
// least 16 characters keep their last 4.
func (c RelayConfig) MaskedAuthValue() string {
	v := []rune(c.AuthHeaderValue)
	switch {
	case len(v) == 0:
		return ""
	case len(v) >= 16:
		return "***" + string(v[len(v)-4:])
	default:
		return "***"
	}
}
