package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"webhookrelay/models"
	"webhookrelay/utils"
)

const reloadDebounce = 200 * time.Millisecond

// ConfigProvider supplies the relay settings. The relay reads it once per call,
// so a provider may change its answer between calls but never during one.
type ConfigProvider interface {
	Current() models.RelayConfig
}

// StaticConfig always returns the same settings.
type StaticConfig struct {
	cfg models.RelayConfig
}

func NewStaticConfig(cfg models.RelayConfig) *StaticConfig {
	return &StaticConfig{cfg: cloneConfig(cfg)}
}

func (s *StaticConfig) Current() models.RelayConfig {
	return cloneConfig(s.cfg)
}

// FileConfig loads settings from an optional YAML file plus RELAY_* variables
// and can follow changes to the file.
type FileConfig struct {
	path string

	mu  sync.RWMutex
	cfg models.RelayConfig
}

// NewFileConfig loads the settings once. path may be empty.
func NewFileConfig(path string) (*FileConfig, error) {
	cfg, err := LoadRelayConfig(path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return &FileConfig{path: path, cfg: cfg}, nil
}

func (f *FileConfig) Current() models.RelayConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneConfig(f.cfg)
}

// Path returns the watched file, or "" when settings come from the environment only.
func (f *FileConfig) Path() string {
	return f.path
}

// Reload re-reads the file and environment. On error the previous settings stay active.
func (f *FileConfig) Reload() error {
	cfg, err := LoadRelayConfig(f.path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
	return nil
}

// Watch reloads the settings whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (f *FileConfig) Watch(ctx context.Context) error {
	if f.path == "" {
		return errors.New("no config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(f.path), err)
	}

	log := utils.Logger().With("config", f.path)

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != f.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(reloadDebounce, func() {
					if ctx.Err() != nil {
						return
					}
					if err := f.Reload(); err != nil {
						log.Warn("config reload failed, keeping previous settings", "error", err)
						return
					}
					log.Info("config reloaded")
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}

// LoadRelayConfig builds settings from defaults, then the YAML file (if path is
// set and exists), then RELAY_* environment overrides, and validates the result.
func LoadRelayConfig(path string) (models.RelayConfig, error) {
	cfg := models.DefaultRelayConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decodeYAML(data, &cfg); err != nil {
				return models.RelayConfig{}, fmt.Errorf("config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			utils.Logger().Warn("config file not found, using environment only", "config", path)
		default:
			return models.RelayConfig{}, fmt.Errorf("config load: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	cfg.WebhookEnv = models.WebhookEnv(strings.ToLower(strings.TrimSpace(string(cfg.WebhookEnv))))
	if err := cfg.Validate(); err != nil {
		return models.RelayConfig{}, fmt.Errorf("invalid relay config: %w", err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *models.RelayConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides lets RELAY_* variables override the file.
func applyEnvOverrides(c *models.RelayConfig) {
	if v := os.Getenv("RELAY_SERVER_ADDRESS"); v != "" {
		c.ServerAddress = v
	}
	if v := os.Getenv("RELAY_WEBHOOK_ENV"); v != "" {
		c.WebhookEnv = models.WebhookEnv(v)
	}
	if v := os.Getenv("RELAY_WEBHOOK_PATH"); v != "" {
		c.WebhookPath = v
	}
	if v := os.Getenv("RELAY_AUTH_HEADER_KEY"); v != "" {
		c.AuthHeaderKey = v
	}
	if v := os.Getenv("RELAY_AUTH_HEADER_VALUE"); v != "" {
		c.AuthHeaderValue = v
	}
	if v := os.Getenv("RELAY_EXTRA_HEADERS_JSON"); v != "" {
		headers, err := parseExtraHeaders(v)
		if err != nil {
			utils.Logger().Warn("ignoring RELAY_EXTRA_HEADERS_JSON", "error", err)
		} else {
			c.ExtraHeaders = headers
		}
	}
	if n, ok := utils.LookupIntEnv("RELAY_TIMEOUT_SECONDS"); ok {
		c.Timeout = time.Duration(n) * time.Second
	}
	if n, ok := utils.LookupIntEnv("RELAY_CONNECT_TIMEOUT_SECONDS"); ok {
		c.ConnectTimeout = time.Duration(n) * time.Second
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{"RELAY_DEBUG_LOG_IDS", &c.DebugLogIDs},
		{"RELAY_INCLUDE_USER_NAME", &c.IncludeUserName},
		{"RELAY_INCLUDE_USER_EMAIL", &c.IncludeUserEmail},
		{"RELAY_INCLUDE_USER_TIMEZONE", &c.IncludeUserTimezone},
		{"RELAY_INCLUDE_USER_ROLE", &c.IncludeUserRole},
		{"RELAY_INCLUDE_USER_LANGUAGE", &c.IncludeUserLanguage},
		{"RELAY_INCLUDE_USER_LOCATION", &c.IncludeUserLocation},
		{"RELAY_INCLUDE_USER_PICTURE", &c.IncludeUserPicture},
		{"RELAY_INCLUDE_DEBUG_REQUEST_BODY", &c.IncludeDebugRequestBody},
	}
	for _, f := range flags {
		if b, ok := utils.LookupBoolEnv(f.key); ok {
			*f.dst = b
		}
	}
}

// parseExtraHeaders accepts a JSON object; non-string values are skipped.
func parseExtraHeaders(raw string) (map[string]string, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("extra headers must be a JSON object: %w", err)
	}
	headers := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok && k != "" {
			headers[k] = s
		}
	}
	return headers, nil
}

func cloneConfig(cfg models.RelayConfig) models.RelayConfig {
	if cfg.ExtraHeaders != nil {
		headers := make(map[string]string, len(cfg.ExtraHeaders))
		for k, v := range cfg.ExtraHeaders {
			headers[k] = v
		}
		cfg.ExtraHeaders = headers
	}
	return cfg
}
