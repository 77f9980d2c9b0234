package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"webhookrelay/models"
	"webhookrelay/utils"
)

const (
	AgentName    = "n8n webhook relay"
	AgentVersion = "1.0.0"

	maxErrorBodyLog = 600
)

var pingTimeout = 5 * time.Second

type connectTimeoutKey struct{}

// Relay failure kinds. Every RelayError matches exactly one of them with errors.Is.
var (
	ErrNotConfigured = errors.New("webhook not configured")
	ErrConnection    = errors.New("webhook connection failed")
	ErrTimeout       = errors.New("webhook timed out")
	ErrHTTPStatus    = errors.New("webhook returned non-success status")
	ErrEmptyBody     = errors.New("webhook returned an empty body")
	ErrInvalidJSON   = errors.New("webhook returned invalid JSON")
	ErrMissingOutput = errors.New("webhook response missing output")
)

// RelayError describes why a turn could not be relayed.
type RelayError struct {
	Kind       error
	Detail     string
	StatusCode int
	Err        error
}

func (e *RelayError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *RelayError) Is(target error) bool { return target == e.Kind }

func (e *RelayError) Unwrap() error { return e.Err }

// HTTPDoer is the part of *http.Client the relay needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookRelay forwards one chat turn to the configured n8n webhook and
// returns the workflow's output. It keeps no per-call state.
type WebhookRelay struct {
	config     ConfigProvider
	httpClient HTTPDoer
}

// NewWebhookRelay creates a relay. A nil client gets NewHTTPClient(config).
func NewWebhookRelay(config ConfigProvider, client HTTPDoer) *WebhookRelay {
	if client == nil {
		client = NewHTTPClient(config)
	}
	return &WebhookRelay{
		config:     config,
		httpClient: client,
	}
}

// NewHTTPClient returns a client whose dial timeout is the connect timeout of
// the settings the request was built from, or the provider's current one.
// The overall deadline is set per request.
func NewHTTPClient(config ConfigProvider) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		timeout, ok := ctx.Value(connectTimeoutKey{}).(time.Duration)
		if !ok {
			timeout = config.Current().ConnectTimeout
		}
		d := net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}
		return d.DialContext(ctx, network, addr)
	}
	return &http.Client{Transport: transport}
}

// Config returns the settings the next call will use.
func (r *WebhookRelay) Config() models.RelayConfig {
	return r.config.Current()
}

// WebhookURL builds <server>/<webhook|webhook-test>/<path>.
func WebhookURL(cfg models.RelayConfig) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.ServerAddress), "/")
	path := strings.Trim(strings.TrimSpace(cfg.WebhookPath), "/")
	if base == "" || path == "" {
		return "", &RelayError{Kind: ErrNotConfigured}
	}
	return base + "/" + cfg.WebhookEnv.Prefix() + "/" + path, nil
}

// BuildPayload assembles the outgoing body. Identifiers and the message are
// always present; each profile field only when enabled and non-empty.
func BuildPayload(cfg models.RelayConfig, turn models.ChatTurn) models.RelayPayload {
	user := models.PayloadUser{
		ID:       turn.User.ID,
		Name:     optional(cfg.IncludeUserName, turn.User.Name),
		Email:    optional(cfg.IncludeUserEmail, turn.User.Email),
		Timezone: optional(cfg.IncludeUserTimezone, turn.User.Timezone),
		Role:     optional(cfg.IncludeUserRole, turn.User.Role),
		Language: optional(cfg.IncludeUserLanguage, turn.User.Language),
		Location: optional(cfg.IncludeUserLocation, turn.User.Location),
		Picture:  optional(cfg.IncludeUserPicture, turn.User.Picture),
	}

	payload := models.RelayPayload{
		Agent: models.AgentInfo{
			Name:    AgentName,
			Version: AgentVersion,
		},
		Message:   turn.Message,
		ChatID:    turn.ChatID,
		MessageID: turn.MessageID,
		SessionID: turn.SessionID,
		User:      user,
	}

	if len(turn.Metadata) > 0 {
		payload.Metadata = turn.Metadata
	}
	if cfg.IncludeDebugRequestBody && len(turn.HostBody) > 0 {
		payload.HostBody = turn.HostBody
	}

	return payload
}

func optional(enabled bool, value string) string {
	if !enabled || strings.TrimSpace(value) == "" {
		return ""
	}
	return value
}

// BuildHeaders returns the request headers: JSON content negotiation, the auth
// header when a value is configured, static extras, then the trace ids.
func BuildHeaders(cfg models.RelayConfig, turn models.ChatTurn) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")

	if cfg.AuthHeaderValue != "" {
		key := strings.TrimSpace(cfg.AuthHeaderKey)
		if key == "" {
			key = models.DefaultAuthHeaderKey
		}
		h.Set(key, cfg.AuthHeaderValue)
	}

	for k, v := range cfg.ExtraHeaders {
		if strings.TrimSpace(k) == "" {
			continue
		}
		h.Set(k, v)
	}

	h.Set("X-Chat-Id", turn.ChatID)
	h.Set("X-Message-Id", turn.MessageID)
	h.Set("X-Session-Id", turn.SessionID)

	return h
}

// Forward performs exactly one POST to the webhook. There are no retries:
// any failure is returned as a *RelayError.
func (r *WebhookRelay) Forward(ctx context.Context, turn models.ChatTurn) (*models.RelayResult, error) {
	return r.forward(ctx, r.config.Current(), turn)
}

// forward relays turn using cfg for every decision of the call.
func (r *WebhookRelay) forward(ctx context.Context, cfg models.RelayConfig, turn models.ChatTurn) (*models.RelayResult, error) {
	endpoint, err := WebhookURL(cfg)
	if err != nil {
		return nil, err
	}

	log := utils.LoggerFromContext(ctx).With("webhook_env", cfg.WebhookEnv)
	if cfg.DebugLogIDs {
		log.Info("relaying turn",
			"chat_id", turn.ChatID,
			"message_id", turn.MessageID,
			"session_id", turn.SessionID)
	}

	body, err := json.Marshal(BuildPayload(cfg, turn))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithValue(ctx, connectTimeoutKey{}, cfg.ConnectTimeout), cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RelayError{Kind: ErrNotConfigured, Detail: err.Error(), Err: err}
	}
	req.Header = BuildHeaders(cfg, turn)

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err, cfg.Timeout, cfg.ConnectTimeout)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, err, cfg.Timeout, cfg.ConnectTimeout)
	}
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debug("webhook error response",
			"status", resp.StatusCode,
			"body", truncate(strings.TrimSpace(string(respBody)), maxErrorBodyLog))
		return nil, &RelayError{
			Kind:       ErrHTTPStatus,
			Detail:     statusDetail(resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	output, steps, err := ParseWebhookResponse(respBody)
	if err != nil {
		return nil, err
	}

	log.Info("webhook replied",
		"status", resp.StatusCode,
		"elapsed_ms", elapsed.Milliseconds(),
		"intermediate_steps", len(steps))

	return &models.RelayResult{
		Output:            output,
		IntermediateSteps: steps,
		StatusCode:        resp.StatusCode,
		Duration:          elapsed,
	}, nil
}

// Reply relays the turn and always returns text for the chat: the workflow
// output, or a readable description of what went wrong.
func (r *WebhookRelay) Reply(ctx context.Context, turn models.ChatTurn) string {
	result, err := r.Forward(ctx, turn)
	if err != nil {
		utils.LoggerFromContext(ctx).Warn("relay failed", "error", err)
		return ReplyText(err)
	}
	return result.Output
}

// ReplyText renders a relay error as the message shown in place of the reply.
func ReplyText(err error) string {
	var re *RelayError
	if !errors.As(err, &re) {
		return fmt.Sprintf("n8n error: %v", err)
	}

	switch re.Kind {
	case ErrNotConfigured:
		if re.Detail != "" {
			return fmt.Sprintf("n8n: invalid webhook address: %s", re.Detail)
		}
		return "n8n: server address / webhook path not configured."
	case ErrTimeout:
		return fmt.Sprintf("n8n timeout: no response within %s.", re.Detail)
	case ErrConnection:
		return fmt.Sprintf("n8n connection error: %s", re.Detail)
	case ErrHTTPStatus:
		return fmt.Sprintf("n8n HTTP %s", re.Detail)
	case ErrEmptyBody:
		return "n8n returned an empty body."
	case ErrInvalidJSON:
		return fmt.Sprintf("n8n returned invalid JSON: %s", re.Detail)
	case ErrMissingOutput:
		return "n8n response missing 'output'."
	default:
		return fmt.Sprintf("n8n error: %v", err)
	}
}

// ParseWebhookResponse extracts the output text and intermediate steps.
// A JSON array is accepted and its first item used, matching n8n's
// "respond with first item" mode.
func ParseWebhookResponse(body []byte) (string, []json.RawMessage, error) {
	data := bytes.TrimSpace(body)
	if len(data) == 0 {
		return "", nil, &RelayError{Kind: ErrEmptyBody}
	}

	if !json.Valid(data) {
		var v interface{}
		err := json.Unmarshal(data, &v)
		detail := "malformed body"
		if err != nil {
			detail = err.Error()
		}
		return "", nil, &RelayError{Kind: ErrInvalidJSON, Detail: detail, Err: err}
	}

	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return "", nil, &RelayError{Kind: ErrInvalidJSON, Detail: err.Error(), Err: err}
		}
		if len(items) == 0 {
			return "", nil, &RelayError{Kind: ErrMissingOutput, Detail: "empty array"}
		}
		data = bytes.TrimSpace(items[0])
	}

	if len(data) == 0 || data[0] != '{' {
		return "", nil, &RelayError{Kind: ErrMissingOutput, Detail: "response is not an object"}
	}

	var resp models.WebhookResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", nil, &RelayError{Kind: ErrInvalidJSON, Detail: err.Error(), Err: err}
	}

	output, ok := outputText(resp.Output)
	if !ok {
		return "", nil, &RelayError{Kind: ErrMissingOutput}
	}

	return output, intermediateSteps(resp.IntermediateSteps), nil
}

// outputText returns a string output verbatim and any other JSON value as its text.
func outputText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
	}
	return string(raw), true
}

// intermediateSteps is lenient: anything other than an array counts as no steps.
func intermediateSteps(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var steps []json.RawMessage
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil
	}
	return steps
}

// Ping checks that the n8n instance answers on /healthz. It is used for
// status reporting only and never on the relay path.
func (r *WebhookRelay) Ping(ctx context.Context) error {
	cfg := r.config.Current()
	base := strings.TrimRight(strings.TrimSpace(cfg.ServerAddress), "/")
	if base == "" {
		return &RelayError{Kind: ErrNotConfigured}
	}

	ctx, cancel := context.WithTimeout(context.WithValue(ctx, connectTimeoutKey{}, cfg.ConnectTimeout), pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
	if err != nil {
		return &RelayError{Kind: ErrNotConfigured, Detail: err.Error(), Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err, pingTimeout, cfg.ConnectTimeout)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &RelayError{Kind: ErrHTTPStatus, Detail: statusDetail(resp.StatusCode), StatusCode: resp.StatusCode}
	}
	return nil
}

// classifyTransportError maps a client error to a RelayError. deadline is the
// overall limit of the call that failed.
func classifyTransportError(ctx context.Context, err error, deadline, connectTimeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &RelayError{Kind: ErrTimeout, Detail: deadline.String(), Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RelayError{Kind: ErrTimeout, Detail: connectTimeout.String() + " (connect)", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RelayError{Kind: ErrTimeout, Detail: deadline.String(), Err: err}
	}

	detail := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		detail = urlErr.Err.Error()
	}
	return &RelayError{Kind: ErrConnection, Detail: detail, Err: err}
}

func statusDetail(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d: %s", code, text)
	}
	return fmt.Sprintf("%d", code)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "…"
}
