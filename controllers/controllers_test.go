package controllers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"webhookrelay/controllers"
	"webhookrelay/models"
	"webhookrelay/services"
	"webhookrelay/utils"
)

func TestMain(m *testing.M) {
	utils.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// newTestServer starts the HTTP API in front of a fake webhook answering status/body.
func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(hook.Close)

	cfg := models.DefaultRelayConfig()
	cfg.ServerAddress = hook.URL
	cfg.WebhookPath = "chat"

	relay := services.NewWebhookRelay(services.NewStaticConfig(cfg), nil)
	controller := controllers.NewController(services.NewChatbot(relay), nil)

	server := httptest.NewServer(controller.Handler())
	t.Cleanup(server.Close)
	return server
}

func postChat(t *testing.T, server *httptest.Server, body string) (*http.Response, models.ChatResponse) {
	t.Helper()

	resp, err := http.Post(server.URL+"/chat", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	defer resp.Body.Close()

	var out models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode /chat response: %v", err)
	}
	return resp, out
}

func TestChatHandlerRelaysMessage(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"output":"Hello world"}`)

	resp, out := postChat(t, server, `{"messages":[{"role":"user","content":"hi"}],"chat_id":"c1"}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /chat: code=%d", resp.StatusCode)
	}
	if out.Status != models.StatusSuccess || out.Message != "Hello world" {
		t.Fatalf("unexpected response %+v", out)
	}
	if out.ChatID != "c1" || out.SessionID == "" {
		t.Fatalf("expected chat id echoed and a generated session id, got %+v", out)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}
}

func TestChatHandlerRelayFailure(t *testing.T) {
	server := newTestServer(t, http.StatusInternalServerError, `boom`)

	resp, out := postChat(t, server, `{"messages":[{"role":"user","content":"hi"}]}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /chat: code=%d", resp.StatusCode)
	}
	if out.Status != models.StatusError || out.Message != "n8n HTTP 500: Internal Server Error" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestChatHandlerRejectsBadInput(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"output":"unused"}`)

	tests := map[string]string{
		"invalid json":  `{"messages":`,
		"no messages":   `{"messages":[]}`,
		"blank message": `{"messages":[{"role":"user","content":"   "}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, out := postChat(t, server, body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("POST /chat: code=%d", resp.StatusCode)
			}
			if out.Status != models.StatusError || out.Error == "" {
				t.Fatalf("expected error body, got %+v", out)
			}
		})
	}
}

func TestChatHandlerMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"output":"unused"}`)

	resp, err := http.Get(server.URL + "/chat")
	if err != nil {
		t.Fatalf("GET /chat: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /chat: code=%d", resp.StatusCode)
	}
}

func TestHealthAndStatus(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"output":"unused"}`)

	for _, path := range []string{"/health", "/status"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}

		var body map[string]interface{}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: code=%d body=%v", path, resp.StatusCode, body)
		}

		switch path {
		case "/health":
			if body["status"] != "healthy" {
				t.Fatalf("GET /health: unexpected body %v", body)
			}
		case "/status":
			if _, ok := body["chatbot"].(map[string]interface{}); !ok {
				t.Fatalf("GET /status: missing chatbot section %v", body)
			}
		}
	}
}

func TestWebSocketRelay(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"output":"over the wire"}`)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?session_id=s-42"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg models.WSResponse
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "connected" || msg.SessionID != "s-42" {
		t.Fatalf("expected connected message, got %+v (%v)", msg, err)
	}

	if err := conn.WriteJSON(models.WSIncoming{Text: "hi", UserID: "u1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "typing" {
		t.Fatalf("expected typing message, got %+v (%v)", msg, err)
	}

	msg = models.WSResponse{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if msg.Type != "message" || msg.Text != "over the wire" || msg.SessionID != "s-42" {
		t.Fatalf("unexpected reply %+v", msg)
	}
}

func TestWebSocketInvalidFrame(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"output":"unused"}`)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg models.WSResponse
	if err := conn.ReadJSON(&msg); err != nil || msg.SessionID == "" {
		t.Fatalf("expected generated session id, got %+v (%v)", msg, err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = models.WSResponse{}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "error" {
		t.Fatalf("expected error message, got %+v (%v)", msg, err)
	}
}
