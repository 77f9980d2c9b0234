package services_test

import (
	"testing"

	"webhookrelay/models"
	"webhookrelay/services"
)

func TestDecodeEnvelope(t *testing.T) {
	values := map[string]interface{}{
		"envelope": `{"message_id":"m1","chat_id":"c1","session_id":"s1","channel":"sms","user":{"id":"u1","name":"Ada"},"text":"hello","metadata":{"campaign":"spring"}}`,
	}

	envelope, err := services.DecodeEnvelope(values)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if envelope.Text != "hello" || envelope.User.ID != "u1" {
		t.Fatalf("unexpected envelope %+v", envelope)
	}

	if _, err := services.DecodeEnvelope(map[string]interface{}{"other": "x"}); err == nil {
		t.Fatalf("expected error for missing envelope field")
	}
	if _, err := services.DecodeEnvelope(map[string]interface{}{"envelope": "{not json"}); err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
}

func TestTurnFromEnvelope(t *testing.T) {
	turn := services.TurnFromEnvelope(models.QueueEnvelope{
		MessageID: "m1",
		ChatID:    "c1",
		SessionID: "s1",
		Channel:   "sms",
		User:      models.UserProfile{ID: "u1"},
		Text:      "hello",
		Metadata:  models.Metadata{"campaign": "spring"},
	})

	if turn.Message != "hello" || turn.ChatID != "c1" || turn.MessageID != "m1" || turn.SessionID != "s1" {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if turn.Metadata["channel"] != "sms" || turn.Metadata["campaign"] != "spring" {
		t.Fatalf("unexpected metadata %v", turn.Metadata)
	}

	bare := services.TurnFromEnvelope(models.QueueEnvelope{Text: "x"})
	if bare.Metadata != nil {
		t.Fatalf("expected nil metadata, got %v", bare.Metadata)
	}

	own := services.TurnFromEnvelope(models.QueueEnvelope{Channel: "sms", Metadata: models.Metadata{"channel": "whatsapp"}})
	if own.Metadata["channel"] != "whatsapp" {
		t.Fatalf("envelope metadata should keep its own channel, got %v", own.Metadata["channel"])
	}
}

func TestReplyChannel(t *testing.T) {
	if got := services.ReplyChannel("s1"); got != "relay:reply:s1" {
		t.Fatalf("unexpected channel %q", got)
	}
}
