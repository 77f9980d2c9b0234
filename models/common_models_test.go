package models_test

import (
	"testing"

	"webhookrelay/models"
)

func TestMetadataString(t *testing.T) {
	md := models.Metadata{
		"text": "abc",
		"int":  float64(42),
		"frac": 1.5,
		"huge": 1e20,
		"neg":  float64(-7),
		"flag": true,
		"list": []interface{}{"a"},
	}

	tests := map[string]string{
		"text":    "abc",
		"int":     "42",
		"frac":    "1.5",
		"huge":    "100000000000000000000",
		"neg":     "-7",
		"flag":    "true",
		"list":    "",
		"missing": "",
	}
	for key, want := range tests {
		if got := md.String(key); got != want {
			t.Fatalf("String(%q): expected %q, got %q", key, want, got)
		}
	}

	if got := md.First("missing", "int"); got != "42" {
		t.Fatalf("First: expected 42, got %q", got)
	}
}

func TestMaskedAuthValue(t *testing.T) {
	tests := map[string]string{
		"":                        "",
		"s3cr3tKey":               "***",
		"fifteen-chars!!":         "***",
		"Bearer 0123456789abcdef": "***cdef",
	}
	for value, want := range tests {
		cfg := models.RelayConfig{AuthHeaderValue: value}
		if got := cfg.MaskedAuthValue(); got != want {
			t.Fatalf("MaskedAuthValue(%q): expected %q, got %q", value, want, got)
		}
	}
}
