package models

import "time"

// Response status constants
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// BaseResponse represents common response fields
type BaseResponse struct {
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata represents generic metadata passed through from the host
type Metadata map[string]interface{}

// String returns the value under key as a string, or "" when absent or not a scalar.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64, int, int64, bool:
		return stringify(v)
	default:
		return ""
	}
}

// First returns the first non-empty value among keys.
func (m Metadata) First(keys ...string) string {
	for _, k := range keys {
		if v := m.String(k); v != "" {
			return v
		}
	}
	return ""
}
