package models

import (
	"strings"
	"testing"
)

func TestAPIKey_AllowsModel(t *testing.T) {
	tests := []struct {
		name         string
		allowedModel string
		testModel    string
		expected     bool
	}{
		{
			name:         "bound model allowed",
			allowedModel: "llama3:8b",
			testModel:    "llama3:8b",
			expected:     true,
		},
		{
			name:         "other model rejected",
			allowedModel: "llama3:8b",
			testModel:    "mistral",
			expected:     false,
		},
		{
			name:         "exact match required",
			allowedModel: "llama3:8b",
			testModel:    "llama3",
			expected:     false,
		},
		{
			name:         "empty request model rejected",
			allowedModel: "llama3:8b",
			testModel:    "",
			expected:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &APIKey{
				Name:         "Test Key",
				AllowedModel: tt.allowedModel,
			}
			if got := key.AllowsModel(tt.testModel); got != tt.expected {
				t.Errorf("AllowsModel(%q) = %v, want %v", tt.testModel, got, tt.expected)
			}
		})
	}
}

func TestRedactSecret(t *testing.T) {
	secret := "sk-ollama-0123456789abcdef0123456789abcdef0123456789abcdef"
	display := RedactSecret(secret)

	if display != "sk-ollama-01...cdef" {
		t.Errorf("RedactSecret() = %q, want %q", display, "sk-ollama-01...cdef")
	}
	if strings.Contains(display, secret[12:len(secret)-4]) {
		t.Error("RedactSecret() leaked the middle of the secret")
	}
	if !strings.HasPrefix(display, secret[:12]) {
		t.Errorf("RedactSecret() = %q, want prefix %q", display, secret[:12])
	}
	if !strings.HasSuffix(display, secret[len(secret)-4:]) {
		t.Errorf("RedactSecret() = %q, want suffix %q", display, secret[len(secret)-4:])
	}
}

func TestRedactSecret_ShortValue(t *testing.T) {
	// Anything at or below prefix+suffix length has nothing to hide behind
	// an ellipsis; it is returned as-is.
	if got := RedactSecret("short"); got != "short" {
		t.Errorf("RedactSecret(short) = %q, want unchanged", got)
	}
}
