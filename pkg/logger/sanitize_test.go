package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "a****@*******.com"},
		{"a@example.com", "a@*******.com"},
		{"bob@mail.example.co", "b**@****.*******.co"},
		{"not-an-email", "[invalid-email]"},
		{"", "[invalid-email]"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizedEmail(tt.email), "email %q", tt.email)
	}
}

func TestSanitizeQueryString(t *testing.T) {
	sensitive := []string{
		"token=abc123",
		"Token=ABC",
		"api_key=cm_deadbeef",
		"password=hunter2",
		"email=alice%40example.com",
	}
	for _, query := range sensitive {
		assert.True(t, SanitizeQueryString(query), "query %q", query)
	}

	harmless := []string{
		"",
		"page=2&limit=50",
		"sort=created_at",
	}
	for _, query := range harmless {
		assert.False(t, SanitizeQueryString(query), "query %q", query)
	}
}
