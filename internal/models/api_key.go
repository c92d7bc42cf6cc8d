package models

import "time"

// APIKey represents a per-user API key. The secret value is never stored;
// only its SHA-256 hash is kept, so the plaintext can be shown exactly once.
type APIKey struct {
	ID        string
	Name      string // Generated display name, unique across all keys
	KeyHash   string // Never exposed
	UserID    string
	CreatedAt time.Time
}

// GeneratedAPIKey is the creation response carrying the one-time plaintext.
type GeneratedAPIKey struct {
	Name     string `json:"name"`
	PlainKey string `json:"key"` // Shown ONLY once at creation
}
