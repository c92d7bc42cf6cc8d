package models

import "time"

// LoginAttempt tracks failed logins for one username within a rolling window.
// A single row per username; the counter restarts once the window has elapsed
// since the last attempt.
type LoginAttempt struct {
	Username     string
	AttemptCount int
	LastAttempt  time.Time
}
