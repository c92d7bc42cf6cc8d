package models

import "time"

// RequestCount is the per-user daily API quota record, one-to-one with User.
// The counter resets when last_request falls on an earlier calendar day.
type RequestCount struct {
	UserID      string
	Count       int
	LastRequest time.Time
}
