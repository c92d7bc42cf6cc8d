// Package clock abstracts time for components whose behavior depends on it
// (token expiry, attempt windows, daily quota rollover).
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// System is the production clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed returns a constant time; tests use it to pin windows and expiries.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
