package models

import (
	"time"
)

type User struct {
	ID                     string
	Username               string
	Email                  string
	PasswordHash           string
	IsEmailConfirmed       bool
	IsTwoFactorEnabled     bool
	TwoFactorSecret        *string // Set only once enrollment is confirmed
	TwoFactorPendingSecret *string // Generated at setup, promoted on first verify
	IsLocked               bool
	LastLogin              time.Time
	RefreshTokenHash       *string
	RefreshTokenExpiresAt  *time.Time
	Roles                  []string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// FirstRole returns the role bound into access tokens. Users always carry at
// least one role after registration; "user" is the safe default.
func (u *User) FirstRole() string {
	if len(u.Roles) == 0 {
		return RoleUser
	}
	return u.Roles[0]
}
