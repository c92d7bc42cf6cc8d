package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose namespaces signed tokens. Each purpose is signed with its own
// secret so a token issued for one purpose can never verify as another.
type TokenPurpose string

const (
	PurposeAccess        TokenPurpose = "access"
	PurposeTwoFactor     TokenPurpose = "two_factor"
	PurposeEmailConfirm  TokenPurpose = "email_confirmation"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// TokenSecrets holds one signing secret per purpose.
type TokenSecrets struct {
	AccessSecret        string
	TwoFactorSecret     string
	EmailConfirmSecret  string
	PasswordResetSecret string
}

// TokenClaims is the claim set carried by every signed token. Subject is the
// user ID. Purpose-specific fields are left zero for other purposes.
type TokenClaims struct {
	Purpose         TokenPurpose `json:"purpose"`
	Username        string       `json:"username,omitempty"`
	Role            string       `json:"role,omitempty"`
	Email           string       `json:"email,omitempty"`
	IsAuthenticated bool         `json:"is_authenticated,omitempty"`
	jwt.RegisteredClaims
}
