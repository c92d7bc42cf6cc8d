package auth

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 6
	MaxPasswordLen = 128
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	specialPattern  = regexp.MustCompile(`[@#$%&*]`)
	upperPattern    = regexp.MustCompile(`[A-Z]`)
	digitPattern    = regexp.MustCompile(`\d`)
)

// PasswordValidationError holds validation failures. The message stays
// specific because the rules are published in the API docs.
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "invalid password: " + strings.Join(e.Errors, "; ")
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword enforces the registration password policy: minimum length,
// one uppercase letter, one digit, one special character from @#$%&*.
func ValidatePassword(password string) error {
	errs := make([]string, 0)

	if len(password) < MinPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}
	if !upperPattern.MatchString(password) {
		errs = append(errs, "must contain at least one uppercase letter")
	}
	if !digitPattern.MatchString(password) {
		errs = append(errs, "must contain at least one digit")
	}
	if !specialPattern.MatchString(password) {
		errs = append(errs, "must contain at least one special character (@,#,$,%,&,*)")
	}

	if len(errs) > 0 {
		return &PasswordValidationError{Errors: errs}
	}
	return nil
}

// ValidateUsername allows lowercase letters, digits, and underscores only.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 20 {
		return fmt.Errorf("username must be between 3 and 20 characters")
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username can only contain lowercase letters, numbers, and underscores")
	}
	return nil
}
