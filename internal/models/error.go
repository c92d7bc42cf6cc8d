package models

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy. Handlers map these to HTTP
// status codes; services return the most specific error that wraps one of
// the four base kinds.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("resource not found")
	ErrInternalServer = errors.New("internal server error")

	// ErrConflict is raised by the storage layer on unique violations and
	// surfaces to clients as a bad request (duplicate username/email/key).
	ErrConflict = fmt.Errorf("%w: resource already exists", ErrBadRequest)

	// Token failures
	ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)

	// Account state errors
	ErrAccountLocked      = fmt.Errorf("%w: account is locked", ErrUnauthorized)
	ErrMaxAttemptsReached = fmt.Errorf("%w: maximum login attempts exceeded", ErrUnauthorized)
	ErrEmailNotConfirmed  = fmt.Errorf("%w: email address is not confirmed", ErrBadRequest)

	// API key and quota errors
	ErrKeyLimitReached = fmt.Errorf("%w: maximum number of API keys reached", ErrBadRequest)
	ErrQuotaExceeded   = fmt.Errorf("%w: maximum daily request limit reached", ErrBadRequest)

	// Password flow errors
	ErrSamePassword = fmt.Errorf("%w: new password cannot be the same as the current password", ErrBadRequest)
)

// InvalidCredentialsError is returned on a failed password check and carries
// the number of attempts left before lockout so the handler can report it.
type InvalidCredentialsError struct {
	AttemptsLeft int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid username or password, only %d attempts left", e.AttemptsLeft)
}

// Unwrap makes errors.Is(err, ErrUnauthorized) hold for credential failures.
func (e *InvalidCredentialsError) Unwrap() error {
	return ErrUnauthorized
}
