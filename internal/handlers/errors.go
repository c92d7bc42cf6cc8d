package handlers

import (
	"errors"
	"net/http"

	"moderation-api/internal/models"
	pkghttp "moderation-api/pkg/http"
)

// writeServiceError translates the service error taxonomy to HTTP. Specific
// wrapped errors keep their message; everything else collapses to the status
// of the base kind it wraps.
func writeServiceError(w http.ResponseWriter, err error) {
	var credErr *models.InvalidCredentialsError
	if errors.As(err, &credErr) {
		pkghttp.WriteUnauthorized(w, credErr.Error())
		return
	}

	switch {
	case errors.Is(err, models.ErrQuotaExceeded):
		pkghttp.WriteBadRequest(w, "maximum daily request limit reached")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrInvalidToken):
		pkghttp.WriteUnauthorized(w, "invalid or expired token")
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteUnauthorized(w, "account is locked")
	case errors.Is(err, models.ErrMaxAttemptsReached):
		pkghttp.WriteUnauthorized(w, "maximum number of login attempts reached")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "unauthorized")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "resource not found")
	default:
		pkghttp.WriteInternalError(w, "internal server error")
	}
}
