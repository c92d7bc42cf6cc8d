package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moderation-api/internal/models"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"quota exceeded", models.ErrQuotaExceeded, http.StatusBadRequest, "maximum daily request limit reached"},
		{"key limit", models.ErrKeyLimitReached, http.StatusBadRequest, ""},
		{"email not confirmed", models.ErrEmailNotConfirmed, http.StatusBadRequest, ""},
		{"same password", models.ErrSamePassword, http.StatusBadRequest, ""},
		{"invalid token", models.ErrInvalidToken, http.StatusUnauthorized, "invalid or expired token"},
		{"account locked", models.ErrAccountLocked, http.StatusUnauthorized, "account is locked"},
		{"max attempts", models.ErrMaxAttemptsReached, http.StatusUnauthorized, "maximum number of login attempts reached"},
		{"credentials", &models.InvalidCredentialsError{AttemptsLeft: 2}, http.StatusUnauthorized, "invalid username or password, only 2 attempts left"},
		{"unauthorized", models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"not found", models.ErrNotFound, http.StatusNotFound, "resource not found"},
		{"internal", models.ErrInternalServer, http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantMessage != "" {
				var body map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, tt.wantMessage, body["message"])
			}
		})
	}
}
