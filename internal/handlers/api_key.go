package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"moderation-api/internal/auth"
	"moderation-api/internal/models"
	pkghttp "moderation-api/pkg/http"
)

// APIKeyServiceInterface defines the key management operations used by the
// handlers.
type APIKeyServiceInterface interface {
	CreateKey(ctx context.Context, userID, username string) (*models.GeneratedAPIKey, error)
	ListKeys(ctx context.Context, userID string) ([]string, error)
	DeleteKey(ctx context.Context, userID, name string) error
	Usage(ctx context.Context, userID string) (*models.RequestCount, error)
}

// APIKeyHandler handles API key management requests.
type APIKeyHandler struct {
	service APIKeyServiceInterface
}

func NewAPIKeyHandler(service APIKeyServiceInterface) *APIKeyHandler {
	return &APIKeyHandler{service: service}
}

type GeneratedKeyResponse struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

type KeyListResponse struct {
	Keys []string `json:"keys"`
}

type UsageResponse struct {
	Count       int    `json:"count"`
	LastRequest string `json:"last_request,omitempty"`
}

// CreateKey issues a new key. The plaintext appears in this response only.
func (h *APIKeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	key, err := h.service.CreateKey(r.Context(), claims.Subject, claims.Username)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, GeneratedKeyResponse{
		Name:   key.Name,
		APIKey: key.PlainKey,
	})
}

// ListKeys returns the caller's key names.
func (h *APIKeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	names, err := h.service.ListKeys(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, KeyListResponse{Keys: names})
}

// DeleteKey revokes one of the caller's keys by name.
func (h *APIKeyHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" {
		pkghttp.WriteBadRequest(w, "missing key name")
		return
	}

	if err := h.service.DeleteKey(r.Context(), claims.Subject, name); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "api key deleted"})
}

// Usage returns the caller's request counter for the current day.
func (h *APIKeyHandler) Usage(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	rc, err := h.service.Usage(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := UsageResponse{Count: rc.Count}
	if !rc.LastRequest.IsZero() {
		resp.LastRequest = rc.LastRequest.UTC().Format(time.RFC3339)
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
