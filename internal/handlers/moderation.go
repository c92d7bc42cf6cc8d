package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"moderation-api/internal/auth"
	"moderation-api/internal/inference"
	pkghttp "moderation-api/pkg/http"
)

// InferenceClient classifies text through the external inference service.
type InferenceClient interface {
	Moderate(ctx context.Context, text string) (*inference.ModerateResponse, error)
}

// ModerationHandler handles the metered moderation endpoint. Requests reach
// it through the API key middleware, which has already charged the quota.
type ModerationHandler struct {
	client InferenceClient
	logger *slog.Logger
}

func NewModerationHandler(client InferenceClient, logger *slog.Logger) *ModerationHandler {
	return &ModerationHandler{client: client, logger: logger}
}

type ModerateTextRequest struct {
	Text string `json:"text" validate:"required,max=10000"`
}

// Moderate classifies a single text.
func (h *ModerationHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAPIKeyUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ModerateTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.client.Moderate(r.Context(), req.Text)
	if err != nil {
		h.logger.Error("inference request failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteError(w, http.StatusBadGateway, "inference_unavailable", "moderation service is unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}
