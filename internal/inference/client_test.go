package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Moderate(t *testing.T) {
	var gotBody ModerateRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/moderate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(ModerateResponse{
			Text:       gotBody.Text,
			Category:   "hate_speech",
			Confidence: 0.91,
			Flagged:    true,
		})
	}))
	defer backend.Close()

	client := NewClient(backend.URL)
	result, err := client.Moderate(context.Background(), "offensive text")

	require.NoError(t, err)
	assert.Equal(t, "offensive text", gotBody.Text)
	assert.Equal(t, "hate_speech", result.Category)
	assert.InDelta(t, 0.91, result.Confidence, 0.0001)
	assert.True(t, result.Flagged)
}

func TestClient_ModerateBackendError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	client := NewClient(backend.URL)
	result, err := client.Moderate(context.Background(), "text")

	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_ModerateUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	result, err := client.Moderate(context.Background(), "text")

	assert.Nil(t, result)
	assert.Error(t, err)
}

func TestClient_HealthCheck(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", ModelLoaded: true})
	}))
	defer backend.Close()

	client := NewClient(backend.URL)
	health, err := client.HealthCheck(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.ModelLoaded)
}
