package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"moderation-api/internal/auth"
	"moderation-api/internal/clock"
	"moderation-api/internal/config"
	"moderation-api/internal/handlers"
	"moderation-api/internal/inference"
	middlewareCustom "moderation-api/internal/middleware"
	"moderation-api/internal/models"
	"moderation-api/internal/routes"
	"moderation-api/internal/services"
	pkglogger "moderation-api/pkg/logger"
)

// SentEmail is a captured outgoing message.
type SentEmail struct {
	To    string
	Kind  string
	Token string
}

// CapturingEmailService records outgoing emails, including the embedded
// tokens, so tests can drive confirmation and reset flows end to end.
type CapturingEmailService struct {
	mu     sync.Mutex
	emails []SentEmail
}

func (m *CapturingEmailService) record(email SentEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, email)
	return nil
}

func (m *CapturingEmailService) SendLoginNotification(ctx context.Context, email, username string, at time.Time) error {
	return m.record(SentEmail{To: email, Kind: "login_notification"})
}

func (m *CapturingEmailService) SendConfirmationEmail(ctx context.Context, email, username, token string) error {
	return m.record(SentEmail{To: email, Kind: "confirmation", Token: token})
}

func (m *CapturingEmailService) SendMaxAttemptsNotification(ctx context.Context, email, username string) error {
	return m.record(SentEmail{To: email, Kind: "max_attempts"})
}

func (m *CapturingEmailService) SendPasswordResetEmail(ctx context.Context, email, username, token string) error {
	return m.record(SentEmail{To: email, Kind: "password_reset", Token: token})
}

// LastToken returns the token from the most recent email of the given kind,
// or an empty string.
func (m *CapturingEmailService) LastToken(kind string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.emails) - 1; i >= 0; i-- {
		if m.emails[i].Kind == kind {
			return m.emails[i].Token
		}
	}
	return ""
}

// Count returns how many emails of the given kind were sent.
func (m *CapturingEmailService) Count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, email := range m.emails {
		if email.Kind == kind {
			n++
		}
	}
	return n
}

// TestServer runs the full HTTP stack against the shared test database, with
// a capturing email service and a stub inference backend.
type TestServer struct {
	Server    *httptest.Server
	Inference *httptest.Server
	Email     *CapturingEmailService
	Config    *config.AuthConfig

	clientIP string
}

// serverSeq gives every TestServer a distinct client IP so the per-IP rate
// limiter never couples unrelated tests.
var serverSeq atomic.Int64

func integrationAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		AccessTokenSecret:    "integration-access-secret-012345",
		TwoFactorTokenSecret: "integration-twofa-secret-0123456",
		EmailTokenSecret:     "integration-email-secret-0123456",
		PasswordResetSecret:  "integration-reset-secret-0123456",
		AccessTokenExpiry:    30 * time.Minute,
		TwoFactorTokenExpiry: 3 * time.Minute,
		EmailTokenExpiry:     1 * time.Hour,
		PasswordResetExpiry:  20 * time.Minute,
		RefreshTokenExpiry:   7 * 24 * time.Hour,
		MaxAttempts:          5,
		AttemptWindow:        5 * time.Minute,
		ResetAttemptsOnLogin: true,
		TOTPIssuer:           "Moderation API Test",
		CleanupInterval:      1 * time.Hour,
	}
}

// NewTestServer wires the production stack with all feature flags on and the
// default daily quota.
func NewTestServer(db *TestDB) *TestServer {
	return NewTestServerWithQuota(db, 100)
}

// NewTestServerWithQuota is NewTestServer with a custom daily request limit,
// so quota exhaustion can be tested without a hundred requests.
func NewTestServerWithQuota(db *TestDB, dailyLimit int) *TestServer {
	logger := discardLogger()
	cfg := integrationAuthConfig()
	features := config.Features{
		EmailConfirmation:    true,
		TwoFactor:            true,
		LockoutNotifications: true,
	}

	secrets := models.TokenSecrets{
		AccessSecret:        cfg.AccessTokenSecret,
		TwoFactorSecret:     cfg.TwoFactorTokenSecret,
		EmailConfirmSecret:  cfg.EmailTokenSecret,
		PasswordResetSecret: cfg.PasswordResetSecret,
	}
	ttls := map[models.TokenPurpose]time.Duration{
		models.PurposeAccess:        cfg.AccessTokenExpiry,
		models.PurposeTwoFactor:     cfg.TwoFactorTokenExpiry,
		models.PurposeEmailConfirm:  cfg.EmailTokenExpiry,
		models.PurposePasswordReset: cfg.PasswordResetExpiry,
	}
	clk := clock.System{}
	tokenManager := auth.NewTokenManager(secrets, ttls, clk)
	totpManager := auth.NewTOTPManager(cfg.TOTPIssuer, clk)
	auditLogger := pkglogger.NewAuditLogger(logger)

	emailService := &CapturingEmailService{}

	lockoutService := services.NewLockoutService(
		db.Store.LoginAttempts, emailService, cfg, logger, auditLogger)

	newAccountService := func(features config.Features) *services.AccountService {
		return services.NewAccountService(
			db.Store.Users, db.Store, lockoutService, tokenManager, totpManager,
			emailService, cfg, features, clk, logger, auditLogger)
	}
	v1AccountService := newAccountService(config.Features{})
	v2AccountService := newAccountService(features)

	apiKeyService := services.NewAPIKeyService(
		db.Store.APIKeys, db.Store.Users, db.Store.RequestCounts,
		3, dailyLimit, logger, auditLogger)

	inferenceBackend := newStubInferenceServer()
	inferenceClient := inference.NewClient(inferenceBackend.URL)

	v1AuthHandler := handlers.NewAuthHandler(v1AccountService, false)
	v2AuthHandler := handlers.NewAuthHandler(v2AccountService, false)
	userHandler := handlers.NewUserHandler(v2AccountService)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyService)
	moderationHandler := handlers.NewModerationHandler(inferenceClient, logger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	router.Use(chiMiddleware.Recoverer)
	router.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router,
		v1AuthHandler, v2AuthHandler, userHandler, apiKeyHandler, moderationHandler,
		tokenManager, apiKeyService, db.Store.Users, features)

	seq := serverSeq.Add(1)
	return &TestServer{
		Server:    httptest.NewServer(router),
		Inference: inferenceBackend,
		Email:     emailService,
		Config:    cfg,
		clientIP:  fmt.Sprintf("10.0.%d.%d", seq/250, seq%250+1),
	}
}

// newStubInferenceServer mimics the external moderation inference service.
func newStubInferenceServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /moderate", func(w http.ResponseWriter, r *http.Request) {
		var req inference.ModerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(inference.ModerateResponse{
			Text:       req.Text,
			Category:   "toxic",
			Confidence: 0.97,
			Flagged:    true,
		})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(inference.HealthResponse{Status: "ok", ModelLoaded: true})
	})
	return httptest.NewServer(mux)
}

// Close shuts down the test server and its stub inference backend.
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Inference != nil {
		ts.Inference.Close()
	}
}

// Request makes a JSON request to the test server.
func (ts *TestServer) Request(method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", ts.clientIP)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes a request with a bearer access token.
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body any) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// ParseJSONResponse decodes and closes the response body.
func ParseJSONResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ResponseCookie returns the named Set-Cookie value, or nil.
func ResponseCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// GetErrorMessage extracts the message field from an error response.
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
