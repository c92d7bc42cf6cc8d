package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moderation-api/internal/models"
)

type stubUserRepo struct {
	getByID func(ctx context.Context, id string) (*models.User, error)
}

func (s *stubUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if s.getByID != nil {
		return s.getByID(ctx, id)
	}
	return nil, models.ErrNotFound
}

type stubKeyAuthenticator struct {
	authenticate func(ctx context.Context, plaintext string) (*models.User, error)
}

func (s *stubKeyAuthenticator) AuthenticateKey(ctx context.Context, plaintext string) (*models.User, error) {
	return s.authenticate(ctx, plaintext)
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func issueAccessToken(t *testing.T, tm *TokenManager, userID string) string {
	t.Helper()
	token, err := tm.Issue(models.PurposeAccess, models.TokenClaims{
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	})
	require.NoError(t, err)
	return token
}

func TestMiddleware_ValidToken(t *testing.T) {
	tm := NewTokenManager(testSecrets(), testTTLs(), nil)
	token := issueAccessToken(t, tm, "user123")

	var claims *models.TokenClaims
	handler := Middleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = GetUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "user123", claims.Subject)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	tm := NewTokenManager(testSecrets(), testTTLs(), nil)

	called := false
	handler := Middleware(tm)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	assert.False(t, called)
}

func TestMiddleware_MalformedHeader(t *testing.T) {
	tm := NewTokenManager(testSecrets(), testTTLs(), nil)

	for _, header := range []string{"token-without-scheme", "Basic abc123", "Bearer"} {
		called := false
		handler := Middleware(tm)(okHandler(&called))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.False(t, called, "header %q", header)
	}
}

func TestMiddleware_RejectsNonAccessToken(t *testing.T) {
	tm := NewTokenManager(testSecrets(), testTTLs(), nil)

	// A pending two-factor token must not grant API access.
	token, err := tm.Issue(models.PurposeTwoFactor, models.TokenClaims{
		IsAuthenticated:  true,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user123"},
	})
	require.NoError(t, err)

	called := false
	handler := Middleware(tm)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestRequireRole_Allowed(t *testing.T) {
	tm := NewTokenManager(testSecrets(), testTTLs(), nil)
	token := issueAccessToken(t, tm, "user123")

	repo := &stubUserRepo{getByID: func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: id, Roles: []string{models.RoleAdmin}}, nil
	}}

	called := false
	handler := Middleware(tm)(RequireRole(repo, models.RoleAdmin)(okHandler(&called)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequireRole_Forbidden(t *testing.T) {
	tm := NewTokenManager(testSecrets(), testTTLs(), nil)
	token := issueAccessToken(t, tm, "user123")

	repo := &stubUserRepo{getByID: func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: id, Roles: []string{models.RoleUser}}, nil
	}}

	called := false
	handler := Middleware(tm)(RequireRole(repo, models.RoleAdmin)(okHandler(&called)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}

func TestRequireRole_DeletedUser(t *testing.T) {
	tm := NewTokenManager(testSecrets(), testTTLs(), nil)
	token := issueAccessToken(t, tm, "user123")

	// The token is still valid but the account is gone.
	repo := &stubUserRepo{}

	called := false
	handler := Middleware(tm)(RequireRole(repo, models.RoleAdmin)(okHandler(&called)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestRequireRole_NoClaimsInContext(t *testing.T) {
	repo := &stubUserRepo{}

	called := false
	handler := RequireRole(repo, models.RoleAdmin)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAPIKeyMiddleware_ValidKey(t *testing.T) {
	owner := &models.User{ID: "user123", Username: "alice"}
	authenticator := &stubKeyAuthenticator{authenticate: func(ctx context.Context, plaintext string) (*models.User, error) {
		if plaintext == "cm_valid" {
			return owner, nil
		}
		return nil, models.ErrUnauthorized
	}}

	var gotUser *models.User
	handler := APIKeyMiddleware(authenticator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetAPIKeyUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "cm_valid")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotUser)
	assert.Equal(t, "user123", gotUser.ID)
}

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	authenticator := &stubKeyAuthenticator{authenticate: func(ctx context.Context, plaintext string) (*models.User, error) {
		t.Fatal("authenticator must not be called without a key")
		return nil, nil
	}}

	called := false
	handler := APIKeyMiddleware(authenticator)(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAPIKeyMiddleware_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"quota exceeded", models.ErrQuotaExceeded, http.StatusBadRequest},
		{"unknown key", models.ErrUnauthorized, http.StatusUnauthorized},
		{"missing owner", models.ErrNotFound, http.StatusUnauthorized},
		{"locked account", models.ErrAccountLocked, http.StatusUnauthorized},
		{"storage failure", models.ErrInternalServer, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authenticator := &stubKeyAuthenticator{authenticate: func(ctx context.Context, plaintext string) (*models.User, error) {
				return nil, tt.err
			}}

			called := false
			handler := APIKeyMiddleware(authenticator)(okHandler(&called))

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("X-API-Key", "cm_whatever")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, called)
		})
	}
}
