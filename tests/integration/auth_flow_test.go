package integration

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moderation-api/internal/auth"
	"moderation-api/internal/handlers"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Println("skipping integration tests in short mode")
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	_ = db.Teardown(ctx)
	os.Exit(code)
}

func cleanTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

// login posts credentials and returns the raw response.
func login(t *testing.T, ts *TestServer, version, username, password string) *http.Response {
	t.Helper()
	resp, err := ts.Request(http.MethodPost, version+"/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	require.NoError(t, err)
	return resp
}

// mustLogin logs in and returns the access token and refresh cookie.
func mustLogin(t *testing.T, ts *TestServer, username, password string) (string, *http.Cookie) {
	t.Helper()
	resp := login(t, ts, "/v2", username, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	refreshCookie := ResponseCookie(resp, auth.RefreshCookieName)
	require.NotNil(t, refreshCookie)

	var tokenResp handlers.TokenResponse
	require.NoError(t, ParseJSONResponse(resp, &tokenResp))
	require.NotEmpty(t, tokenResp.AccessToken)

	return tokenResp.AccessToken, refreshCookie
}

func TestRegisterConfirmLoginFlow(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("reg")

	resp, err := ts.Request(http.MethodPost, "/v2/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": TestPassword,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user map[string]any
	require.NoError(t, ParseJSONResponse(resp, &user))
	assert.Equal(t, username, user["username"])
	assert.Equal(t, false, user["is_email_confirmed"])

	// Registration provisions the quota counter alongside the account.
	var count int
	require.NoError(t, testDB.Pool.QueryRow(context.Background(),
		"SELECT count FROM request_counts WHERE user_id = $1", user["id"]).Scan(&count))
	assert.Zero(t, count)

	// Login is blocked until the email is confirmed.
	resp = login(t, ts, "/v2", username, TestPassword)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The confirmation email goes out asynchronously.
	var token string
	require.Eventually(t, func() bool {
		token = ts.Email.LastToken("confirmation")
		return token != ""
	}, 5*time.Second, 50*time.Millisecond)

	resp, err = ts.Request(http.MethodGet, "/v2/auth/confirm-email?token="+token, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	accessToken, _ := mustLogin(t, ts, username, TestPassword)

	resp, err = ts.RequestWithAuth(http.MethodGet, "/v2/users/me", accessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile map[string]any
	require.NoError(t, ParseJSONResponse(resp, &profile))
	assert.Equal(t, username, profile["username"])
	assert.Equal(t, true, profile["is_email_confirmed"])
}

func TestV1RegisterLoginWithoutConfirmation(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("v1user")

	resp, err := ts.Request(http.MethodPost, "/v1/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": TestPassword,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// No confirmation step on the v1 surface.
	resp = login(t, ts, "/v1", username, TestPassword)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginLockout(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("lock")
	_, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	// Four failures count down the attempts.
	for i := 1; i <= 4; i++ {
		resp := login(t, ts, "/v2", username, "WrongPass1@")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		msg, err := GetErrorMessage(resp)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("invalid username or password, only %d attempts left", 5-i), msg)
	}

	// The fifth attempt hits the limit and is blocked outright.
	resp := login(t, ts, "/v2", username, "WrongPass1@")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	msg, err := GetErrorMessage(resp)
	require.NoError(t, err)
	assert.Equal(t, "maximum number of login attempts reached", msg)

	// The correct password no longer helps.
	resp = login(t, ts, "/v2", username, TestPassword)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	msg, err = GetErrorMessage(resp)
	require.NoError(t, err)
	assert.Equal(t, "maximum number of login attempts reached", msg)

	// The lockout notification goes out once.
	assert.Eventually(t, func() bool {
		return ts.Email.Count("max_attempts") == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRefreshTokenRotation(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("refresh")
	_, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	_, refreshCookie := mustLogin(t, ts, username, TestPassword)

	resp, err := ts.Request(http.MethodPost, "/v2/auth/refresh", nil, map[string]string{
		"Cookie": refreshCookie.Name + "=" + refreshCookie.Value,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rotated := ResponseCookie(resp, auth.RefreshCookieName)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refreshCookie.Value, rotated.Value)

	var tokenResp handlers.TokenResponse
	require.NoError(t, ParseJSONResponse(resp, &tokenResp))
	assert.NotEmpty(t, tokenResp.AccessToken)

	// The old refresh token died with the rotation.
	resp, err = ts.Request(http.MethodPost, "/v2/auth/refresh", nil, map[string]string{
		"Cookie": refreshCookie.Name + "=" + refreshCookie.Value,
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("logout")
	_, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	accessToken, refreshCookie := mustLogin(t, ts, username, TestPassword)

	resp, err := ts.RequestWithAuth(http.MethodPost, "/v2/auth/logout", accessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Request(http.MethodPost, "/v2/auth/refresh", nil, map[string]string{
		"Cookie": refreshCookie.Name + "=" + refreshCookie.Value,
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("reset")
	_, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	resp, err := ts.Request(http.MethodPost, "/v2/auth/forgot-password", map[string]string{
		"email": email,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var token string
	require.Eventually(t, func() bool {
		token = ts.Email.LastToken("password_reset")
		return token != ""
	}, 5*time.Second, 50*time.Millisecond)

	newPassword := "Changed9#pass"
	resp, err = ts.Request(http.MethodPost, "/v2/auth/reset-password", map[string]string{
		"token":        token,
		"new_password": newPassword,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Old password is dead, new one works.
	resp = login(t, ts, "/v2", username, TestPassword)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = login(t, ts, "/v2", username, newPassword)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	resp, err := ts.Request(http.MethodPost, "/v2/auth/forgot-password", map[string]string{
		"email": "nobody@example.com",
	}, nil)
	require.NoError(t, err)

	// Same response as for a registered address.
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body handlers.MessageResponse
	require.NoError(t, ParseJSONResponse(resp, &body))
	assert.Contains(t, body.Message, "if the email is registered")
}
