package integration

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moderation-api/internal/handlers"
)

func createKey(t *testing.T, ts *TestServer, accessToken string) handlers.GeneratedKeyResponse {
	t.Helper()
	resp, err := ts.RequestWithAuth(http.MethodPost, "/v2/keys", accessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var key handlers.GeneratedKeyResponse
	require.NoError(t, ParseJSONResponse(resp, &key))
	return key
}

func moderate(t *testing.T, ts *TestServer, apiKey, text string) *http.Response {
	t.Helper()
	resp, err := ts.Request(http.MethodPost, "/v2/moderate", map[string]string{
		"text": text,
	}, map[string]string{
		"X-API-Key": apiKey,
	})
	require.NoError(t, err)
	return resp
}

func TestAPIKeyLifecycle(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("keys")
	_, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	accessToken, _ := mustLogin(t, ts, username, TestPassword)

	key := createKey(t, ts, accessToken)
	assert.True(t, strings.HasPrefix(key.APIKey, "cm_"))
	assert.True(t, strings.HasPrefix(key.Name, username+"-"))

	// The key shows up in the list by name only.
	resp, err := ts.RequestWithAuth(http.MethodGet, "/v2/keys", accessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list handlers.KeyListResponse
	require.NoError(t, ParseJSONResponse(resp, &list))
	assert.Equal(t, []string{key.Name}, list.Keys)

	// The key authenticates a moderation call.
	resp = moderate(t, ts, key.APIKey, "some text to classify")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, ParseJSONResponse(resp, &result))
	assert.Equal(t, "toxic", result["category"])
	assert.Equal(t, true, result["flagged"])

	// Usage reflects the charged request.
	resp, err = ts.RequestWithAuth(http.MethodGet, "/v2/keys/usage", accessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var usage handlers.UsageResponse
	require.NoError(t, ParseJSONResponse(resp, &usage))
	assert.Equal(t, 1, usage.Count)
	assert.NotEmpty(t, usage.LastRequest)

	// Deleting the key revokes access.
	resp, err = ts.RequestWithAuth(http.MethodDelete, "/v2/keys/"+key.Name, accessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = moderate(t, ts, key.APIKey, "some text")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyLimitPerUser(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("keycap")
	_, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	accessToken, _ := mustLogin(t, ts, username, TestPassword)

	for i := 0; i < 3; i++ {
		createKey(t, ts, accessToken)
	}

	resp, err := ts.RequestWithAuth(http.MethodPost, "/v2/keys", accessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDailyQuotaExhaustion(t *testing.T) {
	cleanTables(t)
	ts := NewTestServerWithQuota(testDB, 2)
	defer ts.Close()

	username, email := UniqueUser("quota")
	_, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	accessToken, _ := mustLogin(t, ts, username, TestPassword)
	key := createKey(t, ts, accessToken)

	for i := 0; i < 2; i++ {
		resp := moderate(t, ts, key.APIKey, "within quota")
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := moderate(t, ts, key.APIKey, "over quota")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	msg, err := GetErrorMessage(resp)
	require.NoError(t, err)
	assert.Equal(t, "maximum daily request limit reached", msg)
}

func TestInvalidAPIKeyRejected(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	resp := moderate(t, ts, "cm_not_a_real_key", "text")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminLockUnlockAccount(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	adminName, adminEmail := UniqueUser("admin")
	_, err := testDB.SeedAdmin(context.Background(), adminName, adminEmail, TestPassword)
	require.NoError(t, err)

	username, email := UniqueUser("target")
	target, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	adminToken, _ := mustLogin(t, ts, adminName, TestPassword)

	resp, err := ts.RequestWithAuth(http.MethodPost, "/v2/admin/users/"+target.ID+"/lock", adminToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The locked account cannot log in.
	resp = login(t, ts, "/v2", username, TestPassword)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	msg, err := GetErrorMessage(resp)
	require.NoError(t, err)
	assert.Equal(t, "account is locked", msg)

	resp, err = ts.RequestWithAuth(http.MethodPost, "/v2/admin/users/"+target.ID+"/unlock", adminToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = login(t, ts, "/v2", username, TestPassword)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cleanTables(t)
	ts := NewTestServer(testDB)
	defer ts.Close()

	username, email := UniqueUser("plain")
	user, err := testDB.SeedUser(context.Background(), username, email, TestPassword)
	require.NoError(t, err)

	accessToken, _ := mustLogin(t, ts, username, TestPassword)

	resp, err := ts.RequestWithAuth(http.MethodPost, "/v2/admin/users/"+user.ID+"/lock", accessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
