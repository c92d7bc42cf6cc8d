package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moderation-api/internal/auth"
	"moderation-api/internal/models"
	pkglogger "moderation-api/pkg/logger"
)

type apiKeyServiceFixture struct {
	keys    *MockAPIKeyRepository
	users   *MockUserRepository
	counts  *MockRequestCountRepository
	service *APIKeyService
}

func newAPIKeyServiceFixture() *apiKeyServiceFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &apiKeyServiceFixture{
		keys:   &MockAPIKeyRepository{},
		users:  &MockUserRepository{},
		counts: &MockRequestCountRepository{},
	}
	f.service = NewAPIKeyService(
		f.keys, f.users, f.counts, 3, 100, logger, pkglogger.NewAuditLogger(logger))
	return f
}

func TestAPIKeyService_CreateKey_Success(t *testing.T) {
	f := newAPIKeyServiceFixture()

	var stored *models.APIKey
	f.keys.CreateFunc = func(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
		stored = key
		key.ID = "key123"
		return key, nil
	}

	generated, err := f.service.CreateKey(context.Background(), "user123", "alice")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(generated.PlainKey, auth.APIKeyPrefix))
	assert.True(t, strings.HasPrefix(generated.Name, "alice-"))

	// Only the hash hits storage, and it resolves back to the plaintext.
	require.NotNil(t, stored)
	assert.NotContains(t, stored.KeyHash, generated.PlainKey)
	assert.Equal(t, auth.HashToken(generated.PlainKey), stored.KeyHash)
	assert.Equal(t, "user123", stored.UserID)
}

func TestAPIKeyService_CreateKey_LimitReached(t *testing.T) {
	f := newAPIKeyServiceFixture()

	f.keys.CountByUserFunc = func(ctx context.Context, userID string) (int, error) {
		return 3, nil
	}

	generated, err := f.service.CreateKey(context.Background(), "user123", "alice")

	assert.Nil(t, generated)
	assert.ErrorIs(t, err, models.ErrKeyLimitReached)
}

func TestAPIKeyService_CreateKey_UniquePlaintexts(t *testing.T) {
	f := newAPIKeyServiceFixture()

	first, err := f.service.CreateKey(context.Background(), "user123", "alice")
	require.NoError(t, err)
	second, err := f.service.CreateKey(context.Background(), "user123", "alice")
	require.NoError(t, err)

	assert.NotEqual(t, first.PlainKey, second.PlainKey)
	assert.NotEqual(t, first.Name, second.Name)
}

func TestAPIKeyService_DeleteKey_NotFound(t *testing.T) {
	f := newAPIKeyServiceFixture()

	f.keys.DeleteByUserAndNameFunc = func(ctx context.Context, userID, name string) error {
		return models.ErrNotFound
	}

	err := f.service.DeleteKey(context.Background(), "user123", "alice-abcd1234")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAPIKeyService_AuthenticateKey_Success(t *testing.T) {
	f := newAPIKeyServiceFixture()
	user := NewTestUser("user123", "alice", "alice@example.com", "hash")

	plaintext, hash, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	f.keys.GetUserIDByKeyHashFunc = func(ctx context.Context, keyHash string) (string, error) {
		if keyHash == hash {
			return "user123", nil
		}
		return "", models.ErrNotFound
	}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	var advancedUser string
	var advancedLimit int
	f.counts.AdvanceFunc = func(ctx context.Context, userID string, limit int) (int, error) {
		advancedUser = userID
		advancedLimit = limit
		return 1, nil
	}

	got, err := f.service.AuthenticateKey(context.Background(), plaintext)

	require.NoError(t, err)
	assert.Equal(t, "user123", got.ID)
	assert.Equal(t, "user123", advancedUser)
	assert.Equal(t, 100, advancedLimit)
}

func TestAPIKeyService_AuthenticateKey_UnknownKey(t *testing.T) {
	f := newAPIKeyServiceFixture()

	got, err := f.service.AuthenticateKey(context.Background(), "cm_bogus")

	assert.Nil(t, got)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAPIKeyService_AuthenticateKey_LockedOwner(t *testing.T) {
	f := newAPIKeyServiceFixture()
	user := NewTestUser("user123", "alice", "alice@example.com", "hash")
	user.IsLocked = true

	f.keys.GetUserIDByKeyHashFunc = func(ctx context.Context, keyHash string) (string, error) {
		return "user123", nil
	}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	charged := false
	f.counts.AdvanceFunc = func(ctx context.Context, userID string, limit int) (int, error) {
		charged = true
		return 1, nil
	}

	got, err := f.service.AuthenticateKey(context.Background(), "cm_whatever")

	assert.Nil(t, got)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	// A locked account must not burn quota.
	assert.False(t, charged)
}

func TestAPIKeyService_AuthenticateKey_QuotaExceeded(t *testing.T) {
	f := newAPIKeyServiceFixture()
	user := NewTestUser("user123", "alice", "alice@example.com", "hash")

	f.keys.GetUserIDByKeyHashFunc = func(ctx context.Context, keyHash string) (string, error) {
		return "user123", nil
	}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}
	f.counts.AdvanceFunc = func(ctx context.Context, userID string, limit int) (int, error) {
		return 0, models.ErrQuotaExceeded
	}

	got, err := f.service.AuthenticateKey(context.Background(), "cm_whatever")

	assert.Nil(t, got)
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
}

func TestAPIKeyService_Usage(t *testing.T) {
	f := newAPIKeyServiceFixture()

	f.counts.GetFunc = func(ctx context.Context, userID string) (*models.RequestCount, error) {
		return &models.RequestCount{UserID: userID, Count: 42}, nil
	}

	rc, err := f.service.Usage(context.Background(), "user123")

	require.NoError(t, err)
	assert.Equal(t, 42, rc.Count)
}
