package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"moderation-api/internal/auth"
	"moderation-api/internal/models"
	pkglogger "moderation-api/pkg/logger"
)

// APIKeyService manages key issuance and key-based authentication with the
// daily request quota.
type APIKeyService struct {
	keys           APIKeyRepository
	users          UserRepository
	counts         RequestCountRepository
	maxKeysPerUser int
	dailyLimit     int
	logger         *slog.Logger
	auditLogger    *pkglogger.AuditLogger
}

func NewAPIKeyService(
	keys APIKeyRepository,
	users UserRepository,
	counts RequestCountRepository,
	maxKeysPerUser int,
	dailyLimit int,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *APIKeyService {
	return &APIKeyService{
		keys:           keys,
		users:          users,
		counts:         counts,
		maxKeysPerUser: maxKeysPerUser,
		dailyLimit:     dailyLimit,
		logger:         logger,
		auditLogger:    auditLogger,
	}
}

// CreateKey issues a new API key for the user. The plaintext is returned
// exactly once; only the hash is persisted. Key names are generated so they
// never carry user-chosen content into logs.
func (s *APIKeyService) CreateKey(ctx context.Context, userID, username string) (*models.GeneratedAPIKey, error) {
	count, err := s.keys.CountByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to count api keys",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if count >= s.maxKeysPerUser {
		return nil, models.ErrKeyLimitReached
	}

	plaintext, hash, err := auth.GenerateAPIKey()
	if err != nil {
		s.logger.Error("failed to generate api key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	name, err := generateKeyName(username)
	if err != nil {
		s.logger.Error("failed to generate api key name", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	key := &models.APIKey{
		Name:    name,
		KeyHash: hash,
		UserID:  userID,
	}

	if _, err := s.keys.Create(ctx, key); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Name or hash collision, both drawn from crypto/rand. Retrying
			// once would almost certainly succeed but a conflict here is so
			// unlikely that surfacing it is fine.
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to store api key",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("api_key_created", userID, map[string]string{
		"key_name": name,
	})

	return &models.GeneratedAPIKey{Name: name, PlainKey: plaintext}, nil
}

// ListKeys returns the names of the user's keys.
func (s *APIKeyService) ListKeys(ctx context.Context, userID string) ([]string, error) {
	names, err := s.keys.ListNamesByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list api keys",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return names, nil
}

// DeleteKey revokes one of the user's keys by name.
func (s *APIKeyService) DeleteKey(ctx context.Context, userID, name string) error {
	if err := s.keys.DeleteByUserAndName(ctx, userID, name); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete api key",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("api_key_deleted", userID, map[string]string{
		"key_name": name,
	})
	return nil
}

// AuthenticateKey resolves a plaintext key to its owner and consumes one
// unit of the owner's daily quota. Locked accounts cannot use their keys.
func (s *APIKeyService) AuthenticateKey(ctx context.Context, plaintext string) (*models.User, error) {
	userID, err := s.keys.GetUserIDByKeyHash(ctx, auth.HashToken(plaintext))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to look up api key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get api key owner",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.IsLocked {
		return nil, models.ErrAccountLocked
	}

	if _, err := s.counts.Advance(ctx, user.ID, s.dailyLimit); err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			return nil, models.ErrQuotaExceeded
		}
		s.logger.Error("failed to advance request count",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// Usage returns the user's request counter for the current day.
func (s *APIKeyService) Usage(ctx context.Context, userID string) (*models.RequestCount, error) {
	rc, err := s.counts.Get(ctx, userID)
	if err != nil {
		s.logger.Error("failed to get request count",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return rc, nil
}

func generateKeyName(username string) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", username, hex.EncodeToString(buf)), nil
}
