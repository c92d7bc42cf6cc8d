package services

import (
	"context"
	"log/slog"
	"time"

	"moderation-api/internal/config"
	"moderation-api/internal/models"
	pkglogger "moderation-api/pkg/logger"
)

// LockoutService enforces the failed-login counter. Every login attempt is
// counted before credentials are checked, so hammering a locked account
// keeps the window open instead of letting it expire.
type LockoutService struct {
	attempts    LoginAttemptRepository
	email       EmailService
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewLockoutService(
	attempts LoginAttemptRepository,
	email EmailService,
	cfg *config.AuthConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *LockoutService {
	return &LockoutService{
		attempts:    attempts,
		email:       email,
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.AttemptWindow,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// RecordAttempt counts an attempt for the username and returns how many
// attempts remain before lockout. Returns ErrMaxAttemptsReached on the
// attempt that reaches the limit and on every attempt after it. When notify
// is set, the attempt that hits the limit also triggers the notification
// email; later blocked attempts stay silent. The caller decides notify per
// API surface, since the counter itself is shared. userEmail may be empty
// when the username is unknown.
func (s *LockoutService) RecordAttempt(ctx context.Context, username, userEmail string, notify bool) (int, error) {
	count, err := s.attempts.RecordAttempt(ctx, username, s.window)
	if err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("username", username),
			slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if count >= s.maxAttempts {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			Username:      username,
			FailureReason: "max_attempts_reached",
			Success:       false,
		})

		if notify && userEmail != "" && count == s.maxAttempts {
			go func() {
				sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.email.SendMaxAttemptsNotification(sendCtx, userEmail, username); err != nil {
					s.logger.Error("failed to send lockout notification",
						slog.String("username", username),
						slog.Any("error", err))
				}
			}()
		}

		return 0, models.ErrMaxAttemptsReached
	}

	return s.maxAttempts - count, nil
}

// Reset clears the counter after a successful authentication.
func (s *LockoutService) Reset(ctx context.Context, username string) {
	if err := s.attempts.Reset(ctx, username); err != nil {
		s.logger.Error("failed to reset login attempts",
			slog.String("username", username),
			slog.Any("error", err))
	}
}

// CleanupStale drops counters that have been idle for longer than the
// retention period. Called by the background cleanup loop.
func (s *LockoutService) CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.attempts.DeleteStale(ctx, olderThan)
}
