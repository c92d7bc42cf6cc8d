package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"moderation-api/internal/auth"
	"moderation-api/internal/clock"
	"moderation-api/internal/config"
	"moderation-api/internal/models"
	pkgauth "moderation-api/pkg/auth"
	pkglogger "moderation-api/pkg/logger"
)

// AccountService handles registration, login, token, password, and
// two-factor flows.
type AccountService struct {
	users       UserRepository
	registrar   Registrar
	lockout     *LockoutService
	tm          *auth.TokenManager
	totp        *auth.TOTPManager
	email       EmailService
	cfg         *config.AuthConfig
	features    config.Features
	clock       clock.Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAccountService(
	users UserRepository,
	registrar Registrar,
	lockout *LockoutService,
	tm *auth.TokenManager,
	totp *auth.TOTPManager,
	email EmailService,
	cfg *config.AuthConfig,
	features config.Features,
	clk clock.Clock,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AccountService {
	if clk == nil {
		clk = clock.System{}
	}
	return &AccountService{
		users:       users,
		registrar:   registrar,
		lockout:     lockout,
		tm:          tm,
		totp:        totp,
		email:       email,
		cfg:         cfg,
		features:    features,
		clock:       clk,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in HTTP responses.
type UserResponse struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	IsEmailConfirmed   bool      `json:"is_email_confirmed"`
	IsTwoFactorEnabled bool      `json:"is_two_factor_enabled"`
	IsLocked           bool      `json:"is_locked"`
	Roles              []string  `json:"roles"`
	LastLogin          time.Time `json:"last_login"`
	CreatedAt          time.Time `json:"created_at"`
}

// LoginResult carries everything a login-shaped operation can produce. When
// TwoFactorRequired is set, only the two-factor cookie is populated and the
// client must follow up with a code.
type LoginResult struct {
	AccessToken       string
	TokenType         string
	TwoFactorRequired bool
	RefreshCookie     *auth.Cookie
	TwoFactorCookie   *auth.Cookie
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:                 user.ID,
		Username:           user.Username,
		Email:              user.Email,
		IsEmailConfirmed:   user.IsEmailConfirmed,
		IsTwoFactorEnabled: user.IsTwoFactorEnabled,
		IsLocked:           user.IsLocked,
		Roles:              user.Roles,
		LastLogin:          user.LastLogin,
		CreatedAt:          user.CreatedAt,
	}
}

// Register creates a new user with the standard role. When email
// confirmation is enabled the account starts unconfirmed and a confirmation
// link goes out; otherwise the account is usable immediately.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (*UserResponse, error) {
	return s.register(ctx, username, email, password, models.RoleUser)
}

// RegisterAdmin creates a user with the admin role. Reachable only through
// admin-guarded routes.
func (s *AccountService) RegisterAdmin(ctx context.Context, username, email, password string) (*UserResponse, error) {
	return s.register(ctx, username, email, password, models.RoleAdmin)
}

func (s *AccountService) register(ctx context.Context, username, email, password, role string) (*UserResponse, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))

	if err := pkgauth.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	passwordHash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Username:         username,
		Email:            email,
		PasswordHash:     passwordHash,
		IsEmailConfirmed: !s.features.EmailConfirmation,
	}

	created, err := s.registrar.CreateUserWithRole(ctx, user, role)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration rejected: duplicate username or email")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("user_registered", created.ID, map[string]string{
		"role": role,
	})

	if s.features.EmailConfirmation {
		s.sendConfirmationEmail(created)
	}

	return userModelToResponse(created), nil
}

// Login runs the full credential check. The attempt counter is bumped
// before the password is checked so a flood of requests cannot dodge the
// lockout by failing fast.
func (s *AccountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, &models.InvalidCredentialsError{AttemptsLeft: s.cfg.MaxAttempts}
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get user by username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	var userEmail string
	if user != nil {
		userEmail = user.Email
	}

	attemptsLeft, err := s.lockout.RecordAttempt(ctx, username, userEmail, s.features.LockoutNotifications)
	if err != nil {
		return nil, err
	}

	if user == nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, &models.InvalidCredentialsError{AttemptsLeft: attemptsLeft}
	}

	if user.IsLocked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			FailureReason: "account_locked",
			Success:       false,
		})
		return nil, models.ErrAccountLocked
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, &models.InvalidCredentialsError{AttemptsLeft: attemptsLeft}
	}

	if s.features.EmailConfirmation && !user.IsEmailConfirmed {
		s.sendConfirmationEmail(user)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			FailureReason: "email_not_confirmed",
			Success:       false,
		})
		return nil, models.ErrEmailNotConfirmed
	}

	if s.features.TwoFactor && user.IsTwoFactorEnabled {
		twoFactorToken, err := s.tm.Issue(models.PurposeTwoFactor, models.TokenClaims{
			Username:         user.Username,
			IsAuthenticated:  true,
			RegisteredClaims: registeredClaims(user.ID),
		})
		if err != nil {
			s.logger.Error("failed to issue two-factor token",
				slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		return &LoginResult{
			TwoFactorRequired: true,
			TwoFactorCookie:   auth.NewTwoFactorCookie(twoFactorToken, s.cfg.TwoFactorTokenExpiry),
		}, nil
	}

	return s.completeLogin(ctx, user)
}

// VerifyTwoFactor finishes a login that was paused for a TOTP code. The
// pending token proves the password already passed.
func (s *AccountService) VerifyTwoFactor(ctx context.Context, pendingToken, code string) (*LoginResult, error) {
	claims, err := s.tm.Verify(pendingToken, models.PurposeTwoFactor)
	if err != nil {
		return nil, err
	}
	if !claims.IsAuthenticated {
		return nil, models.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for two-factor verify", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.IsLocked {
		return nil, models.ErrAccountLocked
	}
	if !user.IsTwoFactorEnabled || user.TwoFactorSecret == nil {
		return nil, models.ErrBadRequest
	}

	if err := s.totp.Verify(code, *user.TwoFactorSecret); err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "two_factor_failed",
			UserID:        user.ID,
			FailureReason: "invalid_code",
			Success:       false,
		})
		return nil, err
	}

	return s.completeLogin(ctx, user)
}

// completeLogin issues the token pair and runs the success side effects.
func (s *AccountService) completeLogin(ctx context.Context, user *models.User) (*LoginResult, error) {
	if s.cfg.ResetAttemptsOnLogin {
		s.lockout.Reset(ctx, user.Username)
	}

	accessToken, err := s.tm.Issue(models.PurposeAccess, models.TokenClaims{
		Username:         user.Username,
		Role:             user.FirstRole(),
		RegisteredClaims: registeredClaims(user.ID),
	})
	if err != nil {
		s.logger.Error("failed to issue access token",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshCookie, err := s.rotateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Error("failed to update last login",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		Success:   true,
	})

	email, username := user.Email, user.Username
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.email.SendLoginNotification(sendCtx, email, username, now); err != nil {
			s.logger.Error("failed to send login notification", slog.Any("error", err))
		}
	}()

	return &LoginResult{
		AccessToken:   accessToken,
		TokenType:     "bearer",
		RefreshCookie: refreshCookie,
	}, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new access token
// and rotates the refresh token itself.
func (s *AccountService) RefreshAccessToken(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken == "" {
		return nil, models.ErrInvalidToken
	}

	user, err := s.users.GetByRefreshTokenHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		s.logger.Error("failed to look up refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.IsLocked {
		return nil, models.ErrAccountLocked
	}

	accessToken, err := s.tm.Issue(models.PurposeAccess, models.TokenClaims{
		Username:         user.Username,
		Role:             user.FirstRole(),
		RegisteredClaims: registeredClaims(user.ID),
	})
	if err != nil {
		s.logger.Error("failed to issue access token on refresh",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshCookie, err := s.rotateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:   accessToken,
		TokenType:     "bearer",
		RefreshCookie: refreshCookie,
	}, nil
}

// Logout discards the stored refresh token so the session cannot be renewed.
func (s *AccountService) Logout(ctx context.Context, userID string) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil, nil); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to clear refresh token",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

func (s *AccountService) rotateRefreshToken(ctx context.Context, userID string) (*auth.Cookie, error) {
	refreshToken, err := auth.GenerateOpaqueToken()
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hash := auth.HashToken(refreshToken)
	expiresAt := s.clock.Now().Add(s.cfg.RefreshTokenExpiry)
	if err := s.users.SetRefreshToken(ctx, userID, &hash, &expiresAt); err != nil {
		s.logger.Error("failed to store refresh token",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return auth.NewRefreshCookie(refreshToken, s.cfg.RefreshTokenExpiry), nil
}

// ConfirmEmail marks the account confirmed. The token binds both the user ID
// and the email it was mailed to, so a token survives neither an email
// change nor another account.
func (s *AccountService) ConfirmEmail(ctx context.Context, token string) error {
	claims, err := s.tm.Verify(token, models.PurposeEmailConfirm)
	if err != nil {
		return err
	}

	user, err := s.users.GetByIDAndEmail(ctx, claims.Subject, claims.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to get user for email confirmation", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.IsEmailConfirmed {
		return nil
	}

	if err := s.users.ConfirmEmail(ctx, user.ID); err != nil {
		s.logger.Error("failed to confirm email",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("email_confirmed", user.ID, nil)
	return nil
}

// ChangePassword verifies the current password before setting a new one.
// The stored refresh token is invalidated as part of the change.
func (s *AccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for password change", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return models.ErrUnauthorized
	}

	return s.setNewPassword(ctx, user, newPassword, "password_changed")
}

// ForgotPassword sends a reset link. The response is identical whether the
// email is registered or not, to avoid account enumeration.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		s.logger.Error("failed to get user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	token, err := s.tm.Issue(models.PurposePasswordReset, models.TokenClaims{
		Email:            user.Email,
		RegisteredClaims: registeredClaims(user.ID),
	})
	if err != nil {
		s.logger.Error("failed to issue password reset token",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("password_reset_requested", user.ID, nil)

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.email.SendPasswordResetEmail(sendCtx, user.Email, user.Username, token); err != nil {
			s.logger.Error("failed to send password reset email", slog.Any("error", err))
		}
	}()

	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.tm.Verify(token, models.PurposePasswordReset)
	if err != nil {
		return err
	}

	user, err := s.users.GetByIDAndEmail(ctx, claims.Subject, claims.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to get user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	return s.setNewPassword(ctx, user, newPassword, "password_reset")
}

func (s *AccountService) setNewPassword(ctx context.Context, user *models.User, newPassword, event string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}
	if err := pkgauth.ComparePassword(user.PasswordHash, newPassword); err == nil {
		return models.ErrSamePassword
	}

	passwordHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.SetPassword(ctx, user.ID, passwordHash); err != nil {
		s.logger.Error("failed to set password",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(event, user.ID, nil)
	return nil
}

// SetupTwoFactor starts enrollment: a fresh secret is generated and stored
// as pending. It becomes active only after ConfirmTwoFactor proves the
// authenticator was provisioned.
func (s *AccountService) SetupTwoFactor(ctx context.Context, userID string) (*auth.TOTPEnrollment, error) {
	if !s.features.TwoFactor {
		return nil, models.ErrNotFound
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for two-factor setup", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.IsTwoFactorEnabled {
		return nil, models.ErrBadRequest
	}

	enrollment, err := s.totp.GenerateEnrollment(user.Email)
	if err != nil {
		s.logger.Error("failed to generate two-factor enrollment",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.users.SetPendingTwoFactorSecret(ctx, user.ID, enrollment.Secret); err != nil {
		s.logger.Error("failed to store pending two-factor secret",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("two_factor_setup_started", user.ID, nil)
	return enrollment, nil
}

// ConfirmTwoFactor activates a pending enrollment once the user supplies a
// code generated from it.
func (s *AccountService) ConfirmTwoFactor(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for two-factor confirm", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.TwoFactorPendingSecret == nil {
		return models.ErrBadRequest
	}

	if err := s.totp.Verify(code, *user.TwoFactorPendingSecret); err != nil {
		return err
	}

	if err := s.users.ActivateTwoFactor(ctx, user.ID); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			return err
		}
		s.logger.Error("failed to activate two-factor",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("two_factor_enabled", user.ID, nil)
	return nil
}

// DisableTwoFactor turns off two-factor after a valid code from the active
// secret.
func (s *AccountService) DisableTwoFactor(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for two-factor disable", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !user.IsTwoFactorEnabled || user.TwoFactorSecret == nil {
		return models.ErrBadRequest
	}

	if err := s.totp.Verify(code, *user.TwoFactorSecret); err != nil {
		return err
	}

	if err := s.users.DisableTwoFactor(ctx, user.ID); err != nil {
		s.logger.Error("failed to disable two-factor",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("two_factor_disabled", user.ID, nil)
	return nil
}

// SetAccountLock locks or unlocks an account. Locking also discards the
// stored refresh token so the session ends when the access token expires.
func (s *AccountService) SetAccountLock(ctx context.Context, userID string, locked bool) error {
	if err := s.users.SetLocked(ctx, userID, locked); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to set account lock",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if locked {
		if err := s.users.SetRefreshToken(ctx, userID, nil, nil); err != nil {
			s.logger.Error("failed to clear refresh token on lock",
				slog.String("user_id", userID), slog.Any("error", err))
		}
		s.auditLogger.LogAccountAction("account_locked", userID, nil)
	} else {
		s.auditLogger.LogAccountAction("account_unlocked", userID, nil)
	}

	return nil
}

// GetProfile returns the caller's own account.
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return userModelToResponse(user), nil
}

func registeredClaims(userID string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: userID}
}

func (s *AccountService) sendConfirmationEmail(user *models.User) {
	token, err := s.tm.Issue(models.PurposeEmailConfirm, models.TokenClaims{
		Email:            user.Email,
		RegisteredClaims: registeredClaims(user.ID),
	})
	if err != nil {
		s.logger.Error("failed to issue confirmation token",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}

	email, username := user.Email, user.Username
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.email.SendConfirmationEmail(sendCtx, email, username, token); err != nil {
			s.logger.Error("failed to send confirmation email", slog.Any("error", err))
		}
	}()
}
