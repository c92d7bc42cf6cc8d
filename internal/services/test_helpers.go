package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"moderation-api/internal/auth"
	"moderation-api/internal/clock"
	"moderation-api/internal/config"
	"moderation-api/internal/models"
	pkglogger "moderation-api/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc                   func(ctx context.Context, id string) (*models.User, error)
	GetByUsernameFunc             func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc                func(ctx context.Context, email string) (*models.User, error)
	GetByIDAndEmailFunc           func(ctx context.Context, id, email string) (*models.User, error)
	GetByRefreshTokenHashFunc     func(ctx context.Context, hash string) (*models.User, error)
	SetRefreshTokenFunc           func(ctx context.Context, id string, hash *string, expiresAt *time.Time) error
	UpdateLastLoginFunc           func(ctx context.Context, id string, at time.Time) error
	SetPasswordFunc               func(ctx context.Context, id, passwordHash string) error
	ConfirmEmailFunc              func(ctx context.Context, id string) error
	SetPendingTwoFactorSecretFunc func(ctx context.Context, id, secret string) error
	ActivateTwoFactorFunc         func(ctx context.Context, id string) error
	DisableTwoFactorFunc          func(ctx context.Context, id string) error
	SetLockedFunc                 func(ctx context.Context, id string, locked bool) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByIDAndEmail(ctx context.Context, id, email string) (*models.User, error) {
	if m.GetByIDAndEmailFunc != nil {
		return m.GetByIDAndEmailFunc(ctx, id, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByRefreshTokenHash(ctx context.Context, hash string) (*models.User, error) {
	if m.GetByRefreshTokenHashFunc != nil {
		return m.GetByRefreshTokenHashFunc(ctx, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) SetRefreshToken(ctx context.Context, id string, hash *string, expiresAt *time.Time) error {
	if m.SetRefreshTokenFunc != nil {
		return m.SetRefreshTokenFunc(ctx, id, hash, expiresAt)
	}
	return nil
}

func (m *MockUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	if m.SetPasswordFunc != nil {
		return m.SetPasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) ConfirmEmail(ctx context.Context, id string) error {
	if m.ConfirmEmailFunc != nil {
		return m.ConfirmEmailFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error {
	if m.SetPendingTwoFactorSecretFunc != nil {
		return m.SetPendingTwoFactorSecretFunc(ctx, id, secret)
	}
	return nil
}

func (m *MockUserRepository) ActivateTwoFactor(ctx context.Context, id string) error {
	if m.ActivateTwoFactorFunc != nil {
		return m.ActivateTwoFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	if m.DisableTwoFactorFunc != nil {
		return m.DisableTwoFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	if m.SetLockedFunc != nil {
		return m.SetLockedFunc(ctx, id, locked)
	}
	return nil
}

// MockRegistrar implements Registrar for testing
type MockRegistrar struct {
	CreateUserWithRoleFunc func(ctx context.Context, user *models.User, roleName string) (*models.User, error)
}

func (m *MockRegistrar) CreateUserWithRole(ctx context.Context, user *models.User, roleName string) (*models.User, error) {
	if m.CreateUserWithRoleFunc != nil {
		return m.CreateUserWithRoleFunc(ctx, user, roleName)
	}
	user.ID = "user123"
	user.Roles = []string{roleName}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	return user, nil
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	RecordAttemptFunc func(ctx context.Context, username string, window time.Duration) (int, error)
	ResetFunc         func(ctx context.Context, username string) error
	DeleteStaleFunc   func(ctx context.Context, olderThan time.Duration) (int64, error)
}

func (m *MockLoginAttemptRepository) RecordAttempt(ctx context.Context, username string, window time.Duration) (int, error) {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, username, window)
	}
	return 1, nil
}

func (m *MockLoginAttemptRepository) Reset(ctx context.Context, username string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, username)
	}
	return nil
}

func (m *MockLoginAttemptRepository) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if m.DeleteStaleFunc != nil {
		return m.DeleteStaleFunc(ctx, olderThan)
	}
	return 0, nil
}

// MockAPIKeyRepository implements APIKeyRepository for testing
type MockAPIKeyRepository struct {
	CreateFunc              func(ctx context.Context, key *models.APIKey) (*models.APIKey, error)
	CountByUserFunc         func(ctx context.Context, userID string) (int, error)
	ListNamesByUserFunc     func(ctx context.Context, userID string) ([]string, error)
	DeleteByUserAndNameFunc func(ctx context.Context, userID, name string) error
	GetUserIDByKeyHashFunc  func(ctx context.Context, keyHash string) (string, error)
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, key)
	}
	key.ID = "key123"
	key.CreatedAt = time.Now()
	return key, nil
}

func (m *MockAPIKeyRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	if m.CountByUserFunc != nil {
		return m.CountByUserFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockAPIKeyRepository) ListNamesByUser(ctx context.Context, userID string) ([]string, error) {
	if m.ListNamesByUserFunc != nil {
		return m.ListNamesByUserFunc(ctx, userID)
	}
	return []string{}, nil
}

func (m *MockAPIKeyRepository) DeleteByUserAndName(ctx context.Context, userID, name string) error {
	if m.DeleteByUserAndNameFunc != nil {
		return m.DeleteByUserAndNameFunc(ctx, userID, name)
	}
	return nil
}

func (m *MockAPIKeyRepository) GetUserIDByKeyHash(ctx context.Context, keyHash string) (string, error) {
	if m.GetUserIDByKeyHashFunc != nil {
		return m.GetUserIDByKeyHashFunc(ctx, keyHash)
	}
	return "", models.ErrNotFound
}

// MockRequestCountRepository implements RequestCountRepository for testing
type MockRequestCountRepository struct {
	AdvanceFunc func(ctx context.Context, userID string, limit int) (int, error)
	GetFunc     func(ctx context.Context, userID string) (*models.RequestCount, error)
}

func (m *MockRequestCountRepository) Advance(ctx context.Context, userID string, limit int) (int, error) {
	if m.AdvanceFunc != nil {
		return m.AdvanceFunc(ctx, userID, limit)
	}
	return 1, nil
}

func (m *MockRequestCountRepository) Get(ctx context.Context, userID string) (*models.RequestCount, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID)
	}
	return &models.RequestCount{UserID: userID}, nil
}

// MockEmailService implements EmailService for testing. Sent subjects are
// recorded so tests can wait for asynchronous sends.
type MockEmailService struct {
	mu      sync.Mutex
	Sent    []string
	SendErr error
}

func (m *MockEmailService) record(kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, kind)
	return m.SendErr
}

func (m *MockEmailService) SentKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Sent))
	copy(out, m.Sent)
	return out
}

func (m *MockEmailService) SendLoginNotification(ctx context.Context, email, username string, at time.Time) error {
	return m.record("login_notification")
}

func (m *MockEmailService) SendConfirmationEmail(ctx context.Context, email, username, token string) error {
	return m.record("confirmation")
}

func (m *MockEmailService) SendMaxAttemptsNotification(ctx context.Context, email, username string) error {
	return m.record("max_attempts")
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, username, token string) error {
	return m.record("password_reset")
}

// Test fixtures

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		AccessTokenSecret:    "test-access-secret-0123456789abc",
		TwoFactorTokenSecret: "test-twofactor-secret-0123456789",
		EmailTokenSecret:     "test-email-secret-0123456789abcd",
		PasswordResetSecret:  "test-reset-secret-0123456789abcd",
		AccessTokenExpiry:    30 * time.Minute,
		TwoFactorTokenExpiry: 3 * time.Minute,
		EmailTokenExpiry:     1 * time.Hour,
		PasswordResetExpiry:  20 * time.Minute,
		RefreshTokenExpiry:   7 * 24 * time.Hour,
		MaxAttempts:          5,
		AttemptWindow:        5 * time.Minute,
		ResetAttemptsOnLogin: true,
		TOTPIssuer:           "Test Issuer",
	}
}

func testTokenManager(cfg *config.AuthConfig, clk clock.Clock) *auth.TokenManager {
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
	return auth.NewTokenManager(secrets, ttls, clk)
}

type accountServiceFixture struct {
	users     *MockUserRepository
	registrar *MockRegistrar
	attempts  *MockLoginAttemptRepository
	email     *MockEmailService
	cfg       *config.AuthConfig
	tm        *auth.TokenManager
	totp      *auth.TOTPManager
	service   *AccountService
}

func newAccountServiceFixture(features config.Features) *accountServiceFixture {
	cfg := testAuthConfig()
	clk := clock.System{}
	logger := slog.Default()
	auditLogger := pkglogger.NewAuditLogger(logger)

	f := &accountServiceFixture{
		users:     &MockUserRepository{},
		registrar: &MockRegistrar{},
		attempts:  &MockLoginAttemptRepository{},
		email:     &MockEmailService{},
		cfg:       cfg,
		tm:        testTokenManager(cfg, clk),
		totp:      auth.NewTOTPManager(cfg.TOTPIssuer, clk),
	}

	lockout := NewLockoutService(f.attempts, f.email, cfg, logger, auditLogger)
	f.service = NewAccountService(
		f.users, f.registrar, lockout, f.tm, f.totp, f.email,
		cfg, features, clk, logger, auditLogger)

	return f
}

// NewTestUser creates a plain confirmed user with the given bcrypt hash.
func NewTestUser(id, username, email, passwordHash string) *models.User {
	now := time.Now()
	return &models.User{
		ID:               id,
		Username:         username,
		Email:            email,
		PasswordHash:     passwordHash,
		IsEmailConfirmed: true,
		Roles:            []string{models.RoleUser},
		LastLogin:        now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
