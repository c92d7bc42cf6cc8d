package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"moderation-api/internal/auth"
	"moderation-api/internal/background"
	"moderation-api/internal/clock"
	"moderation-api/internal/config"
	"moderation-api/internal/database"
	"moderation-api/internal/handlers"
	"moderation-api/internal/inference"
	middlewareCustom "moderation-api/internal/middleware"
	"moderation-api/internal/models"
	"moderation-api/internal/repositories"
	"moderation-api/internal/routes"
	"moderation-api/internal/services"
	pkgauth "moderation-api/pkg/auth"
	pkglogger "moderation-api/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Apply pending migrations
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	store := repositories.NewStore(db)

	// Seed the role table
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.Roles.EnsureDefaultRoles(seedCtx); err != nil {
		seedCancel()
		logger.Error("failed to seed roles", slog.Any("error", err))
		os.Exit(1)
	}
	seedCancel()

	// Token and TOTP managers
	secrets := models.TokenSecrets{
		AccessSecret:        cfg.Auth.AccessTokenSecret,
		TwoFactorSecret:     cfg.Auth.TwoFactorTokenSecret,
		EmailConfirmSecret:  cfg.Auth.EmailTokenSecret,
		PasswordResetSecret: cfg.Auth.PasswordResetSecret,
	}
	ttls := map[models.TokenPurpose]time.Duration{
		models.PurposeAccess:        cfg.Auth.AccessTokenExpiry,
		models.PurposeTwoFactor:     cfg.Auth.TwoFactorTokenExpiry,
		models.PurposeEmailConfirm:  cfg.Auth.EmailTokenExpiry,
		models.PurposePasswordReset: cfg.Auth.PasswordResetExpiry,
	}
	clk := clock.System{}
	tokenManager := auth.NewTokenManager(secrets, ttls, clk)
	totpManager := auth.NewTOTPManager(cfg.Auth.TOTPIssuer, clk)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Server.BackendURL,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Lockout and account services. The counter is shared across surfaces;
	// the v1 account service runs with confirmation, two-factor, and lockout
	// notifications off, v2 uses the configured flags.
	lockoutService := services.NewLockoutService(
		store.LoginAttempts, emailService, &cfg.Auth, logger, auditLogger)

	newAccountService := func(features config.Features) *services.AccountService {
		return services.NewAccountService(
			store.Users, store, lockoutService, tokenManager, totpManager,
			emailService, &cfg.Auth, features, clk, logger, auditLogger)
	}
	v1AccountService := newAccountService(config.Features{})
	v2AccountService := newAccountService(cfg.Features)

	apiKeyService := services.NewAPIKeyService(
		store.APIKeys, store.Users, store.RequestCounts,
		cfg.Quota.MaxAPIKeysPerUser, cfg.Quota.MaxRequestsPerDay,
		logger, auditLogger)

	inferenceClient := inference.NewClient(cfg.Server.InferenceURL)

	// Initialize handlers
	secureCookies := cfg.Server.Env == "production"
	v1AuthHandler := handlers.NewAuthHandler(v1AccountService, secureCookies)
	v2AuthHandler := handlers.NewAuthHandler(v2AccountService, secureCookies)
	userHandler := handlers.NewUserHandler(v2AccountService)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyService)
	moderationHandler := handlers.NewModerationHandler(inferenceClient, logger)

	// Bootstrap first admin user if configured
	adminCtx, adminCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(adminCtx, store, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	adminCancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router,
		v1AuthHandler, v2AuthHandler, userHandler, apiKeyHandler, moderationHandler,
		tokenManager, apiKeyService, store.Users, cfg.Features)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(lockoutService, logger, cfg.Auth.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_USERNAME, ADMIN_EMAIL,
// and ADMIN_PASSWORD are set.
func ensureAdminUser(ctx context.Context, store *repositories.Store, logger *slog.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminEmail == "" || adminPassword == "" {
		logger.Info("admin bootstrap variables not set, skipping admin user creation")
		return nil
	}

	_, err := store.Users.GetByUsername(ctx, adminUsername)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Username:         adminUsername,
		Email:            adminEmail,
		PasswordHash:     hashedPassword,
		IsEmailConfirmed: true,
	}

	if _, err := store.CreateUserWithRole(ctx, admin, models.RoleAdmin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
