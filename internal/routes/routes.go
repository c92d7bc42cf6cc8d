package routes

import (
	"github.com/go-chi/chi/v5"

	"moderation-api/internal/auth"
	"moderation-api/internal/config"
	"moderation-api/internal/handlers"
	"moderation-api/internal/middleware"
	"moderation-api/internal/models"
)

// RegisterRoutes mounts the versioned API surfaces. The v1 flow predates
// email confirmation and two-factor, so its auth handler is backed by a
// service with those features off; v2 carries the full flow. Key management
// and moderation behave identically under both prefixes.
func RegisterRoutes(
	router chi.Router,
	v1AuthHandler *handlers.AuthHandler,
	v2AuthHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	apiKeyHandler *handlers.APIKeyHandler,
	moderationHandler *handlers.ModerationHandler,
	tokenManager *auth.TokenManager,
	apiKeyAuth auth.APIKeyAuthenticator,
	userRepo auth.UserRepository,
	features config.Features,
) {
	mountVersion(router, "/v1", v1AuthHandler, userHandler, apiKeyHandler, moderationHandler,
		tokenManager, apiKeyAuth, userRepo, config.Features{})
	mountVersion(router, "/v2", v2AuthHandler, userHandler, apiKeyHandler, moderationHandler,
		tokenManager, apiKeyAuth, userRepo, features)
}

func mountVersion(
	router chi.Router,
	prefix string,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	apiKeyHandler *handlers.APIKeyHandler,
	moderationHandler *handlers.ModerationHandler,
	tokenManager *auth.TokenManager,
	apiKeyAuth auth.APIKeyAuthenticator,
	userRepo auth.UserRepository,
	features config.Features,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	router.Route(prefix, func(r chi.Router) {
		// Public auth endpoints, rate limited by IP.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(rateLimitConfig))

			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.Refresh)
			r.Post("/auth/forgot-password", authHandler.ForgotPassword)
			r.Post("/auth/reset-password", authHandler.ResetPassword)

			if features.TwoFactor {
				r.Post("/auth/2fa/verify", authHandler.VerifyTwoFactor)
			}
			if features.EmailConfirmation {
				r.Get("/auth/confirm-email", authHandler.ConfirmEmail)
			}
		})

		// Bearer-token protected endpoints.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(tokenManager))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/users/me", userHandler.Me)
			r.Post("/users/me/change-password", userHandler.ChangePassword)

			if features.TwoFactor {
				r.Post("/auth/2fa/setup", authHandler.SetupTwoFactor)
				r.Post("/auth/2fa/confirm", authHandler.ConfirmTwoFactor)
				r.Post("/auth/2fa/disable", authHandler.DisableTwoFactor)
			}

			r.Post("/keys", apiKeyHandler.CreateKey)
			r.Get("/keys", apiKeyHandler.ListKeys)
			r.Delete("/keys/{name}", apiKeyHandler.DeleteKey)
			r.Get("/keys/usage", apiKeyHandler.Usage)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(userRepo, models.RoleAdmin))
				r.Post("/admin/register", userHandler.RegisterAdmin)
				r.Post("/admin/users/{userID}/lock", userHandler.LockAccount)
				r.Post("/admin/users/{userID}/unlock", userHandler.UnlockAccount)
			})
		})

		// API-key metered endpoints.
		r.Group(func(r chi.Router) {
			r.Use(auth.APIKeyMiddleware(apiKeyAuth))
			r.Post("/moderate", moderationHandler.Moderate)
		})
	})
}
