package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"moderation-api/internal/models"
	httputil "moderation-api/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing token claims in context
	UserContextKey contextKey = "user"

	// APIKeyUserContextKey is the key for storing the API key owner in context
	APIKeyUserContextKey contextKey = "api_key_user"
)

// UserRepository is the subset of the user store the middleware needs.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// APIKeyAuthenticator resolves an API key to its owner, consuming one unit
// of the owner's daily quota.
type APIKeyAuthenticator interface {
	AuthenticateKey(ctx context.Context, plaintext string) (*models.User, error)
}

// Middleware validates access tokens and injects claims into the request
// context. Only tokens issued for API access are accepted here; tokens for
// two-factor, confirmation, or reset flows verify under different secrets
// and fail automatically.
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				httputil.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := tm.Verify(tokenString, models.PurposeAccess)
			if err != nil {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces role-based access control. The role is read from the
// database rather than the token so a role change takes effect without
// waiting for the access token to expire.
func RequireRole(userRepo UserRepository, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				httputil.WriteUnauthorized(w, "unauthorized")
				return
			}

			user, err := userRepo.GetByID(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					httputil.WriteUnauthorized(w, "user not found")
					return
				}
				httputil.WriteInternalError(w, "internal server error")
				return
			}

			if !hasRole(user, role) {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyMiddleware authenticates requests by X-API-Key header. A successful
// match consumes one unit of the key owner's daily quota, so this middleware
// guards only the metered endpoints.
func APIKeyMiddleware(authenticator APIKeyAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				httputil.WriteUnauthorized(w, "missing API key")
				return
			}

			user, err := authenticator.AuthenticateKey(r.Context(), key)
			if err != nil {
				switch {
				case errors.Is(err, models.ErrQuotaExceeded):
					httputil.WriteBadRequest(w, "maximum daily request limit reached")
				case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrNotFound):
					httputil.WriteUnauthorized(w, "invalid API key")
				default:
					httputil.WriteInternalError(w, "internal server error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyUserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts token claims from the request context.
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetAPIKeyUserFromContext extracts the API key owner from the request context.
func GetAPIKeyUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(APIKeyUserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func hasRole(user *models.User, role string) bool {
	for _, r := range user.Roles {
		if r == role {
			return true
		}
	}
	return false
}
