package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"moderation-api/internal/auth"
	"moderation-api/internal/services"
	pkghttp "moderation-api/pkg/http"
)

// AccountServiceInterface defines the account business logic used by the
// auth handlers.
type AccountServiceInterface interface {
	Register(ctx context.Context, username, email, password string) (*services.UserResponse, error)
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, pendingToken, code string) (*services.LoginResult, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*services.LoginResult, error)
	Logout(ctx context.Context, userID string) error
	ConfirmEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	SetupTwoFactor(ctx context.Context, userID string) (*auth.TOTPEnrollment, error)
	ConfirmTwoFactor(ctx context.Context, userID, code string) error
	DisableTwoFactor(ctx context.Context, userID, code string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service       AccountServiceInterface
	secureCookies bool
}

func NewAuthHandler(service AccountServiceInterface, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		service:       service,
		secureCookies: secureCookies,
	}
}

// Request DTOs

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TwoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Response DTOs

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type TwoFactorRequiredResponse struct {
	TwoFactorRequired bool   `json:"two_factor_required"`
	Message           string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles user registration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, user)
}

// Login handles credential login. When two-factor is enabled for the user
// the response carries no access token; the short-lived pending token is set
// as a cookie and the client must call VerifyTwoFactor.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.writeLoginResult(w, result)
}

// VerifyTwoFactor finishes a two-factor login using the pending cookie.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	cookie, err := r.Cookie(auth.TwoFactorCookieName)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "missing two-factor token")
		return
	}

	result, err := h.service.VerifyTwoFactor(r.Context(), cookie.Value, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The pending cookie has served its purpose.
	http.SetCookie(w, auth.ExpiredCookie(auth.TwoFactorCookieName, h.secureCookies))
	h.writeLoginResult(w, result)
}

// Refresh exchanges the refresh cookie for a fresh access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "missing refresh token")
		return
	}

	result, err := h.service.RefreshAccessToken(r.Context(), cookie.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.writeLoginResult(w, result)
}

// Logout clears the stored refresh token and the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), claims.Subject); err != nil {
		writeServiceError(w, err)
		return
	}

	http.SetCookie(w, auth.ExpiredCookie(auth.RefreshCookieName, h.secureCookies))
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// ConfirmEmail consumes the token from the confirmation link.
func (h *AuthHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "missing token")
		return
	}

	if err := h.service.ConfirmEmail(r.Context(), token); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "email confirmed"})
}

// ForgotPassword requests a reset link. The response does not reveal whether
// the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Message: "if the email is registered, a reset link has been sent",
	})
}

// ResetPassword consumes a reset token and sets the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "password has been reset"})
}

// SetupTwoFactor starts enrollment for the authenticated user.
func (h *AuthHandler) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	enrollment, err := h.service.SetupTwoFactor(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"secret":           enrollment.Secret,
		"provisioning_uri": enrollment.ProvisioningURI,
		"qr_code":          enrollment.QRCodeDataURL,
	})
}

// ConfirmTwoFactor activates a pending enrollment.
func (h *AuthHandler) ConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ConfirmTwoFactor(r.Context(), claims.Subject, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "two-factor authentication enabled"})
}

// DisableTwoFactor turns off two-factor for the authenticated user.
func (h *AuthHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.DisableTwoFactor(r.Context(), claims.Subject, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "two-factor authentication disabled"})
}

func (h *AuthHandler) writeLoginResult(w http.ResponseWriter, result *services.LoginResult) {
	if result.TwoFactorRequired {
		http.SetCookie(w, result.TwoFactorCookie.ToHTTP(h.secureCookies))
		pkghttp.WriteJSON(w, http.StatusOK, TwoFactorRequiredResponse{
			TwoFactorRequired: true,
			Message:           "two-factor code required",
		})
		return
	}

	if result.RefreshCookie != nil {
		http.SetCookie(w, result.RefreshCookie.ToHTTP(h.secureCookies))
	}

	pkghttp.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
	})
}
