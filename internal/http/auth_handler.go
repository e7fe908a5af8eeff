package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/shift-roster/internal/application"
)

const sessionCookieName = "session_token"

type authService interface {
	Authenticate(ctx context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error)
	RevokeSession(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, params application.ResetPasswordParams) error
}

type AuthHandler struct {
	service       authService
	responder     responder
	logger        *slog.Logger
	secureCookies bool
}

func NewAuthHandler(service authService, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, responder: newResponder(base), logger: base}
}

// WithSecureCookies marks the session cookie Secure, for deployments behind TLS.
func (h *AuthHandler) WithSecureCookies(secure bool) *AuthHandler {
	h.secureCookies = secure
	return h
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Login", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode login request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.Profile) == "" || req.Password == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("Perfil/ senha faltando"))
		return
	}

	profile := strings.ToLower(strings.TrimSpace(req.Profile))
	logger := h.log(r.Context(), "Login", "profile", profile)

	result, err := h.service.Authenticate(r.Context(), application.AuthenticateParams{
		Profile:  profile,
		Password: req.Password,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "authentication rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt, h.secureCookies)
	w.Header().Set("X-Session-Token", result.Session.Token)

	logger.InfoContext(r.Context(), "profile authenticated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, loginResponse{
		Success:   true,
		Profile:   result.Principal.Profile,
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}

	logger := h.log(r.Context(), "Logout", "token_present", true)
	if err := h.service.RevokeSession(r.Context(), token); err != nil {
		logger.ErrorContext(r.Context(), "failed to revoke session", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	clearSessionCookie(w, h.secureCookies)
	logger.InfoContext(r.Context(), "session revoked")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, successResponse{Success: true})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "ResetPassword", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode reset request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "ResetPassword", "profile", strings.ToLower(strings.TrimSpace(req.Profile)))
	err := h.service.ResetPassword(r.Context(), application.ResetPasswordParams{
		Profile:     req.Profile,
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "password reset rejected", "error", err, "error_kind", application.ErrorKind(err))
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("Preencha todos os campos"))
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "password reset")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, successResponse{Success: true})
}

type loginRequest struct {
	Profile  string `json:"profile"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool   `json:"success"`
	Profile   string `json:"profile"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type resetPasswordRequest struct {
	Profile     string `json:"profile"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func setSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix))
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
