package auth

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	appctx "github.com/welldanyogia/lyricsgate/internal/context"
	"github.com/welldanyogia/lyricsgate/internal/httpx"
	"github.com/welldanyogia/lyricsgate/internal/metrics"
)

// AuthHandler handles HTTP requests for authentication endpoints
type AuthHandler struct {
	authService  *AuthService
	resetService *ResetService
	logger       *zap.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authService *AuthService, resetService *ResetService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		authService:  authService,
		resetService: resetService,
		logger:       logger,
	}
}

// Register handles account registration
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	response, err := h.authService.Register(r.Context(), req)
	metrics.RecordAuthEvent("register", err)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, response)
}

// Login handles credential login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	response, err := h.authService.Login(r.Context(), req, clientIP(r))
	metrics.RecordAuthEvent("login", err)
	if err != nil {
		if errors.Is(err, ErrTooManyAttempts) {
			w.Header().Set("Retry-After", strconv.Itoa(int(h.authService.LoginWindow().Seconds())))
		}
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}

// GetMe returns the caller's profile and usage
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, ErrAuthRequired)
		return
	}

	profile, err := h.authService.GetProfile(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, profile)
}

// ForgotPassword starts a password reset
// POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	ack, err := h.resetService.RequestReset(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": ack})
}

// VerifyResetToken reports whether a reset link is still usable
// POST /api/v1/auth/verify-reset-token
func (h *AuthHandler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	valid, err := h.resetService.VerifyResetToken(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// ResetPassword sets a new password using a reset token
// POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	err := h.resetService.ResetPassword(r.Context(), req)
	metrics.RecordAuthEvent("reset", err)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset successfully"})
}

// clientIP returns the request's remote address without the port. chi's
// RealIP middleware has already applied X-Forwarded-For and X-Real-IP.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
