package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/auth"
	appctx "github.com/welldanyogia/lyricsgate/internal/context"
	"github.com/welldanyogia/lyricsgate/internal/httpx"
	"github.com/welldanyogia/lyricsgate/internal/repository"
)

// AuthMiddleware handles JWT authentication for protected routes
type AuthMiddleware struct {
	tokenService *auth.TokenService
	logger       *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokenService *auth.TokenService, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		tokenService: tokenService,
		logger:       logger,
	}
}

// Authenticate validates the bearer token and attaches the caller identity to
// the request context. A missing header is AUTH_REQUIRED; every other failure
// is INVALID_TOKEN, whatever the reason.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httpx.WriteError(w, r, m.logger, auth.ErrAuthRequired)
			return
		}

		scheme, tokenString, found := strings.Cut(authHeader, " ")
		tokenString = strings.TrimSpace(tokenString)
		if !found || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
			httpx.WriteError(w, r, m.logger, auth.ErrInvalidToken)
			return
		}

		claims, err := m.tokenService.ValidateToken(tokenString)
		if err != nil {
			httpx.WriteError(w, r, m.logger, auth.ErrInvalidToken)
			return
		}

		ctx := appctx.WithIdentity(r.Context(), appctx.Identity{
			UserID: claims.UserID(),
			Email:  claims.Email,
			Role:   claims.Role,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects callers whose verified role is not role. It must run
// after Authenticate.
func (m *AuthMiddleware) RequireRole(role repository.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := appctx.ExtractIdentity(r.Context())
			if err := auth.Authorize(identity, role); err != nil {
				if identity.UserID != "" {
					m.logger.Info("role check failed",
						zap.String("user_id", identity.UserID),
						zap.String("required_role", string(role)),
						zap.String("path", r.URL.Path),
					)
				}
				httpx.WriteError(w, r, m.logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
