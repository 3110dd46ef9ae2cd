package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers all authentication routes with the Chi router.
// limiter guards the unauthenticated endpoints and may be nil.
func RegisterRoutes(r chi.Router, handler *AuthHandler, authMiddleware Middleware, limiter Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter)
			}
			r.Post("/register", handler.Register)
			r.Post("/login", handler.Login)
			r.Post("/forgot-password", handler.ForgotPassword)
			r.Post("/verify-reset-token", handler.VerifyResetToken)
			r.Post("/reset-password", handler.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Get("/me", handler.GetMe)
		})
	})
}
