package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/auth"
	appctx "github.com/welldanyogia/lyricsgate/internal/context"
	"github.com/welldanyogia/lyricsgate/internal/httpx"
)

// Handler serves the admin endpoints
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a Handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// ListUsers handles GET /api/v1/admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

// ResetUsage handles POST /api/v1/admin/users/{id}/reset-usage
func (h *Handler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetUsage(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Usage count reset"})
}

// DeleteAccount handles DELETE /api/v1/admin/users/{id}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := appctx.ExtractIdentity(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, auth.ErrAuthRequired)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), identity.UserID, chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}

// ListEndpointStats handles GET /api/v1/admin/endpoint-stats
func (h *Handler) ListEndpointStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ListEndpointStats(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// RegisterRoutes mounts the admin routes. authenticate must run before
// requireAdmin.
func RegisterRoutes(r chi.Router, handler *Handler, authenticate, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticate, requireAdmin)

		r.Get("/users", handler.ListUsers)
		r.Post("/users/{id}/reset-usage", handler.ResetUsage)
		r.Delete("/users/{id}", handler.DeleteAccount)
		r.Get("/endpoint-stats", handler.ListEndpointStats)
	})
}
