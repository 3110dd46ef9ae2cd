package lyrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/auth"
	appctx "github.com/welldanyogia/lyricsgate/internal/context"
	"github.com/welldanyogia/lyricsgate/internal/generator"
	"github.com/welldanyogia/lyricsgate/internal/httpx"
)

// Handler serves the lyrics endpoints
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

// Generate runs one metered generation for the caller
// POST /api/v1/lyrics/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	identity, ok := appctx.ExtractIdentity(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, auth.ErrAuthRequired)
		return
	}
	accountID, err := uuid.Parse(identity.UserID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, auth.ErrInvalidToken)
		return
	}

	var req generator.Request
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	resp, err := h.service.Generate(r.Context(), accountID, req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// RegisterRoutes mounts the lyrics routes behind authenticate
func RegisterRoutes(r chi.Router, handler *Handler, authenticate func(http.Handler) http.Handler) {
	r.Route("/lyrics", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/generate", handler.Generate)
	})
}
