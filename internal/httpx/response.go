// Package httpx holds the JSON response helpers shared by every handler.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/logger"
)

// MaxBodyBytes bounds request bodies decoded by DecodeJSON
const MaxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes v with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// WriteError classifies err and writes the matching error response. Internal
// errors are logged with full detail and reach the client as a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	appErr := apperror.As(err)

	if log != nil {
		log = logger.WithCorrelationID(r.Context(), log)
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", appErr.Code),
			zap.Error(err),
		}
		switch appErr.Kind {
		case apperror.KindInternal, apperror.KindUpstream:
			log.Error("request failed", fields...)
		case apperror.KindUpstreamTimeout:
			log.Warn("request failed", fields...)
		default:
			log.Debug("request rejected", fields...)
		}
	}

	WriteJSON(w, appErr.Kind.Status(), ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

var errInvalidBody = apperror.New(apperror.KindValidation, apperror.CodeInvalidBody, "Invalid request body")

// DecodeJSON decodes a bounded JSON body into dst
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.Wrap(errInvalidBody, errors.New("empty body"))
		}
		return apperror.Wrap(errInvalidBody, err)
	}
	return nil
}
