// Package stats counts API calls per normalized endpoint.
package stats

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/repository"
)

// APIPrefix is the only path prefix that is counted
const APIPrefix = "/api/"

const writeTimeout = 2 * time.Second

var (
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
	opaqueSegment  = regexp.MustCompile(`^[A-Za-z0-9_\-]{24,}$`)
	routeParam     = regexp.MustCompile(`\{([^}:]+)(:[^}]*)?\}`)
)

// NormalizePath replaces identifier segments with :id so that calls to the
// same route share one counter
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if uuidSegment.MatchString(seg) || numericSegment.MatchString(seg) || isOpaque(seg) {
			segments[i] = ":id"
		}
	}
	normalized := strings.Join(segments, "/")
	if len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

// isOpaque matches long token-like segments. Plain words such as
// "verify-reset-token" are excluded by requiring a digit.
func isOpaque(seg string) bool {
	return opaqueSegment.MatchString(seg) && strings.ContainsAny(seg, "0123456789")
}

// Recorder writes one counter increment per API request
type Recorder struct {
	repo   repository.EndpointStatRepository
	logger *zap.Logger
}

// NewRecorder creates a Recorder
func NewRecorder(repo repository.EndpointStatRepository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger}
}

// Middleware counts the request after the handler has run. A failed write is
// logged and never affects the response.
func (rec *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		if !strings.HasPrefix(r.URL.Path, APIPrefix) {
			return
		}
		endpoint, ok := endpointFor(r)
		if !ok {
			return
		}
		rec.record(r.Context(), endpoint, r.Method)
	})
}

// endpointFor names the counter for a served request. Behind chi only
// matched routes are counted, keyed by their pattern, so unknown paths never
// add rows. Outside a chi router the raw path is normalized instead.
func endpointFor(r *http.Request) (string, bool) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return NormalizePath(r.URL.Path), true
	}

	// A mounted subrouter that matched nothing leaves only its "/*" pattern
	pattern := rctx.RoutePattern()
	if pattern == "" || strings.HasSuffix(pattern, "*") {
		return "", false
	}
	return routeParam.ReplaceAllString(pattern, ":$1"), true
}

func (rec *Recorder) record(ctx context.Context, endpoint, method string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := rec.repo.Increment(ctx, endpoint, method); err != nil {
		rec.logger.Warn("failed to record endpoint call",
			zap.String("endpoint", endpoint),
			zap.String("method", method),
			zap.Error(err),
		)
	}
}
