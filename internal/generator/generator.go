// Package generator calls the downstream lyrics generation service.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
)

// DefaultTimeout bounds a single generation call
const DefaultTimeout = 50 * time.Second

const maxResponseBytes = 1 << 20

// Downstream errors
var (
	ErrUpstreamTimeout = apperror.New(apperror.KindUpstreamTimeout, apperror.CodeUpstreamTimeout, "The lyrics service did not respond in time. Please try again.")
	ErrUpstream        = apperror.New(apperror.KindUpstream, apperror.CodeUpstreamError, "The lyrics service failed to generate lyrics")
)

// Payload is the generator's answer
type Payload struct {
	Lyrics string `json:"lyrics"`
}

// LyricsGenerator produces lyrics for validated parameters
type LyricsGenerator interface {
	Generate(ctx context.Context, params Params, timeout time.Duration) (*Payload, error)
}

// Config holds HTTPGenerator settings
type Config struct {
	BaseURL string
	APIKey  string
}

// HTTPGenerator calls a generation service over HTTP
type HTTPGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPGenerator creates an HTTPGenerator. The per-call timeout is applied
// through the request context, so the client itself has none.
func NewHTTPGenerator(cfg Config, client *http.Client, logger *zap.Logger) *HTTPGenerator {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGenerator{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  logger,
	}
}

// Generate posts params to <base>/generate. A call that outlives timeout is
// aborted and reported as ErrUpstreamTimeout.
func (g *HTTPGenerator) Generate(ctx context.Context, params Params, timeout time.Duration) (*Payload, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(params)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, apperror.Wrap(ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			g.logger.Warn("generator call timed out", zap.Duration("timeout", timeout))
			return nil, apperror.Wrap(ErrUpstreamTimeout, err)
		}
		return nil, apperror.Wrap(ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, apperror.Wrap(ErrUpstreamTimeout, err)
		}
		return nil, apperror.Wrap(ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.Wrap(ErrUpstream, fmt.Errorf("generator returned status %d", resp.StatusCode))
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperror.Wrap(ErrUpstream, fmt.Errorf("decode generator response: %w", err))
	}
	if strings.TrimSpace(payload.Lyrics) == "" {
		return nil, apperror.Wrap(ErrUpstream, errors.New("generator response has no lyrics"))
	}

	g.logger.Debug("generator call completed", zap.Duration("duration", time.Since(start)))
	return &payload, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
