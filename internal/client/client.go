// Package client is a Go client for the lyricsgate HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/welldanyogia/lyricsgate/internal/admin"
	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/auth"
	"github.com/welldanyogia/lyricsgate/internal/client/session"
	"github.com/welldanyogia/lyricsgate/internal/generator"
	"github.com/welldanyogia/lyricsgate/internal/lyrics"
	"github.com/welldanyogia/lyricsgate/internal/repository"
)

const tokenKey = "session_token"

// ErrNotLoggedIn is returned by authenticated calls when no token is stored
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response from the server
type APIError struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// IsCode reports whether err is an APIError carrying code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client talks to one lyricsgate server
type Client struct {
	baseURL  string
	http     *http.Client
	store    session.Store
	throttle *LoginThrottle
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithThrottle overrides the default login throttle
func WithThrottle(t *LoginThrottle) Option {
	return func(c *Client) { c.throttle = t }
}

// New creates a Client for baseURL (for example http://localhost:8080)
func New(baseURL string, store session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{Timeout: 60 * time.Second},
		store:   store,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.throttle == nil {
		c.throttle = NewLoginThrottle(store)
	}
	return c
}

// Register creates an account and stores the returned session token
func (c *Client) Register(ctx context.Context, req auth.RegisterRequest) (*auth.AuthResponse, error) {
	var resp auth.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &resp, false); err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, tokenKey, resp.Token); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates and stores the session token. The local throttle is
// consulted first and updated from the outcome.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.AuthResponse, error) {
	if err := c.throttle.Check(ctx); err != nil {
		return nil, err
	}

	var resp auth.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", auth.LoginRequest{Email: email, Password: password}, &resp, false)
	if err != nil {
		if IsCode(err, apperror.CodeInvalidCredentials) {
			if terr := c.throttle.RecordFailure(ctx); terr != nil {
				return nil, errors.Join(err, terr)
			}
		}
		return nil, err
	}

	if err := c.throttle.RecordSuccess(ctx); err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, tokenKey, resp.Token); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout forgets the stored session token
func (c *Client) Logout(ctx context.Context) error {
	return c.store.Clear(ctx, tokenKey)
}

// Me returns the caller's profile and usage
func (c *Client) Me(ctx context.Context) (*auth.ProfileResponse, error) {
	var resp auth.ProfileResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword requests a reset link and returns the server's acknowledgement
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/forgot-password", auth.ForgotPasswordRequest{Email: email}, &resp, false)
	return resp.Message, err
}

// VerifyResetToken reports whether a reset token is still usable
func (c *Client) VerifyResetToken(ctx context.Context, token, email string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/verify-reset-token", auth.VerifyResetRequest{Token: token, Email: email}, &resp, false)
	return resp.Valid, err
}

// ResetPassword sets a new password with a reset token
func (c *Client) ResetPassword(ctx context.Context, token, email, newPassword string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	req := auth.ResetPasswordRequest{Token: token, Email: email, NewPassword: newPassword}
	err := c.do(ctx, http.MethodPost, "/auth/reset-password", req, &resp, false)
	return resp.Message, err
}

// Generate runs one metered lyrics generation
func (c *Client) Generate(ctx context.Context, req generator.Request) (*lyrics.GenerateResponse, error) {
	var resp lyrics.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/lyrics/generate", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListUsers returns every account with its usage (admin)
func (c *Client) ListUsers(ctx context.Context) ([]admin.UserSummary, error) {
	var resp struct {
		Users []admin.UserSummary `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ResetUsage zeroes an account's counter (admin)
func (c *Client) ResetUsage(ctx context.Context, accountID string) error {
	return c.do(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(accountID)+"/reset-usage", nil, nil, true)
}

// DeleteUser removes an account (admin)
func (c *Client) DeleteUser(ctx context.Context, accountID string) error {
	return c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(accountID), nil, nil, true)
}

// EndpointStats returns the per-endpoint call counters (admin)
func (c *Client) EndpointStats(ctx context.Context) ([]repository.EndpointStat, error) {
	var resp struct {
		Stats []repository.EndpointStat `json:"stats"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/endpoint-stats", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, authenticated bool) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authenticated {
		token, ok, err := c.store.Get(ctx, tokenKey)
		if err != nil {
			return err
		}
		if !ok || token == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body struct {
		Error   string          `json:"error"`
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
		apiErr.Details = body.Details
	}
	return apiErr
}
