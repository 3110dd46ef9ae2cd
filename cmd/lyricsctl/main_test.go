package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/welldanyogia/lyricsgate/internal/auth"
	"github.com/welldanyogia/lyricsgate/internal/httpx"
)

func TestRun_LoginThenMe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		httpx.WriteJSON(w, http.StatusOK, auth.AuthResponse{Token: "t0k", User: auth.UserResponse{Email: req.Email}, UsageCount: 3})
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, auth.ProfileResponse{User: auth.UserResponse{Email: "cli@example.com"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	state := filepath.Join(t.TempDir(), "client.db")
	ctx := context.Background()

	var out bytes.Buffer
	err := run(ctx, []string{"-server", srv.URL, "-state", state, "login"}, strings.NewReader("cli@example.com\nsecret\n"), &out)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out.String(), "Logged in as cli@example.com (3 calls used)") {
		t.Errorf("unexpected output: %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"-server", srv.URL, "-state", state, "me"}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("me: %v", err)
	}
	if !strings.Contains(out.String(), `"email": "cli@example.com"`) {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	state := filepath.Join(t.TempDir(), "client.db")
	err := run(context.Background(), []string{"-state", state, "dance"}, strings.NewReader(""), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected unknown command error, got %v", err)
	}
}
