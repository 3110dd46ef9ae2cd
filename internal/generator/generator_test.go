package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/welldanyogia/lyricsgate/internal/apperror"
	"github.com/welldanyogia/lyricsgate/internal/sanitizer"
)

func validParams() Params {
	return Params{
		Artist:       "Nina Simone",
		Description:  "a slow song about rain",
		MaxLength:    100,
		Temperature:  0.9,
		TopP:         0.95,
		TopK:         5,
		CompleteSong: true,
	}
}

func TestHTTPGenerator_Success(t *testing.T) {
	var got Params
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "Bearer k3y", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"lyrics":"la la la"}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(Config{BaseURL: srv.URL + "/", APIKey: "k3y"}, srv.Client(), nil)
	payload, err := g.Generate(context.Background(), validParams(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "la la la", payload.Lyrics)
	assert.Equal(t, validParams(), got)
}

func TestHTTPGenerator_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g := NewHTTPGenerator(Config{BaseURL: srv.URL}, srv.Client(), nil)
	_, err := g.Generate(context.Background(), validParams(), 50*time.Millisecond)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamTimeout), "got %v", err)
	assert.Equal(t, http.StatusRequestTimeout, apperror.As(err).Kind.Status())
}

func TestHTTPGenerator_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"not json", http.StatusOK, `<html>`},
		{"empty lyrics", http.StatusOK, `{"lyrics":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewHTTPGenerator(Config{BaseURL: srv.URL}, srv.Client(), nil)
			_, err := g.Generate(context.Background(), validParams(), time.Second)
			assert.True(t, errors.Is(err, ErrUpstream), "got %v", err)
			assert.Equal(t, http.StatusBadGateway, apperror.As(err).Kind.Status())
		})
	}
}

func TestHTTPGenerator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewHTTPGenerator(Config{BaseURL: url}, nil, nil)
	_, err := g.Generate(context.Background(), validParams(), time.Second)
	assert.True(t, errors.Is(err, ErrUpstream), "got %v", err)
}

func TestRequestNormalize_Defaults(t *testing.T) {
	p, err := Request{Artist: "  Nina   Simone ", Description: "rain\non the roof"}.Normalize(sanitizer.NewTextSanitizer())
	require.NoError(t, err)

	assert.Equal(t, "Nina Simone", p.Artist)
	assert.Equal(t, "rain on the roof", p.Description)
	assert.Equal(t, DefaultMaxLength, p.MaxLength)
	assert.Equal(t, DefaultTemperature, p.Temperature)
	assert.Equal(t, DefaultTopP, p.TopP)
	assert.Equal(t, DefaultTopK, p.TopK)
	assert.True(t, p.CompleteSong)
}

func TestRequestNormalize_Rejections(t *testing.T) {
	s := sanitizer.NewTextSanitizer()
	intPtr := func(v int) *int { return &v }
	floatPtr := func(v float64) *float64 { return &v }

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing artist", Request{Description: "song"}, "artist"},
		{"artist charset", Request{Artist: "Nina; DROP", Description: "song"}, "artist"},
		{"artist too long", Request{Artist: strings.Repeat("a", 101), Description: "song"}, "artist"},
		{"missing description", Request{Artist: "Nina"}, "description"},
		{"description charset", Request{Artist: "Nina", Description: "song {x}"}, "description"},
		{"description too long", Request{Artist: "Nina", Description: strings.Repeat("d", 501)}, "description"},
		{"length low", Request{Artist: "Nina", Description: "song", MaxLength: intPtr(49)}, "max_length"},
		{"length high", Request{Artist: "Nina", Description: "song", MaxLength: intPtr(201)}, "max_length"},
		{"temperature", Request{Artist: "Nina", Description: "song", Temperature: floatPtr(2.5)}, "temperature"},
		{"top_p", Request{Artist: "Nina", Description: "song", TopP: floatPtr(-0.1)}, "top_p"},
		{"top_k", Request{Artist: "Nina", Description: "song", TopK: intPtr(0)}, "top_k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Normalize(s)
			appErr := apperror.As(err)
			require.Equal(t, apperror.KindValidation, appErr.Kind, "got %v", err)
			details, ok := appErr.Details.(map[string][]string)
			require.True(t, ok)
			assert.NotEmpty(t, details[tt.field], "details: %v", details)
		})
	}
}

func TestProperty_MaxLengthBounds(t *testing.T) {
	s := sanitizer.NewTextSanitizer()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(-100, 400).Draw(t, "max_length")
		_, err := Request{Artist: "Nina", Description: "song", MaxLength: &n}.Normalize(s)
		inRange := n >= 50 && n <= 200
		if inRange != (err == nil) {
			t.Fatalf("max_length %d: inRange=%v err=%v", n, inRange, err)
		}
	})
}
