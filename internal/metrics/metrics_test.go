package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareWithChiRouter(t *testing.T) {
	HTTPRequestsTotal.Reset()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/admin/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users/"+id, nil))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	}

	got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/admin/users/{id}", "202"))
	if got != 3 {
		t.Errorf("expected 3 requests under the route pattern, got %v", got)
	}
}

func TestMiddleware_UnmatchedShareLabel(t *testing.T) {
	HTTPRequestsTotal.Reset()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/known", func(w http.ResponseWriter, r *http.Request) {})

	for _, p := range []string{"/x1", "/x2/y"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"))
	if got != 2 {
		t.Errorf("expected 2 unmatched requests, got %v", got)
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	if rw.statusCode != http.StatusOK {
		t.Errorf("default status should be 200, got %d", rw.statusCode)
	}
	rw.WriteHeader(http.StatusCreated)
	if rw.statusCode != http.StatusCreated {
		t.Errorf("expected status code 201, got %d", rw.statusCode)
	}
}

func TestRecordAuthEvent(t *testing.T) {
	AuthEventsTotal.Reset()

	RecordAuthEvent("login", nil)
	RecordAuthEvent("login", errors.New("bad password"))
	RecordAuthEvent("login", errors.New("bad password"))

	if got := testutil.ToFloat64(AuthEventsTotal.WithLabelValues("login", OutcomeSuccess)); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(AuthEventsTotal.WithLabelValues("login", OutcomeFailure)); got != 2 {
		t.Errorf("failure = %v, want 2", got)
	}
}

func TestDBStatsCollector_SQL(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(4)

	NewDBStatsCollector(nil, db, nil).collect()

	if got := testutil.ToFloat64(DBConnectionsInUse.WithLabelValues("sqlx")); got != 0 {
		t.Errorf("in use = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/probe", "200").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lyricsgate_http_requests_total") {
		t.Errorf("expected body to contain lyricsgate_http_requests_total")
	}
}
