package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Generated("ai", 3)
	m.Synced("Chemistry", 1, 1, time.Millisecond)
	m.FallbackSection()
	m.GenerationError("timeout")
	m.Attempt(true)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestCounters(t *testing.T) {
	m := New()

	m.Generated("ai", 4)
	m.Generated("fallback", 2)
	m.Generated("ai", 0)
	m.Synced("Chemistry", 3, 2, 10*time.Millisecond)
	m.Synced("Chemistry", 0, 5, time.Millisecond)
	m.FallbackSection()
	m.Attempt(true)
	m.Attempt(false)
	m.Attempt(false)

	if got := testutil.ToFloat64(m.generated.WithLabelValues("ai")); got != 4 {
		t.Errorf("generated{ai} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.inserted.WithLabelValues("Chemistry")); got != 3 {
		t.Errorf("inserted{Chemistry} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.duplicates.WithLabelValues("Chemistry")); got != 7 {
		t.Errorf("duplicates{Chemistry} = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.fallbackSections); got != 1 {
		t.Errorf("fallback sections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("false")); got != 2 {
		t.Errorf("attempts{false} = %v, want 2", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/subjects", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := m.Middleware(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/subjects", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "GET /v1/subjects", "418")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "examino_http_requests_total") {
		t.Error("metrics output missing examino_http_requests_total")
	}
}
