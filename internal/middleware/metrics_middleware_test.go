package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordedRequest struct {
	method string
	route  string
	status int
}

type fakeHTTPRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, route string, statusCode int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method: method, route: route, status: statusCode})
}

// TestMetricsMiddleware_RecordsRoutePattern はURLではなくルートパターンがラベルになることを検証する。
func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(rec))
	r.Get("/takes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/takes/01J0000000000000000000000A", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(rec.requests) != 2 {
		t.Fatalf("recorded %d requests, want 2", len(rec.requests))
	}
	if got := rec.requests[0]; got.route != "/takes/{id}" || got.status != http.StatusNotFound || got.method != http.MethodGet {
		t.Errorf("first = %+v, want GET /takes/{id} 404", got)
	}
	if got := rec.requests[1]; got.route != "unmatched" {
		t.Errorf("second route = %q, want unmatched", got.route)
	}
}
