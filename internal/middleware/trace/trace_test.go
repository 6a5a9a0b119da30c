package trace

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	tr := New(func(*http.Request) string { return "10.0.0.1" })

	var seen string
	h := tr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/income", nil))

	if !strings.HasPrefix(seen, "req_") || !validID.MatchString(seen) {
		t.Fatalf("expected a generated request id, got %q", seen)
	}
	if rr.Header().Get(Header) != seen {
		t.Fatalf("response header %q does not match context id %q", rr.Header().Get(Header), seen)
	}
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMiddlewareReusesWellFormedUpstreamID(t *testing.T) {
	h := New(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		header string
		reuse  bool
	}{
		{"abc-123", true},
		{"has spaces", false},
		{"line\nbreak", false},
		{strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(Header, tt.header)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get(Header); (got == tt.header) != tt.reuse {
			t.Errorf("header %q: got id %q, reuse=%v", tt.header, got, tt.reuse)
		}
	}
}

func TestMiddlewareLogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tr := New(nil)
	r := chi.NewRouter()
	r.Use(tr.Middleware)
	r.Get("/dashboard/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "user not found", http.StatusNotFound)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboard/ghost", nil))

	out := buf.String()
	for _, want := range []string{"level=WARN", "route=/dashboard/{user_id}", "status_code=404", "path=/dashboard/ghost"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestStats(t *testing.T) {
	tr := New(nil)
	ok := tr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	fail := tr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	fail.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	got := tr.Stats()
	if got.Requests != 2 || got.ServerErrors != 1 || got.AvgMicros < 0 {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestRequestIDMissing(t *testing.T) {
	if id := RequestID(context.Background()); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}
