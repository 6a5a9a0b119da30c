// Package trace gives every request an id and writes one access log line
// when it completes.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"ledger/internal/log"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

type ctxKey struct{}

// Upstream ids are reused only when they cannot smuggle anything into logs.
var validID = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// Stats are cumulative since start.
type Stats struct {
	Requests     int64
	ServerErrors int64
	AvgMicros    int64
}

// Tracer is the request id and access log middleware.
type Tracer struct {
	clientIP func(*http.Request) string

	requests     atomic.Int64
	serverErrors atomic.Int64
	totalMicros  atomic.Int64
}

// New returns a Tracer. clientIP may be nil.
func New(clientIP func(*http.Request) string) *Tracer {
	return &Tracer{clientIP: clientIP}
}

// NewRequestID mints an id for requests that arrive without a usable one.
func NewRequestID() string {
	return "req_" + uuid.NewString()
}

// RequestID returns the id stored by Middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestIDFromRequest is RequestID for callers that hold the request.
func RequestIDFromRequest(r *http.Request) string {
	return RequestID(r.Context())
}

func (t *Tracer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(Header)
		if !validID.MatchString(id) {
			id = NewRequestID()
		}
		w.Header().Set(Header, id)
		ctx := context.WithValue(r.Context(), ctxKey{}, id)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		t.requests.Add(1)
		t.totalMicros.Add(elapsed.Microseconds())
		if status >= 500 {
			t.serverErrors.Add(1)
		}

		attrs := []any{
			log.FieldRequestID, id,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			"route", routePattern(r),
			log.FieldStatusCode, status,
			"bytes", ww.BytesWritten(),
			log.FieldDuration, elapsed.Milliseconds(),
			log.FieldDurationHuman, elapsed.String(),
			log.FieldSuccess, status < 400,
		}
		if t.clientIP != nil {
			attrs = append(attrs, log.FieldClientIP, t.clientIP(r))
		}
		if status >= 400 {
			attrs = append(attrs, log.FieldUserAgent, r.UserAgent(), log.FieldReferer, r.Referer())
		}
		slog.Log(ctx, levelFor(status), "HTTP request completed", attrs...)
	})
}

// routePattern is the chi pattern that matched, e.g. /dashboard/{user_id}.
// The router fills it in while the request is served.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (t *Tracer) Stats() Stats {
	n := t.requests.Load()
	var avg int64
	if n > 0 {
		avg = t.totalMicros.Load() / n
	}
	return Stats{Requests: n, ServerErrors: t.serverErrors.Load(), AvgMicros: avg}
}
