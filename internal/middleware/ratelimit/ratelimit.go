// Package ratelimit throttles ledger writes per client with a fixed one-minute
// window.
package ratelimit

import (
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"ledger/internal/cache"
)

const window = time.Minute

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerMinute int
	// Methods limits which HTTP methods are counted; empty counts all.
	Methods []string
	// MaxClients bounds memory; the least recently seen client is dropped first.
	MaxClients int
	// IdleTTL forgets clients that have been quiet this long.
	IdleTTL time.Duration
}

// DefaultConfig counts only the methods that change the ledger.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Methods:           []string{http.MethodPost, http.MethodPut, http.MethodDelete},
		MaxClients:        10000,
		IdleTTL:           10 * time.Minute,
	}
}

type counter struct {
	start time.Time
	n     int
}

// Limiter tracks one counter per client key. Stale counters live in an LRU
// cache and are dropped by CleanExpired, so a Limiter can be registered with a
// cache.Manager instead of running its own sweeper.
type Limiter struct {
	mu       sync.Mutex
	counters *cache.LRUCache[*counter]
	limit    int
	methods  []string
	now      func() time.Time
	rejected atomic.Int64
}

var _ cache.Cleaner = (*Limiter)(nil)

func NewLimiter(cfg Config) *Limiter {
	d := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = d.RequestsPerMinute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = d.MaxClients
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = d.IdleTTL
	}
	return &Limiter{
		counters: cache.NewLRUCache[*counter](cfg.MaxClients, cfg.IdleTTL),
		limit:    cfg.RequestsPerMinute,
		methods:  cfg.Methods,
		now:      time.Now,
	}
}

func (l *Limiter) withClock(now func() time.Time) {
	l.now = now
	l.counters.WithClock(now)
}

// Allow counts one request for key. When the window is exhausted it reports
// how long until the next one opens.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters.Get(key)
	if !ok || now.Sub(c.start) >= window {
		l.counters.Set(key, &counter{start: now, n: 1})
		return true, 0
	}
	// Set refreshes the idle deadline.
	l.counters.Set(key, c)
	c.n++
	if c.n > l.limit {
		l.rejected.Add(1)
		return false, c.start.Add(window).Sub(now)
	}
	return true, 0
}

// CleanExpired forgets idle clients.
func (l *Limiter) CleanExpired() int {
	return l.counters.CleanExpired()
}

// Stats is a snapshot for /metrics.
type Stats struct {
	Rejected int64
	Clients  int64
}

func (l *Limiter) Stats() Stats {
	return Stats{Rejected: l.rejected.Load(), Clients: int64(l.counters.Size())}
}

func (l *Limiter) counts(method string) bool {
	return len(l.methods) == 0 || slices.Contains(l.methods, method)
}

// Middleware rejects over-limit requests with 429 and a Retry-After header.
// onLimit writes the body; nil falls back to http.Error.
func (l *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.counts(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Allow(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			secs := int((wait + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}
