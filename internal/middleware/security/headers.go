package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HeadersConfig describes the response headers every page and API call gets.
type HeadersConfig struct {
	// CSP directives, joined with "; ".
	CSP []string

	// HSTS is sent only on TLS connections; zero disables it.
	HSTS           time.Duration
	HSTSSubdomains bool

	FrameOptions      string
	ReferrerPolicy    string
	PermissionsPolicy string

	// NoStore lists path prefixes whose responses carry ledger data and must
	// never be cached by browsers or proxies.
	NoStore []string
}

// DefaultHeadersConfig suits the server-rendered dashboard: no third-party
// scripts, no framing, and no caching of anything under /api or /dashboard.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: []string{
			"default-src 'self'",
			"script-src 'self'",
			"style-src 'self'",
			"img-src 'self' data:",
			"object-src 'none'",
			"frame-ancestors 'none'",
			"base-uri 'self'",
			"form-action 'self'",
		},
		HSTS:              365 * 24 * time.Hour,
		HSTSSubdomains:    true,
		FrameOptions:      "DENY",
		ReferrerPolicy:    "strict-origin-when-cross-origin",
		PermissionsPolicy: "geolocation=(), microphone=(), camera=(), payment=()",
		NoStore:           []string{"/api/", "/dashboard/"},
	}
}

// Headers applies a HeadersConfig. The header set is computed once.
type Headers struct {
	fixed   http.Header
	hsts    string
	noStore []string
}

func NewHeaders(cfg HeadersConfig) *Headers {
	fixed := http.Header{}
	set := func(k, v string) {
		if v != "" {
			fixed.Set(k, v)
		}
	}
	set("X-Content-Type-Options", "nosniff")
	set("X-Frame-Options", cfg.FrameOptions)
	set("Content-Security-Policy", strings.Join(cfg.CSP, "; "))
	set("Referrer-Policy", cfg.ReferrerPolicy)
	set("Permissions-Policy", cfg.PermissionsPolicy)
	set("Cross-Origin-Opener-Policy", "same-origin")
	set("Cross-Origin-Resource-Policy", "same-origin")

	h := &Headers{fixed: fixed, noStore: cfg.NoStore}
	if cfg.HSTS > 0 {
		h.hsts = fmt.Sprintf("max-age=%d", int64(cfg.HSTS/time.Second))
		if cfg.HSTSSubdomains {
			h.hsts += "; includeSubDomains"
		}
	}
	return h
}

func (h *Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := w.Header()
		for k, v := range h.fixed {
			out[k] = v
		}
		if r.TLS != nil && h.hsts != "" {
			out.Set("Strict-Transport-Security", h.hsts)
		}
		for _, p := range h.noStore {
			if strings.HasPrefix(r.URL.Path, p) {
				out.Set("Cache-Control", "no-store")
				break
			}
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware marks embedded assets as cacheable for maxAge.
func StaticAssetMiddleware(maxAge time.Duration) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d, immutable", int64(maxAge/time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
