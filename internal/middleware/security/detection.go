package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"

	"ledger/internal/log"
)

// Stats counts what the detector has seen since start.
type Stats struct {
	Suspicious   int64
	BadForwarded int64
}

// Detector flags probing traffic and resolves the client address of requests
// that arrive through a trusted proxy.
type Detector struct {
	suspicious   atomic.Int64
	badForwarded atomic.Int64
	proxies      []netip.Prefix
}

// rule reports whether a request looks hostile. path and query are lowercased
// and query is unescaped.
type rule struct {
	name  string
	match func(r *http.Request, path, query string) bool
}

var (
	probeMarkers = []string{
		"../", "..\\", ".env", ".git", ".ssh", "etc/passwd", "cmd.exe",
		"wp-admin", "phpmyadmin", "admin.php", "config.php",
	}
	injectionMarkers = []string{"union select", "<script", "javascript:", "eval("}
	scannerAgents    = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan"}
	oddMethods       = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}

	rules = []rule{
		{"path_probe", func(_ *http.Request, path, query string) bool {
			return containsAny(path, probeMarkers) || containsAny(query, probeMarkers)
		}},
		{"injection", func(_ *http.Request, path, query string) bool {
			return containsAny(path, injectionMarkers) || containsAny(query, injectionMarkers)
		}},
		{"scanner_agent", func(r *http.Request, _, _ string) bool {
			return containsAny(strings.ToLower(r.UserAgent()), scannerAgents)
		}},
		{"odd_method", func(r *http.Request, _, _ string) bool {
			return slices.Contains(oddMethods, r.Method)
		}},
		{"long_url", func(r *http.Request, _, _ string) bool {
			return len(r.URL.String()) > 2048
		}},
		{"proxy_chain", func(r *http.Request, _, _ string) bool {
			return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5
		}},
	}
)

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// NewDetector trusts loopback and the private ranges as proxies.
func NewDetector() *Detector {
	d := &Detector{}
	if err := d.TrustProxies("127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"); err != nil {
		panic(err)
	}
	return d
}

// TrustProxies adds networks whose X-Forwarded-For and X-Real-IP headers are
// believed.
func (d *Detector) TrustProxies(cidrs ...string) error {
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return fmt.Errorf("trusted proxy %q: %w", c, err)
		}
		d.proxies = append(d.proxies, p.Masked())
	}
	return nil
}

// Check returns the name of the first rule r trips, or "".
func (d *Detector) Check(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	if q, err := url.QueryUnescape(query); err == nil {
		query = q
	}
	for _, rl := range rules {
		if rl.match(r, path, query) {
			d.suspicious.Add(1)
			return rl.name
		}
	}
	return ""
}

// ClientIP returns the peer address, or the forwarded client address when the
// peer is a trusted proxy and the header holds a valid IP.
func (d *Detector) ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !d.trusted(peer) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if a, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return a.String()
		}
		d.badForwarded.Add(1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if a, err := netip.ParseAddr(xri); err == nil {
			return a.String()
		}
		d.badForwarded.Add(1)
	}
	return host
}

func (d *Detector) trusted(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range d.proxies {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Middleware logs suspicious requests and lets them through; blocking is
// left to the rate limiter and the handlers' own validation.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.Check(r); reason != "" {
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(),
				"Suspicious request detected",
				"rule", reason,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, d.ClientIP(r),
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Detector) Stats() Stats {
	return Stats{Suspicious: d.suspicious.Load(), BadForwarded: d.badForwarded.Load()}
}
