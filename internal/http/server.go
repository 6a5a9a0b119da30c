package http

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	appweb "ledger/web"
)

// Ledger is the write and listing side the handlers depend on.
type Ledger interface {
	CreateUser(ctx context.Context, username string) (core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	AddIncome(ctx context.Context, userID, amountText, source, dateText string) (core.Income, error)
	AddExpense(ctx context.Context, userID, amountText, category, dateText string) (core.Expense, error)
	RemoveIncome(ctx context.Context, id string) error
	RemoveExpense(ctx context.Context, id string) error
	RemoveBudget(ctx context.Context, id string) error
	ListIncomeFor(ctx context.Context, userID string) ([]core.Income, error)
	ListExpenseFor(ctx context.Context, userID string) ([]core.Expense, error)
	SetBudget(ctx context.Context, userID, category, amountText, periodText string) (core.Budget, error)
	ListBudgetsFor(ctx context.Context, userID string) ([]core.Budget, error)
}

// Summaries is the read-only aggregation side.
type Summaries interface {
	Summarize(ctx context.Context, userID string, w core.Window) (core.Summary, error)
	BudgetStatus(ctx context.Context, userID string, now time.Time) ([]core.BudgetStatus, error)
}

// Options wires the server's collaborators.
type Options struct {
	Ledger  Ledger
	Summary Summaries
	// Ready is probed by /readyz; nil means always ready.
	Ready func(ctx context.Context) error
	// UserCache is reported on /metrics when set.
	UserCache          *cache.LRUCache[core.User]
	RateLimitPerMinute int
	// Caches sweeps the rate limiter's idle clients when set.
	Caches *cache.Manager
	// TrustedProxies extends the loopback and private proxy ranges.
	TrustedProxies []string
	Logger         *log.Logger
	Now            func() time.Time
}

type appMetrics struct {
	uptime          time.Time
	usersCreated    atomic.Int64
	incomeCreated   atomic.Int64
	expensesCreated atomic.Int64
	budgetsUpserted atomic.Int64
}

type Server struct {
	http.Server
	ledger    Ledger
	summary   Summaries
	ready     func(ctx context.Context) error
	userCache *cache.LRUCache[core.User]
	templates *template.Template
	logger    *log.Logger
	now       func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	tracer           *trace.Tracer
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger:           opts.Ledger,
		summary:          opts.Summary,
		ready:            opts.Ready,
		userCache:        opts.UserCache,
		logger:           logger.WithComponent(log.ComponentHTTP),
		now:              now,
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	if err := s.securityDetector.TrustProxies(opts.TrustedProxies...); err != nil {
		s.logger.Warn("Ignoring trusted proxies", log.FieldError, err)
	}
	s.tracer = trace.New(s.securityDetector.ClientIP)
	if opts.RateLimitPerMinute > 0 {
		cfg := ratelimit.DefaultConfig()
		cfg.RequestsPerMinute = opts.RateLimitPerMinute
		s.rateLimiter = ratelimit.NewLimiter(cfg)
		if opts.Caches != nil {
			opts.Caches.Register(s.rateLimiter)
		}
	}

	t, err := appweb.Templates(template.FuncMap{"currency": formatCurrency})
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(security.NewHeaders(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(log.Middleware(s.logger, trace.RequestIDFromRequest, s.securityDetector.ClientIP))
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware(s.securityDetector.ClientIP, s.onRateLimited))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	if static, err := appweb.Static("/static/"); err == nil {
		r.Handle("/static/*", security.StaticAssetMiddleware(time.Hour)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Get("/", s.handleIndex)
	r.Get("/dashboard/{user_id}", s.handleDashboard)
	// The index page's form; the API route always answers with JSON.
	r.Post("/users", s.handleCreateUserForm)

	r.Route("/api", func(r chi.Router) {
		r.Use(log.ComponentMiddleware(log.ComponentLedger))

		r.Get("/users", s.handleListUsers)
		r.Post("/users", s.handleCreateUser)

		r.Get("/income", s.handleListIncome)
		r.Post("/income", s.handleCreateIncome)
		r.Delete("/income", s.handleDeleteIncome)

		r.Get("/expenses", s.handleListExpenses)
		r.Post("/expenses", s.handleCreateExpense)
		r.Delete("/expenses", s.handleDeleteExpense)

		r.Get("/budgets", s.handleListBudgets)
		r.Put("/budgets", s.handleUpsertBudget)
		// HTML forms cannot PUT.
		r.Post("/budgets", s.handleUpsertBudget)
		r.Delete("/budgets", s.handleDeleteBudget)

		r.Route("/analysis", func(r chi.Router) {
			r.Use(log.ComponentMiddleware(log.ComponentSummary))
			r.Get("/summary", s.handleSummary)
			r.Get("/summary/{user_id}", s.handleSummary)
			r.Get("/budgets", s.handleBudgetStatus)
			r.Get("/budgets/{user_id}", s.handleBudgetStatus)
		})
	})

	return r
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady verifies templates and the backing store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.templates == nil {
		ErrorResponse(http.StatusServiceUnavailable, "templates not loaded").Write(w)
		return
	}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "store not ready").Write(w)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	traffic := s.tracer.Stats()
	securityStats := s.securityDetector.Stats()

	writeMetric(w, "http_requests_total", "counter", "Total number of HTTP requests", traffic.Requests)
	writeMetric(w, "http_server_errors_total", "counter", "Responses with a 5xx status", traffic.ServerErrors)
	writeMetric(w, "http_response_time_avg_us", "gauge", "Average response time in microseconds", traffic.AvgMicros)
	writeMetric(w, "users_created_total", "counter", "Users created through the API", s.appMetrics.usersCreated.Load())
	writeMetric(w, "income_created_total", "counter", "Income records created through the API", s.appMetrics.incomeCreated.Load())
	writeMetric(w, "expenses_created_total", "counter", "Expense records created through the API", s.appMetrics.expensesCreated.Load())
	writeMetric(w, "budgets_upserted_total", "counter", "Budgets set through the API", s.appMetrics.budgetsUpserted.Load())
	writeMetric(w, "suspicious_requests_total", "counter", "Total suspicious requests detected", securityStats.Suspicious)
	writeMetric(w, "forwarded_header_rejected_total", "counter", "Forwarding headers from trusted proxies that held no valid IP", securityStats.BadForwarded)

	if s.rateLimiter != nil {
		rl := s.rateLimiter.Stats()
		writeMetric(w, "rate_limit_rejected_total", "counter", "Writes rejected by the rate limiter", rl.Rejected)
		writeMetric(w, "rate_limit_clients", "gauge", "Clients tracked by the rate limiter", rl.Clients)
	}
	if s.userCache != nil {
		st := s.userCache.Stats()
		writeMetric(w, "user_cache_entries", "gauge", "Current user cache entries", int64(st.Size))
		writeMetric(w, "user_cache_hits_total", "counter", "User cache hits", int64(st.Hits))
		writeMetric(w, "user_cache_misses_total", "counter", "User cache misses", int64(st.Misses))
	}
	writeMetric(w, "uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

func writeMetric(w http.ResponseWriter, name, kind, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, value)
}

// logFailure logs err at a level matching its status.
func (s *Server) logFailure(ctx context.Context, msg string, err error, op string) {
	if StatusForError(err) >= http.StatusInternalServerError {
		log.Failed(ctx, msg, err, op, nil)
		return
	}
	log.FromContext(ctx).DebugContext(ctx, msg, log.FieldError, err, log.FieldOperation, op)
}
