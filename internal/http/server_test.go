package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ledger/internal/services"
	"ledger/internal/storage/memory"
)

var fixedNow = time.Date(2025, 1, 25, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	store := memory.New()
	ledger := services.NewLedgerService(store, nil, services.Config{})
	if opts.Ledger == nil {
		opts.Ledger = ledger
	}
	if opts.Summary == nil {
		opts.Summary = services.NewSummaryService(store, ledger, services.Config{})
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	opts.UserCache = ledger.UserCache()
	srv := NewServer(":0", opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func createUser(t *testing.T, srv *Server, name string) userJSON {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/users", "application/json", `{"username":"`+name+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create user: status %d body %s", rr.Code, rr.Body.String())
	}
	return decode[userJSON](t, rr)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	rr = do(t, srv, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	rr := do(t, srv, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestUsersAPI(t *testing.T) {
	srv := newTestServer(t, Options{})

	u := createUser(t, srv, "alice")
	if u.ID == "" || u.Username != "alice" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := time.Parse(time.RFC3339, u.CreatedAt); err != nil {
		t.Fatalf("created_at not RFC 3339: %q", u.CreatedAt)
	}

	rr := do(t, srv, http.MethodPost, "/api/users", "application/json", `{"username":"alice"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate username: expected 409, got %d", rr.Code)
	}
	if got := decode[errorBody](t, rr); got.Error == "" {
		t.Fatal("expected error message")
	}

	rr = do(t, srv, http.MethodPost, "/api/users", "application/json", `{"username":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty username: expected 400, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/users", "", "")
	users := decode[[]userJSON](t, rr)
	if len(users) != 1 || users[0].ID != u.ID {
		t.Fatalf("unexpected users %+v", users)
	}
}

func TestCreateUserFormRedirects(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodPost, "/users", "application/x-www-form-urlencoded", "username=bob")
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); !strings.HasPrefix(loc, "/dashboard/") {
		t.Fatalf("unexpected redirect %q", loc)
	}
}

func TestCreateUserAPIAlwaysReturnsJSON(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodPost, "/api/users", "application/x-www-form-urlencoded", "username=dora")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for a form body on the API, got %d", rr.Code)
	}
	if u := decode[userJSON](t, rr); u.Username != "dora" || u.ID == "" {
		t.Fatalf("unexpected user %+v", u)
	}

	big := "username=" + strings.Repeat("x", maxBodyBytes)
	if rr := do(t, srv, http.MethodPost, "/api/users", "application/x-www-form-urlencoded", big); rr.Code != http.StatusBadRequest {
		t.Fatalf("oversized body: expected 400, got %d", rr.Code)
	}
}

func TestIncomeAndExpenseAPI(t *testing.T) {
	srv := newTestServer(t, Options{})
	u := createUser(t, srv, "carol")

	rr := do(t, srv, http.MethodPost, "/api/income", "application/json",
		`{"user_id":"`+u.ID+`","amount":"1000.00","source":"salary","date":"2025-01-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add income: %d %s", rr.Code, rr.Body.String())
	}
	in := decode[incomeJSON](t, rr)
	if in.Amount != "1000.00" || in.Date != "2025-01-01" {
		t.Fatalf("unexpected income %+v", in)
	}

	form := url.Values{"user_id": {u.ID}, "amount": {"12.345"}, "category": {"food"}, "date": {"2025-01-03"}}
	rr = do(t, srv, http.MethodPost, "/api/expenses", "application/x-www-form-urlencoded", form.Encode())
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/dashboard/"+u.ID {
		t.Fatalf("form expense: %d location %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses?user_id="+u.ID, "", "")
	exps := decode[[]expenseJSON](t, rr)
	if len(exps) != 1 || exps[0].Amount != "12.345" || exps[0].Category != "food" {
		t.Fatalf("unexpected expenses %+v", exps)
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenses?expense_id="+exps[0].ID, "", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete expense: %d", rr.Code)
	}
	rr = do(t, srv, http.MethodDelete, "/api/expenses?expense_id="+exps[0].ID, "", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("second delete must be a no-op, got %d", rr.Code)
	}
	rr = do(t, srv, http.MethodDelete, "/api/income?income_id=", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("delete without id: expected 400, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/income", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("list without user_id: expected 400, got %d", rr.Code)
	}
}

func TestCreateRecordErrors(t *testing.T) {
	srv := newTestServer(t, Options{})
	u := createUser(t, srv, "dave")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad amount", `{"user_id":"` + u.ID + `","amount":"abc","category":"food","date":"2025-01-01"}`, http.StatusBadRequest},
		{"negative amount", `{"user_id":"` + u.ID + `","amount":"-1","category":"food","date":"2025-01-01"}`, http.StatusBadRequest},
		{"bad date", `{"user_id":"` + u.ID + `","amount":"1","category":"food","date":"01/02/2025"}`, http.StatusBadRequest},
		{"unknown user", `{"user_id":"ghost","amount":"1","category":"food","date":"2025-01-01"}`, http.StatusNotFound},
		{"malformed json", `{"user_id":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", "application/json", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d (%s)", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestNumericJSONAmountKeepsPrecision(t *testing.T) {
	srv := newTestServer(t, Options{})
	u := createUser(t, srv, "erin")
	rr := do(t, srv, http.MethodPost, "/api/income", "application/json",
		`{"user_id":"`+u.ID+`","amount":0.1,"source":"interest","date":"2025-01-02"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add income: %d %s", rr.Code, rr.Body.String())
	}
	if in := decode[incomeJSON](t, rr); in.Amount != "0.10" {
		t.Fatalf("expected 0.10, got %s", in.Amount)
	}
}

func TestSummaryAPI(t *testing.T) {
	srv := newTestServer(t, Options{})
	u := createUser(t, srv, "frank")

	for _, rec := range []struct{ path, body string }{
		{"/api/income", `{"user_id":"` + u.ID + `","amount":"1000.00","source":"salary","date":"2025-01-01"}`},
		{"/api/expenses", `{"user_id":"` + u.ID + `","amount":"50.00","category":"food","date":"2025-01-03"}`},
		{"/api/expenses", `{"user_id":"` + u.ID + `","amount":"30.00","category":"transport","date":"2025-01-04"}`},
		{"/api/expenses", `{"user_id":"` + u.ID + `","amount":"20.00","category":"food","date":"2025-01-20"}`},
		{"/api/expenses", `{"user_id":"` + u.ID + `","amount":"999.00","category":"rent","date":"2024-12-31"}`},
	} {
		if rr := do(t, srv, http.MethodPost, rec.path, "application/json", rec.body); rr.Code != http.StatusCreated {
			t.Fatalf("seed %s: %d %s", rec.path, rr.Code, rr.Body.String())
		}
	}

	// Default window is month to date of the fixed clock.
	rr := do(t, srv, http.MethodGet, "/api/analysis/summary/"+u.ID, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary: %d %s", rr.Code, rr.Body.String())
	}
	sum := decode[summaryJSON](t, rr)
	if sum.IncomeTotal != "1000.00" || sum.ExpenseTotal != "100.00" || sum.NetSavings != "900.00" {
		t.Fatalf("unexpected totals %+v", sum)
	}
	if sum.WindowStart != "2025-01-01" || sum.WindowEnd != "" {
		t.Fatalf("unexpected window %s..%s", sum.WindowStart, sum.WindowEnd)
	}
	if len(sum.ExpensesByCategory) != 2 || sum.ExpensesByCategory[0].Category != "food" || sum.ExpensesByCategory[0].Amount != "70.00" {
		t.Fatalf("unexpected breakdown %+v", sum.ExpensesByCategory)
	}

	rr = do(t, srv, http.MethodGet, "/api/analysis/summary?user_id="+u.ID+"&start=2024-12-01&end=2024-12-31", "", "")
	sum = decode[summaryJSON](t, rr)
	if sum.ExpenseTotal != "999.00" || sum.IncomeTotal != "0.00" || sum.WindowEnd != "2024-12-31" {
		t.Fatalf("unexpected december summary %+v", sum)
	}

	if rr := do(t, srv, http.MethodGet, "/api/analysis/summary", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id: expected 400, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/analysis/summary/ghost", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/analysis/summary/"+u.ID+"?start=2025-02-01&end=2025-01-01", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("inverted window: expected 400, got %d", rr.Code)
	}
}

func TestBudgetAPI(t *testing.T) {
	srv := newTestServer(t, Options{})
	u := createUser(t, srv, "gina")

	rr := do(t, srv, http.MethodPut, "/api/budgets", "application/json",
		`{"user_id":"`+u.ID+`","category":"food","amount":"60","period":"monthly"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("upsert budget: %d %s", rr.Code, rr.Body.String())
	}
	b := decode[budgetJSON](t, rr)
	if b.Amount != "60.00" || b.Period != "monthly" {
		t.Fatalf("unexpected budget %+v", b)
	}

	do(t, srv, http.MethodPost, "/api/expenses", "application/json",
		`{"user_id":"`+u.ID+`","amount":"75","category":"food","date":"2025-01-10"}`)

	rr = do(t, srv, http.MethodGet, "/api/analysis/budgets/"+u.ID, "", "")
	statuses := decode[[]budgetStatusJSON](t, rr)
	if len(statuses) != 1 || statuses[0].Spent != "75.00" || statuses[0].Remaining != "-15.00" || !statuses[0].OverBudget {
		t.Fatalf("unexpected status %+v", statuses)
	}

	rr = do(t, srv, http.MethodPut, "/api/budgets", "application/json",
		`{"user_id":"`+u.ID+`","category":"food","amount":"60","period":"daily"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad period: expected 400, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodDelete, "/api/budgets?budget_id="+b.ID, "", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete budget: %d", rr.Code)
	}
	rr = do(t, srv, http.MethodGet, "/api/budgets?user_id="+u.ID, "", "")
	if list := decode[[]budgetJSON](t, rr); len(list) != 0 {
		t.Fatalf("expected no budgets, got %+v", list)
	}
}

func TestPages(t *testing.T) {
	srv := newTestServer(t, Options{})
	u := createUser(t, srv, "hank")
	do(t, srv, http.MethodPost, "/api/expenses", "application/json",
		`{"user_id":"`+u.ID+`","amount":"1234.5","category":"rent","date":"2025-01-02"}`)

	rr := do(t, srv, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "hank") {
		t.Fatalf("index: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/dashboard/"+u.ID, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard: %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "$1,234.50") {
		t.Fatalf("dashboard should show formatted currency, got %s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/dashboard/ghost", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown dashboard: expected 404, got %d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/static/style.css", "", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Cache-Control") == "" {
		t.Fatalf("static: %d cache-control %q", rr.Code, rr.Header().Get("Cache-Control"))
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		rr := do(t, srv, http.MethodPost, "/api/users", "application/json", `{"username":"u`+string(rune('a'+i))+`"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("request %d: %d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/api/users", "application/json", `{"username":"uz"}`)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}
	// Reads are not limited.
	rr = do(t, srv, http.MethodGet, "/api/users", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET should pass, got %d", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("api responses must not be cached, got %q", cc)
	}

	body := do(t, srv, http.MethodGet, "/metrics", "", "").Body.String()
	for _, want := range []string{"rate_limit_rejected_total 1", "rate_limit_clients 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, Options{})
	createUser(t, srv, "ivy")
	rr := do(t, srv, http.MethodGet, "/metrics", "", "")
	body := rr.Body.String()
	for _, want := range []string{"http_requests_total", "users_created_total 1", "user_cache_entries"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}
