package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ledger/internal/core"
)

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantJSON    bool
		want        map[string]string
	}{
		{
			name:        "form body",
			contentType: "application/x-www-form-urlencoded",
			body:        "user_id=u1&amount=12%2C50&category=+food+",
			want:        map[string]string{"user_id": "u1", "amount": "12,50", "category": "food"},
		},
		{
			name:        "json body with numeric amount",
			contentType: "application/json",
			body:        `{"user_id":"u1","amount":12.345,"source":"salary"}`,
			wantJSON:    true,
			want:        map[string]string{"user_id": "u1", "amount": "12.345", "source": "salary", "missing": ""},
		},
		{
			name:     "json detected without content type",
			body:     ` {"username":"alice"}`,
			wantJSON: true,
			want:     map[string]string{"username": "alice"},
		},
		{
			name: "control characters are stripped",
			body: "username=al%00ice",
			want: map[string]string{"username": "alice"},
		},
		{
			name: "empty body",
			want: map[string]string{"username": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			p := NewRequestBodyParser(req)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON = %v, want %v", p.IsJSON(), tt.wantJSON)
			}
			for k, v := range tt.want {
				if got := p.Get(k); got != v {
					t.Errorf("Get(%q) = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestRequestBodyParser_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":`))
	req.Header.Set("Content-Type", "application/json")
	p := NewRequestBodyParser(req)
	err := p.Parse()
	if !errors.Is(err, core.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
	if !errors.Is(p.Parse(), core.ErrInvalidField) {
		t.Fatal("Parse should be memoized")
	}
}

func TestRequestBodyParser_RejectsOversizedBody(t *testing.T) {
	fits := "username=" + strings.Repeat("a", maxBodyBytes-len("username="))
	p := NewRequestBodyParser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(fits)))
	if err := p.Parse(); err != nil || len(p.Get("username")) != maxBodyBytes-len("username=") {
		t.Fatalf("body at the limit should parse, err=%v", err)
	}

	over := "note=" + strings.Repeat("a", maxBodyBytes) + "&username=late"
	p = NewRequestBodyParser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(over)))
	if err := p.Parse(); !errors.Is(err, core.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for an oversized body, got %v", err)
	}
	if got := p.Get("username"); got != "" {
		t.Fatalf("no field of a rejected body should be read, got %q", got)
	}
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	p := NewRequestBodyParser(req)
	_ = p.Parse()
	if wantsJSON(req, p) {
		t.Fatal("form post should not want JSON")
	}
	req.Header.Set("Accept", "application/json")
	if !wantsJSON(req, p) {
		t.Fatal("Accept: application/json should want JSON")
	}
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2025, 3, 18, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		query     url.Values
		wantStart string
		wantEnd   string
		wantErr   error
	}{
		{"defaults to month to date", url.Values{}, "2025-03-01", "", nil},
		{"explicit start", url.Values{"start": {"2025-01-15"}}, "2025-01-15", "", nil},
		{"closed window", url.Values{"start": {"2025-01-01"}, "end": {"2025-01-31"}}, "2025-01-01", "2025-01-31", nil},
		{"bad start", url.Values{"start": {"yesterday"}}, "", "", core.ErrInvalidDate},
		{"bad end", url.Values{"end": {"2025-13-01"}}, "", "", core.ErrInvalidDate},
		{"end before start", url.Values{"start": {"2025-02-01"}, "end": {"2025-01-01"}}, "", "", core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWindow(tt.query, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWindow: %v", err)
			}
			if w.Start.String() != tt.wantStart {
				t.Errorf("start = %s, want %s", w.Start, tt.wantStart)
			}
			end := ""
			if w.HasEnd() {
				end = w.End.String()
			}
			if end != tt.wantEnd {
				t.Errorf("end = %q, want %q", end, tt.wantEnd)
			}
		})
	}
}
