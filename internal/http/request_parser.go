// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Create endpoints accept both HTML form posts and JSON bodies, so the body
// parser normalizes the two into string fields.

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ledger/internal/core"
)

// maxBodyBytes caps request bodies; ledger payloads are a handful of fields.
const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if p.err == nil && len(p.body) > maxBodyBytes {
			p.body = nil
			p.err = fmt.Errorf("%w: request body exceeds %d bytes", core.ErrInvalidField, maxBodyBytes)
		}
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		if p.isJSONContentType() {
			p.jsonData = map[string]any{}
		}
		return nil
	}

	if trimmed[0] == '{' || p.isJSONContentType() {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		// Keep numeric amounts as their literal text.
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.jsonData = nil
			p.err = fmt.Errorf("%w: malformed JSON body", core.ErrInvalidField)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	if p.err != nil {
		p.err = fmt.Errorf("%w: malformed form body", core.ErrInvalidField)
	}
	return p.err
}

func (p *RequestBodyParser) isJSONContentType() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(p.contentType)), "application/json")
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// wantsJSON reports whether the caller should get a JSON reply rather than a
// redirect back to the dashboard.
func wantsJSON(r *http.Request, p *RequestBodyParser) bool {
	if p != nil && p.IsJSON() {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// userIDParam returns the user id from the {user_id} path segment, falling
// back to the user_id query parameter.
func userIDParam(r *http.Request) string {
	if id := strings.TrimSpace(chi.URLParam(r, "user_id")); id != "" {
		return id
	}
	return sanitizeInput(r.URL.Query().Get("user_id"))
}

// ParseWindow reads the optional start and end query parameters. A missing
// start defaults to the first day of now's month; a missing end leaves the
// window open.
func ParseWindow(query url.Values, now time.Time) (core.Window, error) {
	w := core.MonthToDate(now)
	if v := strings.TrimSpace(query.Get("start")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Window{}, fmt.Errorf("start: %w", err)
		}
		w.Start = d
	}
	if v := strings.TrimSpace(query.Get("end")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Window{}, fmt.Errorf("end: %w", err)
		}
		w.End = d
	}
	if err := w.Validate(); err != nil {
		return core.Window{}, err
	}
	return w, nil
}
