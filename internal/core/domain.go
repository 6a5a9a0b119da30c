package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

const (
	MaxUsernameLength = 80
	MaxLabelLength    = 100
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

type (
	Period string

	// Date is a calendar date held at UTC midnight.
	Date struct {
		time.Time
	}

	User struct {
		ID        string
		Username  string
		CreatedAt time.Time
	}

	Income struct {
		ID        string
		UserID    string
		Amount    Money
		Source    string
		Date      Date
		CreatedAt time.Time
	}

	Expense struct {
		ID        string
		UserID    string
		Amount    Money
		Category  string
		Date      Date
		CreatedAt time.Time
	}

	// Budget is a spending target for one category over a recurring period.
	Budget struct {
		ID       string
		UserID   string
		Category string
		Amount   Money
		Period   Period
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a strict YYYY-MM-DD string. Impossible dates such as
// 2025-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty date", ErrInvalidDate)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// ParsePeriod maps the textual period to a Period. An empty string means monthly.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Monthly, nil
	}
	p := Period(s)
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

func (p Period) Validate() error {
	switch p {
	case Weekly, Monthly, Yearly:
		return nil
	default:
		return fmt.Errorf("%w: unknown budget period %q", ErrInvalidField, string(p))
	}
}

// Window returns the period-to-date window containing now. Weeks start on Monday.
func (p Period) Window(now time.Time) Window {
	today := DateOf(now)
	switch p {
	case Weekly:
		offset := (int(today.Weekday()) + 6) % 7
		return Window{Start: today.AddDays(-offset)}
	case Yearly:
		return Window{Start: NewDate(today.Year(), 1, 1)}
	default:
		return MonthToDate(now)
	}
}

// ValidateUsername checks the username shape; uniqueness is the store's job.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return missing("username")
	}
	if len(username) > MaxUsernameLength {
		return tooLong("username", MaxUsernameLength)
	}
	return nil
}

func validateLabel(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return missing(field)
	}
	if len(value) > MaxLabelLength {
		return tooLong(field, MaxLabelLength)
	}
	return nil
}

func (i Income) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return missing("user_id")
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if err := validateLabel("source", i.Source); err != nil {
		return err
	}
	return i.Date.Validate()
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return missing("user_id")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := validateLabel("category", e.Category); err != nil {
		return err
	}
	return e.Date.Validate()
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return missing("user_id")
	}
	if err := validateLabel("category", b.Category); err != nil {
		return err
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	return b.Period.Validate()
}
