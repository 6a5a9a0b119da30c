// Package export renders ledger summaries as CSV, JSON and PDF reports.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"ledger/internal/core"
)

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	PDF  Format = "pdf"
)

// Report is everything a rendered summary shows.
type Report struct {
	UserID      string
	Username    string
	Summary     core.Summary
	Budgets     []core.BudgetStatus
	GeneratedAt time.Time
}

// ParseFormats splits a comma separated list such as "csv,pdf". Duplicates
// are dropped and order is kept.
func ParseFormats(s string) ([]Format, error) {
	var out []Format
	seen := map[Format]bool{}
	for _, part := range strings.Split(s, ",") {
		f := Format(strings.ToLower(strings.TrimSpace(part)))
		if f == "" {
			continue
		}
		switch f {
		case CSV, JSON, PDF:
		default:
			return nil, fmt.Errorf("unknown export format %q (want csv, json or pdf)", part)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// ToFile writes r in format f to a timestamped file under dir and returns
// its absolute path. An empty dir means the working directory.
func ToFile(r Report, f Format, base, dir string) (string, error) {
	ts := r.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	name, err := generateFilename(base, dir, string(f), ts)
	if err != nil {
		return "", err
	}

	file, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("error creating %s file: %w", f, err)
	}
	defer file.Close()

	switch f {
	case CSV:
		err = WriteCSV(file, r)
	case JSON:
		err = WriteJSON(file, r)
	case PDF:
		err = WritePDF(file, r)
	default:
		err = fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close %s file: %w", f, err)
	}
	return filepath.Abs(name)
}

func generateFilename(base, dir, ext string, ts time.Time) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("could not get current working directory: %w", err)
		}
		dir = cwd
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating output directory '%s': %w", dir, err)
	}
	filename := fmt.Sprintf("%s_%s.%s", base, ts.Format("20060102_150405"), ext)
	return filepath.Join(dir, filename), nil
}

func windowLabel(w core.Window) string {
	if w.HasEnd() {
		return w.Start.String() + " to " + w.End.String()
	}
	return "since " + w.Start.String()
}

// WriteCSV emits one row per figure: totals first, then categories and budgets.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	s := r.Summary
	rows := [][]string{
		{"section", "name", "amount", "detail"},
		{"window", "start", "", s.Window.Start.String()},
	}
	if s.Window.HasEnd() {
		rows = append(rows, []string{"window", "end", "", s.Window.End.String()})
	}
	rows = append(rows,
		[]string{"total", "income", s.IncomeTotal.String(), ""},
		[]string{"total", "expenses", s.ExpenseTotal.String(), ""},
		[]string{"total", "net_savings", s.NetSavings.String(), ""},
	)
	for _, c := range s.ExpensesByCategory {
		rows = append(rows, []string{"category", c.Category, c.Amount.String(), ""})
	}
	for _, b := range r.Budgets {
		detail := fmt.Sprintf("%s limit %s, remaining %s", b.Budget.Period, b.Budget.Amount, b.Remaining)
		if b.Over {
			detail += ", over budget"
		}
		rows = append(rows, []string{"budget", b.Budget.Category, b.Spent.String(), detail})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

type jsonCategory struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

type jsonBudget struct {
	Category   string `json:"category"`
	Period     string `json:"period"`
	Limit      string `json:"limit"`
	Spent      string `json:"spent"`
	Remaining  string `json:"remaining"`
	OverBudget bool   `json:"over_budget"`
}

type jsonReport struct {
	UserID             string         `json:"user_id,omitempty"`
	Username           string         `json:"username,omitempty"`
	GeneratedAt        string         `json:"generated_at,omitempty"`
	WindowStart        string         `json:"window_start"`
	WindowEnd          string         `json:"window_end,omitempty"`
	IncomeTotal        string         `json:"income_total"`
	ExpenseTotal       string         `json:"expense_total"`
	NetSavings         string         `json:"net_savings"`
	ExpensesByCategory []jsonCategory `json:"expenses_by_category"`
	Budgets            []jsonBudget   `json:"budgets,omitempty"`
}

// WriteJSON writes an indented JSON document; amounts stay decimal strings.
func WriteJSON(w io.Writer, r Report) error {
	s := r.Summary
	out := jsonReport{
		UserID:             r.UserID,
		Username:           r.Username,
		WindowStart:        s.Window.Start.String(),
		IncomeTotal:        s.IncomeTotal.String(),
		ExpenseTotal:       s.ExpenseTotal.String(),
		NetSavings:         s.NetSavings.String(),
		ExpensesByCategory: make([]jsonCategory, 0, len(s.ExpensesByCategory)),
	}
	if !r.GeneratedAt.IsZero() {
		out.GeneratedAt = r.GeneratedAt.UTC().Format(time.RFC3339)
	}
	if s.Window.HasEnd() {
		out.WindowEnd = s.Window.End.String()
	}
	for _, c := range s.ExpensesByCategory {
		out.ExpensesByCategory = append(out.ExpensesByCategory, jsonCategory{Category: c.Category, Amount: c.Amount.String()})
	}
	for _, b := range r.Budgets {
		out.Budgets = append(out.Budgets, jsonBudget{
			Category:   b.Budget.Category,
			Period:     string(b.Budget.Period),
			Limit:      b.Budget.Amount.String(),
			Spent:      b.Spent.String(),
			Remaining:  b.Remaining.String(),
			OverBudget: b.Over,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("error encoding JSON data: %w", err)
	}
	return nil
}

// WritePDF lays the report out on a single A4 page.
func WritePDF(w io.Writer, r Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	title := "Ledger summary"
	if r.Username != "" {
		title += " - " + r.Username
	}
	pdf.SetFillColor(40, 40, 40)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 12, tr("  "+title), "", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.SetTextColor(50, 50, 50)
	pdf.CellFormat(0, 8, tr("  "+windowLabel(r.Summary.Window)), "", 1, "L", true, 0, "")
	pdf.Ln(8)

	section := func(name string) {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetTextColor(0, 0, 0)
		pdf.Cell(0, 8, name)
		pdf.Ln(7)
		pdf.SetDrawColor(200, 200, 200)
		pdf.Line(pdf.GetX(), pdf.GetY(), pdf.GetX()+190, pdf.GetY())
		pdf.Ln(3)
		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(50, 50, 50)
	}
	row := func(label, amount string) {
		pdf.CellFormat(120, 7, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(70, 7, tr(amount), "", 1, "R", false, 0, "")
	}

	s := r.Summary
	section("Totals")
	row("Income", s.IncomeTotal.String())
	row("Expenses", s.ExpenseTotal.String())
	pdf.SetFont("Arial", "B", 10)
	row("Net savings", s.NetSavings.String())
	pdf.Ln(6)

	section("Expenses by category")
	if len(s.ExpensesByCategory) == 0 {
		row("No expenses in this window", "")
	}
	for _, c := range s.ExpensesByCategory {
		row(c.Category, c.Amount.String())
	}

	if len(r.Budgets) > 0 {
		pdf.Ln(6)
		section("Budgets")
		for _, b := range r.Budgets {
			if b.Over {
				pdf.SetTextColor(192, 0, 0)
			}
			row(fmt.Sprintf("%s (%s, limit %s)", b.Budget.Category, b.Budget.Period, b.Budget.Amount),
				fmt.Sprintf("%s spent, %s left", b.Spent, b.Remaining))
			pdf.SetTextColor(50, 50, 50)
		}
	}

	if !r.GeneratedAt.IsZero() {
		pdf.Ln(10)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.Cell(0, 5, "Generated "+r.GeneratedAt.UTC().Format(time.RFC3339))
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
