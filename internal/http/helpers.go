package http

import (
	"strings"
	"time"

	"ledger/internal/core"
)

// JSON shapes of the API. Money travels as decimal text and dates as
// YYYY-MM-DD so that no precision is lost on the way out.
type (
	userJSON struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		CreatedAt string `json:"created_at"`
	}

	incomeJSON struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
		Amount string `json:"amount"`
		Source string `json:"source"`
		Date   string `json:"date"`
	}

	expenseJSON struct {
		ID       string `json:"id"`
		UserID   string `json:"user_id"`
		Amount   string `json:"amount"`
		Category string `json:"category"`
		Date     string `json:"date"`
	}

	budgetJSON struct {
		ID       string `json:"id"`
		UserID   string `json:"user_id"`
		Category string `json:"category"`
		Amount   string `json:"amount"`
		Period   string `json:"period"`
	}

	categoryAmountJSON struct {
		Category string `json:"category"`
		Amount   string `json:"amount"`
	}

	summaryJSON struct {
		UserID             string               `json:"user_id"`
		WindowStart        string               `json:"window_start"`
		WindowEnd          string               `json:"window_end,omitempty"`
		IncomeTotal        string               `json:"income_total"`
		ExpenseTotal       string               `json:"expense_total"`
		NetSavings         string               `json:"net_savings"`
		ExpensesByCategory []categoryAmountJSON `json:"expenses_by_category"`
	}

	budgetStatusJSON struct {
		BudgetID    string `json:"budget_id"`
		Category    string `json:"category"`
		Period      string `json:"period"`
		Limit       string `json:"limit"`
		Spent       string `json:"spent"`
		Remaining   string `json:"remaining"`
		OverBudget  bool   `json:"over_budget"`
		WindowStart string `json:"window_start"`
	}
)

func toUserJSON(u core.User) userJSON {
	return userJSON{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339)}
}

func toIncomeJSON(in core.Income) incomeJSON {
	return incomeJSON{ID: in.ID, UserID: in.UserID, Amount: in.Amount.String(), Source: in.Source, Date: in.Date.String()}
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{ID: e.ID, UserID: e.UserID, Amount: e.Amount.String(), Category: e.Category, Date: e.Date.String()}
}

func toBudgetJSON(b core.Budget) budgetJSON {
	return budgetJSON{ID: b.ID, UserID: b.UserID, Category: b.Category, Amount: b.Amount.String(), Period: string(b.Period)}
}

func toSummaryJSON(userID string, s core.Summary) summaryJSON {
	out := summaryJSON{
		UserID:             userID,
		WindowStart:        s.Window.Start.String(),
		IncomeTotal:        s.IncomeTotal.String(),
		ExpenseTotal:       s.ExpenseTotal.String(),
		NetSavings:         s.NetSavings.String(),
		ExpensesByCategory: make([]categoryAmountJSON, 0, len(s.ExpensesByCategory)),
	}
	if s.Window.HasEnd() {
		out.WindowEnd = s.Window.End.String()
	}
	for _, c := range s.ExpensesByCategory {
		out.ExpensesByCategory = append(out.ExpensesByCategory, categoryAmountJSON{Category: c.Category, Amount: c.Amount.String()})
	}
	return out
}

func toBudgetStatusJSON(st core.BudgetStatus) budgetStatusJSON {
	return budgetStatusJSON{
		BudgetID:    st.Budget.ID,
		Category:    st.Budget.Category,
		Period:      string(st.Budget.Period),
		Limit:       st.Budget.Amount.String(),
		Spent:       st.Spent.String(),
		Remaining:   st.Remaining.String(),
		OverBudget:  st.Over,
		WindowStart: st.Window.Start.String(),
	}
}

// formatCurrency renders m as dollars with thousands separators and two
// decimals, e.g. "$1,234.50" or "-$12.00".
func formatCurrency(m core.Money) string {
	v := m.Value.Round(2)
	neg := v.IsNegative()
	if neg {
		v = v.Neg()
	}
	s := v.StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	// Remove control characters except tab, newline, carriage return
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
