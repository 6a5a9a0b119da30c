package core

import (
	"fmt"
	"sort"
	"time"
)

// Window is a closed date range used to bound aggregation. A zero End means
// the window is open-ended.
type Window struct {
	Start Date
	End   Date
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category string
	Amount   Money
}

// Summary is the point-in-time aggregate of a user's ledger over a window.
type Summary struct {
	Window             Window
	IncomeTotal        Money
	ExpenseTotal       Money
	NetSavings         Money
	ExpensesByCategory []CategoryAmount
}

// BudgetStatus compares one budget with the spend of its current period.
type BudgetStatus struct {
	Budget    Budget
	Window    Window
	Spent     Money
	Remaining Money
	Over      bool
}

// MonthToDate is the default aggregation window: from the first day of the
// calendar month containing now, open-ended.
func MonthToDate(now time.Time) Window {
	today := DateOf(now)
	return Window{Start: NewDate(today.Year(), int(today.Month()), 1)}
}

func (w Window) HasEnd() bool {
	return !w.End.IsZero()
}

func (w Window) Validate() error {
	if err := w.Start.Validate(); err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	if w.HasEnd() && w.End.Time.Before(w.Start.Time) {
		return fmt.Errorf("%w: window end %s is before start %s", ErrInvalidDate, w.End, w.Start)
	}
	return nil
}

// Contains reports whether d falls inside the window, bounds included.
func (w Window) Contains(d Date) bool {
	if d.Time.Before(w.Start.Time) {
		return false
	}
	return !w.HasEnd() || !d.Time.After(w.End.Time)
}

// Summarize reduces income and expense records to a Summary. Records outside
// the window are ignored, so callers may pass a superset. Categories are
// returned in lexical order.
func Summarize(w Window, incomes []Income, expenses []Expense) Summary {
	s := Summary{
		Window:             w,
		IncomeTotal:        Zero,
		ExpenseTotal:       Zero,
		ExpensesByCategory: []CategoryAmount{},
	}

	for _, in := range incomes {
		if w.Contains(in.Date) {
			s.IncomeTotal = s.IncomeTotal.Add(in.Amount)
		}
	}

	byCategory := make(map[string]Money)
	for _, e := range expenses {
		if !w.Contains(e.Date) {
			continue
		}
		s.ExpenseTotal = s.ExpenseTotal.Add(e.Amount)
		total, ok := byCategory[e.Category]
		if !ok {
			total = Zero
		}
		byCategory[e.Category] = total.Add(e.Amount)
	}

	for category, total := range byCategory {
		s.ExpensesByCategory = append(s.ExpensesByCategory, CategoryAmount{Category: category, Amount: total})
	}
	sort.Slice(s.ExpensesByCategory, func(i, j int) bool {
		return s.ExpensesByCategory[i].Category < s.ExpensesByCategory[j].Category
	})

	s.NetSavings = s.IncomeTotal.Sub(s.ExpenseTotal)
	return s
}

// Status computes how much of budget b has been spent by the expenses given,
// restricted to window w.
func Status(b Budget, w Window, expenses []Expense) BudgetStatus {
	spent := Zero
	for _, e := range expenses {
		if e.Category == b.Category && w.Contains(e.Date) {
			spent = spent.Add(e.Amount)
		}
	}
	return BudgetStatus{
		Budget:    b,
		Window:    w,
		Spent:     spent,
		Remaining: b.Amount.Sub(spent),
		Over:      spent.Cmp(b.Amount) > 0,
	}
}
