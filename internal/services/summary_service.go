package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// UserResolver resolves a user id, failing with core.ErrUserNotFound.
type UserResolver interface {
	GetUser(ctx context.Context, id string) (core.User, error)
}

// SummaryService computes read-only aggregates over a user's ledger.
type SummaryService struct {
	store   storage.Store
	users   UserResolver
	timeout time.Duration
}

// NewSummaryService builds the engine. users is typically the LedgerService
// so that lookups share its cache; nil falls back to the store.
func NewSummaryService(store storage.Store, users UserResolver, cfg Config) *SummaryService {
	cfg = cfg.withDefaults()
	if users == nil {
		users = store
	}
	return &SummaryService{store: store, users: users, timeout: cfg.StoreTimeout}
}

// Summarize totals income and expenses for userID inside w.
func (s *SummaryService) Summarize(ctx context.Context, userID string, w core.Window) (core.Summary, error) {
	userID, err := requireUserID(userID)
	if err != nil {
		return core.Summary{}, err
	}
	if err := w.Validate(); err != nil {
		return core.Summary{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return core.Summary{}, fmt.Errorf("summarize: %w", err)
	}

	var (
		incomes  []core.Income
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomes, err = s.store.ListIncomeInWindow(gctx, userID, w)
		if err != nil {
			return fmt.Errorf("read income: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpensesInWindow(gctx, userID, w)
		if err != nil {
			return fmt.Errorf("read expenses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Summary{}, fmt.Errorf("summarize: %w", err)
	}

	return core.Summarize(w, incomes, expenses), nil
}

// CurrentMonth summarizes from the first day of now's month, open-ended.
func (s *SummaryService) CurrentMonth(ctx context.Context, userID string, now time.Time) (core.Summary, error) {
	return s.Summarize(ctx, userID, core.MonthToDate(now))
}

// BudgetStatus reports the spend against each of the user's budgets over the
// budget's current period.
func (s *SummaryService) BudgetStatus(ctx context.Context, userID string, now time.Time) ([]core.BudgetStatus, error) {
	userID, err := requireUserID(userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("budget status: %w", err)
	}
	budgets, err := s.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("budget status: %w", err)
	}
	out := make([]core.BudgetStatus, 0, len(budgets))
	if len(budgets) == 0 {
		return out, nil
	}

	// One read covering every period; core.Status trims per budget.
	widest := budgets[0].Period.Window(now)
	for _, b := range budgets[1:] {
		w := b.Period.Window(now)
		if w.Start.Before(widest.Start.Time) {
			widest.Start = w.Start
		}
		if w.End.After(widest.End.Time) {
			widest.End = w.End
		}
	}
	expenses, err := s.store.ListExpensesInWindow(ctx, userID, widest)
	if err != nil {
		return nil, fmt.Errorf("budget status: %w", err)
	}

	for _, b := range budgets {
		out = append(out, core.Status(b, b.Period.Window(now), expenses))
	}
	return out, nil
}
