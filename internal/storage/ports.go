package storage

import (
	"context"

	"ledger/internal/core"
)

// Ports implemented by every backend (sqlite, postgres, memory).
type (
	UserStore interface {
		// CreateUser inserts u. A taken username yields core.ErrDuplicateUsername.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		// GetUser returns core.ErrUserNotFound for unknown ids.
		GetUser(ctx context.Context, id string) (core.User, error)
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	IncomeStore interface {
		// InsertIncome yields core.ErrUserNotFound when the owner does not exist.
		InsertIncome(ctx context.Context, in core.Income) (core.Income, error)
		// DeleteIncome reports whether a record was removed. Deleting an
		// absent id is not an error.
		DeleteIncome(ctx context.Context, id string) (bool, error)
		// ListIncome returns records newest first; ties keep insertion order.
		ListIncome(ctx context.Context, userID string) ([]core.Income, error)
		ListIncomeInWindow(ctx context.Context, userID string, w core.Window) ([]core.Income, error)
	}

	ExpenseStore interface {
		InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, id string) (bool, error)
		ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)
		ListExpensesInWindow(ctx context.Context, userID string, w core.Window) ([]core.Expense, error)
	}

	BudgetStore interface {
		// UpsertBudget creates or replaces the budget keyed by
		// (user, category, period). The id of an existing budget is kept.
		UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
		DeleteBudget(ctx context.Context, id string) (bool, error)
	}

	// Store is the full persistence surface used by the services.
	Store interface {
		UserStore
		IncomeStore
		ExpenseStore
		BudgetStore
		Close() error
	}
)
