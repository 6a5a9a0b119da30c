// Package storagetest holds the behavioural suite every storage backend must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// Factory returns an empty store. The suite closes it when the test ends.
type Factory func(t *testing.T) storage.Store

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"CreateAndGetUser", testCreateAndGetUser},
		{"DuplicateUsername", testDuplicateUsername},
		{"GetUnknownUser", testGetUnknownUser},
		{"ListUsers", testListUsers},
		{"ConcurrentCreateUser", testConcurrentCreateUser},
		{"IncomeRequiresUser", testIncomeRequiresUser},
		{"ExpenseRequiresUser", testExpenseRequiresUser},
		{"IncomeOrdering", testIncomeOrdering},
		{"ExpenseOrdering", testExpenseOrdering},
		{"ListingIsPerUser", testListingIsPerUser},
		{"DeleteIsIdempotent", testDeleteIsIdempotent},
		{"WindowListing", testWindowListing},
		{"AmountsAreExact", testAmountsAreExact},
		{"BudgetUpsert", testBudgetUpsert},
		{"BudgetRequiresUser", testBudgetRequiresUser},
		{"RejectsInvalidRecords", testRejectsInvalidRecords},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func mustUser(t *testing.T, s storage.Store, username string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), core.User{Username: username})
	if err != nil {
		t.Fatalf("create user %q: %v", username, err)
	}
	return u
}

func mustExpense(t *testing.T, s storage.Store, userID, category, amount string, d core.Date) core.Expense {
	t.Helper()
	e, err := s.InsertExpense(context.Background(), core.Expense{
		UserID: userID, Category: category, Amount: core.MustMoney(amount), Date: d,
	})
	if err != nil {
		t.Fatalf("insert expense: %v", err)
	}
	return e
}

func mustIncome(t *testing.T, s storage.Store, userID, source, amount string, d core.Date) core.Income {
	t.Helper()
	in, err := s.InsertIncome(context.Background(), core.Income{
		UserID: userID, Source: source, Amount: core.MustMoney(amount), Date: d,
	})
	if err != nil {
		t.Fatalf("insert income: %v", err)
	}
	return in
}

func testCreateAndGetUser(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be assigned, got %+v", u)
	}
	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ID != u.ID || got.Username != "alice" {
		t.Fatalf("unexpected user %+v", got)
	}
}

func testDuplicateUsername(t *testing.T, s storage.Store) {
	mustUser(t, s, "bob")
	_, err := s.CreateUser(context.Background(), core.User{Username: "bob"})
	if !errors.Is(err, core.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user after duplicate, got %d", len(users))
	}
}

func testGetUnknownUser(t *testing.T, s storage.Store) {
	_, err := s.GetUser(context.Background(), "does-not-exist")
	if !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func testListUsers(t *testing.T, s storage.Store) {
	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", users)
	}
	mustUser(t, s, "first")
	mustUser(t, s, "second")
	users, err = s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0].Username != "first" || users[1].Username != "second" {
		t.Fatalf("expected creation order, got %+v", users)
	}
}

func testConcurrentCreateUser(t *testing.T, s storage.Store) {
	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.CreateUser(context.Background(), core.User{Username: "racer"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, core.ErrDuplicateUsername):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if succeeded != 1 || conflicts != workers-1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", succeeded, conflicts)
	}
}

func testIncomeRequiresUser(t *testing.T, s storage.Store) {
	_, err := s.InsertIncome(context.Background(), core.Income{
		UserID: "ghost", Source: "salary", Amount: core.MustMoney("1"), Date: core.NewDate(2025, 1, 1),
	})
	if !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func testExpenseRequiresUser(t *testing.T, s storage.Store) {
	_, err := s.InsertExpense(context.Background(), core.Expense{
		UserID: "ghost", Category: "food", Amount: core.MustMoney("1"), Date: core.NewDate(2025, 1, 1),
	})
	if !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func testIncomeOrdering(t *testing.T, s storage.Store) {
	u := mustUser(t, s, "carol")
	a := mustIncome(t, s, u.ID, "a", "1", core.NewDate(2025, 1, 10))
	b := mustIncome(t, s, u.ID, "b", "1", core.NewDate(2025, 3, 1))
	c := mustIncome(t, s, u.ID, "c", "1", core.NewDate(2025, 1, 10))

	got, err := s.ListIncome(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("list income: %v", err)
	}
	want := []string{b.ID, a.ID, c.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s (%s), got %s", i, id, sourceOf(id, a, b, c), got[i].Source)
		}
	}
}

func sourceOf(id string, records ...core.Income) string {
	for _, r := range records {
		if r.ID == id {
			return r.Source
		}
	}
	return "?"
}

func testExpenseOrdering(t *testing.T, s storage.Store) {
	u := mustUser(t, s, "dave")
	var inserted []core.Expense
	for i, d := range []core.Date{
		core.NewDate(2025, 2, 1),
		core.NewDate(2025, 2, 3),
		core.NewDate(2025, 2, 1),
		core.NewDate(2025, 2, 3),
	} {
		inserted = append(inserted, mustExpense(t, s, u.ID, fmt.Sprintf("c%d", i), "1", d))
	}

	got, err := s.ListExpenses(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	want := []string{inserted[1].ID, inserted[3].ID, inserted[0].ID, inserted[2].ID}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected category %s, got %s", i, inserted[indexOf(inserted, id)].Category, got[i].Category)
		}
	}
}

func indexOf(records []core.Expense, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func testListingIsPerUser(t *testing.T, s storage.Store) {
	a := mustUser(t, s, "erin")
	b := mustUser(t, s, "frank")
	mustExpense(t, s, a.ID, "food", "5", core.NewDate(2025, 1, 1))
	mustIncome(t, s, b.ID, "salary", "5", core.NewDate(2025, 1, 1))

	exps, err := s.ListExpenses(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if exps == nil || len(exps) != 0 {
		t.Fatalf("expected empty non-nil list for other user, got %#v", exps)
	}
	ins, err := s.ListIncome(context.Background(), "unknown-user")
	if err != nil {
		t.Fatalf("list income for unknown user: %v", err)
	}
	if len(ins) != 0 {
		t.Fatalf("expected no income for unknown user, got %d", len(ins))
	}
}

func testDeleteIsIdempotent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "gina")
	e := mustExpense(t, s, u.ID, "food", "5", core.NewDate(2025, 1, 1))
	in := mustIncome(t, s, u.ID, "salary", "5", core.NewDate(2025, 1, 1))

	for i, want := range []bool{true, false} {
		removed, err := s.DeleteExpense(ctx, e.ID)
		if err != nil || removed != want {
			t.Fatalf("expense delete %d: removed=%v err=%v, want %v", i, removed, err, want)
		}
		removed, err = s.DeleteIncome(ctx, in.ID)
		if err != nil || removed != want {
			t.Fatalf("income delete %d: removed=%v err=%v, want %v", i, removed, err, want)
		}
	}
	if removed, err := s.DeleteExpense(ctx, "never-existed"); err != nil || removed {
		t.Fatalf("deleting unknown id: removed=%v err=%v", removed, err)
	}

	exps, _ := s.ListExpenses(ctx, u.ID)
	ins, _ := s.ListIncome(ctx, u.ID)
	if len(exps) != 0 || len(ins) != 0 {
		t.Fatalf("expected records to be gone, got %d expenses %d income", len(exps), len(ins))
	}
}

func testWindowListing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "hank")
	mustExpense(t, s, u.ID, "a", "1", core.NewDate(2025, 1, 31))
	mustExpense(t, s, u.ID, "b", "2", core.NewDate(2025, 2, 1))
	mustExpense(t, s, u.ID, "c", "4", core.NewDate(2025, 2, 28))
	mustExpense(t, s, u.ID, "d", "8", core.NewDate(2025, 3, 1))
	mustIncome(t, s, u.ID, "x", "1", core.NewDate(2025, 2, 14))
	mustIncome(t, s, u.ID, "y", "1", core.NewDate(2026, 1, 1))

	closed := core.Window{Start: core.NewDate(2025, 2, 1), End: core.NewDate(2025, 2, 28)}
	exps, err := s.ListExpensesInWindow(ctx, u.ID, closed)
	if err != nil {
		t.Fatalf("list expenses in window: %v", err)
	}
	if len(exps) != 2 || exps[0].Category != "c" || exps[1].Category != "b" {
		t.Fatalf("unexpected window result %+v", exps)
	}

	open := core.Window{Start: core.NewDate(2025, 2, 1)}
	ins, err := s.ListIncomeInWindow(ctx, u.ID, open)
	if err != nil {
		t.Fatalf("list income in window: %v", err)
	}
	if len(ins) != 2 {
		t.Fatalf("open window should include future records, got %d", len(ins))
	}
}

func testAmountsAreExact(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "ivy")
	for _, amt := range []string{"0.1", "0.2", "1.005", "123456789.99"} {
		mustExpense(t, s, u.ID, amt, amt, core.NewDate(2025, 1, 1))
	}
	exps, err := s.ListExpenses(ctx, u.ID)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	for _, e := range exps {
		if !e.Amount.Equal(core.MustMoney(e.Category)) {
			t.Fatalf("amount %s came back as %s", e.Category, e.Amount)
		}
	}
	total := core.Zero
	for _, e := range exps {
		if e.Category == "0.1" || e.Category == "0.2" {
			total = total.Add(e.Amount)
		}
	}
	if !total.Equal(core.MustMoney("0.3")) {
		t.Fatalf("expected 0.3, got %s", total)
	}
}

func testBudgetUpsert(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "jack")

	first, err := s.UpsertBudget(ctx, core.Budget{UserID: u.ID, Category: "food", Amount: core.MustMoney("100"), Period: core.Monthly})
	if err != nil {
		t.Fatalf("upsert budget: %v", err)
	}
	second, err := s.UpsertBudget(ctx, core.Budget{UserID: u.ID, Category: "food", Amount: core.MustMoney("250.50"), Period: core.Monthly})
	if err != nil {
		t.Fatalf("upsert budget again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert should keep id %s, got %s", first.ID, second.ID)
	}
	if _, err := s.UpsertBudget(ctx, core.Budget{UserID: u.ID, Category: "food", Amount: core.MustMoney("20"), Period: core.Weekly}); err != nil {
		t.Fatalf("upsert weekly budget: %v", err)
	}

	budgets, err := s.ListBudgets(ctx, u.ID)
	if err != nil {
		t.Fatalf("list budgets: %v", err)
	}
	if len(budgets) != 2 {
		t.Fatalf("expected 2 budgets, got %+v", budgets)
	}
	if budgets[0].Period != core.Monthly || budgets[0].Amount.String() != "250.50" {
		t.Fatalf("unexpected first budget %+v", budgets[0])
	}

	removed, err := s.DeleteBudget(ctx, first.ID)
	if err != nil || !removed {
		t.Fatalf("delete budget: removed=%v err=%v", removed, err)
	}
	removed, err = s.DeleteBudget(ctx, first.ID)
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
}

func testBudgetRequiresUser(t *testing.T, s storage.Store) {
	_, err := s.UpsertBudget(context.Background(), core.Budget{
		UserID: "ghost", Category: "food", Amount: core.MustMoney("1"), Period: core.Monthly,
	})
	if !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func testRejectsInvalidRecords(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "kate")
	_, err := s.InsertExpense(ctx, core.Expense{UserID: u.ID, Category: "food", Amount: core.MustMoney("0"), Date: core.NewDate(2025, 1, 1)})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err = s.CreateUser(ctx, core.User{Username: "  "})
	if !errors.Is(err, core.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	exps, _ := s.ListExpenses(ctx, u.ID)
	if len(exps) != 0 {
		t.Fatalf("invalid record must not be stored")
	}
}
