package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/storage"
)

type budgetKey struct {
	userID   string
	category string
	period   core.Period
}

// Store is a process-local Store. Records live in insertion order so that
// stable sorting yields the same tie-breaking as the SQL backends.
type Store struct {
	mu        sync.RWMutex
	users     []core.User
	userIndex map[string]int
	usernames map[string]string
	income    []core.Income
	expenses  []core.Expense
	budgets   map[budgetKey]core.Budget
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		userIndex: map[string]int{},
		usernames: map[string]string{},
		budgets:   map[budgetKey]core.Budget{},
	}
}

// NewFromFiles returns a store pre-populated with the usernames listed in
// base/seed_users.txt, one per line. A missing file yields an empty store.
func NewFromFiles(base string) *Store {
	s := New()
	for _, name := range readLines(filepath.Join(base, "seed_users.txt")) {
		_, _ = s.CreateUser(context.Background(), core.User{Username: name})
	}
	return s
}

func (s *Store) Close() error { return nil }

// CreateUser implements storage.UserStore.
func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if err := core.ValidateUsername(u.Username); err != nil {
		return core.User{}, err
	}
	if u.ID == "" {
		u.ID = storage.NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.usernames[u.Username]; taken {
		return core.User{}, core.ErrDuplicateUsername
	}
	s.usernames[u.Username] = u.ID
	s.userIndex[u.ID] = len(s.users)
	s.users = append(s.users, u)
	return u, nil
}

// GetUser implements storage.UserStore.
func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.userIndex[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return s.users[i], nil
}

// ListUsers implements storage.UserStore.
func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.User{}, s.users...), nil
}

func (s *Store) hasUser(id string) bool {
	_, ok := s.userIndex[id]
	return ok
}

// InsertIncome implements storage.IncomeStore.
func (s *Store) InsertIncome(_ context.Context, in core.Income) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if in.ID == "" {
		in.ID = storage.NewID()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasUser(in.UserID) {
		return core.Income{}, core.ErrUserNotFound
	}
	s.income = append(s.income, in)
	return in, nil
}

// DeleteIncome implements storage.IncomeStore.
func (s *Store) DeleteIncome(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, in := range s.income {
		if in.ID == id {
			s.income = append(s.income[:i], s.income[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// ListIncome implements storage.IncomeStore.
func (s *Store) ListIncome(ctx context.Context, userID string) ([]core.Income, error) {
	return s.ListIncomeInWindow(ctx, userID, core.Window{})
}

// ListIncomeInWindow implements storage.IncomeStore. A zero window matches everything.
func (s *Store) ListIncomeInWindow(_ context.Context, userID string, w core.Window) ([]core.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Income{}
	for _, in := range s.income {
		if in.UserID == userID && w.Contains(in.Date) {
			out = append(out, in)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	return out, nil
}

// InsertExpense implements storage.ExpenseStore.
func (s *Store) InsertExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = storage.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasUser(e.UserID) {
		return core.Expense{}, core.ErrUserNotFound
	}
	s.expenses = append(s.expenses, e)
	return e, nil
}

// DeleteExpense implements storage.ExpenseStore.
func (s *Store) DeleteExpense(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == id {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// ListExpenses implements storage.ExpenseStore.
func (s *Store) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return s.ListExpensesInWindow(ctx, userID, core.Window{})
}

// ListExpensesInWindow implements storage.ExpenseStore.
func (s *Store) ListExpensesInWindow(_ context.Context, userID string, w core.Window) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Expense{}
	for _, e := range s.expenses {
		if e.UserID == userID && w.Contains(e.Date) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	return out, nil
}

// UpsertBudget implements storage.BudgetStore.
func (s *Store) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if b.Period == "" {
		b.Period = core.Monthly
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasUser(b.UserID) {
		return core.Budget{}, core.ErrUserNotFound
	}
	key := budgetKey{userID: b.UserID, category: b.Category, period: b.Period}
	if existing, ok := s.budgets[key]; ok {
		b.ID = existing.ID
	} else if b.ID == "" {
		b.ID = storage.NewID()
	}
	s.budgets[key] = b
	return b, nil
}

// ListBudgets implements storage.BudgetStore.
func (s *Store) ListBudgets(_ context.Context, userID string) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Budget{}
	for key, b := range s.budgets {
		if key.userID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Period < out[j].Period
	})
	return out, nil
}

// DeleteBudget implements storage.BudgetStore.
func (s *Store) DeleteBudget(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.budgets {
		if b.ID == id {
			delete(s.budgets, key)
			return true, nil
		}
	}
	return false, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
