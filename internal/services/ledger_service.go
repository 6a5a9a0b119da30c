package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/storage"
)

// EventPublisher delivers ledger events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Config tunes the services. Zero values pick the defaults.
type Config struct {
	StoreTimeout  time.Duration
	UserCacheSize int
	UserCacheTTL  time.Duration
}

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultUserCacheSize = 256
	defaultUserCacheTTL  = 10 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	if c.UserCacheSize <= 0 {
		c.UserCacheSize = defaultUserCacheSize
	}
	if c.UserCacheTTL <= 0 {
		c.UserCacheTTL = defaultUserCacheTTL
	}
	return c
}

// LedgerService validates input and applies it to the store. After every
// committed write it publishes a ledger event when a publisher is configured.
type LedgerService struct {
	store     storage.Store
	publisher EventPublisher
	users     *cache.LRUCache[core.User]
	timeout   time.Duration
}

func NewLedgerService(store storage.Store, publisher EventPublisher, cfg Config) *LedgerService {
	cfg = cfg.withDefaults()
	return &LedgerService{
		store:     store,
		publisher: publisher,
		users:     cache.NewLRUCache[core.User](cfg.UserCacheSize, cfg.UserCacheTTL),
		timeout:   cfg.StoreTimeout,
	}
}

// UserCache exposes the user cache so the caller can register it for sweeping.
func (s *LedgerService) UserCache() *cache.LRUCache[core.User] {
	return s.users
}

func (s *LedgerService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func requireUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user_id", core.ErrMissingField)
	}
	return userID, nil
}

func (s *LedgerService) CreateUser(ctx context.Context, username string) (core.User, error) {
	username = strings.TrimSpace(username)
	if err := core.ValidateUsername(username); err != nil {
		return core.User{}, err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	u, err := s.store.CreateUser(sctx, core.User{Username: username})
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	s.users.Set(u.ID, u)

	slog.InfoContext(ctx, "User created", "user_id", u.ID, "username", u.Username)
	ev := amqp.NewLedgerEvent(amqp.UserCreated, u.ID)
	ev.UserID = u.ID
	ev.Label = u.Username
	s.publish(ctx, ev)
	return u, nil
}

// GetUser resolves a user, serving repeat lookups from the cache. Users are
// immutable so cached entries never go stale.
func (s *LedgerService) GetUser(ctx context.Context, id string) (core.User, error) {
	id, err := requireUserID(id)
	if err != nil {
		return core.User{}, err
	}
	return s.users.GetOrLoad(id, func() (core.User, error) {
		sctx, cancel := s.storeContext(ctx)
		defer cancel()
		u, err := s.store.GetUser(sctx, id)
		if err != nil {
			return core.User{}, fmt.Errorf("get user: %w", err)
		}
		return u, nil
	})
}

func (s *LedgerService) ListUsers(ctx context.Context) ([]core.User, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	users, err := s.store.ListUsers(sctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// AddIncome parses and records an income entry.
func (s *LedgerService) AddIncome(ctx context.Context, userID, amountText, source, dateText string) (core.Income, error) {
	userID, err := requireUserID(userID)
	if err != nil {
		return core.Income{}, err
	}
	amount, err := core.ParseMoney(amountText)
	if err != nil {
		return core.Income{}, err
	}
	date, err := core.ParseDate(dateText)
	if err != nil {
		return core.Income{}, err
	}
	in := core.Income{UserID: userID, Amount: amount, Source: strings.TrimSpace(source), Date: date}
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	in, err = s.store.InsertIncome(sctx, in)
	if err != nil {
		return core.Income{}, fmt.Errorf("add income: %w", err)
	}

	slog.InfoContext(ctx, "Income recorded",
		"id", in.ID,
		"user_id", in.UserID,
		"amount", in.Amount.String(),
		"date", in.Date.String())
	ev := amqp.NewLedgerEvent(amqp.IncomeCreated, in.ID)
	ev.UserID = in.UserID
	ev.Amount = in.Amount.Value.String()
	ev.Label = in.Source
	ev.Date = in.Date.String()
	s.publish(ctx, ev)
	return in, nil
}

// AddExpense parses and records an expense entry.
func (s *LedgerService) AddExpense(ctx context.Context, userID, amountText, category, dateText string) (core.Expense, error) {
	userID, err := requireUserID(userID)
	if err != nil {
		return core.Expense{}, err
	}
	amount, err := core.ParseMoney(amountText)
	if err != nil {
		return core.Expense{}, err
	}
	date, err := core.ParseDate(dateText)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{UserID: userID, Amount: amount, Category: strings.TrimSpace(category), Date: date}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	e, err = s.store.InsertExpense(sctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense recorded",
		"id", e.ID,
		"user_id", e.UserID,
		"category", e.Category,
		"amount", e.Amount.String(),
		"date", e.Date.String())
	ev := amqp.NewLedgerEvent(amqp.ExpenseCreated, e.ID)
	ev.UserID = e.UserID
	ev.Amount = e.Amount.Value.String()
	ev.Label = e.Category
	ev.Date = e.Date.String()
	s.publish(ctx, ev)
	return e, nil
}

// RemoveIncome deletes an income entry. Unknown ids are not an error.
func (s *LedgerService) RemoveIncome(ctx context.Context, id string) error {
	return s.remove(ctx, "income", id, amqp.IncomeDeleted, s.store.DeleteIncome)
}

// RemoveExpense deletes an expense entry. Unknown ids are not an error.
func (s *LedgerService) RemoveExpense(ctx context.Context, id string) error {
	return s.remove(ctx, "expense", id, amqp.ExpenseDeleted, s.store.DeleteExpense)
}

// RemoveBudget deletes a budget. Unknown ids are not an error.
func (s *LedgerService) RemoveBudget(ctx context.Context, id string) error {
	return s.remove(ctx, "budget", id, amqp.BudgetDeleted, s.store.DeleteBudget)
}

func (s *LedgerService) remove(ctx context.Context, noun, id string, evType amqp.EventType,
	del func(context.Context, string) (bool, error)) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: %s_id", core.ErrMissingField, noun)
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	removed, err := del(sctx, id)
	if err != nil {
		return fmt.Errorf("remove %s: %w", noun, err)
	}
	if !removed {
		slog.DebugContext(ctx, "Nothing to remove", "kind", noun, "id", id)
		return nil
	}

	slog.InfoContext(ctx, "Record removed", "kind", noun, "id", id)
	s.publish(ctx, amqp.NewLedgerEvent(evType, id))
	return nil
}

// ListIncomeFor returns a user's income newest first. An unknown user has no income.
func (s *LedgerService) ListIncomeFor(ctx context.Context, userID string) ([]core.Income, error) {
	userID, err := requireUserID(userID)
	if err != nil {
		return nil, err
	}
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	out, err := s.store.ListIncome(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list income: %w", err)
	}
	return out, nil
}

// ListExpenseFor returns a user's expenses newest first.
func (s *LedgerService) ListExpenseFor(ctx context.Context, userID string) ([]core.Expense, error) {
	userID, err := requireUserID(userID)
	if err != nil {
		return nil, err
	}
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	out, err := s.store.ListExpenses(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

// SetBudget creates or replaces the budget for (user, category, period).
func (s *LedgerService) SetBudget(ctx context.Context, userID, category, amountText, periodText string) (core.Budget, error) {
	userID, err := requireUserID(userID)
	if err != nil {
		return core.Budget{}, err
	}
	amount, err := core.ParseMoney(amountText)
	if err != nil {
		return core.Budget{}, err
	}
	period, err := core.ParsePeriod(periodText)
	if err != nil {
		return core.Budget{}, err
	}
	b := core.Budget{UserID: userID, Category: strings.TrimSpace(category), Amount: amount, Period: period}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	b, err = s.store.UpsertBudget(sctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("set budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget set",
		"id", b.ID,
		"user_id", b.UserID,
		"category", b.Category,
		"period", b.Period,
		"amount", b.Amount.String())
	ev := amqp.NewLedgerEvent(amqp.BudgetUpserted, b.ID)
	ev.UserID = b.UserID
	ev.Amount = b.Amount.Value.String()
	ev.Label = b.Category
	ev.Period = string(b.Period)
	s.publish(ctx, ev)
	return b, nil
}

func (s *LedgerService) ListBudgetsFor(ctx context.Context, userID string) ([]core.Budget, error) {
	userID, err := requireUserID(userID)
	if err != nil {
		return nil, err
	}
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	out, err := s.store.ListBudgets(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return out, nil
}

// publish never fails the caller: the write has already committed.
func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping ledger event", "type", ev.Type)
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			"record_id", ev.RecordID,
			"error", err)
	}
}
