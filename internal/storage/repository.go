package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Logger is the default logger tagged with the storage component.
func Logger() *slog.Logger {
	return slog.Default().With(log.FieldComponent, log.ComponentStorage)
}

// SQLiteRepository implements Store on a single SQLite file.
type SQLiteRepository struct {
	db        *sql.DB
	writeLock sync.Mutex // the sqlite driver does not support concurrent writers
}

var _ Store = (*SQLiteRepository)(nil)

// NewID returns a fresh opaque record identifier.
func NewID() string {
	return uuid.NewString()
}

// DSN builds the connection string for dbPath with the pragmas every pooled
// connection needs.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// constraintError translates sqlite constraint failures into domain errors.
func constraintError(err error, onUnique, onForeignKey error) error {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return err
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		if onUnique != nil {
			return errors.Join(onUnique, err)
		}
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		if onForeignKey != nil {
			return errors.Join(onForeignKey, err)
		}
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseAmount(s string) (core.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("parse stored amount %q: %w", s, err)
	}
	return core.Money{Value: d}, nil
}

// windowArgs returns the bind arguments for the date window clause: start,
// then the end twice so an empty end disables the upper bound.
func windowArgs(w core.Window) []any {
	end := ""
	if w.HasEnd() {
		end = w.End.String()
	}
	return []any{w.Start.String(), end, end}
}

// CreateUser implements UserStore.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if err := core.ValidateUsername(u.Username); err != nil {
		return core.User{}, err
	}
	if u.ID == "" {
		u.ID = NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)",
		u.ID, u.Username, formatTime(u.CreatedAt),
	)
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", constraintError(err, core.ErrDuplicateUsername, nil))
	}

	Logger().DebugContext(ctx, "User saved to SQLite", "id", u.ID, "username", u.Username)
	return u, nil
}

// GetUser implements UserStore.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var (
		u         core.User
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, created_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Username, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, fmt.Errorf("query user: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.User{}, fmt.Errorf("parse user created_at: %w", err)
	}
	return u, nil
}

// ListUsers implements UserStore. Users come back in creation order.
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, username, created_at FROM users ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		var (
			u         core.User
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse user created_at: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// InsertIncome implements IncomeStore.
func (r *SQLiteRepository) InsertIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if in.ID == "" {
		in.ID = NewID()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO income (id, user_id, amount, source, date, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		in.ID, in.UserID, in.Amount.Value.String(), in.Source, in.Date.String(), formatTime(in.CreatedAt),
	)
	if err != nil {
		return core.Income{}, fmt.Errorf("insert income: %w", constraintError(err, nil, core.ErrUserNotFound))
	}

	Logger().DebugContext(ctx, "Income saved to SQLite",
		"id", in.ID,
		"user_id", in.UserID,
		"amount", in.Amount.String(),
		"date", in.Date.String())
	return in, nil
}

// DeleteIncome implements IncomeStore.
func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id string) (bool, error) {
	return r.deleteByID(ctx, "income", id)
}

// ListIncome implements IncomeStore.
func (r *SQLiteRepository) ListIncome(ctx context.Context, userID string) ([]core.Income, error) {
	return r.queryIncome(ctx,
		"SELECT id, user_id, amount, source, date, created_at FROM income WHERE user_id = ? ORDER BY date DESC, seq ASC",
		userID)
}

// ListIncomeInWindow implements IncomeStore.
func (r *SQLiteRepository) ListIncomeInWindow(ctx context.Context, userID string, w core.Window) ([]core.Income, error) {
	args := append([]any{userID}, windowArgs(w)...)
	return r.queryIncome(ctx,
		`SELECT id, user_id, amount, source, date, created_at FROM income
		 WHERE user_id = ? AND date >= ? AND (? = '' OR date <= ?)
		 ORDER BY date DESC, seq ASC`,
		args...)
}

func (r *SQLiteRepository) queryIncome(ctx context.Context, query string, args ...any) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query income: %w", err)
	}
	defer rows.Close()

	out := []core.Income{}
	for rows.Next() {
		var (
			in                      core.Income
			amount, date, createdAt string
		)
		if err := rows.Scan(&in.ID, &in.UserID, &amount, &in.Source, &date, &createdAt); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		if in.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		if in.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("parse stored income date: %w", err)
		}
		if in.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse income created_at: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate income: %w", err)
	}
	return out, nil
}

// InsertExpense implements ExpenseStore.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO expenses (id, user_id, amount, category, date, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.UserID, e.Amount.Value.String(), e.Category, e.Date.String(), formatTime(e.CreatedAt),
	)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", constraintError(err, nil, core.ErrUserNotFound))
	}

	Logger().DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"category", e.Category,
		"amount", e.Amount.String(),
		"date", e.Date.String())
	return e, nil
}

// DeleteExpense implements ExpenseStore.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) (bool, error) {
	return r.deleteByID(ctx, "expenses", id)
}

// ListExpenses implements ExpenseStore.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		"SELECT id, user_id, amount, category, date, created_at FROM expenses WHERE user_id = ? ORDER BY date DESC, seq ASC",
		userID)
}

// ListExpensesInWindow implements ExpenseStore.
func (r *SQLiteRepository) ListExpensesInWindow(ctx context.Context, userID string, w core.Window) ([]core.Expense, error) {
	args := append([]any{userID}, windowArgs(w)...)
	return r.queryExpenses(ctx,
		`SELECT id, user_id, amount, category, date, created_at FROM expenses
		 WHERE user_id = ? AND date >= ? AND (? = '' OR date <= ?)
		 ORDER BY date DESC, seq ASC`,
		args...)
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var (
			e                       core.Expense
			amount, date, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &amount, &e.Category, &date, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		if e.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("parse stored expense date: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse expense created_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// UpsertBudget implements BudgetStore.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.Period == "" {
		b.Period = core.Monthly
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.ID == "" {
		b.ID = NewID()
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO budgets (id, user_id, category, amount, period) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, category, period) DO UPDATE SET amount = excluded.amount
		 RETURNING id`,
		b.ID, b.UserID, b.Category, b.Amount.Value.String(), string(b.Period),
	).Scan(&b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", constraintError(err, nil, core.ErrUserNotFound))
	}

	Logger().DebugContext(ctx, "Budget saved to SQLite",
		"id", b.ID,
		"user_id", b.UserID,
		"category", b.Category,
		"period", b.Period)
	return b, nil
}

// ListBudgets implements BudgetStore.
func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, category, amount, period FROM budgets WHERE user_id = ? ORDER BY category, period",
		userID)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	out := []core.Budget{}
	for rows.Next() {
		var (
			b              core.Budget
			amount, period string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.Category, &amount, &period); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if b.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		b.Period = core.Period(period)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

// DeleteBudget implements BudgetStore.
func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id string) (bool, error) {
	return r.deleteByID(ctx, "budgets", id)
}

// deleteByID removes one row from table. The table name never comes from input.
func (r *SQLiteRepository) deleteByID(ctx context.Context, table, id string) (bool, error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	res, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		Logger().DebugContext(ctx, "Record deleted from SQLite", "table", table, "id", id)
	}
	return n > 0, nil
}
