// Package postgres implements the ledger store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Connect opens a pool for url, verifies it and applies pending migrations.
func Connect(ctx context.Context, url string) (*Store, error) {
	if _, err := RunMigrations(url); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RunMigrations applies the embedded schema through golang-migrate's pgx driver.
func RunMigrations(url string) (uint, error) {
	mg := storage.Migration{FS: migrationsFS, Dir: "migrations", Name: "postgres"}
	return mg.Up(func(src source.Driver) (*migrate.Migrate, error) {
		return migrate.NewWithSourceInstance("iofs", src, migrateURL(url))
	})
}

// migrateURL rewrites a libpq URL to the scheme the pgx/v5 migrate driver registers.
func migrateURL(url string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(url, prefix) {
			return "pgx5://" + strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func pgError(err error, onUnique, onForeignKey error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		if onUnique != nil {
			return errors.Join(onUnique, err)
		}
	case foreignKeyViolation:
		if onForeignKey != nil {
			return errors.Join(onForeignKey, err)
		}
	}
	return err
}

func parseAmount(s string) (core.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("parse stored amount %q: %w", s, err)
	}
	return core.Money{Value: d}, nil
}

func windowEnd(w core.Window) *time.Time {
	if !w.HasEnd() {
		return nil
	}
	end := w.End.Time
	return &end
}

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, created_at) VALUES ($1, $2, $3)`,
		u.ID, u.Username, u.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", pgError(err, core.ErrDuplicateUsername, nil))
	}
	storage.Logger().DebugContext(ctx, "User saved to Postgres", "id", u.ID, "username", u.Username)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username, created_at FROM users ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) InsertIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if in.ID == "" {
		in.ID = storage.NewID()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO income (id, user_id, amount, source, date, created_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5, $6)`,
		in.ID, in.UserID, in.Amount.Value.String(), in.Source, in.Date.Time, in.CreatedAt)
	if err != nil {
		return core.Income{}, fmt.Errorf("insert income: %w", pgError(err, nil, core.ErrUserNotFound))
	}
	return in, nil
}

func (s *Store) DeleteIncome(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "income", id)
}

func (s *Store) ListIncome(ctx context.Context, userID string) ([]core.Income, error) {
	return s.ListIncomeInWindow(ctx, userID, core.Window{})
}

func (s *Store) ListIncomeInWindow(ctx context.Context, userID string, w core.Window) ([]core.Income, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, amount::text, source, date, created_at
		FROM income
		WHERE user_id = $1 AND date >= $2 AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date DESC, seq ASC`,
		userID, w.Start.Time, windowEnd(w))
	if err != nil {
		return nil, fmt.Errorf("query income: %w", err)
	}
	defer rows.Close()

	out := []core.Income{}
	for rows.Next() {
		var (
			in     core.Income
			amount string
			date   time.Time
		)
		if err := rows.Scan(&in.ID, &in.UserID, &amount, &in.Source, &date, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		if in.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		in.Date = core.DateOf(date)
		in.CreatedAt = in.CreatedAt.UTC()
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = storage.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO expenses (id, user_id, amount, category, date, created_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5, $6)`,
		e.ID, e.UserID, e.Amount.Value.String(), e.Category, e.Date.Time, e.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", pgError(err, nil, core.ErrUserNotFound))
	}
	return e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "expenses", id)
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return s.ListExpensesInWindow(ctx, userID, core.Window{})
}

func (s *Store) ListExpensesInWindow(ctx context.Context, userID string, w core.Window) ([]core.Expense, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, amount::text, category, date, created_at
		FROM expenses
		WHERE user_id = $1 AND date >= $2 AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date DESC, seq ASC`,
		userID, w.Start.Time, windowEnd(w))
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var (
			e      core.Expense
			amount string
			date   time.Time
		)
		if err := rows.Scan(&e.ID, &e.UserID, &amount, &e.Category, &date, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		e.Date = core.DateOf(date)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.Period == "" {
		b.Period = core.Monthly
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.ID == "" {
		b.ID = storage.NewID()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO budgets (id, user_id, category, amount, period)
		VALUES ($1, $2, $3, $4::text::numeric, $5)
		ON CONFLICT (user_id, category, period) DO UPDATE SET amount = EXCLUDED.amount
		RETURNING id`,
		b.ID, b.UserID, b.Category, b.Amount.Value.String(), string(b.Period),
	).Scan(&b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", pgError(err, nil, core.ErrUserNotFound))
	}
	return b, nil
}

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, category, amount::text, period
		FROM budgets WHERE user_id = $1
		ORDER BY category COLLATE "C", period`, userID)
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
	return out, rows.Err()
}

func (s *Store) DeleteBudget(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "budgets", id)
}

func (s *Store) deleteByID(ctx context.Context, table, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	return tag.RowsAffected() > 0, nil
}
