package storage_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"ledger/internal/core"
	"ledger/internal/storage"
	"ledger/internal/storage/storagetest"
)

func newSQLite(t *testing.T) storage.Store {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite repository: %v", err)
	}
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	storagetest.Run(t, newSQLite)
}

func TestSQLiteRepositoryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	u, err := repo.CreateUser(ctx, core.User{Username: "persist"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := repo.InsertExpense(ctx, core.Expense{
		UserID: u.ID, Category: "rent", Amount: core.MustMoney("950.25"), Date: core.NewDate(2025, 4, 1),
	}); err != nil {
		t.Fatalf("insert expense: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening reruns migrations, which must be a no-op.
	repo, err = storage.NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()

	exps, err := repo.ListExpenses(ctx, u.ID)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(exps) != 1 || exps[0].Amount.String() != "950.25" || exps[0].Date != core.NewDate(2025, 4, 1) {
		t.Fatalf("unexpected expenses after reopen: %+v", exps)
	}
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	dsn := storage.DSN(filepath.Join(t.TempDir(), "ledger.db"))
	for i := 0; i < 2; i++ {
		v, err := storage.RunMigrations(dsn)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if v != 1 {
			t.Fatalf("run %d: schema version = %d, want 1", i, v)
		}
	}
}

func TestStoreLogsCarryStorageComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	repo := newSQLite(t)
	if _, err := repo.CreateUser(context.Background(), core.User{Username: "logged"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "User saved to SQLite") || !strings.Contains(out, "component=storage") {
		t.Fatalf("unexpected store log output %q", out)
	}
}
