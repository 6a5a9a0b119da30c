package backend

import (
	"context"
	"errors"
	"log/slog"

	"ledger/internal/storage"
	"ledger/internal/storage/memory"
	"ledger/internal/storage/postgres"
)

type storeOpener struct {
	check func(Config) error
	open  func(ctx context.Context, cfg Config, logger *slog.Logger) (storage.Store, error)
}

var stores = map[Type]storeOpener{
	SQLite: {
		check: func(c Config) error {
			if c.SQLitePath == "" {
				return errors.New("SQLITE_DB_PATH is required")
			}
			return nil
		},
		open: func(_ context.Context, c Config, logger *slog.Logger) (storage.Store, error) {
			repo, err := storage.NewSQLiteRepository(c.SQLitePath)
			if err != nil {
				return nil, err
			}
			logger.Info("Opened SQLite store", "db_path", c.SQLitePath)
			return repo, nil
		},
	},
	Postgres: {
		check: func(c Config) error {
			if c.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			return nil
		},
		open: func(ctx context.Context, c Config, logger *slog.Logger) (storage.Store, error) {
			store, err := postgres.Connect(ctx, c.DatabaseURL)
			if err != nil {
				return nil, err
			}
			logger.Info("Opened Postgres store")
			return store, nil
		},
	},
	Memory: {
		open: func(_ context.Context, c Config, logger *slog.Logger) (storage.Store, error) {
			dir := c.SeedDir
			if dir == "" {
				dir = "data"
			}
			logger.Info("Opened in-memory store", "seed_dir", dir)
			return memory.NewFromFiles(dir), nil
		},
	},
}
