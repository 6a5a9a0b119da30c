package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema directory.
type Migration struct {
	FS   fs.FS
	Dir  string
	Name string
}

// Up applies every pending migration through the instance open builds and
// returns the schema version reached. A dirty schema is an error: it needs a
// manual fix before the store can be trusted.
func (mg Migration) Up(open func(source.Driver) (*migrate.Migrate, error)) (uint, error) {
	src, err := iofs.New(mg.FS, mg.Dir)
	if err != nil {
		return 0, fmt.Errorf("read %s migrations: %w", mg.Name, err)
	}
	m, err := open(src)
	if err != nil {
		src.Close()
		return 0, fmt.Errorf("open %s migrator: %w", mg.Name, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply %s migrations: %w", mg.Name, err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read %s schema version: %w", mg.Name, err)
	case dirty:
		return version, fmt.Errorf("%s schema version %d is dirty", mg.Name, version)
	}
	Logger().Debug("Schema up to date", "store", mg.Name, "version", version)
	return version, nil
}

// RunMigrations brings the SQLite schema at dsn up to date.
func RunMigrations(dsn string) (uint, error) {
	// The migrate driver closes its handle, so it gets a connection of its own.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return 0, fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	mg := Migration{FS: migrationsFS, Dir: "migrations", Name: "sqlite"}
	return mg.Up(func(src source.Driver) (*migrate.Migrate, error) {
		driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "sqlite", driver)
	})
}
