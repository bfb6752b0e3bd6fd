// Package sqlite persists tasks, tokens and notifications in sqlite using
// the pure Go modernc driver.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/adjutant-go/adjutant/internal/sqlstore"
	"github.com/adjutant-go/adjutant/store"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

// NewInMemoryStore returns a store backed by a private in-memory database.
// Each call gets its own database.
func NewInMemoryStore(opts ...option) *sqliteStore {
	s := newSqliteStore("file::memory:", opts...)

	// A second connection would open a different, empty database
	s.DB().SetMaxOpenConns(1)

	if s.options.ApplyMigrations {
		if err := s.Migrate(); err != nil {
			panic(err)
		}
	}

	return s
}

func NewSqliteStore(path string, opts ...option) *sqliteStore {
	s := newSqliteStore(fmt.Sprintf("file:%v?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path), opts...)

	if s.options.ApplyMigrations {
		if err := s.Migrate(); err != nil {
			panic(err)
		}
	}

	return s
}

func newSqliteStore(dsn string, opts ...option) *sqliteStore {
	options := &options{
		Options:         store.ApplyOptions(),
		ApplyMigrations: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	return &sqliteStore{
		Store:   sqlstore.New(db, "sqlite", isDuplicate, options.Options),
		options: options,
	}
}

type sqliteStore struct {
	*sqlstore.Store

	options *options
}

// Migrate applies any pending database migrations.
func (s *sqliteStore) Migrate() error {
	dbi, err := sqlite.WithInstance(s.DB(), &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

func isDuplicate(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
