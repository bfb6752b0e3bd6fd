// Package mysql persists tasks, tokens and notifications in MySQL.
package mysql

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/adjutant-go/adjutant/internal/sqlstore"
	"github.com/adjutant-go/adjutant/store"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

// DSN formats the connection string used for regular queries.
func DSN(host string, port int, user, password, database string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&interpolateParams=true", user, password, host, port, database)
}

func NewMysqlStore(host string, port int, user, password, database string, opts ...option) *mysqlStore {
	options := &options{
		Options:         store.ApplyOptions(),
		ApplyMigrations: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	dsn := DSN(host, port, user, password, database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}

	if options.MySQLOptions != nil {
		options.MySQLOptions(db)
	}

	s := &mysqlStore{
		Store:   sqlstore.New(db, "mysql", isDuplicate, options.Options),
		dsn:     dsn,
		options: options,
	}

	if options.ApplyMigrations {
		if err := s.Migrate(); err != nil {
			panic(err)
		}
	}

	return s
}

type mysqlStore struct {
	*sqlstore.Store

	dsn     string
	options *options
}

// Migrate applies any pending database migrations. Migrations need a
// separate connection that allows multiple statements per query.
func (s *mysqlStore) Migrate() error {
	schemaDsn := s.dsn + "&multiStatements=true"
	db, err := sql.Open("mysql", schemaDsn)
	if err != nil {
		return fmt.Errorf("opening schema database: %w", err)
	}

	dbi, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "mysql", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("closing schema database: %w", err)
	}

	return nil
}

// ER_DUP_ENTRY
const errDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var mErr *mysqldriver.MySQLError
	return errors.As(err, &mErr) && mErr.Number == errDuplicateEntry
}
