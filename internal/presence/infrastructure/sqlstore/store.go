// Package sqlstore persists the device directory and the presence history
// on database/sql. The same queries run on Postgres (pgx) and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	presence "netpresence/internal/presence/domain"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "pgx"
	DriverSQLite   Driver = "sqlite3"
)

var (
	//go:embed schema_postgres.sql
	postgresSchema string
	//go:embed schema_sqlite.sql
	sqliteSchema string
)

// ErrUnsupportedDriver is returned for drivers other than pgx and sqlite3.
var ErrUnsupportedDriver = errors.New("sqlstore: unsupported driver")

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQL unit of work for the directory and history log.
type Store struct {
	db     *sql.DB
	driver Driver
}

// ParseDriver maps a config value to a Driver.
func ParseDriver(value string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	case "sqlite3", "sqlite":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, value)
	}
}

// Open opens and pings a database.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlstore: empty dsn")
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, ErrUnsupportedDriver
	}
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	if driver == DriverSQLite {
		if err := applyPragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{db: db, driver: driver}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the driver the store was opened with.
func (s *Store) Driver() Driver { return s.driver }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlstore: nil db")
	}
	schema := postgresSchema
	if s.driver == DriverSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}

// WithinTx runs fn in one transaction and rolls back on any error.
func (s *Store) WithinTx(ctx context.Context, fn presence.TxFunc) error {
	if s == nil || s.db == nil {
		return errors.New("sqlstore: nil db")
	}
	tx, err := s.db.BeginTx(ctx, s.txOptions())
	if err != nil {
		return err
	}
	if err := fn(ctx, NewDirectoryRepository(tx), NewHistoryRepository(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Directory returns a committed-read directory view.
func (s *Store) Directory() presence.DirectoryStore {
	return NewDirectoryRepository(s.db)
}

// History returns a committed-read history view.
func (s *Store) History() presence.HistoryLog {
	return NewHistoryRepository(s.db)
}

func (s *Store) txOptions() *sql.TxOptions {
	if s.driver == DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlstore: %s: %w", pragma, err)
		}
	}
	return nil
}
