package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names a registered database/sql SQLite driver.
type Driver string

const (
	// DriverCGO is github.com/mattn/go-sqlite3 (default).
	DriverCGO Driver = "sqlite3"

	// DriverPure is modernc.org/sqlite, for builds without cgo.
	DriverPure Driver = "sqlite"
)

// Store is the SQLite database behind every Dataset and Record.
// Statements run inside the transaction carried by ctx when there is one
// (see Tx), otherwise directly on the pool.
type Store struct {
	db     *sql.DB
	driver Driver
}

// Option configures Open.
type Option func(*options)

type options struct {
	driver Driver
}

// WithDriver selects the SQLite driver.
func WithDriver(d Driver) Option {
	return func(o *options) {
		o.driver = d
	}
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - IMMEDIATE transactions, so a transaction holds the write lock from
//     BEGIN and two reconcilers on one database never interleave
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{driver: DriverCGO}
	for _, opt := range opts {
		opt(&o)
	}
	if o.driver != DriverCGO && o.driver != DriverPure {
		return nil, fmt.Errorf("unknown sqlite driver %q", o.driver)
	}

	db, err := sql.Open(string(o.driver), dsn(o.driver, path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// This also keeps per-connection pragmas in force for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{db: db, driver: o.driver}, nil
}

// dsn builds a URI filename. Both drivers accept _txlock; connection
// pragmas are repeated here so a reopened connection keeps them.
func dsn(d Driver, path string) string {
	params := "_txlock=immediate"
	switch d {
	case DriverPure:
		params += "&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	default:
		params += "&_foreign_keys=on&_busy_timeout=5000"
	}
	return "file:" + path + "?" + params
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - it bypasses the transaction carried by a context.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the driver the store was opened with.
func (s *Store) Driver() Driver {
	return s.driver
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
