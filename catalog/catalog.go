// Package catalog is the persistent metadata store of the system: users,
// knowledge bases, files, chunks, graph bookkeeping, SQL-schema metadata,
// sessions, and task records, all in a single sqlite database.
//
// The catalog is the source of truth; the ancillary indexes (vector,
// inverted, graph) live in other stores. Cascade deletes are therefore
// explicit application-level sequences driven by the callers, not
// database-level foreign-key actions.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/praxisworks/tabula/o11y"
)

// Store is the single-writer relational catalog. It admits concurrent
// readers; writers serialise on sqlite's own locking.
type Store struct {
	db     *sql.DB
	logger *o11y.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to a no-frills text logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens (creating if needed) the catalog database at path and runs the
// schema bootstrap.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("catalog: creating directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening database: %w", err)
	}
	s := &Store{db: db, logger: o11y.NewLogger()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.bootstrap(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck probes the database connection.
func (s *Store) HealthCheck(ctx context.Context) o11y.HealthResult {
	if err := s.db.PingContext(ctx); err != nil {
		return o11y.HealthResult{Status: o11y.Unhealthy, Message: err.Error()}
	}
	return o11y.HealthResult{Status: o11y.Healthy}
}

// withTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
