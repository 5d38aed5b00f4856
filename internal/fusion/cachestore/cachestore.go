// Package cachestore is the persistent tier of component H's kernel
// cache (spec.md §5 "kernel cache"): a `database/sql` table keyed by
// argument signature, backed by whichever of the teacher's SQL driver
// imports the caller configures. Grounded on internal/database.go's
// multi-driver dial pattern, reduced from a security-scanning
// connection manager to a single-table key/value store.
package cachestore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQL-backed persistent kernel cache. It satisfies
// fuse.Store without importing the fuse package, the same inversion
// internal/database.go never needed because it had no analogous
// consumer-defined interface to satisfy.
type Store struct {
	db     *sql.DB
	driver string
}

// driverNames maps the same set of dbType strings
// internal/database.go's Connect switch recognizes to the
// database/sql driver name each registers under.
var driverNames = map[string]string{
	"sqlite3":   "sqlite3",
	"sqlite":    "sqlite3",
	"mysql":     "mysql",
	"postgres":  "postgres",
	"postgresql": "postgres",
	"sqlserver": "sqlserver",
	"mssql":     "sqlserver",
}

// Open dials dbType at dsn and ensures the kernel cache table exists.
// dbType follows internal/database.go's own vocabulary (mysql,
// postgres/postgresql, sqlite3/sqlite, sqlserver/mssql).
func Open(ctx context.Context, dbType, dsn string) (*Store, error) {
	driver, ok := driverNames[strings.ToLower(dbType)]
	if !ok {
		return nil, errors.Errorf("cachestore: unsupported database type %q", dbType)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "cachestore: opening %s", dbType)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "cachestore: pinging %s", dbType)
	}

	s := &Store{db: db, driver: driver}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fusion_kernel_cache (
			signature  VARCHAR(512) PRIMARY KEY,
			source     TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return errors.Wrap(err, "cachestore: creating fusion_kernel_cache table")
	}
	return nil
}

// Get looks up the cached kernel source for signature.
func (s *Store) Get(ctx context.Context, signature string) (string, bool, error) {
	query := `SELECT source FROM fusion_kernel_cache WHERE signature = ?`
	if s.driver == "postgres" {
		query = `SELECT source FROM fusion_kernel_cache WHERE signature = $1`
	}
	var source string
	err := s.db.QueryRowContext(ctx, query, signature).Scan(&source)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "cachestore: get")
	}
	return source, true, nil
}

// Put writes through a freshly compiled kernel's source, overwriting
// any previous entry under the same signature.
func (s *Store) Put(ctx context.Context, signature, source string) error {
	_, err := s.db.ExecContext(ctx, upsertQuery(s.driver), signature, source, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "cachestore: put")
	}
	return nil
}

// upsertQuery returns the driver-appropriate upsert statement — where
// the SQL dialects diverge most (Get only differs in its placeholder
// style), mirroring internal/database.go's own per-dbType query
// switch for version/privilege probes.
func upsertQuery(driver string) string {
	switch driver {
	case "postgres":
		return `INSERT INTO fusion_kernel_cache (signature, source, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (signature) DO UPDATE SET source = EXCLUDED.source, updated_at = EXCLUDED.updated_at`
	case "sqlite3":
		return `INSERT INTO fusion_kernel_cache (signature, source, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (signature) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at`
	default: // mysql, sqlserver
		return `REPLACE INTO fusion_kernel_cache (signature, source, updated_at) VALUES (?, ?, ?)`
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Count returns how many signatures are currently cached, for the CLI
// demo's diagnostic output.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fusion_kernel_cache`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "cachestore: count")
	}
	return n, nil
}
