// Package store is the persistent index: schema, migrations, and all
// reads/writes behind a single logical mutex, including FTS5
// external-content bookkeeping and vec0 vector-table lifecycle.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/blackwell-systems/commitmux/internal/logging"
)

// registerVecExtension loads the sqlite-vec extension into every
// connection the process opens from here on. It must run exactly
// once, and before the first call to sql.Open("sqlite3", ...) —
// go-sqlite3's auto-extension hook only affects connections opened
// after registration.
var registerVecExtension = sync.OnceFunc(func() {
	sqlite_vec.Auto()
})

// DB wraps a SQLite connection pool with the CommitMux schema and a
// single-writer transaction helper.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
}

// Open opens (creating if absent) the on-disk database at path,
// applies pragmas, and runs schema init or migrations.
func Open(path string, logger *logging.Logger) (*DB, error) {
	registerVecExtension()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	existed := fileExists(path)

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY from the pool
	// racing itself; WithTx serializes all multi-statement writes.
	conn.SetMaxOpenConns(1)

	db, err := newDB(conn, logger, existed)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// OpenInMemory opens a private in-memory database, primarily for
// tests.
func OpenInMemory(logger *logging.Logger) (*DB, error) {
	registerVecExtension()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db, err := newDB(conn, logger, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func newDB(conn *sql.DB, logger *logging.Logger, existed bool) (*DB, error) {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if existed {
		if err := db.runMigrations(); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back (and re-panicking) otherwise. This is the only path by
// which multi-statement writes reach the database, so no caller can
// observe a partially applied upsert_commit, upsert_patch,
// upsert_commit_files, remove_repo, or store_embedding.
func (db *DB) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction", map[string]interface{}{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
