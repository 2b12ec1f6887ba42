package store

import (
	"database/sql"
	"strings"
)

const currentSchemaVersion = 1

// schemaDDL holds the idempotent table/index definitions applied on
// every open. Statements use IF NOT EXISTS so re-running them against
// an already-initialized database is a no-op.
var schemaDDL = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA foreign_keys=ON`,

	`CREATE TABLE IF NOT EXISTS repos (
		repo_id        INTEGER PRIMARY KEY AUTOINCREMENT,
		name           TEXT NOT NULL UNIQUE,
		local_path     TEXT NOT NULL,
		remote_url     TEXT,
		default_branch TEXT,
		fork_of        TEXT,
		author_filter  TEXT,
		exclude_prefixes TEXT NOT NULL DEFAULT '[]',
		embed_enabled  INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS commits (
		repo_id         INTEGER NOT NULL,
		sha             TEXT NOT NULL,
		author_name     TEXT,
		author_email    TEXT,
		committer_name  TEXT,
		committer_email TEXT,
		author_time     INTEGER,
		commit_time     INTEGER,
		subject         TEXT,
		body            TEXT,
		parent_count    INTEGER,
		patch_preview   TEXT,
		PRIMARY KEY (repo_id, sha)
	)`,

	`CREATE TABLE IF NOT EXISTS commit_files (
		repo_id  INTEGER NOT NULL,
		sha      TEXT NOT NULL,
		path     TEXT NOT NULL,
		status   TEXT,
		old_path TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commit_files_repo_sha ON commit_files (repo_id, sha)`,
	`CREATE INDEX IF NOT EXISTS idx_commit_files_path ON commit_files (path)`,

	`CREATE TABLE IF NOT EXISTS commit_patches (
		repo_id    INTEGER NOT NULL,
		sha        TEXT NOT NULL,
		patch_blob BLOB,
		PRIMARY KEY (repo_id, sha)
	)`,

	`CREATE TABLE IF NOT EXISTS ingest_state (
		repo_id         INTEGER PRIMARY KEY,
		last_synced_at  INTEGER,
		last_synced_sha TEXT,
		last_error      TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS config (
		key   TEXT PRIMARY KEY,
		value TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS commit_embed_map (
		embed_id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id  INTEGER NOT NULL,
		sha      TEXT NOT NULL,
		UNIQUE (repo_id, sha)
	)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS commits_fts
		USING fts5(subject, body, patch_preview, content='commits', content_rowid='rowid')`,
}

// embeddingDim is the fixed width of commit embedding vectors. The
// vec0 table's column type is baked in at creation time, so it is
// declared separately from schemaDDL rather than templated in.
const embeddingDim = 768

// vecTableDDL creates the vec0 virtual table holding commit
// embeddings plus denormalized display columns. vec0 marks auxiliary
// (non-indexed) columns with a leading '+'.
const vecTableDDL = `CREATE VIRTUAL TABLE IF NOT EXISTS commit_embeddings USING vec0(
	embed_id INTEGER PRIMARY KEY,
	embedding float[768],
	+sha TEXT,
	+subject TEXT,
	+repo_name TEXT,
	+author_name TEXT,
	+author_time INTEGER,
	+patch_preview TEXT
)`

// repoMigrations is an ordered list of ALTER TABLE statements applied
// after the base DDL, one statement per entry. "duplicate column
// name" failures are swallowed so init stays idempotent on databases
// that already carry the column; every other failure aborts open.
//
// There are no migrations yet beyond the v1 schema above — this slice
// exists so future ALTER TABLE ADD COLUMN changes have a home without
// disturbing schemaDDL.
var repoMigrations = []string{}

func (db *DB) initSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		for _, stmt := range schemaDDL {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(vecTableDDL); err != nil {
			return err
		}
		return nil
	})
}

func (db *DB) runMigrations() error {
	for _, stmt := range repoMigrations {
		if _, err := db.conn.Exec(stmt); err != nil {
			if isDuplicateColumnError(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
