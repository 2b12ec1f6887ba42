package store

import (
	"bytes"
	"database/sql"
	"io"

	"github.com/klauspost/compress/zstd"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/model"
)

// previewLen is the number of characters of patch text mirrored into
// commits.patch_preview for display in search results.
const previewLen = 500

// CommitExists reports whether (repoID, sha) is already indexed, the
// fast-path check the ingester uses to skip reprocessing on a repeat
// sync.
func (db *DB) CommitExists(repoID int64, sha string) (bool, error) {
	var one int
	err := db.conn.QueryRow(`SELECT 1 FROM commits WHERE repo_id = ? AND sha = ?`, repoID, sha).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, cmerrors.Storef(err, "commit_exists %d/%s", repoID, sha)
	}
	return true, nil
}

// UpsertCommit inserts or replaces a commit row, maintaining the
// commits_fts external-content index by hand: fts5 with
// content='commits' does not auto-sync on writes through a different
// statement, so every replace first deletes the old fts row (by
// rowid, using the OLD subject/body/patch_preview — fts5 requires the
// deleted values, not the new ones) and then inserts the new one.
func (db *DB) UpsertCommit(c model.Commit) error {
	// patch_preview is reset here and repopulated by UpsertPatch.
	c.PatchPreview = ""
	return db.WithTx(func(tx *sql.Tx) error {
		return db.upsertCommitTx(tx, c)
	})
}

func (db *DB) upsertCommitTx(tx *sql.Tx, c model.Commit) error {
	var oldRowID int64
	var oldSubject, oldPreview string
	var oldBody sql.NullString
	hasOld := true
	row := tx.QueryRow(
		`SELECT rowid, subject, body, patch_preview FROM commits WHERE repo_id = ? AND sha = ?`,
		c.RepoID, c.SHA,
	)
	switch err := row.Scan(&oldRowID, &oldSubject, &oldBody, &oldPreview); err {
	case nil:
		// fall through with hasOld=true
	case sql.ErrNoRows:
		hasOld = false
	default:
		return cmerrors.Storef(err, "upsert_commit %d/%s: load old row", c.RepoID, c.SHA)
	}

	if hasOld {
		if _, err := tx.Exec(
			`INSERT INTO commits_fts(commits_fts, rowid, subject, body, patch_preview) VALUES('delete', ?, ?, ?, ?)`,
			oldRowID, oldSubject, oldBody.String, oldPreview,
		); err != nil {
			return cmerrors.Storef(err, "upsert_commit %d/%s: fts delete", c.RepoID, c.SHA)
		}
	}

	var body interface{}
	if c.Body != nil {
		body = *c.Body
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO commits
			(repo_id, sha, author_name, author_email, committer_name, committer_email,
			 author_time, commit_time, subject, body, parent_count, patch_preview)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RepoID, c.SHA, c.AuthorName, c.AuthorEmail, c.CommitterName, c.CommitterEmail,
		c.AuthorTime, c.CommitTime, c.Subject, body, c.ParentCount, c.PatchPreview,
	); err != nil {
		return cmerrors.Storef(err, "upsert_commit %d/%s: replace", c.RepoID, c.SHA)
	}

	var newRowID int64
	if err := tx.QueryRow(`SELECT rowid FROM commits WHERE repo_id = ? AND sha = ?`, c.RepoID, c.SHA).Scan(&newRowID); err != nil {
		return cmerrors.Storef(err, "upsert_commit %d/%s: read new rowid", c.RepoID, c.SHA)
	}

	bodyText := ""
	if c.Body != nil {
		bodyText = *c.Body
	}
	if _, err := tx.Exec(
		`INSERT INTO commits_fts(rowid, subject, body, patch_preview) VALUES (?, ?, ?, ?)`,
		newRowID, c.Subject, bodyText, c.PatchPreview,
	); err != nil {
		return cmerrors.Storef(err, "upsert_commit %d/%s: fts insert", c.RepoID, c.SHA)
	}
	return nil
}

// UpsertCommitFiles replaces the changed-file rows for one commit.
// files must all share the same (RepoID, SHA); an empty slice is a
// no-op (callers should still have written the commit row itself).
func (db *DB) UpsertCommitFiles(repoID int64, sha string, files []model.CommitFile) error {
	if len(files) == 0 {
		return nil
	}
	return db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM commit_files WHERE repo_id = ? AND sha = ?`, repoID, sha); err != nil {
			return cmerrors.Storef(err, "upsert_commit_files %d/%s: delete", repoID, sha)
		}
		for _, f := range files {
			if _, err := tx.Exec(
				`INSERT INTO commit_files (repo_id, sha, path, status, old_path) VALUES (?, ?, ?, ?, ?)`,
				repoID, sha, f.Path, string(f.Status), f.OldPath,
			); err != nil {
				return cmerrors.Storef(err, "upsert_commit_files %d/%s: insert %s", repoID, sha, f.Path)
			}
		}
		return nil
	})
}

// UpsertPatch compresses p.PatchBlob with zstd and replaces the
// stored patch row, then refreshes the owning commit's patch_preview
// (and, in turn, its commits_fts row) with the first previewLen
// characters of p.PatchPreview.
func (db *DB) UpsertPatch(p model.CommitPatch) error {
	compressed, err := compressPatch(p.PatchBlob)
	if err != nil {
		return cmerrors.Storef(err, "upsert_patch %d/%s: compress", p.RepoID, p.SHA)
	}

	preview := p.PatchPreview
	if runes := []rune(preview); len(runes) > previewLen {
		preview = string(runes[:previewLen])
	}

	return db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO commit_patches (repo_id, sha, patch_blob) VALUES (?, ?, ?)`,
			p.RepoID, p.SHA, compressed,
		); err != nil {
			return cmerrors.Storef(err, "upsert_patch %d/%s: replace blob", p.RepoID, p.SHA)
		}

		var c model.Commit
		var body sql.NullString
		row := tx.QueryRow(
			`SELECT repo_id, sha, author_name, author_email, committer_name, committer_email,
			        author_time, commit_time, subject, body, parent_count
			 FROM commits WHERE repo_id = ? AND sha = ?`,
			p.RepoID, p.SHA,
		)
		if err := row.Scan(
			&c.RepoID, &c.SHA, &c.AuthorName, &c.AuthorEmail, &c.CommitterName, &c.CommitterEmail,
			&c.AuthorTime, &c.CommitTime, &c.Subject, &body, &c.ParentCount,
		); err != nil {
			return cmerrors.Storef(err, "upsert_patch %d/%s: load commit for preview refresh", p.RepoID, p.SHA)
		}
		if body.Valid {
			c.Body = &body.String
		}
		c.PatchPreview = preview

		return db.upsertCommitTx(tx, c)
	})
}

func compressPatch(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressPatch(blob []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

// GetIngestState returns the sync bookkeeping row for repoID, or nil
// if the repo has never been synced.
func (db *DB) GetIngestState(repoID int64) (*model.IngestState, error) {
	var st model.IngestState
	var sha, lastErr sql.NullString
	row := db.conn.QueryRow(
		`SELECT repo_id, last_synced_at, last_synced_sha, last_error FROM ingest_state WHERE repo_id = ?`,
		repoID,
	)
	switch err := row.Scan(&st.RepoID, &st.LastSyncedAt, &sha, &lastErr); err {
	case nil:
		if sha.Valid {
			st.LastSyncedSHA = &sha.String
		}
		if lastErr.Valid {
			st.LastError = &lastErr.String
		}
		return &st, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, cmerrors.Storef(err, "get_ingest_state %d", repoID)
	}
}

// UpdateIngestState replaces the sync bookkeeping row for st.RepoID.
func (db *DB) UpdateIngestState(st model.IngestState) error {
	return db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO ingest_state (repo_id, last_synced_at, last_synced_sha, last_error)
			 VALUES (?, ?, ?, ?)`,
			st.RepoID, st.LastSyncedAt, st.LastSyncedSHA, st.LastError,
		)
		if err != nil {
			return cmerrors.Storef(err, "update_ingest_state %d", st.RepoID)
		}
		return nil
	})
}
