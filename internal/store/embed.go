package store

import (
	"database/sql"
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/model"
)

// GetCommitsWithoutEmbeddings returns up to limit commits that have no
// row in commit_embed_map yet, for the embedding backfill loop, most
// recent author_time first. The selection spans every repo whose
// embed_enabled flag is set; commits of other repos are never returned.
// FilesChanged is left empty: the patch preview already carries the
// change content. An
// empty result means the backfill has reached a fixed point — callers
// must stop rather than re-querying forever.
func (db *DB) GetCommitsWithoutEmbeddings(limit int) ([]model.EmbedCommit, error) {
	rows, err := db.conn.Query(`
		SELECT c.repo_id, c.sha, c.subject, c.body, c.author_name, c.author_time, c.patch_preview, r.name
		FROM commits c
		JOIN repos r ON r.repo_id = c.repo_id
		LEFT JOIN commit_embed_map m ON m.repo_id = c.repo_id AND m.sha = c.sha
		WHERE r.embed_enabled = 1 AND m.embed_id IS NULL
		ORDER BY c.author_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, cmerrors.Storef(err, "get_commits_without_embeddings")
	}
	defer rows.Close()

	var out []model.EmbedCommit
	for rows.Next() {
		var ec model.EmbedCommit
		var body, preview sql.NullString
		if err := rows.Scan(&ec.RepoID, &ec.SHA, &ec.Subject, &body, &ec.AuthorName, &ec.AuthorTime, &preview, &ec.RepoName); err != nil {
			return nil, cmerrors.Storef(err, "get_commits_without_embeddings: scan")
		}
		if body.Valid {
			ec.Body = &body.String
		}
		if preview.Valid {
			ec.PatchPreview = &preview.String
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}

// StoreEmbedding persists a commit's embedding vector, replacing any
// prior vector for the same (repoID, sha). vec0 has no native UPSERT,
// so idempotence is delete-then-insert inside one transaction: the
// commit_embed_map row is the stable identity (repoID, sha) -> embed_id;
// the vec0 row is deleted and reinserted under that same embed_id.
func (db *DB) StoreEmbedding(ec model.EmbedCommit, vector []float32) error {
	if len(vector) != embeddingDim {
		return cmerrors.New(cmerrors.Store, "embedding vector must have 768 dimensions")
	}
	encoded, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return cmerrors.Storef(err, "store_embedding %d/%s: serialize vector", ec.RepoID, ec.SHA)
	}

	return db.WithTx(func(tx *sql.Tx) error {
		var embedID int64
		row := tx.QueryRow(`SELECT embed_id FROM commit_embed_map WHERE repo_id = ? AND sha = ?`, ec.RepoID, ec.SHA)
		switch err := row.Scan(&embedID); err {
		case nil:
			if _, err := tx.Exec(`DELETE FROM commit_embeddings WHERE embed_id = ?`, embedID); err != nil {
				return cmerrors.Storef(err, "store_embedding %d/%s: delete old vector", ec.RepoID, ec.SHA)
			}
		case sql.ErrNoRows:
			res, err := tx.Exec(`INSERT INTO commit_embed_map (repo_id, sha) VALUES (?, ?)`, ec.RepoID, ec.SHA)
			if err != nil {
				return cmerrors.Storef(err, "store_embedding %d/%s: create map row", ec.RepoID, ec.SHA)
			}
			embedID, err = res.LastInsertId()
			if err != nil {
				return cmerrors.Storef(err, "store_embedding %d/%s: read embed_id", ec.RepoID, ec.SHA)
			}
		default:
			return cmerrors.Storef(err, "store_embedding %d/%s: load map row", ec.RepoID, ec.SHA)
		}

		var preview string
		if ec.PatchPreview != nil {
			preview = *ec.PatchPreview
		}
		if _, err := tx.Exec(
			`INSERT INTO commit_embeddings (embed_id, embedding, sha, subject, repo_name, author_name, author_time, patch_preview)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			embedID, encoded, ec.SHA, ec.Subject, ec.RepoName, ec.AuthorName, ec.AuthorTime, preview,
		); err != nil {
			return cmerrors.Storef(err, "store_embedding %d/%s: insert vector", ec.RepoID, ec.SHA)
		}
		return nil
	})
}

// SearchSemantic runs a vector nearest-neighbor search over
// commit_embeddings, optionally narrowed by repo name and author time.
func (db *DB) SearchSemantic(queryVector []float32, opts model.SemanticSearchOpts) ([]model.SearchResult, error) {
	if len(queryVector) != embeddingDim {
		return nil, cmerrors.New(cmerrors.Store, "query vector must have 768 dimensions")
	}
	encoded, err := sqlite_vec.SerializeFloat32(queryVector)
	if err != nil {
		return nil, cmerrors.Storef(err, "search_semantic: serialize query vector")
	}

	k := 10
	if opts.K != nil {
		k = *opts.K
	}

	var b strings.Builder
	args := []interface{}{encoded, k}
	b.WriteString(`
		SELECT sha, subject, repo_name, author_name, author_time, patch_preview
		FROM commit_embeddings
		WHERE embedding MATCH ? AND k = ?`)

	if opts.Since != nil {
		b.WriteString(` AND author_time >= ?`)
		args = append(args, *opts.Since)
	}
	if len(opts.Repos) > 0 {
		fmt.Fprintf(&b, ` AND repo_name IN (%s)`, placeholders(len(opts.Repos)))
		for _, name := range opts.Repos {
			args = append(args, name)
		}
	}
	b.WriteString(` ORDER BY distance`)

	rows, err := db.conn.Query(b.String(), args...)
	if err != nil {
		return nil, cmerrors.Storef(err, "search_semantic")
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var res model.SearchResult
		var preview sql.NullString
		if err := rows.Scan(&res.SHA, &res.Subject, &res.Repo, &res.Author, &res.Date, &preview); err != nil {
			return nil, cmerrors.Storef(err, "search_semantic: scan")
		}
		res.PatchExcerpt = preview.String
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetConfig reads a single key from the store's config table, or ""
// with ok=false if unset.
func (db *DB) GetConfig(key string) (value string, ok bool, err error) {
	row := db.conn.QueryRow(`SELECT value FROM config WHERE key = ?`, key)
	switch scanErr := row.Scan(&value); scanErr {
	case nil:
		return value, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, cmerrors.Storef(scanErr, "get_config %q", key)
	}
}

// SetConfig writes a single key/value pair into the store's config
// table, replacing any prior value.
func (db *DB) SetConfig(key, value string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value)
		if err != nil {
			return cmerrors.Storef(err, "set_config %q", key)
		}
		return nil
	})
}
