package store

import (
	"database/sql"
	"encoding/json"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/model"
)

func serializeExcludePrefixes(prefixes []string) (string, error) {
	if prefixes == nil {
		prefixes = []string{}
	}
	b, err := json.Marshal(prefixes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func deserializeExcludePrefixes(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var prefixes []string
	if err := json.Unmarshal([]byte(raw), &prefixes); err != nil {
		return nil, err
	}
	return prefixes, nil
}

// AddRepo registers a new repository. Fails with a Store error if the
// name collides with an existing registration.
func (db *DB) AddRepo(input model.RepoInput) (model.Repo, error) {
	excludeJSON, err := serializeExcludePrefixes(input.ExcludePrefixes)
	if err != nil {
		return model.Repo{}, cmerrors.Storef(err, "serialize exclude_prefixes for %q", input.Name)
	}

	var repo model.Repo
	err = db.WithTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO repos (name, local_path, remote_url, default_branch, fork_of, author_filter, exclude_prefixes)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			input.Name, input.LocalPath, input.RemoteURL, input.DefaultBranch, input.ForkOf, input.AuthorFilter, excludeJSON,
		)
		if err != nil {
			return cmerrors.Storef(err, "insert repo %q", input.Name)
		}
		repoID, err := res.LastInsertId()
		if err != nil {
			return cmerrors.Storef(err, "read repo_id for %q", input.Name)
		}
		repo = model.Repo{
			RepoID:          repoID,
			Name:            input.Name,
			LocalPath:       input.LocalPath,
			RemoteURL:       input.RemoteURL,
			DefaultBranch:   input.DefaultBranch,
			ForkOf:          input.ForkOf,
			AuthorFilter:    input.AuthorFilter,
			ExcludePrefixes: input.ExcludePrefixes,
		}
		return nil
	})
	return repo, err
}

func scanRepo(row interface {
	Scan(dest ...interface{}) error
}) (model.Repo, error) {
	var r model.Repo
	var excludeJSON string
	var embedEnabled int
	if err := row.Scan(
		&r.RepoID, &r.Name, &r.LocalPath, &r.RemoteURL, &r.DefaultBranch,
		&r.ForkOf, &r.AuthorFilter, &excludeJSON, &embedEnabled,
	); err != nil {
		return model.Repo{}, err
	}
	prefixes, err := deserializeExcludePrefixes(excludeJSON)
	if err != nil {
		return model.Repo{}, err
	}
	r.ExcludePrefixes = prefixes
	r.EmbedEnabled = embedEnabled != 0
	return r, nil
}

const repoColumns = `repo_id, name, local_path, remote_url, default_branch, fork_of, author_filter, exclude_prefixes, embed_enabled`

// ListRepos returns all registered repositories ordered by repo_id.
func (db *DB) ListRepos() ([]model.Repo, error) {
	rows, err := db.conn.Query(`SELECT ` + repoColumns + ` FROM repos ORDER BY repo_id`)
	if err != nil {
		return nil, cmerrors.Storef(err, "list repos")
	}
	defer rows.Close()

	var repos []model.Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, cmerrors.Storef(err, "scan repo row")
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// GetRepoByName returns the repo with the given name, or nil if none
// is registered.
func (db *DB) GetRepoByName(name string) (*model.Repo, error) {
	row := db.conn.QueryRow(`SELECT `+repoColumns+` FROM repos WHERE name = ?`, name)
	r, err := scanRepo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cmerrors.Storef(err, "get repo %q", name)
	}
	return &r, nil
}

// RemoveRepo deletes a repository and every row it owns: patches,
// files, ingest state, commits, the commits_fts index, the embedding
// map, and the embedding vectors — then the repos row itself. Fails
// with NotFound if name is unknown.
func (db *DB) RemoveRepo(name string) error {
	repo, err := db.GetRepoByName(name)
	if err != nil {
		return err
	}
	if repo == nil {
		return cmerrors.NotFoundf("repo %q not found", name)
	}

	return db.WithTx(func(tx *sql.Tx) error {
		stmts := []struct {
			sql  string
			args []interface{}
		}{
			{`DELETE FROM commit_patches WHERE repo_id = ?`, []interface{}{repo.RepoID}},
			{`DELETE FROM commit_files WHERE repo_id = ?`, []interface{}{repo.RepoID}},
			{`DELETE FROM ingest_state WHERE repo_id = ?`, []interface{}{repo.RepoID}},
			{`DELETE FROM commits WHERE repo_id = ?`, []interface{}{repo.RepoID}},
		}
		for _, s := range stmts {
			if _, err := tx.Exec(s.sql, s.args...); err != nil {
				return cmerrors.Storef(err, "remove_repo %q: %s", name, s.sql)
			}
		}

		if _, err := tx.Exec(`INSERT INTO commits_fts(commits_fts) VALUES('rebuild')`); err != nil {
			return cmerrors.Storef(err, "remove_repo %q: rebuild fts", name)
		}

		// Extended cascade (see design notes): remove_repo also clears
		// the embedding map and vectors for this repo, rather than
		// leaving orphaned commit_embeddings rows behind.
		embedRows, err := tx.Query(`SELECT embed_id FROM commit_embed_map WHERE repo_id = ?`, repo.RepoID)
		if err != nil {
			return cmerrors.Storef(err, "remove_repo %q: list embed_ids", name)
		}
		var embedIDs []int64
		for embedRows.Next() {
			var id int64
			if err := embedRows.Scan(&id); err != nil {
				embedRows.Close()
				return cmerrors.Storef(err, "remove_repo %q: scan embed_id", name)
			}
			embedIDs = append(embedIDs, id)
		}
		embedRows.Close()

		for _, id := range embedIDs {
			if _, err := tx.Exec(`DELETE FROM commit_embeddings WHERE embed_id = ?`, id); err != nil {
				return cmerrors.Storef(err, "remove_repo %q: delete embedding %d", name, id)
			}
		}
		if _, err := tx.Exec(`DELETE FROM commit_embed_map WHERE repo_id = ?`, repo.RepoID); err != nil {
			return cmerrors.Storef(err, "remove_repo %q: delete embed_map", name)
		}

		if _, err := tx.Exec(`DELETE FROM repos WHERE repo_id = ?`, repo.RepoID); err != nil {
			return cmerrors.Storef(err, "remove_repo %q: delete repos row", name)
		}
		return nil
	})
}

// UpdateRepo applies a partial update and returns the resulting repo.
func (db *DB) UpdateRepo(repoID int64, update model.RepoUpdate) (model.Repo, error) {
	var result model.Repo
	err := db.WithTx(func(tx *sql.Tx) error {
		if update.ForkOf != nil {
			if _, err := tx.Exec(`UPDATE repos SET fork_of = ? WHERE repo_id = ?`, update.ForkOf.Value, repoID); err != nil {
				return cmerrors.Storef(err, "update_repo %d: fork_of", repoID)
			}
		}
		if update.AuthorFilter != nil {
			if _, err := tx.Exec(`UPDATE repos SET author_filter = ? WHERE repo_id = ?`, update.AuthorFilter.Value, repoID); err != nil {
				return cmerrors.Storef(err, "update_repo %d: author_filter", repoID)
			}
		}
		if update.DefaultBranch != nil {
			if _, err := tx.Exec(`UPDATE repos SET default_branch = ? WHERE repo_id = ?`, update.DefaultBranch.Value, repoID); err != nil {
				return cmerrors.Storef(err, "update_repo %d: default_branch", repoID)
			}
		}
		if update.ExcludePrefixes != nil {
			excludeJSON, err := serializeExcludePrefixes(*update.ExcludePrefixes)
			if err != nil {
				return cmerrors.Storef(err, "update_repo %d: serialize exclude_prefixes", repoID)
			}
			if _, err := tx.Exec(`UPDATE repos SET exclude_prefixes = ? WHERE repo_id = ?`, excludeJSON, repoID); err != nil {
				return cmerrors.Storef(err, "update_repo %d: exclude_prefixes", repoID)
			}
		}

		row := tx.QueryRow(`SELECT `+repoColumns+` FROM repos WHERE repo_id = ?`, repoID)
		r, err := scanRepo(row)
		if err != nil {
			return cmerrors.Storef(err, "update_repo %d: reload", repoID)
		}
		result = r
		return nil
	})
	return result, err
}

// ListReposWithStats returns the summarized commit-count/last-sync
// view used by repo-listing tools.
func (db *DB) ListReposWithStats() ([]model.RepoListEntry, error) {
	rows, err := db.conn.Query(`
		SELECT r.name, COUNT(c.sha), i.last_synced_at
		FROM repos r
		LEFT JOIN commits c ON c.repo_id = r.repo_id
		LEFT JOIN ingest_state i ON i.repo_id = r.repo_id
		GROUP BY r.repo_id
		ORDER BY r.repo_id`)
	if err != nil {
		return nil, cmerrors.Storef(err, "list_repos_with_stats")
	}
	defer rows.Close()

	var entries []model.RepoListEntry
	for rows.Next() {
		var e model.RepoListEntry
		var lastSynced sql.NullInt64
		if err := rows.Scan(&e.Name, &e.CommitCount, &lastSynced); err != nil {
			return nil, cmerrors.Storef(err, "scan repo stats row")
		}
		if lastSynced.Valid {
			v := lastSynced.Int64
			e.LastSyncedAt = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RepoStats returns the admin-facing status summary for one repo.
func (db *DB) RepoStats(repoID int64) (model.RepoStats, error) {
	var stats model.RepoStats
	row := db.conn.QueryRow(`SELECT name FROM repos WHERE repo_id = ?`, repoID)
	if err := row.Scan(&stats.RepoName); err != nil {
		return stats, cmerrors.Storef(err, "repo_stats %d: load name", repoID)
	}

	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM commits WHERE repo_id = ?`, repoID).Scan(&stats.CommitCount); err != nil {
		return stats, cmerrors.Storef(err, "repo_stats %d: count commits", repoID)
	}

	var lastSynced sql.NullInt64
	var lastSHA, lastErr sql.NullString
	row = db.conn.QueryRow(`SELECT last_synced_at, last_synced_sha, last_error FROM ingest_state WHERE repo_id = ?`, repoID)
	switch err := row.Scan(&lastSynced, &lastSHA, &lastErr); err {
	case nil:
		if lastSynced.Valid {
			v := lastSynced.Int64
			stats.LastSyncedAt = &v
		}
		if lastSHA.Valid {
			v := lastSHA.String
			stats.LastSyncedSHA = &v
		}
		if lastErr.Valid {
			v := lastErr.String
			stats.LastError = &v
		}
	case sql.ErrNoRows:
		// No sync has run yet; all fields stay nil.
	default:
		return stats, cmerrors.Storef(err, "repo_stats %d: load ingest_state", repoID)
	}
	return stats, nil
}

// CountCommitsForRepo returns the number of commits persisted for repoID.
func (db *DB) CountCommitsForRepo(repoID int64) (int, error) {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM commits WHERE repo_id = ?`, repoID).Scan(&count); err != nil {
		return 0, cmerrors.Storef(err, "count_commits_for_repo %d", repoID)
	}
	return count, nil
}
