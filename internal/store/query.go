package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/model"
)

// formatISODate renders epoch seconds as an ISO-8601 UTC timestamp,
// e.g. formatISODate(0) == "1970-01-01T00:00:00Z".
func formatISODate(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).UTC().Format("2006-01-02T15:04:05Z")
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

// Search runs a full-text query against subject/body/patch_preview,
// optionally narrowed by repo name, author time, and touched path
// (substring, not glob, match against commit_files.path — matching
// the same non-glob semantics touches() uses).
func (db *DB) Search(query string, opts model.SearchOpts) ([]model.SearchResult, error) {
	var b strings.Builder
	args := []interface{}{query}
	b.WriteString(`
		SELECT r.name, c.sha, c.subject, c.author_name, c.author_time
		FROM commits_fts f
		JOIN commits c ON c.rowid = f.rowid
		JOIN repos r ON r.repo_id = c.repo_id
		WHERE commits_fts MATCH ?`)

	if opts.Since != nil {
		b.WriteString(` AND c.author_time >= ?`)
		args = append(args, *opts.Since)
	}
	if len(opts.Repos) > 0 {
		fmt.Fprintf(&b, ` AND r.name IN (%s)`, placeholders(len(opts.Repos)))
		for _, name := range opts.Repos {
			args = append(args, name)
		}
	}
	if len(opts.Paths) > 0 {
		var pathClauses []string
		for _, p := range opts.Paths {
			pathClauses = append(pathClauses, `c.sha IN (SELECT sha FROM commit_files WHERE repo_id = c.repo_id AND path LIKE ?)`)
			args = append(args, "%"+p+"%")
		}
		fmt.Fprintf(&b, ` AND (%s)`, strings.Join(pathClauses, " OR "))
	}

	b.WriteString(` ORDER BY c.author_time DESC`)
	limit := 50
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	b.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := db.conn.Query(b.String(), args...)
	if err != nil {
		return nil, cmerrors.Storef(err, "search %q", query)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var res model.SearchResult
		if err := rows.Scan(&res.Repo, &res.SHA, &res.Subject, &res.Author, &res.Date); err != nil {
			return nil, cmerrors.Storef(err, "search %q: scan", query)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, cmerrors.Storef(err, "search %q: iterate", query)
	}
	// The pool holds a single connection, so the per-hit lookups below
	// run only after the result rows have been released.
	rows.Close()

	for i := range results {
		paths, err := db.pathsTouchedByCommit(results[i].Repo, results[i].SHA)
		if err != nil {
			return nil, err
		}
		results[i].MatchedPaths = paths
		preview, err := db.previewForCommit(results[i].Repo, results[i].SHA)
		if err != nil {
			return nil, err
		}
		results[i].PatchExcerpt = truncateRunes(preview, 300)
	}
	return results, nil
}

// truncateRunes cuts s to at most n runes (character boundary, not
// byte boundary).
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// pathsTouchedByCommit returns the full, sorted set of paths a commit
// touched — never filtered by a search's path substrings, which only
// narrow which commits match, not which paths are reported back.
func (db *DB) pathsTouchedByCommit(repoName, sha string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT cf.path FROM commit_files cf
		JOIN repos r ON r.repo_id = cf.repo_id
		WHERE r.name = ? AND cf.sha = ?
		ORDER BY cf.path`, repoName, sha)
	if err != nil {
		return nil, cmerrors.Storef(err, "load touched paths for %s/%s", repoName, sha)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, cmerrors.Storef(err, "scan touched path")
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (db *DB) previewForCommit(repoName, sha string) (string, error) {
	var preview sql.NullString
	row := db.conn.QueryRow(`
		SELECT c.patch_preview FROM commits c
		JOIN repos r ON r.repo_id = c.repo_id
		WHERE r.name = ? AND c.sha = ?`, repoName, sha)
	if err := row.Scan(&preview); err != nil {
		return "", cmerrors.Storef(err, "load preview for %s/%s", repoName, sha)
	}
	return preview.String, nil
}

// Touches returns commits that changed a path matching the given
// substring (not a glob), most recent first.
func (db *DB) Touches(path string, opts model.TouchOpts) ([]model.TouchResult, error) {
	var b strings.Builder
	args := []interface{}{"%" + path + "%"}
	b.WriteString(`
		SELECT r.name, c.sha, c.subject, c.author_time, cf.path, cf.status
		FROM commit_files cf
		JOIN commits c ON c.repo_id = cf.repo_id AND c.sha = cf.sha
		JOIN repos r ON r.repo_id = c.repo_id
		WHERE cf.path LIKE ?`)

	if opts.Since != nil {
		b.WriteString(` AND c.author_time >= ?`)
		args = append(args, *opts.Since)
	}
	if len(opts.Repos) > 0 {
		fmt.Fprintf(&b, ` AND r.name IN (%s)`, placeholders(len(opts.Repos)))
		for _, name := range opts.Repos {
			args = append(args, name)
		}
	}

	b.WriteString(` ORDER BY c.author_time DESC`)
	limit := 50
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	b.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := db.conn.Query(b.String(), args...)
	if err != nil {
		return nil, cmerrors.Storef(err, "touches %q", path)
	}
	defer rows.Close()

	var results []model.TouchResult
	for rows.Next() {
		var r model.TouchResult
		if err := rows.Scan(&r.Repo, &r.SHA, &r.Subject, &r.Date, &r.Path, &r.Status); err != nil {
			return nil, cmerrors.Storef(err, "touches %q: scan", path)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetCommit resolves shaOrPrefix against repoName (exact match first,
// then a short-SHA prefix match) and returns the full commit detail
// including changed files.
func (db *DB) GetCommit(repoName, shaOrPrefix string) (*model.CommitDetail, error) {
	repo, err := db.GetRepoByName(repoName)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, cmerrors.NotFoundf("repo %q not found", repoName)
	}

	var c model.Commit
	var body sql.NullString
	row := db.conn.QueryRow(`
		SELECT repo_id, sha, author_name, author_email, committer_name, committer_email,
		       author_time, commit_time, subject, body, parent_count, patch_preview
		FROM commits WHERE repo_id = ? AND sha = ?`, repo.RepoID, shaOrPrefix)
	err = row.Scan(
		&c.RepoID, &c.SHA, &c.AuthorName, &c.AuthorEmail, &c.CommitterName, &c.CommitterEmail,
		&c.AuthorTime, &c.CommitTime, &c.Subject, &body, &c.ParentCount, &c.PatchPreview,
	)
	if err == sql.ErrNoRows {
		row = db.conn.QueryRow(`
			SELECT repo_id, sha, author_name, author_email, committer_name, committer_email,
			       author_time, commit_time, subject, body, parent_count, patch_preview
			FROM commits WHERE repo_id = ? AND sha LIKE ? ORDER BY author_time DESC LIMIT 1`, repo.RepoID, shaOrPrefix+"%")
		err = row.Scan(
			&c.RepoID, &c.SHA, &c.AuthorName, &c.AuthorEmail, &c.CommitterName, &c.CommitterEmail,
			&c.AuthorTime, &c.CommitTime, &c.Subject, &body, &c.ParentCount, &c.PatchPreview,
		)
	}
	if err == sql.ErrNoRows {
		return nil, cmerrors.NotFoundf("commit %q not found in %q", shaOrPrefix, repoName)
	}
	if err != nil {
		return nil, cmerrors.Storef(err, "get_commit %s/%s", repoName, shaOrPrefix)
	}
	if body.Valid {
		c.Body = &body.String
	}

	rows, err := db.conn.Query(`SELECT path, status, old_path FROM commit_files WHERE repo_id = ? AND sha = ? ORDER BY path`, c.RepoID, c.SHA)
	if err != nil {
		return nil, cmerrors.Storef(err, "get_commit %s/%s: load files", repoName, c.SHA)
	}
	defer rows.Close()

	var files []model.CommitFileDetail
	for rows.Next() {
		var f model.CommitFileDetail
		var oldPath sql.NullString
		if err := rows.Scan(&f.Path, &f.Status, &oldPath); err != nil {
			return nil, cmerrors.Storef(err, "get_commit %s/%s: scan file", repoName, c.SHA)
		}
		if oldPath.Valid {
			f.OldPath = &oldPath.String
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, cmerrors.Storef(err, "get_commit %s/%s: iterate files", repoName, c.SHA)
	}

	return &model.CommitDetail{
		Repo:         repoName,
		SHA:          c.SHA,
		Subject:      c.Subject,
		Body:         c.Body,
		Author:       c.AuthorName,
		Date:         formatISODate(c.AuthorTime),
		ChangedFiles: files,
	}, nil
}

// GetPatch decompresses the stored patch for (repoName, sha) and
// truncates it to maxBytes characters — the stored name says bytes,
// but, matching the behavior this was ported from, the cut is by rune
// count, not by byte count.
func (db *DB) GetPatch(repoName, sha string, maxBytes *int) (*model.PatchResult, error) {
	repo, err := db.GetRepoByName(repoName)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, cmerrors.NotFoundf("repo %q not found", repoName)
	}

	var blob []byte
	row := db.conn.QueryRow(`SELECT patch_blob FROM commit_patches WHERE repo_id = ? AND sha = ?`, repo.RepoID, sha)
	if err := row.Scan(&blob); err == sql.ErrNoRows {
		return nil, cmerrors.NotFoundf("patch for %q/%s not found", repoName, sha)
	} else if err != nil {
		return nil, cmerrors.Storef(err, "get_patch %s/%s", repoName, sha)
	}

	raw, err := decompressPatch(blob)
	if err != nil {
		return nil, cmerrors.Storef(err, "get_patch %s/%s: decompress", repoName, sha)
	}

	text := strings.ToValidUTF8(string(raw), "�")
	if maxBytes != nil {
		runes := []rune(text)
		if len(runes) > *maxBytes {
			text = string(runes[:*maxBytes])
		}
	}

	return &model.PatchResult{Repo: repoName, SHA: sha, PatchText: text}, nil
}
