package store

import (
	"testing"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/logging"
	"github.com/blackwell-systems/commitmux/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.ErrorLevel})
	db, err := OpenInMemory(logger)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestAddRepoAndList(t *testing.T) {
	db := newTestDB(t)

	repo, err := db.AddRepo(model.RepoInput{Name: "acme/widgets", LocalPath: "/clones/widgets"})
	if err != nil {
		t.Fatalf("AddRepo: %v", err)
	}
	if repo.RepoID == 0 {
		t.Fatalf("expected non-zero repo_id")
	}

	repos, err := db.ListRepos()
	if err != nil {
		t.Fatalf("ListRepos: %v", err)
	}
	if len(repos) != 1 || repos[0].Name != "acme/widgets" {
		t.Fatalf("unexpected repos: %+v", repos)
	}
}

func TestGetRepoByNameMissing(t *testing.T) {
	db := newTestDB(t)
	repo, err := db.GetRepoByName("does/not-exist")
	if err != nil {
		t.Fatalf("GetRepoByName: %v", err)
	}
	if repo != nil {
		t.Fatalf("expected nil repo, got %+v", repo)
	}
}

func mustAddRepo(t *testing.T, db *DB, name string) model.Repo {
	t.Helper()
	repo, err := db.AddRepo(model.RepoInput{Name: name, LocalPath: "/clones/" + name})
	if err != nil {
		t.Fatalf("AddRepo(%q): %v", name, err)
	}
	return repo
}

func TestUpsertCommitIdempotentAndSearch(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")

	commit := model.Commit{
		RepoID:         repo.RepoID,
		SHA:            "deadbeef",
		AuthorName:     "Ada Lovelace",
		AuthorEmail:    "ada@example.com",
		CommitterName:  "Ada Lovelace",
		CommitterEmail: "ada@example.com",
		AuthorTime:     946684800,
		CommitTime:     946684800,
		Subject:        "Add analytical engine support",
		Body:           strPtr("Implements the punch-card reader."),
		ParentCount:    1,
	}
	if err := db.UpsertCommit(commit); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}
	// Re-applying the same commit must not duplicate the fts row or
	// the commits row.
	if err := db.UpsertCommit(commit); err != nil {
		t.Fatalf("UpsertCommit (second time): %v", err)
	}

	count, err := db.CountCommitsForRepo(repo.RepoID)
	if err != nil {
		t.Fatalf("CountCommitsForRepo: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 commit after idempotent upsert, got %d", count)
	}

	results, err := db.Search("analytical", model.SearchOpts{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].SHA != "deadbeef" {
		t.Fatalf("unexpected search results: %+v", results)
	}
}

func TestCommitExists(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")

	exists, err := db.CommitExists(repo.RepoID, "deadbeef")
	if err != nil {
		t.Fatalf("CommitExists: %v", err)
	}
	if exists {
		t.Fatalf("expected commit to not exist yet")
	}

	if err := db.UpsertCommit(model.Commit{RepoID: repo.RepoID, SHA: "deadbeef", Subject: "x"}); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}

	exists, err = db.CommitExists(repo.RepoID, "deadbeef")
	if err != nil {
		t.Fatalf("CommitExists: %v", err)
	}
	if !exists {
		t.Fatalf("expected commit to exist after upsert")
	}
}

func TestGetCommitShortSHA(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")

	if err := db.UpsertCommit(model.Commit{
		RepoID: repo.RepoID, SHA: "deadbeef00112233", Subject: "Fix off-by-one",
		AuthorName: "Grace Hopper", AuthorTime: 946684800, CommitTime: 946684800,
	}); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}

	detail, err := db.GetCommit("acme/widgets", "deadbeef")
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if detail.SHA != "deadbeef00112233" {
		t.Fatalf("expected short-sha lookup to resolve full sha, got %q", detail.SHA)
	}
	if detail.Date != "2000-01-01T00:00:00Z" {
		t.Fatalf("unexpected formatted date: %q", detail.Date)
	}
}

func TestUpsertCommitFilesAndTouches(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")

	if err := db.UpsertCommit(model.Commit{RepoID: repo.RepoID, SHA: "abc123", Subject: "Touch files", CommitTime: 100}); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}
	files := []model.CommitFile{
		{RepoID: repo.RepoID, SHA: "abc123", Path: "src/main.go", Status: model.StatusModified},
		{RepoID: repo.RepoID, SHA: "abc123", Path: "README.md", Status: model.StatusAdded},
	}
	if err := db.UpsertCommitFiles(repo.RepoID, "abc123", files); err != nil {
		t.Fatalf("UpsertCommitFiles: %v", err)
	}

	results, err := db.Touches("main.go", model.TouchOpts{})
	if err != nil {
		t.Fatalf("Touches: %v", err)
	}
	if len(results) != 1 || results[0].Path != "src/main.go" {
		t.Fatalf("unexpected touches results: %+v", results)
	}

	// Replacing the file set drops stale rows.
	if err := db.UpsertCommitFiles(repo.RepoID, "abc123", []model.CommitFile{
		{RepoID: repo.RepoID, SHA: "abc123", Path: "src/other.go", Status: model.StatusModified},
	}); err != nil {
		t.Fatalf("UpsertCommitFiles (replace): %v", err)
	}
	results, err = db.Touches("main.go", model.TouchOpts{})
	if err != nil {
		t.Fatalf("Touches: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected stale file row to be gone, got %+v", results)
	}
}

func TestUpsertPatchRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")

	if err := db.UpsertCommit(model.Commit{RepoID: repo.RepoID, SHA: "patchsha", Subject: "Add patch", CommitTime: 1}); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}

	patchText := "diff --git a/f b/f\n+added line\n"
	if err := db.UpsertPatch(model.CommitPatch{
		RepoID: repo.RepoID, SHA: "patchsha", PatchBlob: []byte(patchText), PatchPreview: patchText,
	}); err != nil {
		t.Fatalf("UpsertPatch: %v", err)
	}

	result, err := db.GetPatch("acme/widgets", "patchsha", nil)
	if err != nil {
		t.Fatalf("GetPatch: %v", err)
	}
	if result.PatchText != patchText {
		t.Fatalf("round-trip mismatch: got %q want %q", result.PatchText, patchText)
	}
}

func TestGetPatchTruncatesByCharacterCount(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")
	if err := db.UpsertCommit(model.Commit{RepoID: repo.RepoID, SHA: "s", Subject: "s"}); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}
	long := "日本語テキスト with some ascii too, repeated. "
	if err := db.UpsertPatch(model.CommitPatch{RepoID: repo.RepoID, SHA: "s", PatchBlob: []byte(long), PatchPreview: long}); err != nil {
		t.Fatalf("UpsertPatch: %v", err)
	}
	max := 5
	result, err := db.GetPatch("acme/widgets", "s", &max)
	if err != nil {
		t.Fatalf("GetPatch: %v", err)
	}
	if got := []rune(result.PatchText); len(got) != max {
		t.Fatalf("expected %d runes, got %d (%q)", max, len(got), result.PatchText)
	}
}

func TestRemoveRepoDeletesAll(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")
	if err := db.UpsertCommit(model.Commit{RepoID: repo.RepoID, SHA: "abc", Subject: "x"}); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}
	if err := db.UpsertCommitFiles(repo.RepoID, "abc", []model.CommitFile{
		{RepoID: repo.RepoID, SHA: "abc", Path: "f.go", Status: model.StatusAdded},
	}); err != nil {
		t.Fatalf("UpsertCommitFiles: %v", err)
	}

	if err := db.RemoveRepo("acme/widgets"); err != nil {
		t.Fatalf("RemoveRepo: %v", err)
	}

	repos, err := db.ListRepos()
	if err != nil {
		t.Fatalf("ListRepos: %v", err)
	}
	if len(repos) != 0 {
		t.Fatalf("expected no repos left, got %+v", repos)
	}

	results, err := db.Search("x", model.SearchOpts{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected fts index cleared, got %+v", results)
	}
}

func TestRemoveRepoNotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.RemoveRepo("ghost/repo")
	if err == nil {
		t.Fatalf("expected NotFound error")
	}
	code, ok := cmerrors.CodeOf(err)
	if !ok || code != cmerrors.NotFound {
		t.Fatalf("expected NOT_FOUND code, got %v (ok=%v)", code, ok)
	}
}

func TestUpdateRepoAuthorFilterAndExcludePrefixes(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")

	filter := "ada@example.com"
	prefixes := []string{"testdata/"}
	updated, err := db.UpdateRepo(repo.RepoID, model.RepoUpdate{
		AuthorFilter:    model.SetString(filter),
		ExcludePrefixes: &prefixes,
	})
	if err != nil {
		t.Fatalf("UpdateRepo: %v", err)
	}
	if updated.AuthorFilter == nil || *updated.AuthorFilter != filter {
		t.Fatalf("expected author_filter %q, got %v", filter, updated.AuthorFilter)
	}
	if len(updated.ExcludePrefixes) != 1 || updated.ExcludePrefixes[0] != "testdata/" {
		t.Fatalf("unexpected exclude_prefixes: %+v", updated.ExcludePrefixes)
	}

	cleared, err := db.UpdateRepo(repo.RepoID, model.RepoUpdate{AuthorFilter: model.ClearString()})
	if err != nil {
		t.Fatalf("UpdateRepo (clear): %v", err)
	}
	if cleared.AuthorFilter != nil {
		t.Fatalf("expected author_filter cleared, got %v", cleared.AuthorFilter)
	}
}

func TestListReposWithStats(t *testing.T) {
	db := newTestDB(t)
	repo := mustAddRepo(t, db, "acme/widgets")
	if err := db.UpsertCommit(model.Commit{RepoID: repo.RepoID, SHA: "a", Subject: "x"}); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}
	if err := db.UpsertCommit(model.Commit{RepoID: repo.RepoID, SHA: "b", Subject: "y"}); err != nil {
		t.Fatalf("UpsertCommit: %v", err)
	}

	entries, err := db.ListReposWithStats()
	if err != nil {
		t.Fatalf("ListReposWithStats: %v", err)
	}
	if len(entries) != 1 || entries[0].CommitCount != 2 {
		t.Fatalf("unexpected stats: %+v", entries)
	}
}
