package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/blackwell-systems/commitmux/internal/logging"
	"github.com/blackwell-systems/commitmux/internal/model"
)

// fakeStore is a minimal in-memory Store, mirroring the behavioral
// test doubles used against the original sync_repo implementation:
// enough bookkeeping to assert on commit counts and skip behavior
// without touching SQLite.
type fakeStore struct {
	commits     map[string]model.Commit
	files       map[string][]model.CommitFile
	patches     map[string]model.CommitPatch
	ingestState map[int64]model.IngestState
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		commits: map[string]model.Commit{},
		files:   map[string][]model.CommitFile{},
		patches: map[string]model.CommitPatch{},
		ingestState: map[int64]model.IngestState{},
	}
}

func key(repoID int64, sha string) string {
	return fmt.Sprintf("%d:%s", repoID, sha)
}

func (f *fakeStore) CommitExists(repoID int64, sha string) (bool, error) {
	_, ok := f.commits[key(repoID, sha)]
	return ok, nil
}

func (f *fakeStore) UpsertCommit(c model.Commit) error {
	f.commits[key(c.RepoID, c.SHA)] = c
	return nil
}

func (f *fakeStore) UpsertCommitFiles(repoID int64, sha string, files []model.CommitFile) error {
	f.files[key(repoID, sha)] = files
	return nil
}

func (f *fakeStore) UpsertPatch(p model.CommitPatch) error {
	f.patches[key(p.RepoID, p.SHA)] = p
	return nil
}

func (f *fakeStore) GetIngestState(repoID int64) (*model.IngestState, error) {
	st, ok := f.ingestState[repoID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (f *fakeStore) UpdateIngestState(st model.IngestState) error {
	f.ingestState[st.RepoID] = st
	return nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.ErrorLevel})
}

// initRepoWithCommits creates a real git repository on disk (via
// go-git, no shell-out) with one commit per entry in files, each
// commit writing/overwriting the given path with the given content.
func initRepoWithCommits(t *testing.T, commits []struct {
	path, content, message, authorEmail string
}) string {
	t.Helper()
	dir := t.TempDir()
	r, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := r.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	when := time.Unix(1_600_000_000, 0).UTC()
	for i, c := range commits {
		full := filepath.Join(dir, c.path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(c.content), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		if _, err := wt.Add(c.path); err != nil {
			t.Fatalf("add: %v", err)
		}
		sig := &object.Signature{Name: "Test Author", Email: c.authorEmail, When: when.Add(time.Duration(i) * time.Minute)}
		if _, err := wt.Commit(c.message, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	return dir
}

func TestSyncEmptyRepoProducesNoCommits(t *testing.T) {
	dir := t.TempDir()
	if _, err := gogit.PlainInit(dir, false); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	store := newFakeStore()
	ing := New(store, testLogger())

	_, err := ing.SyncRepo(model.Repo{RepoID: 1, Name: "empty", LocalPath: dir})
	if err == nil {
		t.Fatalf("expected resolve-tip error on a repo with no commits")
	}
}

func TestSyncSingleCommit(t *testing.T) {
	dir := initRepoWithCommits(t, []struct{ path, content, message, authorEmail string }{
		{"README.md", "hello", "Initial commit", "ada@example.com"},
	})
	store := newFakeStore()
	ing := New(store, testLogger())

	summary, err := ing.SyncRepo(model.Repo{RepoID: 1, Name: "repo", LocalPath: dir})
	if err != nil {
		t.Fatalf("SyncRepo: %v", err)
	}
	if summary.CommitsIndexed != 1 {
		t.Fatalf("expected 1 commit indexed, got %+v", summary)
	}
	if len(store.commits) != 1 {
		t.Fatalf("expected 1 commit stored, got %d", len(store.commits))
	}
}

func TestSyncAuthorFilterSkipsNonMatching(t *testing.T) {
	dir := initRepoWithCommits(t, []struct{ path, content, message, authorEmail string }{
		{"a.txt", "1", "from ada", "ada@example.com"},
		{"b.txt", "2", "from grace", "grace@example.com"},
	})
	store := newFakeStore()
	ing := New(store, testLogger())

	filter := "ada@example.com"
	summary, err := ing.SyncRepo(model.Repo{RepoID: 1, Name: "repo", LocalPath: dir, AuthorFilter: &filter})
	if err != nil {
		t.Fatalf("SyncRepo: %v", err)
	}
	if summary.CommitsIndexed != 1 {
		t.Fatalf("expected 1 commit indexed (author match), got %+v", summary)
	}
	if summary.CommitsFiltered != 1 {
		t.Fatalf("expected 1 commit filtered (author mismatch), got %+v", summary)
	}
}

func TestSyncIncrementalSkipsAlreadyIndexed(t *testing.T) {
	dir := initRepoWithCommits(t, []struct{ path, content, message, authorEmail string }{
		{"a.txt", "1", "first", "ada@example.com"},
		{"b.txt", "2", "second", "ada@example.com"},
	})
	store := newFakeStore()
	ing := New(store, testLogger())
	repo := model.Repo{RepoID: 1, Name: "repo", LocalPath: dir}

	first, err := ing.SyncRepo(repo)
	if err != nil {
		t.Fatalf("first SyncRepo: %v", err)
	}
	if first.CommitsIndexed != 2 {
		t.Fatalf("expected 2 commits on first sync, got %+v", first)
	}

	second, err := ing.SyncRepo(repo)
	if err != nil {
		t.Fatalf("second SyncRepo: %v", err)
	}
	if second.CommitsIndexed != 0 || second.CommitsAlreadyIndexed != 2 {
		t.Fatalf("expected a fully-skipped incremental resync, got %+v", second)
	}
}

func TestSyncIgnoredPathsExcludedFromFiles(t *testing.T) {
	dir := initRepoWithCommits(t, []struct{ path, content, message, authorEmail string }{
		{"vendor/lib.go", "package lib", "add vendored lib", "ada@example.com"},
	})
	store := newFakeStore()
	ing := New(store, testLogger())

	if _, err := ing.SyncRepo(model.Repo{RepoID: 1, Name: "repo", LocalPath: dir}); err != nil {
		t.Fatalf("SyncRepo: %v", err)
	}
	for _, files := range store.files {
		for _, f := range files {
			if f.Path == "vendor/lib.go" {
				t.Fatalf("expected vendor/ path to be excluded from commit_files, found %+v", f)
			}
		}
	}
}
