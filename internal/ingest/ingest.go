// Package ingest walks a repository's commit history with go-git and
// feeds it into the store: resolving the sync tip, applying ignore
// and author filters, and upserting commits, their changed files, and
// their compressed patches.
package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/logging"
	"github.com/blackwell-systems/commitmux/internal/model"
)

// Store is the subset of internal/store.DB the ingester needs. It is
// declared here, narrow and consumer-side, so tests can supply a fake
// without pulling in CGO/SQLite.
type Store interface {
	CommitExists(repoID int64, sha string) (bool, error)
	UpsertCommit(c model.Commit) error
	UpsertCommitFiles(repoID int64, sha string, files []model.CommitFile) error
	UpsertPatch(p model.CommitPatch) error
	GetIngestState(repoID int64) (*model.IngestState, error)
	UpdateIngestState(st model.IngestState) error
}

// Ingester syncs registered repositories' git history into a Store.
type Ingester struct {
	store  Store
	logger *logging.Logger
}

// New builds an Ingester backed by store.
func New(store Store, logger *logging.Logger) *Ingester {
	return &Ingester{store: store, logger: logger}
}

// SyncRepo runs the full sync protocol for one repo: open, fetch (if
// remote-managed), resolve tip, walk history oldest-first excluding
// any fork_of upstream ancestry, and upsert every new commit. All
// fork_of resolution failures are treated as warnings, not fatal
// errors — the sync falls back to walking the full history.
func (ing *Ingester) SyncRepo(repo model.Repo) (model.IngestSummary, error) {
	summary := model.IngestSummary{}

	r, err := gogit.PlainOpen(repo.LocalPath)
	if err != nil {
		return summary, cmerrors.Ingestf(err, "open repo %q at %s", repo.Name, repo.LocalPath)
	}

	if repo.RemoteURL != nil {
		for _, err := range ing.fetchRemote(r) {
			ing.logger.Warn("fetch failed, continuing with local history", map[string]interface{}{
				"repo": repo.Name, "error": err.Error(),
			})
			summary.Errors = append(summary.Errors, fmt.Sprintf("fetch: %v", err))
		}
	}

	tip, err := resolveTip(r, repo.DefaultBranch)
	if err != nil {
		return summary, cmerrors.Ingestf(err, "resolve tip for %q", repo.Name)
	}

	ignoreCfg := model.EffectiveIgnoreConfig(repo.ExcludePrefixes)

	commits, err := orderedCommits(r, tip)
	if err != nil {
		return summary, cmerrors.Ingestf(err, "walk history for %q", repo.Name)
	}

	excluded := ing.forkOfExclusionSet(r, repo, tip)

	for _, c := range commits {
		sha := c.Hash.String()
		if excluded[sha] {
			continue
		}

		exists, err := ing.store.CommitExists(repo.RepoID, sha)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: commit_exists: %v", sha, err))
		}
		if exists {
			summary.CommitsAlreadyIndexed++
			continue
		}

		if repo.AuthorFilter != nil && *repo.AuthorFilter != "" && !strings.EqualFold(c.Author.Email, *repo.AuthorFilter) {
			summary.CommitsFiltered++
			continue
		}

		if err := ing.indexCommit(repo, r, c, ignoreCfg); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", sha, err))
			continue
		}
		summary.CommitsIndexed++
	}

	tipSHA := tip.String()
	state := model.IngestState{RepoID: repo.RepoID, LastSyncedAt: time.Now().Unix(), LastSyncedSHA: &tipSHA}
	if len(summary.Errors) > 0 {
		last := summary.Errors[len(summary.Errors)-1]
		state.LastError = &last
	}
	if err := ing.store.UpdateIngestState(state); err != nil {
		ing.logger.Warn("update ingest_state failed", map[string]interface{}{"repo": repo.Name, "error": err.Error()})
		summary.Errors = append(summary.Errors, fmt.Sprintf("update_ingest_state: %v", err))
	}

	return summary, nil
}

func (ing *Ingester) indexCommit(repo model.Repo, r *gogit.Repository, c *object.Commit, ignoreCfg model.IgnoreConfig) error {
	body := c.Message
	subject := firstLine(body)
	var bodyRest *string
	if rest := trimFirstLine(body); rest != "" {
		bodyRest = &rest
	}

	commit := model.Commit{
		RepoID:         repo.RepoID,
		SHA:            c.Hash.String(),
		AuthorName:     c.Author.Name,
		AuthorEmail:    c.Author.Email,
		CommitterName:  c.Committer.Name,
		CommitterEmail: c.Committer.Email,
		AuthorTime:     c.Author.When.Unix(),
		CommitTime:     c.Committer.When.Unix(),
		Subject:        subject,
		Body:           bodyRest,
		ParentCount:    c.NumParents(),
	}
	if err := ing.store.UpsertCommit(commit); err != nil {
		return fmt.Errorf("upsert_commit: %w", err)
	}

	files, patchText, err := diffCommit(r, repo.RepoID, c, ignoreCfg)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	if err := ing.store.UpsertCommitFiles(repo.RepoID, c.Hash.String(), files); err != nil {
		return fmt.Errorf("upsert_commit_files: %w", err)
	}

	if patchText == "" {
		return nil
	}
	if len(patchText) > ignoreCfg.MaxPatchBytes {
		patchText = truncateBytes(patchText, ignoreCfg.MaxPatchBytes)
	}
	if err := ing.store.UpsertPatch(model.CommitPatch{
		RepoID: repo.RepoID, SHA: c.Hash.String(), PatchBlob: []byte(patchText), PatchPreview: patchText,
	}); err != nil {
		return fmt.Errorf("upsert_patch: %w", err)
	}
	return nil
}

// fetchRemote fetches every configured remote using an SSH-agent backed
// credential callback for username "git"; HTTP(S) remotes use
// whatever transport go-git resolves by default (no credentials
// attached) since the spec scopes auth to the agent case only. It
// returns one error per remote whose fetch failed.
func (ing *Ingester) fetchRemote(r *gogit.Repository) []error {
	auth, authErr := gitssh.NewSSHAgentAuth("git")

	remotes, err := r.Remotes()
	if err != nil {
		return []error{fmt.Errorf("list remotes: %w", err)}
	}
	var errs []error
	for _, remote := range remotes {
		name := remote.Config().Name
		opts := &gogit.FetchOptions{RemoteName: name, Force: true}
		if authErr == nil {
			opts.Auth = auth
		}
		if err := r.Fetch(opts); err != nil && err != gogit.NoErrAlreadyUpToDate {
			errs = append(errs, fmt.Errorf("fetch %s: %w", name, err))
		}
	}
	return errs
}

// resolveTip follows the contract: try the repo's configured default
// branch ref, then a plain branch revparse of the same name, then
// fall back to HEAD.
func resolveTip(r *gogit.Repository, defaultBranch *string) (plumbing.Hash, error) {
	if defaultBranch != nil && *defaultBranch != "" {
		if ref, err := r.Reference(plumbing.NewBranchReferenceName(*defaultBranch), true); err == nil {
			return ref.Hash(), nil
		}
		if hash, err := r.ResolveRevision(plumbing.Revision(*defaultBranch)); err == nil {
			return *hash, nil
		}
	}
	head, err := r.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash(), nil
}

// orderedCommits returns every commit reachable from tip, oldest
// first. go-git's Log walks newest-first in commit-time order; the
// collected commits are then stable-sorted by committer time
// ascending, which approximates (but does not guarantee, for divergent
// merge histories) a topological oldest-first order.
func orderedCommits(r *gogit.Repository, tip plumbing.Hash) ([]*object.Commit, error) {
	iter, err := r.Log(&gogit.LogOptions{From: tip, Order: gogit.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	defer iter.Close()

	var commits []*object.Commit
	if err := iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, c)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk log: %w", err)
	}

	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].Committer.When.Before(commits[j].Committer.When)
	})
	return commits, nil
}

// forkOfExclusionSet resolves repo.ForkOf (if set) as a revision of the
// local repository, e.g. a remote-tracking ref such as "upstream/main",
// and computes the merge-base against the tip, excluding the base and
// every ancestor of it from the sync. No upstream remote is created or
// fetched here, so a fork_of value given as a URL does not resolve.
// Any failure — unresolvable revision, no common ancestor — is
// non-fatal: it is logged as a warning (not added to the sync
// summary's Errors), the exclusion set comes back empty, and the full
// history is processed.
func (ing *Ingester) forkOfExclusionSet(r *gogit.Repository, repo model.Repo, tip plumbing.Hash) map[string]bool {
	excluded := map[string]bool{}
	if repo.ForkOf == nil || *repo.ForkOf == "" {
		return excluded
	}

	tipCommit, err := r.CommitObject(tip)
	if err != nil {
		ing.logger.Warn("fork_of: could not load tip commit", map[string]interface{}{"repo": repo.Name, "error": err.Error()})
		return excluded
	}

	upstreamHash, err := r.ResolveRevision(plumbing.Revision(*repo.ForkOf))
	if err != nil {
		ing.logger.Warn("fork_of: could not resolve upstream ref", map[string]interface{}{"repo": repo.Name, "fork_of": *repo.ForkOf, "error": err.Error()})
		return excluded
	}
	upstreamCommit, err := r.CommitObject(*upstreamHash)
	if err != nil {
		ing.logger.Warn("fork_of: could not load upstream commit", map[string]interface{}{"repo": repo.Name, "error": err.Error()})
		return excluded
	}

	bases, err := tipCommit.MergeBase(upstreamCommit)
	if err != nil || len(bases) == 0 {
		ing.logger.Warn("fork_of: no common ancestor found", map[string]interface{}{"repo": repo.Name})
		return excluded
	}

	iter := object.NewCommitPreorderIter(bases[0], nil, nil)
	_ = iter.ForEach(func(c *object.Commit) error {
		excluded[c.Hash.String()] = true
		return nil
	})
	return excluded
}
