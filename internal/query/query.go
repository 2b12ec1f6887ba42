// Package query is the thin projection layer between tool input
// records and the Store: it validates required fields, builds the
// matching option record, invokes the store, and serializes the
// result. It holds no indexing or retrieval logic of its own.
package query

import (
	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/model"
)

// Store is the subset of internal/store.DB the query surface reads from.
type Store interface {
	Search(query string, opts model.SearchOpts) ([]model.SearchResult, error)
	Touches(pathSubstring string, opts model.TouchOpts) ([]model.TouchResult, error)
	GetCommit(repoName, shaOrPrefix string) (*model.CommitDetail, error)
	GetPatch(repoName, sha string, maxBytes *int) (*model.PatchResult, error)
	SearchSemantic(queryVector []float32, opts model.SemanticSearchOpts) ([]model.SearchResult, error)
}

// Surface wires the four spec.md tools plus the supplemental semantic
// search tool to a Store. It never panics on a store error: every
// method returns it to the caller to render as a textual tool error.
type Surface struct {
	store Store
}

// New builds a query Surface over store.
func New(store Store) *Surface {
	return &Surface{store: store}
}

// SearchInput is the commitmux_search tool's input record.
type SearchInput struct {
	Query string
	Opts  model.SearchOpts
}

// Search projects a commitmux_search call to Store.Search.
func (s *Surface) Search(in SearchInput) ([]model.SearchResult, error) {
	if in.Query == "" {
		return nil, cmerrors.New(cmerrors.Config, "search: query is required")
	}
	results, err := s.store.Search(in.Query, in.Opts)
	if err != nil {
		return nil, cmerrors.Storef(err, "search")
	}
	return results, nil
}

// TouchesInput is the commitmux_touches tool's input record.
type TouchesInput struct {
	Path string
	Opts model.TouchOpts
}

// Touches projects a commitmux_touches call to Store.Touches.
func (s *Surface) Touches(in TouchesInput) ([]model.TouchResult, error) {
	if in.Path == "" {
		return nil, cmerrors.New(cmerrors.Config, "touches: path is required")
	}
	results, err := s.store.Touches(in.Path, in.Opts)
	if err != nil {
		return nil, cmerrors.Storef(err, "touches")
	}
	return results, nil
}

// GetCommitInput is the commitmux_get_commit tool's input record.
type GetCommitInput struct {
	Repo string
	SHA  string
}

// GetCommit projects a commitmux_get_commit call to Store.GetCommit.
func (s *Surface) GetCommit(in GetCommitInput) (*model.CommitDetail, error) {
	if in.Repo == "" || in.SHA == "" {
		return nil, cmerrors.New(cmerrors.Config, "get_commit: repo and sha are required")
	}
	detail, err := s.store.GetCommit(in.Repo, in.SHA)
	if err != nil {
		return nil, cmerrors.Storef(err, "get_commit")
	}
	if detail == nil {
		return nil, cmerrors.NotFoundf("no commit %s in repo %s", in.SHA, in.Repo)
	}
	return detail, nil
}

// GetPatchInput is the commitmux_get_patch tool's input record.
// MaxBytes is, per the store's documented quirk, actually a character
// count.
type GetPatchInput struct {
	Repo     string
	SHA      string
	MaxBytes *int
}

// GetPatch projects a commitmux_get_patch call to Store.GetPatch.
func (s *Surface) GetPatch(in GetPatchInput) (*model.PatchResult, error) {
	if in.Repo == "" || in.SHA == "" {
		return nil, cmerrors.New(cmerrors.Config, "get_patch: repo and sha are required")
	}
	patch, err := s.store.GetPatch(in.Repo, in.SHA, in.MaxBytes)
	if err != nil {
		return nil, cmerrors.Storef(err, "get_patch")
	}
	if patch == nil {
		return nil, cmerrors.NotFoundf("no patch for %s in repo %s", in.SHA, in.Repo)
	}
	return patch, nil
}

// SearchSemanticInput is the commitmux_search_semantic tool's input
// record. Not one of spec.md's four named tools, but a thin
// projection of the search_semantic store operation it already
// specifies (§4.1); see SPEC_FULL.md §4.4.
type SearchSemanticInput struct {
	Vector []float32
	Opts   model.SemanticSearchOpts
}

// SearchSemantic projects a commitmux_search_semantic call to
// Store.SearchSemantic.
func (s *Surface) SearchSemantic(in SearchSemanticInput) ([]model.SearchResult, error) {
	if len(in.Vector) == 0 {
		return nil, cmerrors.New(cmerrors.Config, "search_semantic: vector is required")
	}
	results, err := s.store.SearchSemantic(in.Vector, in.Opts)
	if err != nil {
		return nil, cmerrors.Storef(err, "search_semantic")
	}
	return results, nil
}
