// Package model defines the CommitMux domain entities: repositories,
// commits, file changes, compressed patches, ingest bookkeeping, and
// the option/result records exchanged across the Store, Ingester,
// Embedder, and query surface.
package model

// FileStatus is the single-character change status of a file within a commit.
type FileStatus string

const (
	StatusAdded    FileStatus = "A"
	StatusModified FileStatus = "M"
	StatusDeleted  FileStatus = "D"
	StatusRenamed  FileStatus = "R"
	StatusCopied   FileStatus = "C"
	StatusUnknown  FileStatus = "?"
)

// Repo is a registered repository: identity is its unique Name.
type Repo struct {
	RepoID         int64
	Name           string
	LocalPath      string
	RemoteURL      *string
	DefaultBranch  *string
	ForkOf         *string
	AuthorFilter   *string
	ExcludePrefixes []string
	EmbedEnabled   bool
}

// RepoInput is the payload for registering a new repository.
type RepoInput struct {
	Name            string
	LocalPath       string
	RemoteURL       *string
	DefaultBranch   *string
	ForkOf          *string
	AuthorFilter    *string
	ExcludePrefixes []string
}

// RepoUpdate carries partial updates to a Repo. A nil field leaves the
// column untouched; fields that are themselves pointers-to-pointers in
// spirit (ForkOf, AuthorFilter, DefaultBranch) use the Set* wrapper
// below to distinguish "leave alone" from "set to NULL".
type RepoUpdate struct {
	ForkOf          *OptionalString
	AuthorFilter    *OptionalString
	DefaultBranch   *OptionalString
	ExcludePrefixes *[]string
}

// OptionalString distinguishes "set to this value" (including empty
// string) from "clear to NULL" within a RepoUpdate.
type OptionalString struct {
	Value *string
}

// SetString returns an OptionalString that sets the column to v.
func SetString(v string) *OptionalString { return &OptionalString{Value: &v} }

// ClearString returns an OptionalString that clears the column to NULL.
func ClearString() *OptionalString { return &OptionalString{Value: nil} }

// RepoListEntry is a summarized row for repo listings.
type RepoListEntry struct {
	Name          string
	CommitCount   int
	LastSyncedAt  *int64
}

// RepoStats is the admin-facing per-repo status summary.
type RepoStats struct {
	RepoName       string
	CommitCount    int
	LastSyncedAt   *int64
	LastSyncedSHA  *string
	LastError      *string
}

// Commit is a single revision, identified by (RepoID, SHA).
type Commit struct {
	RepoID         int64
	SHA            string
	AuthorName     string
	AuthorEmail    string
	CommitterName  string
	CommitterEmail string
	AuthorTime     int64
	CommitTime     int64
	Subject        string
	Body           *string
	ParentCount    int
	// PatchPreview is mutable: reset to "" by upsert_commit and
	// repopulated by upsert_patch with the first 500 characters of the
	// patch text.
	PatchPreview string
}

// CommitFile is a single changed path within a commit.
type CommitFile struct {
	RepoID  int64
	SHA     string
	Path    string
	Status  FileStatus
	OldPath *string
}

// CommitPatch is the raw (uncompressed) diff text for a commit, plus
// the short text used to refresh commits.patch_preview. The Store
// compresses PatchBlob before persisting it.
type CommitPatch struct {
	RepoID       int64
	SHA          string
	PatchBlob    []byte
	PatchPreview string
}

// IngestState is the one-row-per-repo sync bookkeeping record.
type IngestState struct {
	RepoID        int64
	LastSyncedAt  int64
	LastSyncedSHA *string
	LastError     *string
}

// EmbedCommit is the projection of a commit handed to the embedding
// document builder: denormalized display fields plus the material the
// document is built from.
type EmbedCommit struct {
	RepoID       int64
	SHA          string
	Subject      string
	Body         *string
	FilesChanged []string
	PatchPreview *string
	AuthorName   string
	RepoName     string
	AuthorTime   int64
}

// SearchOpts filters a full-text search call.
type SearchOpts struct {
	Since *int64
	Repos []string
	Paths []string
	Limit *int
}

// TouchOpts filters a path-touch lookup.
type TouchOpts struct {
	Since *int64
	Repos []string
	Limit *int
}

// SemanticSearchOpts filters a vector nearest-neighbor search.
type SemanticSearchOpts struct {
	Since *int64
	Repos []string
	K     *int
}

// SearchResult is one hit from search or search_semantic.
type SearchResult struct {
	Repo         string
	SHA          string
	Subject      string
	Author       string
	Date         int64
	MatchedPaths []string
	PatchExcerpt string
}

// TouchResult is one hit from a path-touch lookup.
type TouchResult struct {
	Repo    string
	SHA     string
	Subject string
	Date    int64
	Path    string
	Status  string
}

// CommitFileDetail is a changed-file entry within CommitDetail.
type CommitFileDetail struct {
	Path    string
	Status  string
	OldPath *string
}

// CommitDetail is the full projection returned by get_commit.
type CommitDetail struct {
	Repo         string
	SHA          string
	Subject      string
	Body         *string
	Author       string
	Date         string // ISO-8601 UTC, e.g. "2000-01-01T00:00:00Z"
	ChangedFiles []CommitFileDetail
}

// PatchResult is the decompressed (and possibly truncated) patch text
// returned by get_patch.
type PatchResult struct {
	Repo     string
	SHA      string
	PatchText string
}

// IngestSummary is the outcome of one sync_repo call.
type IngestSummary struct {
	CommitsIndexed        int
	CommitsAlreadyIndexed int
	CommitsFiltered       int
	Errors                []string
}

// EmbedSummary is the outcome of one embed_pending call.
type EmbedSummary struct {
	Embedded int
	Skipped  int
	Failed   int
}

// IgnoreConfig is the effective set of path-prefix exclusions and the
// patch-size ceiling applied during ingestion.
type IgnoreConfig struct {
	PathPrefixes  []string
	MaxPatchBytes int
}

// DefaultIgnoreConfig returns the process-wide default ignore rules,
// to be unioned with a repo's own ExcludePrefixes before a sync.
func DefaultIgnoreConfig() IgnoreConfig {
	return IgnoreConfig{
		PathPrefixes: []string{
			"node_modules/",
			"vendor/",
			"dist/",
			".git/",
		},
		MaxPatchBytes: 1_048_576,
	}
}

// EffectiveIgnoreConfig unions the process-wide defaults with a
// repo's own exclude prefixes, preserving order and dropping
// duplicates.
func EffectiveIgnoreConfig(repoExcludes []string) IgnoreConfig {
	base := DefaultIgnoreConfig()
	seen := make(map[string]bool, len(base.PathPrefixes)+len(repoExcludes))
	merged := make([]string, 0, len(base.PathPrefixes)+len(repoExcludes))
	for _, p := range append(append([]string{}, base.PathPrefixes...), repoExcludes...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, p)
	}
	base.PathPrefixes = merged
	return base
}
