package ingest

import (
	"context"
	"strings"
	"unicode/utf8"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/blackwell-systems/commitmux/internal/model"
)

// diffCommit computes the changed-file list and full unified-diff
// text for c against its first parent (or the empty tree, for a root
// commit). Paths under an ignored prefix are dropped from the
// changed-file list but left in the rendered patch text — go-git's
// own Patch.String() is the patch text, unmodified, matching how the
// teacher repo's diff rendering reuses the library's own formatting
// rather than re-implementing a diff printer.
func diffCommit(r *gogit.Repository, repoID int64, c *object.Commit, ignoreCfg model.IgnoreConfig) ([]model.CommitFile, string, error) {
	commitTree, err := c.Tree()
	if err != nil {
		return nil, "", err
	}

	parentTree := &object.Tree{}
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, "", err
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, "", err
		}
	}

	changes, err := object.DiffTreeWithOptions(context.Background(), parentTree, commitTree, &object.DiffTreeOptions{
		DetectRenames: true,
	})
	if err != nil {
		return nil, "", err
	}

	var files []model.CommitFile
	for _, change := range changes {
		status, path, oldPath, isBinary := classifyChange(change)
		if isBinary {
			continue
		}
		if pathIgnored(path, ignoreCfg.PathPrefixes) {
			continue
		}
		files = append(files, model.CommitFile{
			RepoID:  repoID,
			SHA:     c.Hash.String(),
			Path:    path,
			Status:  status,
			OldPath: oldPath,
		})
	}

	patch, err := changes.Patch()
	if err != nil {
		return nil, "", err
	}
	return files, patch.String(), nil
}

func classifyChange(change *object.Change) (status model.FileStatus, path string, oldPath *string, isBinary bool) {
	from, to, err := change.Files()
	if err != nil {
		return model.StatusUnknown, change.To.Name, nil, false
	}
	if from == nil && to != nil {
		isBinary, _ = to.IsBinary()
		return model.StatusAdded, change.To.Name, nil, isBinary
	}
	if to == nil && from != nil {
		isBinary, _ = from.IsBinary()
		return model.StatusDeleted, change.From.Name, nil, isBinary
	}
	if to != nil {
		isBinary, _ = to.IsBinary()
	}
	if !isBinary && from != nil {
		isBinary, _ = from.IsBinary()
	}
	if change.From.Name != "" && change.To.Name != "" && change.From.Name != change.To.Name {
		old := change.From.Name
		return model.StatusRenamed, change.To.Name, &old, isBinary
	}
	return model.StatusModified, change.To.Name, nil, isBinary
}

func pathIgnored(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// truncateBytes cuts s to at most n bytes at a UTF-8 rune boundary, so
// a multi-byte character is never split across the cut.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	b := s[:n]
	for len(b) > 0 {
		if utf8.ValidString(b) {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func trimFirstLine(s string) string {
	idx := strings.IndexByte(s, '\n')
	if idx < 0 {
		return ""
	}
	rest := s[idx+1:]
	for strings.HasPrefix(rest, "\n") {
		rest = rest[1:]
	}
	return rest
}
