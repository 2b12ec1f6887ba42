// Package embed builds the text document fed to the embedding model
// for each commit and runs the batched backfill loop that keeps
// commit_embeddings in sync with newly ingested commits.
package embed

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	cmerrors "github.com/blackwell-systems/commitmux/internal/errors"
	"github.com/blackwell-systems/commitmux/internal/logging"
	"github.com/blackwell-systems/commitmux/internal/model"
)

// docPatchPreviewLimit is the byte budget given to the patch excerpt
// inside an embedding document; cutting at a fixed byte count (rather
// than a rune count) is acceptable here since the excerpt is opaque
// model input, never re-displayed verbatim.
const docPatchPreviewLimit = 1600

// BuildEmbedDoc renders the text an embedding model sees for one
// commit: subject, body, changed-file list, and a byte-bounded patch
// excerpt. It has no side effects and performs no I/O, so it can be
// exercised directly in tests without a Store.
func BuildEmbedDoc(ec model.EmbedCommit) string {
	var b strings.Builder
	b.WriteString(ec.Subject)

	if ec.Body != nil && strings.TrimSpace(*ec.Body) != "" {
		fmt.Fprintf(&b, "\n\n%s", strings.TrimSpace(*ec.Body))
	}

	if len(ec.FilesChanged) > 0 {
		fmt.Fprintf(&b, "\n\nFiles changed: %s", strings.Join(ec.FilesChanged, ", "))
	}

	if ec.PatchPreview != nil && *ec.PatchPreview != "" {
		excerpt := truncateBytes(*ec.PatchPreview, docPatchPreviewLimit)
		fmt.Fprintf(&b, "\n\n%s", excerpt)
	}

	return b.String()
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	b := s[:n]
	for len(b) > 0 && !utf8.ValidString(b) {
		b = b[:len(b)-1]
	}
	return b
}

// EmbedFunc produces a vector for a document of text. It is the one
// external collaborator this package depends on — the concrete
// implementation (an HTTP call to an Ollama/OpenAI-compatible
// endpoint) lives outside the embedding core, see HTTPEmbedFunc.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Store is the subset of internal/store.DB the backfill loop needs.
type Store interface {
	GetCommitsWithoutEmbeddings(limit int) ([]model.EmbedCommit, error)
	StoreEmbedding(ec model.EmbedCommit, vector []float32) error
}

// Embedder runs the backfill loop that keeps commit_embeddings caught
// up with newly ingested commits.
type Embedder struct {
	store     Store
	embed     EmbedFunc
	logger    *logging.Logger
	batchSize int
}

// New builds an Embedder. batchSize <= 0 defaults to 32.
func New(store Store, embed EmbedFunc, logger *logging.Logger, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Embedder{store: store, embed: embed, logger: logger, batchSize: batchSize}
}

// EmbedPending repeatedly fetches commits without an embedding and
// embeds them, stopping when a fetch returns an empty batch.
//
// That empty-batch condition is the only stop signal: a commit whose
// embed call keeps failing is fetched again on the very next
// iteration (store_embedding is never called for it, so it is never
// marked done), which can loop forever against a persistently broken
// embed function. This mirrors the backfill loop it's ported from;
// callers that need a hard ceiling should wrap EmbedPending with
// their own iteration or time budget.
func (e *Embedder) EmbedPending(ctx context.Context) (model.EmbedSummary, error) {
	summary := model.EmbedSummary{}

	for {
		batch, err := e.store.GetCommitsWithoutEmbeddings(e.batchSize)
		if err != nil {
			return summary, cmerrors.Storef(err, "get_commits_without_embeddings")
		}
		if len(batch) == 0 {
			return summary, nil
		}

		for _, ec := range batch {
			doc := BuildEmbedDoc(ec)
			if doc == "" {
				summary.Skipped++
				continue
			}

			vector, err := e.embed(ctx, doc)
			if err != nil {
				summary.Failed++
				e.logger.Warn("embed failed for commit", map[string]interface{}{
					"repo": ec.RepoName, "sha": ec.SHA, "error": err.Error(),
				})
				continue
			}

			if err := e.store.StoreEmbedding(ec, vector); err != nil {
				summary.Failed++
				e.logger.Warn("store_embedding failed", map[string]interface{}{
					"repo": ec.RepoName, "sha": ec.SHA, "error": err.Error(),
				})
				continue
			}
			summary.Embedded++
		}
	}
}
