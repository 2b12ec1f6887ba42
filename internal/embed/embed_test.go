package embed

import (
	"context"
	"strings"
	"testing"

	"github.com/blackwell-systems/commitmux/internal/logging"
	"github.com/blackwell-systems/commitmux/internal/model"
)

func strPtr(s string) *string { return &s }

func TestBuildEmbedDocSubjectOnly(t *testing.T) {
	doc := BuildEmbedDoc(model.EmbedCommit{
		RepoID: 1, SHA: "abc123", RepoName: "acme/widgets", AuthorName: "Ada Lovelace",
		Subject: "Fix off-by-one in the tokenizer",
	})
	if !strings.HasPrefix(doc, "Fix off-by-one in the tokenizer") {
		t.Fatalf("expected doc to start with subject, got %q", doc)
	}
	if strings.Contains(doc, "Files changed:") {
		t.Fatalf("expected no files-changed section without files, got %q", doc)
	}
}

func TestBuildEmbedDocFull(t *testing.T) {
	doc := BuildEmbedDoc(model.EmbedCommit{
		RepoID: 1, SHA: "abc123", RepoName: "acme/widgets", AuthorName: "Ada Lovelace",
		Subject:      "Add streaming decoder",
		Body:         strPtr("This replaces the buffered reader with a streaming one."),
		FilesChanged: []string{"src/main.rs", "src/lib.rs"},
		PatchPreview: strPtr("diff --git a/src/decoder.go b/src/decoder.go\n+func NewStreamingDecoder() {}\n"),
	})
	if !strings.HasPrefix(doc, "Add streaming decoder") {
		t.Fatalf("expected doc to start with subject, got %q", doc)
	}
	if !strings.Contains(doc, "buffered reader") {
		t.Fatalf("missing body: %q", doc)
	}
	if !strings.Contains(doc, "Files changed: src/main.rs, src/lib.rs") {
		t.Fatalf("missing files-changed line: %q", doc)
	}
	if !strings.Contains(doc, "NewStreamingDecoder") {
		t.Fatalf("missing patch excerpt: %q", doc)
	}
}

func TestBuildEmbedDocTruncatesPatch(t *testing.T) {
	long := strings.Repeat("x", docPatchPreviewLimit*2)
	doc := BuildEmbedDoc(model.EmbedCommit{
		RepoName: "acme/widgets", AuthorName: "Ada", Subject: "s",
		PatchPreview: &long,
	})
	// The excerpt is capped at docPatchPreviewLimit bytes; the doc as a
	// whole carries a small fixed header on top of that.
	if len(doc) > docPatchPreviewLimit+200 {
		t.Fatalf("expected patch excerpt to be truncated, doc length = %d", len(doc))
	}
}

type fakeEmbedStore struct {
	pending  []model.EmbedCommit
	stored   map[string][]float32
	callsLog []string
}

func (f *fakeEmbedStore) GetCommitsWithoutEmbeddings(limit int) ([]model.EmbedCommit, error) {
	f.callsLog = append(f.callsLog, "fetch")
	if len(f.pending) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.pending) {
		n = len(f.pending)
	}
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	return batch, nil
}

func (f *fakeEmbedStore) StoreEmbedding(ec model.EmbedCommit, vector []float32) error {
	if f.stored == nil {
		f.stored = map[string][]float32{}
	}
	f.stored[ec.SHA] = vector
	return nil
}

func TestEmbedPendingStopsOnEmptyBatch(t *testing.T) {
	store := &fakeEmbedStore{pending: []model.EmbedCommit{
		{SHA: "a", RepoName: "r", AuthorName: "x", Subject: "first"},
		{SHA: "b", RepoName: "r", AuthorName: "x", Subject: "second"},
	}}
	embedder := New(store, func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	}, logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.ErrorLevel}), 1)

	summary, err := embedder.EmbedPending(context.Background())
	if err != nil {
		t.Fatalf("EmbedPending: %v", err)
	}
	if summary.Embedded != 2 {
		t.Fatalf("expected 2 embedded, got %+v", summary)
	}
	if len(store.stored) != 2 {
		t.Fatalf("expected 2 stored vectors, got %d", len(store.stored))
	}
}
