//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestMetadataStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteMetadataStore(dbPath)
	if err != nil {
		t.Fatalf("creating metadata store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolveIngestionIntentNewPath(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	intent, err := s.ResolveIngestionIntent(ctx, "/docs/a.txt", "a.txt", "txt", "text/plain", 10, "checksum-a", false)
	if err != nil {
		t.Fatalf("resolving intent: %v", err)
	}
	if intent.Action != IntentNew {
		t.Fatalf("expected IntentNew, got %v", intent.Action)
	}
	if intent.DocumentID == "" {
		t.Fatal("expected non-empty document id")
	}

	doc, err := s.GetDocumentByID(ctx, intent.DocumentID)
	if err != nil {
		t.Fatalf("fetching inserted document: %v", err)
	}
	if doc.Status != "pending" {
		t.Fatalf("expected pending status, got %q", doc.Status)
	}
}

func TestResolveIngestionIntentUnchangedChecksumIsExisting(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	first, err := s.ResolveIngestionIntent(ctx, "/docs/b.txt", "b.txt", "txt", "text/plain", 10, "checksum-b", false)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := s.MarkIndexed(ctx, first.DocumentID, 3, nil, time.Now().UTC()); err != nil {
		t.Fatalf("marking indexed: %v", err)
	}

	second, err := s.ResolveIngestionIntent(ctx, "/docs/b.txt", "b.txt", "txt", "text/plain", 10, "checksum-b", false)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.Action != IntentExisting {
		t.Fatalf("expected IntentExisting, got %v", second.Action)
	}
	if second.DocumentID != first.DocumentID {
		t.Fatalf("expected same document id, got %q and %q", first.DocumentID, second.DocumentID)
	}
	if second.ChunkCount != 3 {
		t.Fatalf("expected chunk count 3, got %d", second.ChunkCount)
	}
}

func TestResolveIngestionIntentChangedChecksumIsReindex(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	first, err := s.ResolveIngestionIntent(ctx, "/docs/c.txt", "c.txt", "txt", "text/plain", 10, "checksum-c1", false)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	second, err := s.ResolveIngestionIntent(ctx, "/docs/c.txt", "c.txt", "txt", "text/plain", 12, "checksum-c2", false)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.Action != IntentReindex {
		t.Fatalf("expected IntentReindex, got %v", second.Action)
	}
	if second.DocumentID != first.DocumentID {
		t.Fatalf("expected same document id across reindex, got %q and %q", first.DocumentID, second.DocumentID)
	}
}

func TestResolveIngestionIntentForceReindex(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	first, err := s.ResolveIngestionIntent(ctx, "/docs/d.txt", "d.txt", "txt", "text/plain", 10, "checksum-d", false)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	second, err := s.ResolveIngestionIntent(ctx, "/docs/d.txt", "d.txt", "txt", "text/plain", 10, "checksum-d", true)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.Action != IntentReindex {
		t.Fatalf("expected forced reindex, got %v", second.Action)
	}
	if second.DocumentID != first.DocumentID {
		t.Fatalf("expected same document id, got %q and %q", first.DocumentID, second.DocumentID)
	}
}

// TestResolveIngestionIntentSerializesConcurrentNewPath exercises the §5
// serialization property directly against the real SQLite store: N
// concurrent callers racing ResolveIngestionIntent on the same brand-new
// path must yield exactly one IntentNew and leave exactly one documents
// row behind, with every other caller observing existing (same checksum)
// rather than a UNIQUE-constraint error.
func TestResolveIngestionIntentSerializesConcurrentNewPath(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()
	const n = 8
	const path = "/docs/concurrent.txt"

	var wg sync.WaitGroup
	intents := make([]IngestionIntent, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			intents[i], errs[i] = s.ResolveIngestionIntent(ctx, path, "concurrent.txt", "txt", "text/plain", 5, "same-checksum", false)
		}(i)
	}
	wg.Wait()

	newCount := 0
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d got error instead of a serialized intent: %v", i, err)
		}
		if intents[i].Action == IntentNew {
			newCount++
		} else if intents[i].Action != IntentExisting {
			t.Fatalf("caller %d expected new or existing, got %v", i, intents[i].Action)
		}
	}
	if newCount != 1 {
		t.Fatalf("expected exactly one IntentNew among %d callers, got %d", n, newCount)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	count := 0
	for _, d := range docs {
		if d.Path == path {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one documents row for %q, got %d", path, count)
	}
}

func TestInsertAndDeleteChunks(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	intent, err := s.ResolveIngestionIntent(ctx, "/docs/e.txt", "e.txt", "txt", "text/plain", 10, "checksum-e", false)
	if err != nil {
		t.Fatalf("resolving intent: %v", err)
	}

	chunks := []Chunk{
		{ID: "chunk-1", DocumentID: intent.DocumentID, Content: "first chunk", ChunkIndex: 0},
		{ID: "chunk-2", DocumentID: intent.DocumentID, Content: "second chunk", ChunkIndex: 1},
	}
	if err := s.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("inserting chunks: %v", err)
	}

	got, err := s.GetChunksByDocument(ctx, intent.DocumentID)
	if err != nil {
		t.Fatalf("fetching chunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}

	byID, err := s.GetChunksByIDs(ctx, []string{"chunk-1"})
	if err != nil {
		t.Fatalf("fetching chunks by id: %v", err)
	}
	if len(byID) != 1 || byID[0].Content != "first chunk" {
		t.Fatalf("unexpected chunk lookup result: %+v", byID)
	}

	if err := s.DeleteChunksByDocument(ctx, intent.DocumentID); err != nil {
		t.Fatalf("deleting chunks: %v", err)
	}
	remaining, err := s.GetChunksByDocument(ctx, intent.DocumentID)
	if err != nil {
		t.Fatalf("fetching chunks after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no chunks after delete, got %d", len(remaining))
	}
}

func TestDeleteDocumentCascadesChunks(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	intent, err := s.ResolveIngestionIntent(ctx, "/docs/f.txt", "f.txt", "txt", "text/plain", 10, "checksum-f", false)
	if err != nil {
		t.Fatalf("resolving intent: %v", err)
	}
	if err := s.InsertChunks(ctx, []Chunk{{ID: "chunk-f1", DocumentID: intent.DocumentID, Content: "content", ChunkIndex: 0}}); err != nil {
		t.Fatalf("inserting chunk: %v", err)
	}

	ok, err := s.DeleteDocument(ctx, intent.DocumentID)
	if err != nil || !ok {
		t.Fatalf("expected successful delete, got ok=%v err=%v", ok, err)
	}
	if _, err := s.GetDocumentByID(ctx, intent.DocumentID); err == nil {
		t.Fatal("expected document to be gone")
	}
	chunks, err := s.GetChunksByDocument(ctx, intent.DocumentID)
	if err != nil {
		t.Fatalf("fetching chunks for deleted document: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected chunks cascade-deleted, got %d", len(chunks))
	}
}
