package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ragcorp/ragengine/llm"
	"github.com/ragcorp/ragengine/parser"
	"github.com/ragcorp/ragengine/store"
)

type fakeMetadataStore struct {
	docs      map[string]store.Document
	docsByID  map[string]*store.Document
	chunks    map[string][]store.Chunk
	nextID    int
	resolveFn func(path, checksum string, forceReindex bool) store.IngestionIntent
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		docs:     map[string]store.Document{},
		docsByID: map[string]*store.Document{},
		chunks:   map[string][]store.Chunk{},
	}
}

func (f *fakeMetadataStore) ResolveIngestionIntent(ctx context.Context, path, filename, fileType, mimeType string, sizeBytes int64, checksum string, forceReindex bool) (store.IngestionIntent, error) {
	if existing, ok := f.docs[path]; ok {
		if existing.Checksum == checksum && !forceReindex {
			return store.IngestionIntent{Action: store.IntentExisting, DocumentID: existing.ID, ChunkCount: existing.ChunkCount}, nil
		}
		return store.IngestionIntent{Action: store.IntentReindex, DocumentID: existing.ID}, nil
	}
	f.nextID++
	id := filepath.Base(path) + "-id"
	doc := store.Document{ID: id, Path: path, Filename: filename, FileType: fileType, MIMEType: mimeType, SizeBytes: sizeBytes, Checksum: checksum, Status: "pending"}
	f.docs[path] = doc
	f.docsByID[id] = &doc
	return store.IngestionIntent{Action: store.IntentNew, DocumentID: id}, nil
}

func (f *fakeMetadataStore) InsertDocument(ctx context.Context, doc store.Document) error {
	f.docs[doc.Path] = doc
	d := doc
	f.docsByID[doc.ID] = &d
	return nil
}

func (f *fakeMetadataStore) UpdateDocumentStatus(ctx context.Context, id, status string, errMsg string) error {
	if d, ok := f.docsByID[id]; ok {
		d.Status = status
	}
	return nil
}

func (f *fakeMetadataStore) MarkIndexed(ctx context.Context, id string, chunkCount int, metadata map[string]store.MetaValue, indexedAt time.Time) error {
	if d, ok := f.docsByID[id]; ok {
		d.Status = "indexed"
		d.ChunkCount = chunkCount
	}
	return nil
}

func (f *fakeMetadataStore) GetDocumentByID(ctx context.Context, id string) (*store.Document, error) {
	if d, ok := f.docsByID[id]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}
func (f *fakeMetadataStore) GetDocumentByPath(ctx context.Context, path string) (*store.Document, error) {
	if d, ok := f.docs[path]; ok {
		return &d, nil
	}
	return nil, errors.New("not found")
}
func (f *fakeMetadataStore) GetDocumentsByPaths(ctx context.Context, paths []string) ([]store.Document, error) {
	return nil, nil
}
func (f *fakeMetadataStore) ListDocuments(ctx context.Context) ([]store.Document, error) { return nil, nil }

func (f *fakeMetadataStore) DeleteDocument(ctx context.Context, id string) (bool, error) {
	for path, d := range f.docs {
		if d.ID == id {
			delete(f.docs, path)
			delete(f.docsByID, id)
			delete(f.chunks, id)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMetadataStore) InsertChunks(ctx context.Context, chunks []store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	f.chunks[chunks[0].DocumentID] = append(f.chunks[chunks[0].DocumentID], chunks...)
	return nil
}
func (f *fakeMetadataStore) GetChunksByDocument(ctx context.Context, docID string) ([]store.Chunk, error) {
	return f.chunks[docID], nil
}
func (f *fakeMetadataStore) GetChunksByIDs(ctx context.Context, ids []string) ([]store.Chunk, error) {
	return nil, nil
}
func (f *fakeMetadataStore) DeleteChunksByDocument(ctx context.Context, docID string) error {
	delete(f.chunks, docID)
	return nil
}
func (f *fakeMetadataStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (f *fakeMetadataStore) Close() error { return nil }

type fakeVectorStore struct {
	upserted map[string][]store.Point
	failUpsert bool
}

func newFakeVectorStore() *fakeVectorStore { return &fakeVectorStore{upserted: map[string][]store.Point{}} }

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, name string, dim int, metric string) error {
	return nil
}
func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, points []store.Point) error {
	if f.failUpsert {
		return errors.New("upsert failed")
	}
	f.upserted[collection] = append(f.upserted[collection], points...)
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, collection string, queryVector []float32, limit int, scoreThreshold float64, filter store.Filter) ([]store.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) DeleteByDocumentID(ctx context.Context, collection string, docID string) error {
	kept := f.upserted[collection][:0]
	for _, p := range f.upserted[collection] {
		if p.Payload["document_id"] != docID {
			kept = append(kept, p)
		}
	}
	f.upserted[collection] = kept
	return nil
}
func (f *fakeVectorStore) CollectionInfo(ctx context.Context, collection string) (store.CollectionInfo, error) {
	return store.CollectionInfo{}, nil
}
func (f *fakeVectorStore) Close() error { return nil }

type fakeEmbedder struct{ failCount bool }

func (fakeEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}
func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failCount {
		return nil, nil
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2}
	}
	return vecs, nil
}

func newTestCoordinator(meta *fakeMetadataStore, vec *fakeVectorStore, emb llm.Provider) *Coordinator {
	return &Coordinator{
		Dispatcher:          parser.NewDispatcher(10*1024*1024, 60*time.Second),
		Metadata:            meta,
		Vectors:             vec,
		Embedder:            emb,
		Collection:           "documents",
		EmbeddingDim:        2,
		DefaultChunkSize:    512,
		DefaultChunkOverlap: 50,
		DefaultMinChunkSize: 10,
		PreserveParagraphs:  true,
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestIndexDocumentNewFileSucceeds(t *testing.T) {
	meta := newFakeMetadataStore()
	vec := newFakeVectorStore()
	c := newTestCoordinator(meta, vec, fakeEmbedder{})

	path := writeTempFile(t, "This is a short test document with enough words to chunk.")
	result := c.IndexDocument(context.Background(), path, Options{})
	if result.Status != "success" {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.ChunkCount == 0 {
		t.Fatal("expected at least one chunk")
	}
	if len(vec.upserted["documents"]) != result.ChunkCount {
		t.Fatalf("expected %d upserted points, got %d", result.ChunkCount, len(vec.upserted["documents"]))
	}
}

func TestIndexDocumentIdempotentOnUnchangedContent(t *testing.T) {
	meta := newFakeMetadataStore()
	vec := newFakeVectorStore()
	c := newTestCoordinator(meta, vec, fakeEmbedder{})

	path := writeTempFile(t, "Repeatable content for idempotency checks.")
	first := c.IndexDocument(context.Background(), path, Options{})
	second := c.IndexDocument(context.Background(), path, Options{})

	if first.DocumentID != second.DocumentID {
		t.Fatalf("expected same document id, got %q and %q", first.DocumentID, second.DocumentID)
	}
	if len(vec.upserted["documents"]) != first.ChunkCount {
		t.Fatalf("expected no duplicate upserts on second call, got %d points", len(vec.upserted["documents"]))
	}
}

func TestIndexDocumentRejectsUnsupportedExtensionBeforeTouchingMetadata(t *testing.T) {
	meta := newFakeMetadataStore()
	vec := newFakeVectorStore()
	c := newTestCoordinator(meta, vec, fakeEmbedder{})

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.exe")
	if err := os.WriteFile(path, []byte("not a real document"), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	result := c.IndexDocument(context.Background(), path, Options{})
	if result.Status != "failed" {
		t.Fatalf("expected failure for unsupported extension, got %+v", result)
	}
	if len(meta.docs) != 0 {
		t.Fatalf("expected no document row for a rejected extension, got %d", len(meta.docs))
	}
}

func TestIndexDocumentRejectsOversizedFileBeforeTouchingMetadata(t *testing.T) {
	meta := newFakeMetadataStore()
	vec := newFakeVectorStore()
	c := &Coordinator{
		Dispatcher:          parser.NewDispatcher(8, time.Minute),
		Metadata:            meta,
		Vectors:             vec,
		Embedder:            fakeEmbedder{},
		Collection:          "documents",
		EmbeddingDim:        2,
		DefaultChunkSize:    512,
		DefaultChunkOverlap: 50,
		DefaultMinChunkSize: 10,
		PreserveParagraphs:  true,
	}

	path := writeTempFile(t, "This content is longer than eight bytes.")
	result := c.IndexDocument(context.Background(), path, Options{})
	if result.Status != "failed" {
		t.Fatalf("expected failure for oversized file, got %+v", result)
	}
	if len(meta.docs) != 0 {
		t.Fatalf("expected no document row for a rejected oversized file, got %d", len(meta.docs))
	}
}

func TestIndexDocumentFailsOnEmbeddingMismatch(t *testing.T) {
	meta := newFakeMetadataStore()
	vec := newFakeVectorStore()
	c := newTestCoordinator(meta, vec, fakeEmbedder{failCount: true})

	path := writeTempFile(t, "Some content long enough to produce multiple chunks across paragraphs.\n\nSecond paragraph here.")
	result := c.IndexDocument(context.Background(), path, Options{})
	if result.Status != "failed" {
		t.Fatalf("expected failure on embedding count mismatch, got %+v", result)
	}
}

func TestIndexDocumentCompensatesOnVectorUpsertFailure(t *testing.T) {
	meta := newFakeMetadataStore()
	vec := newFakeVectorStore()
	vec.failUpsert = true
	c := newTestCoordinator(meta, vec, fakeEmbedder{})

	path := writeTempFile(t, "Content that will fail to upsert into the vector store.")
	result := c.IndexDocument(context.Background(), path, Options{})
	if result.Status != "failed" {
		t.Fatalf("expected failure, got %+v", result)
	}
	doc, err := meta.GetDocumentByID(context.Background(), result.DocumentID)
	if err != nil {
		t.Fatalf("expected document row to still exist: %v", err)
	}
	if doc.Status != StatusFailed {
		t.Fatalf("expected status %q, got %q", StatusFailed, doc.Status)
	}
}

func TestIndexTextRejectsEmptyContent(t *testing.T) {
	meta := newFakeMetadataStore()
	vec := newFakeVectorStore()
	c := newTestCoordinator(meta, vec, fakeEmbedder{})

	result := c.IndexText(context.Background(), "   ", "title", nil, Options{})
	if result.Status != "failed" {
		t.Fatalf("expected failure for empty content, got %+v", result)
	}
}

func TestDeleteDocumentRemovesRowAndVectors(t *testing.T) {
	meta := newFakeMetadataStore()
	vec := newFakeVectorStore()
	c := newTestCoordinator(meta, vec, fakeEmbedder{})

	path := writeTempFile(t, "Content to delete afterward.")
	result := c.IndexDocument(context.Background(), path, Options{})
	ok, err := c.DeleteDocument(context.Background(), result.DocumentID)
	if err != nil || !ok {
		t.Fatalf("expected successful delete, got ok=%v err=%v", ok, err)
	}
	if _, err := meta.GetDocumentByID(context.Background(), result.DocumentID); err == nil {
		t.Fatal("expected document to be gone after delete")
	}
	if n := len(vec.upserted["documents"]); n != 0 {
		t.Fatalf("expected no vectors left after delete, got %d", n)
	}
}
