// Package ingest implements the end-to-end ingestion pipeline: parse,
// chunk, embed, and persist a document with content-addressed
// deduplication and cross-store consistency (§4.H).
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragcorp/ragengine/chunker"
	"github.com/ragcorp/ragengine/llm"
	"github.com/ragcorp/ragengine/parser"
	"github.com/ragcorp/ragengine/store"
)

// Status values a Document can hold.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// Result is the outward-facing shape of an ingestion outcome (§6
// "IngestionResult").
type Result struct {
	DocumentID string
	ChunkCount int
	Status     string // "success" | "failed"
	Error      string
}

// Options tunes a single index_document call; zero values fall back to
// the coordinator's configured defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	ForceReindex bool
}

// Coordinator wires the parser dispatcher, chunker, embedding provider,
// metadata store, and vector store into the ingestion pipeline.
type Coordinator struct {
	Dispatcher   *parser.Dispatcher
	Metadata     store.MetadataStore
	Vectors      store.VectorStore
	Embedder     llm.Provider
	Collection   string
	EmbeddingDim int

	DefaultChunkSize     int
	DefaultChunkOverlap  int
	DefaultMinChunkSize  int
	PreserveParagraphs   bool
}

// Initialize is idempotent: it ensures the vector collection exists.
// Metadata schema migrations run at metadata-store construction time, not
// here.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if err := c.Vectors.EnsureCollection(ctx, c.Collection, c.EmbeddingDim, store.MetricCosine); err != nil {
		return fmt.Errorf("ragengine: vector store error: %w", err)
	}
	return nil
}

// IndexDocument implements the §4.H pipeline for a file on disk.
func (c *Coordinator) IndexDocument(ctx context.Context, path string, opts Options) Result {
	info, err := os.Stat(path)
	if err != nil {
		return failedResult("", fmt.Sprintf("ragengine: path is not a regular file: %s", path))
	}
	if info.IsDir() {
		return failedResult("", fmt.Sprintf("ragengine: path is not a regular file: %s", path))
	}

	// §4.H step 1: reject unsupported extensions and oversized files before
	// step 2's checksum computation, so an invalid file never gets a
	// Document row inserted on its way to failing.
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !c.Dispatcher.SupportsExtension(ext) {
		return failedResult("", fmt.Sprintf("ragengine: unsupported document format: %s", ext))
	}
	if maxSize := c.Dispatcher.MaxFileSizeBytes(); maxSize > 0 && info.Size() > maxSize {
		return failedResult("", fmt.Sprintf("ragengine: file exceeds maximum size: %d bytes (max %d)", info.Size(), maxSize))
	}

	checksum, size, mimeType, err := hashFile(path)
	if err != nil {
		return failedResult("", fmt.Sprintf("ragengine: could not read file: %v", err))
	}

	filename := filepath.Base(path)

	intent, err := c.Metadata.ResolveIngestionIntent(ctx, path, filename, ext, mimeType, size, checksum, opts.ForceReindex)
	if err != nil {
		return failedResult("", fmt.Sprintf("ragengine: metadata store error: %v", err))
	}

	switch intent.Action {
	case store.IntentExisting:
		return Result{DocumentID: intent.DocumentID, ChunkCount: intent.ChunkCount, Status: "success"}

	case store.IntentReindex:
		if err := c.Vectors.DeleteByDocumentID(ctx, c.Collection, intent.DocumentID); err != nil {
			slog.Warn("ingest: failed to delete old vectors before reindex", "document_id", intent.DocumentID, "error", err)
		}
		if _, err := c.Metadata.DeleteDocument(ctx, intent.DocumentID); err != nil {
			return failedResult(intent.DocumentID, fmt.Sprintf("ragengine: metadata store error: %v", err))
		}
		return c.IndexDocument(ctx, path, Options{ChunkSize: opts.ChunkSize, ChunkOverlap: opts.ChunkOverlap, ForceReindex: false})

	case store.IntentNew:
		return c.ingestNew(ctx, intent.DocumentID, path, filename, ext, mimeType, size, checksum, opts)
	}

	return failedResult("", "ragengine: unreachable ingestion intent")
}

// ingestNew runs steps 6.a-6.g of §4.H for a freshly minted document.
func (c *Coordinator) ingestNew(ctx context.Context, docID, path, filename, ext, mimeType string, size int64, checksum string, opts Options) Result {
	if err := c.Metadata.UpdateDocumentStatus(ctx, docID, StatusProcessing, ""); err != nil {
		return failedResult(docID, fmt.Sprintf("ragengine: metadata store error: %v", err))
	}

	parsed, err := c.Dispatcher.Parse(ctx, path)
	if err != nil {
		c.failDocument(ctx, docID, fmt.Sprintf("ragengine: parsing failed: %v", err))
		return failedResult(docID, "ragengine: parsing failed")
	}

	text := parsed.Content()
	chunkOpts := chunker.Options{
		ChunkSize:          firstNonZero(opts.ChunkSize, c.DefaultChunkSize),
		ChunkOverlap:       firstNonZero(opts.ChunkOverlap, c.DefaultChunkOverlap),
		MinChunkSize:       c.DefaultMinChunkSize,
		PreserveParagraphs: c.PreserveParagraphs,
	}
	rawChunks := chunker.Chunk(text, chunkOpts)
	if len(rawChunks) == 0 {
		c.failDocument(ctx, docID, "ragengine: no content to index")
		return failedResult(docID, "ragengine: no content to index")
	}

	contents := make([]string, len(rawChunks))
	for i, rc := range rawChunks {
		contents[i] = rc.Content
	}
	vectors, err := c.Embedder.Embed(ctx, contents)
	if err != nil {
		c.failDocument(ctx, docID, fmt.Sprintf("ragengine: embedding service error: %v", err))
		return failedResult(docID, "ragengine: embedding service error")
	}
	if len(vectors) != len(rawChunks) {
		c.failDocument(ctx, docID, "ragengine: embedding count mismatch")
		return failedResult(docID, "ragengine: embedding count mismatch")
	}

	chunks := make([]store.Chunk, len(rawChunks))
	chunkIDs := make([]string, len(rawChunks))
	for i, rc := range rawChunks {
		id := uuid.NewString()
		chunkIDs[i] = id
		chunks[i] = store.Chunk{
			ID:          id,
			DocumentID:  docID,
			Content:     rc.Content,
			ChunkIndex:  rc.ChunkIndex,
			StartOffset: rc.StartOffset,
			EndOffset:   rc.EndOffset,
			TokenCount:  rc.TokenCount,
		}
	}

	if err := c.Metadata.WithTransaction(ctx, func(ctx context.Context) error {
		return c.Metadata.InsertChunks(ctx, chunks)
	}); err != nil {
		c.failDocument(ctx, docID, fmt.Sprintf("ragengine: metadata store error: %v", err))
		return failedResult(docID, "ragengine: metadata store error")
	}

	points := make([]store.Point, len(chunks))
	for i, ch := range chunks {
		points[i] = store.Point{
			ID:     ch.ID,
			Vector: vectors[i],
			Payload: map[string]any{
				"document_id": docID,
				"filename":    filename,
				"filepath":    path,
				"file_type":   ext,
			},
		}
	}
	if err := c.Vectors.Upsert(ctx, c.Collection, points); err != nil {
		// Chunks committed but vectors failed: roll forward to a clean
		// "failed, no vectors" state. The committed chunk rows stay with
		// the failed Document.
		if delErr := c.Vectors.DeleteByDocumentID(ctx, c.Collection, docID); delErr != nil {
			slog.Warn("ingest: compensation delete failed", "document_id", docID, "error", delErr)
		}
		c.failDocument(ctx, docID, fmt.Sprintf("ragengine: vector store error: %v", err))
		return failedResult(docID, "ragengine: vector store error")
	}

	metadata := convertParserMetadata(parsed.Metadata)
	if err := c.Metadata.MarkIndexed(ctx, docID, len(chunks), metadata, time.Now().UTC()); err != nil {
		return failedResult(docID, fmt.Sprintf("ragengine: metadata store error: %v", err))
	}

	return Result{DocumentID: docID, ChunkCount: len(chunks), Status: "success"}
}

// IndexText ingests inline content with no file I/O and no checksum
// collision check: every call mints a fresh document at a virtual path.
func (c *Coordinator) IndexText(ctx context.Context, content, title string, metadata map[string]store.MetaValue, opts Options) Result {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return failedResult("", "ragengine: no content to index")
	}

	docID := uuid.NewString()
	path := "memory://" + docID
	filename := title
	if filename == "" {
		filename = docID
	}
	checksum := sha256Hex(content)

	doc := store.Document{
		ID:         docID,
		Path:       path,
		Filename:   filename,
		FileType:   "txt",
		MIMEType:   "text/plain",
		SizeBytes:  int64(len(content)),
		Checksum:   checksum,
		Status:     StatusPending,
		ChunkCount: 0,
		Metadata:   map[string]store.MetaValue{},
	}
	if err := c.Metadata.InsertDocument(ctx, doc); err != nil {
		return failedResult("", fmt.Sprintf("ragengine: metadata store error: %v", err))
	}

	if err := c.Metadata.UpdateDocumentStatus(ctx, docID, StatusProcessing, ""); err != nil {
		return failedResult(docID, fmt.Sprintf("ragengine: metadata store error: %v", err))
	}

	chunkOpts := chunker.Options{
		ChunkSize:          firstNonZero(opts.ChunkSize, c.DefaultChunkSize),
		ChunkOverlap:       firstNonZero(opts.ChunkOverlap, c.DefaultChunkOverlap),
		MinChunkSize:       c.DefaultMinChunkSize,
		PreserveParagraphs: c.PreserveParagraphs,
	}
	rawChunks := chunker.Chunk(trimmed, chunkOpts)
	if len(rawChunks) == 0 {
		c.failDocument(ctx, docID, "ragengine: no content to index")
		return failedResult(docID, "ragengine: no content to index")
	}

	contents := make([]string, len(rawChunks))
	for i, rc := range rawChunks {
		contents[i] = rc.Content
	}
	vectors, err := c.Embedder.Embed(ctx, contents)
	if err != nil {
		c.failDocument(ctx, docID, fmt.Sprintf("ragengine: embedding service error: %v", err))
		return failedResult(docID, "ragengine: embedding service error")
	}
	if len(vectors) != len(rawChunks) {
		c.failDocument(ctx, docID, "ragengine: embedding count mismatch")
		return failedResult(docID, "ragengine: embedding count mismatch")
	}

	chunks := make([]store.Chunk, len(rawChunks))
	for i, rc := range rawChunks {
		chunks[i] = store.Chunk{
			ID:          uuid.NewString(),
			DocumentID:  docID,
			Content:     rc.Content,
			ChunkIndex:  rc.ChunkIndex,
			StartOffset: rc.StartOffset,
			EndOffset:   rc.EndOffset,
			TokenCount:  rc.TokenCount,
		}
	}
	if err := c.Metadata.WithTransaction(ctx, func(ctx context.Context) error {
		return c.Metadata.InsertChunks(ctx, chunks)
	}); err != nil {
		c.failDocument(ctx, docID, fmt.Sprintf("ragengine: metadata store error: %v", err))
		return failedResult(docID, "ragengine: metadata store error")
	}

	points := make([]store.Point, len(chunks))
	for i, ch := range chunks {
		points[i] = store.Point{
			ID:     ch.ID,
			Vector: vectors[i],
			Payload: map[string]any{
				"document_id": docID,
				"filename":    filename,
				"filepath":    path,
				"file_type":   "txt",
			},
		}
	}
	if err := c.Vectors.Upsert(ctx, c.Collection, points); err != nil {
		if delErr := c.Vectors.DeleteByDocumentID(ctx, c.Collection, docID); delErr != nil {
			slog.Warn("ingest: compensation delete failed", "document_id", docID, "error", delErr)
		}
		c.failDocument(ctx, docID, fmt.Sprintf("ragengine: vector store error: %v", err))
		return failedResult(docID, "ragengine: vector store error")
	}

	if err := c.Metadata.MarkIndexed(ctx, docID, len(chunks), metadata, time.Now().UTC()); err != nil {
		return failedResult(docID, fmt.Sprintf("ragengine: metadata store error: %v", err))
	}

	return Result{DocumentID: docID, ChunkCount: len(chunks), Status: "success"}
}

// DeleteDocument removes a document's vectors, then its row (cascading
// to its chunks). Vectors are removed first so a failure after row
// deletion never leaves dangling vectors (§4.H, §5).
func (c *Coordinator) DeleteDocument(ctx context.Context, id string) (bool, error) {
	if err := c.Vectors.DeleteByDocumentID(ctx, c.Collection, id); err != nil {
		return false, fmt.Errorf("ragengine: vector store error: %w", err)
	}
	return c.Metadata.DeleteDocument(ctx, id)
}

func (c *Coordinator) failDocument(ctx context.Context, docID, message string) {
	if err := c.Metadata.UpdateDocumentStatus(ctx, docID, StatusFailed, message); err != nil {
		slog.Error("ingest: failed to record failure status", "document_id", docID, "error", err)
	}
}

func failedResult(docID, message string) Result {
	return Result{DocumentID: docID, Status: "failed", Error: message}
}

func firstNonZero(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// hashFile streams the file to compute its SHA-256 checksum without
// buffering it wholesale, per §4.H step 2.
func hashFile(path string) (checksum string, size int64, mimeType string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	sniff := make([]byte, 512)
	n, _ := f.Read(sniff)
	mimeType = http.DetectContentType(sniff[:n])
	h.Write(sniff[:n])

	written, err := io.Copy(h, f)
	if err != nil {
		return "", 0, "", err
	}
	size = int64(n) + written
	return hex.EncodeToString(h.Sum(nil)), size, mimeType, nil
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// convertParserMetadata adapts parser.MetaValue (parser package output)
// to store.MetaValue (metadata store input); the two are structurally
// identical but kept as distinct types so parser and store remain
// independent of one another.
func convertParserMetadata(in map[string]parser.MetaValue) map[string]store.MetaValue {
	out := make(map[string]store.MetaValue, len(in))
	for k, v := range in {
		out[k] = store.MetaValue{Kind: v.Kind, Str: v.Str, Num: v.Num, Bool: v.Bool, Arr: v.Arr}
	}
	return out
}
