package store

import (
	"context"
	"time"
)

// Document is a row in the documents table (§3 "Document").
type Document struct {
	ID          string
	Path        string // original path or virtual source URI, unique
	Filename    string
	FileType    string // one of the closed set: txt,md,pdf,docx,pptx,xlsx,csv,html,json,rtf
	MIMEType    string
	SizeBytes   int64
	Checksum    string
	Status      string // pending | processing | indexed | failed
	ChunkCount  int
	Metadata    map[string]MetaValue
	Summary     string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IndexedAt   *time.Time
}

// MetaValue mirrors parser.MetaValue so the metadata store can persist
// open-schema document metadata without importing the parser package
// (which in turn must not depend on store). Kept structurally identical;
// converted at the ingest coordinator boundary.
type MetaValue struct {
	Kind string
	Str  string
	Num  float64
	Bool bool
	Arr  []string
}

// Chunk is a row in the chunks table (§3 "Chunk"), owned by exactly one
// Document, cascade-deleted with it.
type Chunk struct {
	ID          string
	DocumentID  string
	Content     string
	ChunkIndex  int
	StartOffset int
	EndOffset   int
	TokenCount  int
	Metadata    map[string]MetaValue
}

// IntentAction is the outcome of the ingestion-intent decision (§4.H
// step 3 / §5 "Cross-ingestion serialization").
type IntentAction string

const (
	IntentExisting IntentAction = "existing"
	IntentReindex  IntentAction = "reindex"
	IntentNew      IntentAction = "new"
)

// IngestionIntent is the result of resolving what index_document should
// do for a given path + checksum, decided atomically inside one
// metadata transaction so concurrent ingestions of the same path
// serialize through it.
type IngestionIntent struct {
	Action     IntentAction
	DocumentID string
	ChunkCount int
}

// MetadataStore is the abstract §4.G interface: a relational key-value
// store with transactional semantics over Document and Chunk entities.
type MetadataStore interface {
	// ResolveIngestionIntent performs §4.H step 3 atomically: decides
	// existing/reindex/new for path+checksum and, for the "new" case,
	// inserts the pending Document row in the same transaction. This is
	// the serialization point for concurrent index_document calls on
	// the same path (§5).
	ResolveIngestionIntent(ctx context.Context, path, filename, fileType, mimeType string, sizeBytes int64, checksum string, forceReindex bool) (IngestionIntent, error)

	InsertDocument(ctx context.Context, doc Document) error
	UpdateDocumentStatus(ctx context.Context, id, status string, errMsg string) error
	MarkIndexed(ctx context.Context, id string, chunkCount int, metadata map[string]MetaValue, indexedAt time.Time) error
	GetDocumentByID(ctx context.Context, id string) (*Document, error)
	GetDocumentByPath(ctx context.Context, path string) (*Document, error)
	GetDocumentsByPaths(ctx context.Context, paths []string) ([]Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)

	InsertChunks(ctx context.Context, chunks []Chunk) error
	GetChunksByDocument(ctx context.Context, docID string) ([]Chunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error)
	DeleteChunksByDocument(ctx context.Context, docID string) error

	// WithTransaction executes fn atomically; on error it rolls back and
	// returns the error. Nested calls are disallowed (§4.G).
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	Close() error
}
