package store

import "context"

// Point is a single vector-store record: point_id = chunk id, a fixed
// dimension vector, and a payload carrying at minimum document_id,
// filename, filepath, file_type (§3 "Vector record").
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchResult is one hit from a vector-store similarity search (§4.F
// `search`), augmented by the retrieval coordinator with chunk content
// when the payload alone doesn't carry it.
type SearchResult struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float64
	Payload    map[string]any
}

// CollectionInfo reports the size and health of the vector collection.
type CollectionInfo struct {
	VectorCount int64
	Status      string
}

// Filter narrows a vector search to points whose payload matches. Only
// simple equality filters are required by the core; keyed by payload
// field name.
type Filter map[string]string

// VectorStore is the abstract §4.F interface: upsert, similarity search,
// delete-by-document, collection lifecycle. Two implementations are
// provided — SQLiteVectorStore (sqlite-vec, the default) and
// QdrantVectorStore — selected by Config.VectorBackend.
type VectorStore interface {
	// EnsureCollection creates the named collection with the given
	// dimension and distance metric if it does not already exist.
	// Idempotent.
	EnsureCollection(ctx context.Context, name string, dim int, metric string) error

	// Upsert replaces each point by id in full.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns the limit nearest neighbours to queryVector with
	// score >= scoreThreshold, sorted by descending similarity.
	Search(ctx context.Context, collection string, queryVector []float32, limit int, scoreThreshold float64, filter Filter) ([]SearchResult, error)

	// DeleteByDocumentID removes every point whose payload document_id
	// matches docID.
	DeleteByDocumentID(ctx context.Context, collection string, docID string) error

	// CollectionInfo reports point count and health.
	CollectionInfo(ctx context.Context, collection string) (CollectionInfo, error)

	// Close releases the underlying client connection.
	Close() error
}

// MetricCosine is the only distance metric the core requires.
const MetricCosine = "cosine"
