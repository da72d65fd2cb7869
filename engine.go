// Package ragengine is a document ingestion and retrieval engine: parse
// heterogeneous file formats, chunk and embed their text, store the
// results in a vector + metadata store pair, and answer questions
// grounded in the indexed corpus.
package ragengine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ragcorp/ragengine/ingest"
	"github.com/ragcorp/ragengine/llm"
	"github.com/ragcorp/ragengine/parser"
	"github.com/ragcorp/ragengine/querytransform"
	"github.com/ragcorp/ragengine/reranker"
	"github.com/ragcorp/ragengine/retrieval"
	"github.com/ragcorp/ragengine/store"
)

const defaultCollection = "documents"

// Engine is the top-level handle: it owns the metadata store, vector
// store, LLM providers, and the ingest/retrieval/ask coordinators built
// on top of them.
type Engine struct {
	cfg Config

	db       *sql.DB
	metadata store.MetadataStore
	vectors  store.VectorStore

	chat      llm.Provider
	embedding llm.Provider

	ingest    *ingest.Coordinator
	retrieval *retrieval.Engine
}

// New constructs an Engine from cfg: opens the metadata store, the
// configured vector backend, and the LLM providers, then wires them
// into the ingestion and retrieval coordinators. Call Initialize before
// first use.
func New(cfg Config) (*Engine, error) {
	metadataStore, err := store.NewSQLiteMetadataStore(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataStore, err)
	}

	var vectorStore store.VectorStore
	var vectorDB *sql.DB
	switch cfg.VectorBackend {
	case "qdrant":
		vectorStore, err = store.NewQdrantVectorStore(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.APIKey, cfg.Qdrant.UseTLS)
		if err != nil {
			metadataStore.Close()
			return nil, fmt.Errorf("%w: %v", ErrVectorStore, err)
		}
	default:
		db, openErr := sql.Open("sqlite3", cfg.resolveDBPath()+"?_journal_mode=WAL")
		if openErr != nil {
			metadataStore.Close()
			return nil, fmt.Errorf("%w: %v", ErrVectorStore, openErr)
		}
		vectorDB = db
		vectorStore = store.NewSQLiteVectorStore(db)
	}

	chatProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider, Model: cfg.Chat.Model, BaseURL: cfg.Chat.BaseURL, APIKey: cfg.Chat.APIKey,
	})
	if err != nil {
		metadataStore.Close()
		vectorStore.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	embeddingProvider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider, Model: cfg.Embedding.Model, BaseURL: cfg.Embedding.BaseURL, APIKey: cfg.Embedding.APIKey,
	})
	if err != nil {
		metadataStore.Close()
		vectorStore.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	collection := defaultCollection
	if cfg.VectorBackend == "qdrant" && cfg.Qdrant.Collection != "" {
		collection = cfg.Qdrant.Collection
	}

	dispatcher := parser.NewDispatcher(cfg.MaxFileSizeBytes, secondsOrDefault(cfg.ParseTimeoutSeconds))

	ingestCoord := &ingest.Coordinator{
		Dispatcher:          dispatcher,
		Metadata:            metadataStore,
		Vectors:             vectorStore,
		Embedder:            embeddingProvider,
		Collection:          collection,
		EmbeddingDim:        cfg.EmbeddingDim,
		DefaultChunkSize:    cfg.ChunkSize,
		DefaultChunkOverlap: cfg.ChunkOverlap,
		DefaultMinChunkSize: cfg.MinChunkSize,
		PreserveParagraphs:  cfg.PreserveParas,
	}

	var rr reranker.Reranker = reranker.NoopReranker{}
	if cfg.Reranker.Enabled {
		rr = reranker.New(reranker.Config{BaseURL: cfg.Reranker.BaseURL, Model: cfg.Reranker.Model, APIKey: cfg.Reranker.APIKey})
	}
	transformer := querytransform.New(chatProvider)

	retrievalEngine := retrieval.New(vectorStore, metadataStore, embeddingProvider, transformer, rr, retrieval.Config{
		Collection:          collection,
		CandidateMultiplier: cfg.CandidateMultiplier,
	})

	return &Engine{
		cfg:       cfg,
		db:        vectorDB,
		metadata:  metadataStore,
		vectors:   vectorStore,
		chat:      chatProvider,
		embedding: embeddingProvider,
		ingest:    ingestCoord,
		retrieval: retrievalEngine,
	}, nil
}

func secondsOrDefault(n int) time.Duration {
	if n <= 0 {
		return 60 * time.Second
	}
	return time.Duration(n) * time.Second
}

// Initialize ensures the vector collection and metadata schema are
// ready; it is idempotent and safe to call on every startup.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.ingest.Initialize(ctx)
}

// IndexDocument parses, chunks, embeds, and persists the file at path.
func (e *Engine) IndexDocument(ctx context.Context, path string, opts ingest.Options) ingest.Result {
	return e.ingest.IndexDocument(ctx, path, opts)
}

// IndexText ingests inline content with no backing file.
func (e *Engine) IndexText(ctx context.Context, content, title string, metadata map[string]store.MetaValue) ingest.Result {
	return e.ingest.IndexText(ctx, content, title, metadata, ingest.Options{
		ChunkSize:    e.cfg.ChunkSize,
		ChunkOverlap: e.cfg.ChunkOverlap,
	})
}

// DeleteDocument removes a document and its chunks/vectors.
func (e *Engine) DeleteDocument(ctx context.Context, id string) (bool, error) {
	return e.ingest.DeleteDocument(ctx, id)
}

// Search runs the retrieval pipeline without generating an answer.
func (e *Engine) Search(ctx context.Context, query string, opts retrieval.Options) (*retrieval.Outcome, error) {
	return e.retrieval.Search(ctx, query, opts)
}

// Close releases the underlying store connections.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.vectors.Close(); err != nil {
		firstErr = err
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.metadata.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
