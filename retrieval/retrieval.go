// Package retrieval implements the query-to-chunks search pipeline:
// effective-query selection, embedding, vector search, and optional
// reranking (§4.I).
package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ragcorp/ragengine/llm"
	"github.com/ragcorp/ragengine/querytransform"
	"github.com/ragcorp/ragengine/reranker"
	"github.com/ragcorp/ragengine/store"
)

// Config tunes a retrieval engine's default behavior.
type Config struct {
	Collection          string
	CandidateMultiplier int // k_fetch = limit * CandidateMultiplier when reranking
	ScoreThreshold       float64
}

func (c Config) withDefaults() Config {
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = 4
	}
	return c
}

// Options configures a single search call.
type Options struct {
	Limit          int
	ScoreThreshold float64
	Filter         store.Filter
	UseExpansion   bool
	UseHyDE        bool
	UseReranker    bool
}

// Result is one retrieved chunk, ready for presentation or for the ask
// coordinator's context assembly.
type Result struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float64
	Payload    map[string]any
}

// Outcome carries the search results plus the metadata flags the ask
// coordinator surfaces in its response (§4.J step 7).
type Outcome struct {
	Results        []Result
	QueryExpanded  bool
	HyDEUsed       bool
	RerankUsed     bool
	EffectiveQuery string
}

// Engine performs the §4.I retrieval algorithm: transform the query,
// embed it, search the vector store, and optionally rerank.
type Engine struct {
	vectors   store.VectorStore
	metadata  store.MetadataStore
	embedder  llm.Provider
	transform *querytransform.Transformer
	rerank    reranker.Reranker
	cfg       Config
}

// New builds a retrieval Engine. rr may be reranker.NoopReranker{} to
// disable reranking entirely. metadata is used to batch-fill chunk
// content when the vector store's payload doesn't carry it; pass nil to
// skip that lookup.
func New(vectors store.VectorStore, metadata store.MetadataStore, embedder llm.Provider, transform *querytransform.Transformer, rr reranker.Reranker, cfg Config) *Engine {
	if rr == nil {
		rr = reranker.NoopReranker{}
	}
	return &Engine{
		vectors:   vectors,
		metadata:  metadata,
		embedder:  embedder,
		transform: transform,
		rerank:    rr,
		cfg:       cfg.withDefaults(),
	}
}

// Search runs the full retrieval pipeline for a single query.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Outcome, error) {
	// Step 1: empty-query short-circuit.
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return &Outcome{Results: []Result{}}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	threshold := opts.ScoreThreshold
	if threshold == 0 {
		threshold = e.cfg.ScoreThreshold
	}

	// Step 2: effective-query selection. HyDE wins over expansion when
	// both are requested; both fail soft back to the original query.
	effective := trimmed
	outcome := &Outcome{EffectiveQuery: trimmed}
	if opts.UseHyDE && e.transform != nil && querytransform.ShouldUseHyDE(trimmed) {
		hyde := e.transform.HyDE(ctx, trimmed)
		if hyde != trimmed {
			effective = hyde
			outcome.HyDEUsed = true
		}
	} else if opts.UseExpansion && e.transform != nil {
		expanded := e.transform.Expand(ctx, trimmed)
		if expanded != trimmed {
			effective = expanded
			outcome.QueryExpanded = true
		}
	}
	outcome.EffectiveQuery = effective

	// Step 3: k_fetch widens the candidate pool when a reranker will
	// narrow it back down afterward.
	kFetch := limit
	if opts.UseReranker {
		kFetch = limit * e.cfg.CandidateMultiplier
	}

	// Step 4: embed the effective query.
	queryVector, err := llm.EmbedSingle(ctx, e.embedder, effective)
	if err != nil {
		return nil, err
	}
	if len(queryVector) == 0 {
		return outcome, nil
	}

	// Step 5: vector-store search.
	hits, err := e.vectors.Search(ctx, e.cfg.Collection, queryVector, kFetch, threshold, opts.Filter)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		outcome.Results = []Result{}
		return outcome, nil
	}

	// Step 6: optional rerank with score reconciliation. A negative
	// reranker score (reranker.SentinelScore is -1) means "no opinion":
	// keep the vector score; a score >= 0 replaces it.
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ChunkID: h.ChunkID, DocumentID: h.DocumentID, Content: h.Content, Score: h.Score, Payload: h.Payload}
	}
	e.fillMissingContent(ctx, results)

	if opts.UseReranker && len(results) > limit {
		documents := make([]string, len(results))
		for i, r := range results {
			documents[i] = r.Content
		}
		reranked, err := e.rerank.Rerank(ctx, trimmed, documents, limit)
		if err != nil {
			slog.Warn("retrieval: rerank failed, keeping vector order", "error", err)
		} else {
			reordered := make([]Result, 0, len(reranked))
			for _, rr := range reranked {
				if rr.Index < 0 || rr.Index >= len(results) {
					continue
				}
				r := results[rr.Index]
				if rr.Score >= 0 {
					r.Score = rr.Score
				}
				reordered = append(reordered, r)
			}
			results = reordered
			outcome.RerankUsed = true
		}
	}

	// Step 7: truncate to the requested limit.
	if len(results) > limit {
		results = results[:limit]
	}
	outcome.Results = results
	return outcome, nil
}

// fillMissingContent augments any result whose vector payload lacked
// chunk text with a single batched metadata lookup (§4.I step 4).
func (e *Engine) fillMissingContent(ctx context.Context, results []Result) {
	if e.metadata == nil {
		return
	}
	var missingIDs []string
	for _, r := range results {
		if r.Content == "" {
			missingIDs = append(missingIDs, r.ChunkID)
		}
	}
	if len(missingIDs) == 0 {
		return
	}
	chunks, err := e.metadata.GetChunksByIDs(ctx, missingIDs)
	if err != nil {
		slog.Warn("retrieval: batched chunk content lookup failed", "error", err)
		return
	}
	byID := make(map[string]string, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c.Content
	}
	for i, r := range results {
		if r.Content == "" {
			results[i].Content = byID[r.ChunkID]
		}
	}
}
