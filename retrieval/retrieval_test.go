package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/ragcorp/ragengine/llm"
	"github.com/ragcorp/ragengine/reranker"
	"github.com/ragcorp/ragengine/store"
)

// countingReranker records how many times Rerank was invoked, so tests
// can assert the coordinator-level gate (§4.I step 5) skips the call
// entirely rather than relying on the reranker's own skip behavior.
type countingReranker struct {
	calls int
}

func (c *countingReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]reranker.Result, error) {
	c.calls++
	results := make([]reranker.Result, 0, topN)
	for i := range documents {
		if i >= topN {
			break
		}
		results = append(results, reranker.Result{Index: i, Score: 1.0 - float64(i)*0.01})
	}
	return results, nil
}

type fakeVectorStore struct {
	hits []store.SearchResult
	err  error
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, name string, dim int, metric string) error {
	return nil
}
func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, points []store.Point) error {
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, collection string, queryVector []float32, limit int, scoreThreshold float64, filter store.Filter) ([]store.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}
func (f *fakeVectorStore) DeleteByDocumentID(ctx context.Context, collection string, docID string) error {
	return nil
}
func (f *fakeVectorStore) CollectionInfo(ctx context.Context, collection string) (store.CollectionInfo, error) {
	return store.CollectionInfo{}, nil
}
func (f *fakeVectorStore) Close() error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}
func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return vecs, nil
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	e := New(&fakeVectorStore{}, nil, fakeEmbedder{}, nil, nil, Config{Collection: "docs"})
	outcome, err := e.Search(context.Background(), "   ", Options{Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Results) != 0 {
		t.Fatalf("expected no results for empty query, got %d", len(outcome.Results))
	}
}

func TestSearchReturnsVectorHitsInOrder(t *testing.T) {
	vs := &fakeVectorStore{hits: []store.SearchResult{
		{ChunkID: "a", DocumentID: "d1", Content: "alpha", Score: 0.9},
		{ChunkID: "b", DocumentID: "d1", Content: "beta", Score: 0.8},
	}}
	e := New(vs, nil, fakeEmbedder{}, nil, nil, Config{Collection: "docs"})
	outcome, err := e.Search(context.Background(), "what is alpha", Options{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Results) != 2 || outcome.Results[0].ChunkID != "a" {
		t.Fatalf("unexpected results: %+v", outcome.Results)
	}
}

func TestSearchTruncatesToLimit(t *testing.T) {
	vs := &fakeVectorStore{hits: []store.SearchResult{
		{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8}, {ChunkID: "c", Score: 0.7},
	}}
	e := New(vs, nil, fakeEmbedder{}, nil, nil, Config{Collection: "docs"})
	outcome, err := e.Search(context.Background(), "query text", Options{Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(outcome.Results))
	}
}

func TestSearchSkipsRerankerWhenCandidatesFitWithinLimit(t *testing.T) {
	vs := &fakeVectorStore{hits: []store.SearchResult{
		{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8},
	}}
	rr := &countingReranker{}
	e := New(vs, nil, fakeEmbedder{}, nil, rr, Config{Collection: "docs"})
	outcome, err := e.Search(context.Background(), "query text", Options{Limit: 5, UseReranker: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.calls != 0 {
		t.Fatalf("expected reranker not to be called when results already fit within limit, got %d calls", rr.calls)
	}
	if outcome.RerankUsed {
		t.Fatal("expected RerankUsed to stay false when the reranker is never invoked")
	}
}

func TestSearchInvokesRerankerWhenCandidatesExceedLimit(t *testing.T) {
	vs := &fakeVectorStore{hits: []store.SearchResult{
		{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8}, {ChunkID: "c", Score: 0.7}, {ChunkID: "d", Score: 0.6},
	}}
	rr := &countingReranker{}
	e := New(vs, nil, fakeEmbedder{}, nil, rr, Config{Collection: "docs", CandidateMultiplier: 4})
	outcome, err := e.Search(context.Background(), "query text", Options{Limit: 2, UseReranker: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.calls != 1 {
		t.Fatalf("expected reranker to be called once when candidates exceed limit, got %d calls", rr.calls)
	}
	if !outcome.RerankUsed {
		t.Fatal("expected RerankUsed to be true when the reranker ran")
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("expected results truncated to limit, got %d", len(outcome.Results))
	}
}

func TestSearchPropagatesVectorStoreError(t *testing.T) {
	vs := &fakeVectorStore{err: errors.New("boom")}
	e := New(vs, nil, fakeEmbedder{}, nil, nil, Config{Collection: "docs"})
	_, err := e.Search(context.Background(), "query text", Options{Limit: 5})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
