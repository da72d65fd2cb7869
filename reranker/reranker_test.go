package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRerankSkipsWhenDocumentsFitWithinTopN(t *testing.T) {
	r := New(Config{BaseURL: "http://unused.invalid"})
	results, err := r.Rerank(context.Background(), "q", []string{"a", "b"}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 passthrough results, got %d", len(results))
	}
	for i, res := range results {
		if res.Index != i || res.Score != SentinelScore {
			t.Errorf("result %d = %+v, want index %d score %v", i, res, i, SentinelScore)
		}
	}
}

func TestRerankPassesThroughOnTransportFailure(t *testing.T) {
	r := New(Config{BaseURL: "http://127.0.0.1:0"}) // nothing listening
	results, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("reranker must never propagate failure, got error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected top_n=2 passthrough results, got %d", len(results))
	}
	for _, res := range results {
		if res.Score != SentinelScore {
			t.Errorf("expected sentinel score on failure, got %v", res.Score)
		}
	}
}

func TestRerankUsesServerScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body rerankRequest
		json.NewDecoder(req.Body).Decode(&body)
		resp := rerankResponse{Results: []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		}{
			{Index: 1, RelevanceScore: 0.9},
			{Index: 0, RelevanceScore: 0.2},
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL, Model: "test-reranker"})
	results, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].Index != 1 || results[0].Score != 0.9 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestNoopRerankerAlwaysPassesThrough(t *testing.T) {
	results, err := (NoopReranker{}).Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}
