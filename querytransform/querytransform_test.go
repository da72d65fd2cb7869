package querytransform

import (
	"context"
	"errors"
	"testing"

	"github.com/ragcorp/ragengine/llm"
)

type fakeProvider struct {
	content string
	err     error
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.content}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestExpandReturnsRewrittenQuery(t *testing.T) {
	tr := New(&fakeProvider{content: "expanded query terms"})
	got := tr.Expand(context.Background(), "original query")
	if got != "expanded query terms" {
		t.Errorf("Expand() = %q, want expanded text", got)
	}
}

func TestExpandFailsSoft(t *testing.T) {
	tr := New(&fakeProvider{err: errors.New("boom")})
	got := tr.Expand(context.Background(), "original query")
	if got != "original query" {
		t.Errorf("Expand() on error = %q, want original query unchanged", got)
	}
}

func TestHyDEFailsSoft(t *testing.T) {
	tr := New(&fakeProvider{err: errors.New("boom")})
	got := tr.HyDE(context.Background(), "what is the capital of France")
	if got != "what is the capital of France" {
		t.Errorf("HyDE() on error = %q, want original query unchanged", got)
	}
}

func TestHyDEReturnsSyntheticDocument(t *testing.T) {
	tr := New(&fakeProvider{content: "Paris is the capital of France."})
	got := tr.HyDE(context.Background(), "what is the capital of France")
	if got != "Paris is the capital of France." {
		t.Errorf("HyDE() = %q, want synthetic document", got)
	}
}

func TestShouldUseHyDE(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"", false},
		{"foo", false},
		{"database connection pool timeout", false}, // keyword-style, no stopwords
		{"why does the database connection pool time out", true},
		{"what is the meaning of this error?", true},
	}
	for _, tt := range tests {
		if got := ShouldUseHyDE(tt.query); got != tt.want {
			t.Errorf("ShouldUseHyDE(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
