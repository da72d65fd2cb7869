package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	vectors [][]float32
	err     error
}

func (f fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func TestEmbedSingleUnwrapsFirstVector(t *testing.T) {
	p := fakeProvider{vectors: [][]float32{{0.1, 0.2, 0.3}}}
	vec, err := EmbedSingle(context.Background(), p, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedSinglePropagatesError(t *testing.T) {
	p := fakeProvider{err: errors.New("boom")}
	_, err := EmbedSingle(context.Background(), p, "hello")
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestEmbedSingleEmptyResultYieldsNilVector(t *testing.T) {
	p := fakeProvider{vectors: [][]float32{}}
	vec, err := EmbedSingle(context.Background(), p, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 0 {
		t.Fatalf("expected empty vector, got %v", vec)
	}
}
