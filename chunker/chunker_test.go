package chunker

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"crlf", "a\r\nb\r\nc", "a\nb\nc"},
		{"bare cr", "a\rb", "a\nb"},
		{"collapses spaces and tabs", "a   b\t\tc", "a b c"},
		{"collapses 3+ newlines to two", "a\n\n\n\nb", "a\n\nb"},
		{"trims surrounding whitespace", "  \n a \n  ", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Errorf("EstimateTokens(4 chars) = %d, want 1", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("EstimateTokens(5 chars) = %d, want 2 (ceil)", got)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\n"} {
		if got := Chunk(in, DefaultOptions()); got != nil {
			t.Errorf("Chunk(%q) = %v, want nil", in, got)
		}
	}
}

func TestChunkPreservesParagraphsWhenSmall(t *testing.T) {
	text := "first paragraph here.\n\nsecond paragraph here.\n\nthird paragraph here."
	opts := Options{ChunkSize: 512, ChunkOverlap: 50, MinChunkSize: 1, PreserveParagraphs: true}
	chunks := Chunk(text, opts)
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk for small input, got %d: %+v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0].Content, "first paragraph") || !strings.Contains(chunks[0].Content, "third paragraph") {
		t.Errorf("chunk content missing expected paragraphs: %q", chunks[0].Content)
	}
}

func TestChunkSplitsAtParagraphBoundary(t *testing.T) {
	longPara := strings.Repeat("word ", 100) // ~500 chars, ~125 tokens
	text := longPara + "\n\n" + longPara + "\n\n" + longPara
	opts := Options{ChunkSize: 130, ChunkOverlap: 10, MinChunkSize: 1, PreserveParagraphs: true}
	chunks := Chunk(text, opts)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has ChunkIndex %d", i, c.ChunkIndex)
		}
		if c.StartOffset < 0 || c.EndOffset > len(Normalize(text)) || c.StartOffset >= c.EndOffset {
			t.Errorf("chunk %d has invalid offsets [%d, %d)", i, c.StartOffset, c.EndOffset)
		}
	}
}

func TestChunkDropsBelowMinimumExceptFinal(t *testing.T) {
	text := "short.\n\n" + strings.Repeat("word ", 200)
	opts := Options{ChunkSize: 50, ChunkOverlap: 5, MinChunkSize: 40, PreserveParagraphs: true}
	chunks := Chunk(text, opts)
	for i, c := range chunks {
		if i == len(chunks)-1 {
			continue // the final chunk is exempt
		}
		if c.TokenCount < opts.MinChunkSize {
			t.Errorf("chunk below min_chunk_size survived: tokens=%d content=%q", c.TokenCount, c.Content)
		}
	}
}

func TestChunkFallsBackToWindowWhenParagraphTooLarge(t *testing.T) {
	oneHugeParagraph := strings.Repeat("word ", 1000)
	opts := Options{ChunkSize: 50, ChunkOverlap: 5, MinChunkSize: 1, PreserveParagraphs: true}
	chunks := Chunk(oneHugeParagraph, opts)
	if len(chunks) < 2 {
		t.Fatalf("expected the window fallback to split a too-large paragraph, got %d chunks", len(chunks))
	}
}

func TestChunkWindowFallbackMakesForwardProgress(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	// chunk_overlap close to chunk_size would push step non-positive without the floor.
	opts := Options{ChunkSize: 10, ChunkOverlap: 10, MinChunkSize: 1, PreserveParagraphs: false}
	chunks := Chunk(text, opts)
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartOffset <= chunks[i-1].StartOffset {
			t.Fatalf("chunk %d did not make forward progress: start=%d prev start=%d", i, chunks[i].StartOffset, chunks[i-1].StartOffset)
		}
	}
}

func TestChunkPreserveParagraphsFalseUsesWindow(t *testing.T) {
	text := "para one.\n\npara two.\n\npara three."
	opts := Options{ChunkSize: 512, ChunkOverlap: 50, MinChunkSize: 1, PreserveParagraphs: false}
	chunks := Chunk(text, opts)
	if len(chunks) != 1 {
		t.Fatalf("expected single window chunk for short text, got %d", len(chunks))
	}
	if chunks[0].Content != Normalize(text) {
		t.Errorf("window chunk content = %q, want normalized full text %q", chunks[0].Content, Normalize(text))
	}
}
