package ragengine

import (
	"strings"
	"testing"

	"github.com/ragcorp/ragengine/retrieval"
)

func TestNoResultsApologyLocalizesToThai(t *testing.T) {
	if got := noResultsApology("what is this?"); !strings.Contains(got, "couldn't find") {
		t.Errorf("expected English apology, got %q", got)
	}
	if got := noResultsApology("นี่คืออะไร"); strings.Contains(got, "couldn't find") {
		t.Errorf("expected Thai apology for Thai question, got %q", got)
	}
}

func TestClampScoreBoundsAndRounds(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.12345, 0.123},
		{0.9999, 1.0},
		{1.5, 1},
	}
	for _, c := range cases {
		if got := clampScore(c.in); got != c.want {
			t.Errorf("clampScore(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTruncateCodePointsShortStringUnchanged(t *testing.T) {
	s := "short string"
	if got := truncateCodePoints(s, 200); got != s {
		t.Errorf("expected unchanged string, got %q", got)
	}
}

func TestTruncateCodePointsLongStringGetsEllipsis(t *testing.T) {
	s := strings.Repeat("a", 250)
	got := truncateCodePoints(s, 200)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got suffix %q", got[len(got)-10:])
	}
	if len([]rune(got)) != 203 {
		t.Errorf("expected 200 chars + ellipsis (203 runes), got %d", len([]rune(got)))
	}
}

func TestShapeSourcesDedupesByFilepathKeepingMaxScore(t *testing.T) {
	results := []retrieval.Result{
		{ChunkID: "a", DocumentID: "d1", Content: "first", Score: 0.5, Payload: map[string]any{"filename": "a.pdf", "filepath": "/a.pdf"}},
		{ChunkID: "b", DocumentID: "d1", Content: "second", Score: 0.9, Payload: map[string]any{"filename": "a.pdf", "filepath": "/a.pdf"}},
		{ChunkID: "c", DocumentID: "d2", Content: "third", Score: 0.7, Payload: map[string]any{"filename": "b.pdf", "filepath": "/b.pdf"}},
	}
	sources := shapeSources(results)
	if len(sources) != 2 {
		t.Fatalf("expected 2 deduped sources, got %d", len(sources))
	}
	if sources[0].Filepath != "/a.pdf" || sources[0].Score != 0.9 {
		t.Errorf("expected top source to be /a.pdf with score 0.9, got %+v", sources[0])
	}
	if sources[0].Content != "second" {
		t.Errorf("expected deduped source to keep the higher-scoring content, got %q", sources[0].Content)
	}
}

func TestShapeSourcesSortsDescending(t *testing.T) {
	results := []retrieval.Result{
		{ChunkID: "a", DocumentID: "d1", Score: 0.3, Payload: map[string]any{"filepath": "/a.pdf"}},
		{ChunkID: "b", DocumentID: "d2", Score: 0.8, Payload: map[string]any{"filepath": "/b.pdf"}},
	}
	sources := shapeSources(results)
	if sources[0].Filepath != "/b.pdf" || sources[1].Filepath != "/a.pdf" {
		t.Fatalf("expected descending order by score, got %+v", sources)
	}
}
