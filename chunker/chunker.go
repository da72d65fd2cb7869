// Package chunker splits normalized document text into overlapping,
// size-bounded pieces suitable for embedding.
package chunker

import (
	"math"
	"regexp"
	"strings"
)

// Options controls chunking behaviour. Chunk replaces a non-positive
// ChunkSize or MinChunkSize and a negative ChunkOverlap with defaults; a
// zero ChunkOverlap and a false PreserveParagraphs are kept as given.
type Options struct {
	ChunkSize          int  // target size in estimated tokens
	ChunkOverlap       int  // overlap in estimated tokens
	MinChunkSize       int  // minimum size in estimated tokens for every chunk of the paragraph split, the last included; window chunks are not filtered
	PreserveParagraphs bool
}

// DefaultOptions mirrors the core config defaults (§4.B).
func DefaultOptions() Options {
	return Options{
		ChunkSize:          512,
		ChunkOverlap:       50,
		MinChunkSize:       50,
		PreserveParagraphs: true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = d.ChunkOverlap
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = d.MinChunkSize
	}
	return o
}

// TextChunk is one piece of normalized text produced by Chunk, with offsets
// relative to the normalized text it was cut from.
type TextChunk struct {
	Content     string
	ChunkIndex  int
	StartOffset int
	EndOffset   int
	TokenCount  int
}

var (
	crlfPattern       = regexp.MustCompile(`\r\n|\r`)
	horizWSPattern    = regexp.MustCompile(`[ \t]+`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
	paragraphSplit    = regexp.MustCompile(`\n\s*\n`)
)

// Normalize applies the text normalization §4.B specifies: CRLF/CR to LF,
// runs of spaces/tabs collapsed, 3+ newlines collapsed to exactly two,
// leading/trailing whitespace trimmed.
func Normalize(text string) string {
	text = crlfPattern.ReplaceAllString(text, "\n")
	text = horizWSPattern.ReplaceAllString(text, " ")
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// EstimateTokens is the single source of truth for token estimation used
// both for chunk sizing and for reporting: ceil(len(text)/4).
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(text))) / 4))
}

// Chunk splits text into a sequence of TextChunks. The chunker is pure: no
// I/O, deterministic for identical input. text is normalized internally;
// offsets in the returned chunks are relative to the normalized text.
func Chunk(text string, opts Options) []TextChunk {
	opts = opts.withDefaults()
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	if opts.PreserveParagraphs {
		if chunks, ok := chunkByParagraphs(normalized, opts); ok {
			return chunks
		}
	}
	return chunkByWindow(normalized, opts)
}

// chunkByParagraphs implements the paragraph-preserving split. It falls
// back (returns ok=false) if any single paragraph alone exceeds
// chunk_size, per §4.B: "implicitly when a single paragraph itself
// exceeds chunk_size".
func chunkByParagraphs(text string, opts Options) ([]TextChunk, bool) {
	paragraphs, offsets := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil, false
	}
	for _, p := range paragraphs {
		if EstimateTokens(p) > opts.ChunkSize {
			return nil, false
		}
	}

	var chunks []TextChunk
	var current strings.Builder
	currentStart := -1
	currentEnd := 0
	index := 0

	flush := func() {
		content := current.String()
		if EstimateTokens(content) >= opts.MinChunkSize {
			chunks = append(chunks, TextChunk{
				Content:     content,
				ChunkIndex:  index,
				StartOffset: currentStart,
				EndOffset:   currentEnd,
				TokenCount:  EstimateTokens(content),
			})
			index++
		}
		current.Reset()
		currentStart = -1
	}

	for i, p := range paragraphs {
		candidate := p
		if current.Len() > 0 {
			candidate = current.String() + "\n\n" + p
		}
		if current.Len() > 0 && EstimateTokens(candidate) > opts.ChunkSize {
			flush()
			tail := overlapTail(chunks, opts.ChunkOverlap)
			if tail != "" {
				current.WriteString(tail)
				current.WriteString("\n\n")
			}
			currentStart = offsets[i][0]
		}
		if current.Len() == 0 {
			if currentStart < 0 {
				currentStart = offsets[i][0]
			}
		} else {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		currentEnd = offsets[i][1]
	}
	if current.Len() > 0 {
		flush()
	}

	if len(chunks) == 0 {
		return nil, false
	}
	return chunks, true
}

// overlapTail returns the last ≈overlap×1.3 whitespace-delimited words of
// the most recently emitted chunk, the seed for the next chunk (§4.B).
func overlapTail(chunks []TextChunk, overlapTokens int) string {
	if len(chunks) == 0 || overlapTokens <= 0 {
		return ""
	}
	words := strings.Fields(chunks[len(chunks)-1].Content)
	n := int(math.Round(float64(overlapTokens) * 1.3))
	if n <= 0 || n >= len(words) {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-n:], " ")
}

// splitParagraphs returns the maximal substrings separated by blank lines,
// along with each paragraph's [start, end) byte offsets in text.
func splitParagraphs(text string) ([]string, [][2]int) {
	var paragraphs []string
	var offsets [][2]int

	locs := paragraphSplit.FindAllStringIndex(text, -1)
	start := 0
	for _, loc := range locs {
		p := text[start:loc[0]]
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
			offsets = append(offsets, [2]int{start, loc[0]})
		}
		start = loc[1]
	}
	if start < len(text) {
		p := text[start:]
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
			offsets = append(offsets, [2]int{start, len(text)})
		}
	}
	return paragraphs, offsets
}

// chunkByWindow implements the token-based fallback: a sliding window of
// ≈chunk_size×1.3 words with step = window - overlap×1.3, guaranteed to
// make forward progress.
func chunkByWindow(text string, opts Options) []TextChunk {
	wordOffsets := wordOffsetsOf(text)
	if len(wordOffsets) == 0 {
		return nil
	}

	window := int(math.Round(float64(opts.ChunkSize) * 1.3))
	if window < 1 {
		window = 1
	}
	step := window - int(math.Round(float64(opts.ChunkOverlap)*1.3))
	if step < 1 {
		step = 1 // guarantee forward progress regardless of configured overlap
	}

	var chunks []TextChunk
	index := 0
	for start := 0; start < len(wordOffsets); start += step {
		end := start + window
		if end > len(wordOffsets) {
			end = len(wordOffsets)
		}
		startOffset := wordOffsets[start][0]
		endOffset := wordOffsets[end-1][1]
		content := text[startOffset:endOffset]
		chunks = append(chunks, TextChunk{
			Content:     content,
			ChunkIndex:  index,
			StartOffset: startOffset,
			EndOffset:   endOffset,
			TokenCount:  EstimateTokens(content),
		})
		index++
		if end >= len(wordOffsets) {
			break
		}
	}
	return chunks
}

// wordOffsetsOf returns the [start, end) byte offset of every
// whitespace-delimited word in text, in order.
func wordOffsetsOf(text string) [][2]int {
	var offsets [][2]int
	inWord := false
	wordStart := 0
	for i, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inWord {
			wordStart = i
			inWord = true
		} else if isSpace && inWord {
			offsets = append(offsets, [2]int{wordStart, i})
			inWord = false
		}
	}
	if inWord {
		offsets = append(offsets, [2]int{wordStart, len(text)})
	}
	return offsets
}
