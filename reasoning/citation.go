package reasoning

import (
	"fmt"
	"regexp"
	"strings"
)

// SourceChunk is the minimal view of a retrieved chunk the optional
// verify layer needs; it is a plain adapter type so this package stays
// independent of the retrieval and store packages.
type SourceChunk struct {
	ChunkID    string
	Filename   string
	PageNumber int
	Content    string
}

// Citation represents an extracted citation from an answer.
type Citation struct {
	Text      string `json:"text"`       // The cited text
	SourceRef string `json:"source_ref"` // Captured reference (e.g., "doc.pdf" or "3.2")
	ChunkID   string `json:"chunk_id"`   // Matched chunk ID, "" if unmatched
	Verified  bool   `json:"verified"`   // Whether the citation was verified against sources
}

var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(([^)]+\.(?:pdf|docx|xlsx|pptx))[^)]*\)`), // (document.pdf, ...)
	regexp.MustCompile(`(?:Section|Sec\.|§)\s*(\d+(?:\.\d+)*)`),    // Section 3.2
	regexp.MustCompile(`(?:Article|Art\.)\s*(\d+(?:\.\d+)*)`),      // Article 5
	regexp.MustCompile(`(?:Clause|Cl\.)\s*(\d+(?:\.\d+)*)`),        // Clause 7.1
	regexp.MustCompile(`(?:Page|p\.)\s*(\d+)`),                     // Page 12
	regexp.MustCompile(`\[Document\s*(\d+)\]`),                     // [Document 1]
}

// ExtractCitations finds citation references in an answer text.
func ExtractCitations(answer string, chunks []SourceChunk) []Citation {
	var citations []Citation
	seen := make(map[string]bool)

	for _, pattern := range citationPatterns {
		matches := pattern.FindAllStringSubmatch(answer, -1)
		for _, match := range matches {
			if len(match) < 2 {
				continue
			}
			ref := strings.TrimSpace(match[0])
			if seen[ref] {
				continue
			}
			seen[ref] = true

			citation := Citation{
				Text:      ref,
				SourceRef: match[1],
			}
			citation.ChunkID, citation.Verified = matchCitationToChunk(match[1], chunks)
			citations = append(citations, citation)
		}
	}

	return citations
}

// matchCitationToChunk tries to find the chunk that a citation refers to.
func matchCitationToChunk(ref string, chunks []SourceChunk) (string, bool) {
	lowerRef := strings.ToLower(ref)

	for _, c := range chunks {
		if c.Filename != "" && strings.Contains(strings.ToLower(c.Filename), lowerRef) {
			return c.ChunkID, true
		}
	}

	var pageNum int
	if _, err := fmt.Sscanf(ref, "%d", &pageNum); err == nil && pageNum > 0 {
		for _, c := range chunks {
			if c.PageNumber == pageNum {
				return c.ChunkID, true
			}
		}
	}

	var srcNum int
	if _, err := fmt.Sscanf(ref, "%d", &srcNum); err == nil && srcNum > 0 && srcNum <= len(chunks) {
		return chunks[srcNum-1].ChunkID, true
	}

	return "", false
}
