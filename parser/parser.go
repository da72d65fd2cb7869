// Package parser maps source files (text, markdown, PDF, office formats,
// CSV, JSON, HTML, RTF) to a uniform ParseResult value: normalized text
// plus open-schema metadata plus best-effort sections.
package parser

import "context"

// MetaValue is a tagged union over the primitive shapes document-level
// metadata values take (string, number, bool) or an array of strings. A
// parsed document's metadata is open-schema; this keeps the metadata-store
// serializer total without resorting to an erased `any`.
type MetaValue struct {
	Kind string   `json:"kind"` // "string" | "number" | "bool" | "array"
	Str  string   `json:"str,omitempty"`
	Num  float64  `json:"num,omitempty"`
	Bool bool     `json:"bool,omitempty"`
	Arr  []string `json:"arr,omitempty"`
}

// StringMeta wraps a plain string as a MetaValue.
func StringMeta(s string) MetaValue { return MetaValue{Kind: "string", Str: s} }

// NumberMeta wraps a float64 as a MetaValue.
func NumberMeta(n float64) MetaValue { return MetaValue{Kind: "number", Num: n} }

// BoolMeta wraps a bool as a MetaValue.
func BoolMeta(b bool) MetaValue { return MetaValue{Kind: "bool", Bool: b} }

// ArrayMeta wraps a string slice as a MetaValue.
func ArrayMeta(a []string) MetaValue { return MetaValue{Kind: "array", Arr: a} }

// ExtractedImage represents an image extracted from a document during parsing.
// Outside the text contract spec requires; carried as an additive field.
type ExtractedImage struct {
	Data         []byte
	MIMEType     string // "image/jpeg", "image/png" or "image/gif"
	PageNumber   int    // page/slide number (0 for DOCX)
	SectionIndex int    // index into ParseResult.Sections this image belongs to
	Width        int
	Height       int
}

// ParseResult is what a parser produces from a document file (§3 "Parsed
// document"): normalized text, open-schema metadata, best-effort sections.
type ParseResult struct {
	Sections []Section            // Ordered sections extracted from the document
	Images   []ExtractedImage     // Images extracted from the document
	Method   string               // "native", "fallback"
	Metadata map[string]MetaValue // title/author/subject/keywords/tags/etc.
}

// Content joins every section's content into the single normalized text the
// chunker operates on.
func (r *ParseResult) Content() string {
	var out []byte
	for i, s := range r.Sections {
		if i > 0 {
			out = append(out, '\n', '\n')
		}
		if s.Heading != "" {
			out = append(out, s.Heading...)
			out = append(out, '\n')
		}
		out = append(out, s.Content...)
	}
	return string(out)
}

// Section represents a logical section of a parsed document.
type Section struct {
	Heading    string
	Content    string
	Level      int    // Heading level (1=top, 2=sub, etc.)
	PageNumber int
	Type       string // "section", "table", "definition", "requirement", "paragraph", "annex", "standards_reference", "cross_reference"
	Children   []Section
	Metadata   map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
