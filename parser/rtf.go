package parser

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// RTFParser extracts plain text from an RTF document by stripping its
// control structure (§4.A). Blobs that don't start with the RTF magic
// are treated as plain text outright.
type RTFParser struct{}

func (p *RTFParser) SupportedFormats() []string { return []string{"rtf"} }

func (p *RTFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading RTF file: %w", err)
	}
	raw := string(data)

	if !strings.HasPrefix(raw, `{\rtf`) {
		return &ParseResult{
			Sections: []Section{{Content: raw, Type: "paragraph", Level: 1}},
			Method:   "native",
		}, nil
	}

	metadata := extractRTFInfoFields(raw)
	text := rtfToText(raw)

	return &ParseResult{
		Sections: []Section{{Content: text, Type: "paragraph", Level: 1}},
		Metadata: metadata,
		Method:   "native",
	}, nil
}

var rtfInfoGroup = regexp.MustCompile(`(?s)\\info\s*\{(.*)`)
var rtfInfoField = regexp.MustCompile(`\\(title|author|subject)\s+([^\\{}]*)`)

// extractRTFInfoFields reads title/author/subject from the document's
// \info block.
func extractRTFInfoFields(raw string) map[string]MetaValue {
	metadata := map[string]MetaValue{}
	m := rtfInfoGroup.FindStringSubmatch(raw)
	if m == nil {
		return metadata
	}
	// Bound the scan to roughly the info group's extent to avoid pulling
	// fields from the document body.
	body := m[1]
	if len(body) > 2000 {
		body = body[:2000]
	}
	for _, fm := range rtfInfoField.FindAllStringSubmatch(body, -1) {
		value := strings.TrimSpace(fm[2])
		if value != "" {
			metadata[fm[1]] = StringMeta(value)
		}
	}
	return metadata
}

var (
	rtfControlGroupHeads = regexp.MustCompile(`^\{(\\\*)?\\(fonttbl|colortbl|stylesheet|info|generator|pict|object|footer|header)\b`)
	rtfHexEscape         = regexp.MustCompile(`\\'([0-9a-fA-F]{2})`)
	rtfUnicodeEscape     = regexp.MustCompile(`\\u(-?\d+)\??`)
	rtfControlWord       = regexp.MustCompile(`\\[a-zA-Z]+-?\d*\s?`)
	rtfWhitespaceRuns    = regexp.MustCompile(`[ \t]+`)
	rtfBlankLineRuns     = regexp.MustCompile(`\n{3,}`)
)

var rtfEscapeReplacer = strings.NewReplacer(
	`\par`, "\n",
	`\tab`, "\t",
	`\~`, " ",
	`\bullet`, "•",
	`\endash`, "–",
	`\emdash`, "—",
	`\lquote`, "‘",
	`\rquote`, "’",
	`\ldblquote`, "“",
	`\rdblquote`, "”",
)

// rtfToText strips RTF control structure down to its plain text content.
func rtfToText(raw string) string {
	text := stripControlGroups(raw)

	// Translate escapes only as whole control words, so \pard or
	// \pardirnatural are not read as \par followed by text.
	text = rtfControlWord.ReplaceAllStringFunc(text, func(m string) string {
		word := strings.TrimRight(m, " \t\r\n")
		if r := rtfEscapeReplacer.Replace(word); r != word && strings.Trim(r, "\n\t•–—‘’“”") == "" {
			return r
		}
		return m
	})
	text = strings.ReplaceAll(text, `\~`, " ")

	text = rtfHexEscape.ReplaceAllStringFunc(text, func(m string) string {
		sub := rtfHexEscape.FindStringSubmatch(m)
		if n, err := strconv.ParseInt(sub[1], 16, 32); err == nil {
			return string(rune(n))
		}
		return ""
	})

	text = rtfUnicodeEscape.ReplaceAllStringFunc(text, func(m string) string {
		sub := rtfUnicodeEscape.FindStringSubmatch(m)
		if n, err := strconv.Atoi(sub[1]); err == nil {
			if n < 0 {
				n += 65536
			}
			return string(rune(n))
		}
		return ""
	})

	// Remove remaining control words and braces.
	text = rtfControlWord.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "{", "")
	text = strings.ReplaceAll(text, "}", "")

	text = rtfWhitespaceRuns.ReplaceAllString(text, " ")
	text = rtfBlankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// stripControlGroups removes braced groups whose opening control word is
// font/colour/stylesheet/info/etc metadata rather than document body text.
func stripControlGroups(raw string) string {
	var out strings.Builder
	depth := 0
	skipDepth := -1 // brace depth at which a skipped group started, -1 if not skipping

	i := 0
	for i < len(raw) {
		switch raw[i] {
		case '{':
			depth++
			if skipDepth == -1 && rtfControlGroupHeads.MatchString(raw[i:min2(i+40, len(raw))]) {
				skipDepth = depth
			}
			if skipDepth == -1 {
				out.WriteByte(raw[i])
			}
			i++
		case '}':
			if skipDepth == -1 {
				out.WriteByte(raw[i])
			}
			if skipDepth == depth {
				skipDepth = -1
			}
			depth--
			i++
		default:
			if skipDepth == -1 {
				out.WriteByte(raw[i])
			}
			i++
		}
	}
	return out.String()
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}
