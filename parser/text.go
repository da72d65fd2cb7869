package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// TextParser handles plain text (.txt) and markdown (.md) files. Markdown
// gets heading-delimited sections and a title pulled from its first
// top-level heading; plain text is returned as a single section.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md", "markdown"} }

var mdHeadingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*$`)

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	content := string(data)
	if strings.TrimSpace(content) == "" {
		return &ParseResult{Method: "native"}, nil
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext != "md" && ext != "markdown" {
		return &ParseResult{
			Sections: []Section{{
				Heading: filepath.Base(path),
				Content: content,
				Level:   1,
				Type:    "paragraph",
			}},
			Method: "native",
		}, nil
	}

	sections, metadata := splitMarkdown(content)
	return &ParseResult{
		Sections: sections,
		Metadata: metadata,
		Method:   "native",
	}, nil
}

// splitMarkdown starts a new section at every heading of any level; text
// before the first heading becomes an untitled leading section. The
// first top-level (#) heading becomes the document title.
func splitMarkdown(content string) ([]Section, map[string]MetaValue) {
	locs := mdHeadingPattern.FindAllStringSubmatchIndex(content, -1)
	metadata := map[string]MetaValue{}

	if len(locs) == 0 {
		return []Section{{Content: strings.TrimSpace(content), Level: 1, Type: "paragraph"}}, metadata
	}

	var sections []Section
	if locs[0][0] > 0 {
		leading := strings.TrimSpace(content[:locs[0][0]])
		if leading != "" {
			sections = append(sections, Section{Content: leading, Level: 1, Type: "paragraph"})
		}
	}

	titleSet := false
	for i, loc := range locs {
		level := loc[3] - loc[2] // number of '#' characters
		heading := content[loc[4]:loc[5]]
		bodyStart := loc[1]
		bodyEnd := len(content)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		body := strings.TrimSpace(content[bodyStart:bodyEnd])

		if !titleSet && level == 1 {
			metadata["title"] = StringMeta(heading)
			titleSet = true
		}

		sections = append(sections, Section{
			Heading: heading,
			Content: body,
			Level:   level,
			Type:    "section",
		})
	}
	return sections, metadata
}
