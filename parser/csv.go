package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVParser turns a header + rows CSV into one section per row, rendered
// as `field: value` lines (§4.A). encoding/csv handles RFC-style quoting,
// escaped quotes and embedded commas/newlines; CRLF and bare CR line
// endings are rewritten to LF before the reader sees them.
type CSVParser struct{}

func (p *CSVParser) SupportedFormats() []string { return []string{"csv"} }

func (p *CSVParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	// encoding/csv only ends a record at LF, so a bare CR would otherwise
	// stay inside the field.
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1 // tolerate ragged rows rather than failing the whole file

	header, err := r.Read()
	if err == io.EOF {
		return &ParseResult{Method: "native"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var sections []Section
	rowNum := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", rowNum+1, err)
		}
		rowNum++

		if isEmptyRecord(record) {
			continue
		}

		var b strings.Builder
		for i, field := range header {
			var value string
			if i < len(record) {
				value = record[i]
			}
			fmt.Fprintf(&b, "%s: %s\n", field, value)
		}

		sections = append(sections, Section{
			Heading: fmt.Sprintf("Row %d", rowNum),
			Content: strings.TrimRight(b.String(), "\n"),
			Type:    "table",
			Level:   1,
		})
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
	}, nil
}

func isEmptyRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
