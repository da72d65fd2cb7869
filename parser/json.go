package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// JSONParser flattens an arbitrary JSON document into `dotted.key: value`
// lines, pulling common metadata keys out into ParseResult.Metadata
// (§4.A). Parsing is strict: malformed JSON fails with invalid-json.
type JSONParser struct{}

func (p *JSONParser) SupportedFormats() []string { return []string{"json"} }

// maxJSONDepth bounds flatten recursion; beyond it a marker line is
// emitted instead of descending further.
const maxJSONDepth = 10

var jsonMetadataKeys = map[string]string{
	"title": "title", "name": "title",
	"author":      "author",
	"description": "description", "summary": "description",
	"tags": "tags", "keywords": "tags",
	"category": "category", "type": "category",
}

func (p *JSONParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading JSON file: %w", err)
	}

	var value any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid-json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid-json: unexpected data after top-level value")
	}

	metadata := map[string]MetaValue{}
	var lines []string
	flattenJSON("", value, 0, metadata, &lines)

	return &ParseResult{
		Sections: []Section{{
			Content: strings.Join(lines, "\n"),
			Type:    "paragraph",
			Level:   1,
		}},
		Metadata: metadata,
		Method:   "native",
	}, nil
}

func flattenJSON(prefix string, value any, depth int, metadata map[string]MetaValue, lines *[]string) {
	if depth > maxJSONDepth {
		*lines = append(*lines, prefix+": [max depth reached]")
		return
	}

	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if metaKey, ok := jsonMetadataKeys[strings.ToLower(k)]; ok && prefix == "" {
				recordJSONMetadata(metaKey, v[k], metadata)
				continue // metadata keys excluded from the section list
			}
			flattenJSON(key, v[k], depth+1, metadata, lines)
		}
	case []any:
		if isPrimitiveArray(v) {
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = scalarString(item)
			}
			*lines = append(*lines, fmt.Sprintf("%s: %s", prefix, strings.Join(parts, ", ")))
			return
		}
		for i, item := range v {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), item, depth+1, metadata, lines)
		}
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %s", prefix, scalarString(value)))
	}
}

func isPrimitiveArray(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func scalarString(v any) string {
	if v == nil {
		return "null"
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func recordJSONMetadata(metaKey string, value any, metadata map[string]MetaValue) {
	switch v := value.(type) {
	case []any:
		arr := make([]string, len(v))
		for i, item := range v {
			arr[i] = scalarString(item)
		}
		metadata[metaKey] = ArrayMeta(arr)
	case bool:
		metadata[metaKey] = BoolMeta(v)
	default:
		metadata[metaKey] = StringMeta(scalarString(v))
	}
}
