package ragengine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ragcorp/ragengine/llm"
	"github.com/ragcorp/ragengine/reasoning"
	"github.com/ragcorp/ragengine/retrieval"
)

// Source is one context document surfaced alongside an answer (§4.J
// step 6, "Source shaping").
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Filepath   string  `json:"filepath"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Usage reports token accounting for the answer's LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AskMetadata records which optional retrieval behaviors fired.
type AskMetadata struct {
	RerankUsed    bool     `json:"rerank_used"`
	HyDEUsed      bool     `json:"hyde_used"`
	QueryExpanded bool     `json:"query_expanded"`
	Verification  string   `json:"verification,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

// AskResponse is the coordinator's §4.J return value.
type AskResponse struct {
	Answer   string      `json:"answer"`
	Sources  []Source    `json:"sources"`
	Model    string      `json:"model"`
	Usage    *Usage      `json:"usage,omitempty"`
	Metadata AskMetadata `json:"metadata"`
}

// AskOptions configures a single ask call.
type AskOptions struct {
	Limit     int
	Threshold float64
	Model     string
	Rerank    bool
	Expand    bool
	HyDE      bool
	Verify    bool
}

const askSystemPrompt = `You answer questions using only the provided context documents. If the context does not contain enough information to answer, say so plainly. Match the language of the question. When you use information from a document, cite it as [Document N] using the document numbers given.`

// Ask implements the §4.J ask coordinator: retrieve, assemble context,
// call the LLM, validate, and shape the returned sources.
func (e *Engine) Ask(ctx context.Context, question string, opts AskOptions) (*AskResponse, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	// Step 1: retrieve.
	outcome, err := e.retrieval.Search(ctx, question, retrieval.Options{
		Limit:          limit,
		ScoreThreshold: opts.Threshold,
		UseExpansion:   opts.Expand,
		UseHyDE:        opts.HyDE,
		UseReranker:    opts.Rerank,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorStore, err)
	}

	// Step 2: no-results branch, localized to Thai if the question
	// contains a Thai code point.
	if len(outcome.Results) == 0 {
		return &AskResponse{
			Answer:  noResultsApology(question),
			Sources: []Source{},
			Model:   opts.Model,
			Metadata: AskMetadata{
				RerankUsed:    outcome.RerankUsed,
				HyDEUsed:      outcome.HyDEUsed,
				QueryExpanded: outcome.QueryExpanded,
			},
		}, nil
	}

	// Step 3: context assembly.
	contextBlocks := make([]string, len(outcome.Results))
	for i, r := range outcome.Results {
		filename, _ := r.Payload["filename"].(string)
		if filename == "" {
			filename = r.DocumentID
		}
		contextBlocks[i] = fmt.Sprintf("[Document %d: %s]\n%s", i+1, filename, r.Content)
	}
	contextText := strings.Join(contextBlocks, "\n---\n")

	model := opts.Model
	if model == "" {
		model = e.cfg.Chat.Model
	}

	// Step 4: call the LLM.
	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: askSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)},
		},
		Temperature: e.askTemperature(),
		MaxTokens:   e.askMaxTokens(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMServiceError, err)
	}

	// Step 5: validate.
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return nil, ErrInvalidLLMResponse
	}

	// Step 6: source shaping.
	sources := shapeSources(outcome.Results)

	response := &AskResponse{
		Answer:  answer,
		Sources: sources,
		Model:   resp.Model,
		Metadata: AskMetadata{
			RerankUsed:    outcome.RerankUsed,
			HyDEUsed:      outcome.HyDEUsed,
			QueryExpanded: outcome.QueryExpanded,
		},
	}
	if response.Model == "" {
		response.Model = model
	}
	if resp.TotalTokens > 0 || resp.PromptTokens > 0 || resp.CompletionTokens > 0 {
		response.Usage = &Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.TotalTokens,
		}
	}

	// Optional verify layer (§4.J step 7): heuristic confidence scoring
	// and citation extraction, out of core scope but additive when
	// requested.
	if opts.Verify {
		chunks := make([]reasoning.SourceChunk, len(outcome.Results))
		for i, r := range outcome.Results {
			filename, _ := r.Payload["filename"].(string)
			chunks[i] = reasoning.SourceChunk{ChunkID: r.ChunkID, Filename: filename, Content: r.Content}
		}
		confidence := reasoning.ComputeConfidence(answer, chunks, reasoning.DefaultConfidenceWeights())
		citations := reasoning.ExtractCitations(answer, chunks)
		verified := 0
		for _, c := range citations {
			if c.Verified {
				verified++
			}
		}
		response.Metadata.Confidence = &confidence
		response.Metadata.Verification = fmt.Sprintf("%d/%d citations verified", verified, len(citations))
	}

	return response, nil
}

func (e *Engine) askTemperature() float64 {
	if e.cfg.AskTemperature == 0 {
		return 0.3
	}
	return e.cfg.AskTemperature
}

func (e *Engine) askMaxTokens() int {
	if e.cfg.AskMaxTokens == 0 {
		return 2000
	}
	return e.cfg.AskMaxTokens
}

// noResultsApology returns a canned apology, localized to Thai if the
// question contains any Thai-block code point (U+0E00-U+0E7F).
func noResultsApology(question string) string {
	for _, r := range question {
		if r >= 0x0E00 && r <= 0x0E7F {
			return "ขออภัย ไม่พบข้อมูลที่เกี่ยวข้องกับคำถามนี้ในเอกสารที่มีอยู่"
		}
	}
	return "I couldn't find any relevant information in the indexed documents to answer that question."
}

// shapeSources implements §4.J step 6: dedupe by filepath keeping the
// max score, sort descending, clamp scores to [0,1] rounded to 3
// decimals, and truncate content to 200 code points.
func shapeSources(results []retrieval.Result) []Source {
	byPath := make(map[string]Source)
	order := make([]string, 0, len(results))

	for _, r := range results {
		filename, _ := r.Payload["filename"].(string)
		filepath, _ := r.Payload["filepath"].(string)
		key := filepath
		if key == "" {
			key = r.DocumentID
		}

		existing, ok := byPath[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || r.Score > existing.Score {
			byPath[key] = Source{
				ChunkID:    r.ChunkID,
				DocumentID: r.DocumentID,
				Filename:   filename,
				Filepath:   filepath,
				Content:    truncateCodePoints(r.Content, 200),
				Score:      clampScore(r.Score),
			}
		}
	}

	sources := make([]Source, 0, len(order))
	for _, key := range order {
		sources = append(sources, byPath[key])
	}
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Score > sources[j].Score })
	return sources
}

func clampScore(score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return math.Round(score*1000) / 1000
}

func truncateCodePoints(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
