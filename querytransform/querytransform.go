// Package querytransform rewrites a retrieval query before embedding, by
// expansion or by synthesizing a hypothetical answer document (§4.E).
package querytransform

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ragcorp/ragengine/llm"
)

// Transformer generates query rewrites via an LLM. Both modes fail soft:
// any error returns the original query unchanged.
type Transformer struct {
	chat llm.Provider
}

// New returns a Transformer backed by the given chat provider.
func New(chat llm.Provider) *Transformer {
	return &Transformer{chat: chat}
}

const expandSystemPrompt = `You rewrite search queries to improve retrieval recall. Given a query, produce a single rewritten query that adds relevant synonyms and related terms while preserving the original intent. Respond with only the rewritten query, no explanation.`

// Expand rewrites q via the LLM to improve retrieval recall. On any
// error it returns q unchanged.
func (t *Transformer) Expand(ctx context.Context, q string) string {
	if t.chat == nil || strings.TrimSpace(q) == "" {
		return q
	}
	resp, err := t.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: expandSystemPrompt},
			{Role: "user", Content: q},
		},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		slog.Warn("querytransform: expand failed, using original query", "error", err)
		return q
	}
	expanded := strings.TrimSpace(resp.Content)
	if expanded == "" {
		return q
	}
	return expanded
}

const hydeSystemPrompt = `You write a short hypothetical document that would answer the given question, as if it were an excerpt from a real reference document. Respond with only the hypothetical document text, 2-4 sentences, no explanation.`

// HyDE generates a short synthetic answer document for q, whose
// embedding is used in place of q's own for retrieval. On any error it
// returns q unchanged.
func (t *Transformer) HyDE(ctx context.Context, q string) string {
	if t.chat == nil || strings.TrimSpace(q) == "" {
		return q
	}
	resp, err := t.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: hydeSystemPrompt},
			{Role: "user", Content: q},
		},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		slog.Warn("querytransform: hyde failed, using original query", "error", err)
		return q
	}
	doc := strings.TrimSpace(resp.Content)
	if doc == "" {
		return q
	}
	return doc
}

// ShouldUseHyDE declines HyDE for queries too short or too keyword-like
// to benefit from a synthetic answer document (§4.E).
func ShouldUseHyDE(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return false
	}
	words := strings.Fields(q)
	if len(words) < 3 {
		return false
	}
	if looksLikeKeywordQuery(q, words) {
		return false
	}
	return true
}

// looksLikeKeywordQuery flags queries that read as a bag of search terms
// rather than a natural-language question: no sentence punctuation
// (?, ., !) and none of the common stopwords below. Word count is
// checked separately by ShouldUseHyDE.
func looksLikeKeywordQuery(q string, words []string) bool {
	if strings.ContainsAny(q, "?.!") {
		return false
	}
	stopwordHits := 0
	for _, w := range words {
		if commonStopwords[strings.ToLower(w)] {
			stopwordHits++
		}
	}
	return stopwordHits == 0
}

var commonStopwords = map[string]bool{
	"what": true, "why": true, "how": true, "who": true, "when": true, "where": true,
	"is": true, "are": true, "the": true, "a": true, "an": true, "of": true, "in": true,
	"to": true, "for": true, "does": true, "do": true, "can": true, "should": true,
}
