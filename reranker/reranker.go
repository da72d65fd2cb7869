// Package reranker re-scores (query, document) pairs via an external
// cross-encoder endpoint, with safe pass-through fallback (§4.D).
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// SentinelScore is the "no reranker opinion" protocol value. A caller
// must preserve the original (e.g. vector) score for any Result whose
// Score is this sentinel, and may adopt the reranker's score otherwise.
const SentinelScore = -1.0

// Result is one (index, score) pair returned by Rerank, in ranked order.
type Result struct {
	Index int
	Score float64
}

// Reranker re-scores documents against a query.
type Reranker interface {
	// Rerank returns at most topN results ordered by descending
	// relevance. When it skips or fails, it returns the first topN
	// input indices in input order, each carrying SentinelScore.
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error)
}

// Config configures the HTTP cross-encoder reranking endpoint.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
}

const (
	maxRetries        = 3
	baseRetryDelay    = 1 * time.Second
	minRateLimitDelay = 5 * time.Second
)

// HTTPReranker calls a `/rerank` endpoint shaped like the core's other
// external service contracts: POST {model, query, documents, top_n} →
// {results: [{index, relevance_score}]}.
type HTTPReranker struct {
	cfg    Config
	client *http.Client
}

// New returns an HTTPReranker. A zero-value Config is valid but every
// call will fail over to pass-through, since BaseURL is empty.
func New(cfg Config) *HTTPReranker {
	return &HTTPReranker{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error) {
	if topN <= 0 {
		topN = len(documents)
	}

	// Skip rule (§4.D): nothing to narrow down, return input order with
	// the sentinel.
	if len(documents) <= topN {
		return passthrough(documents, topN), nil
	}

	respBody, err := r.doPost(ctx, rerankRequest{
		Model:     r.cfg.Model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		// Failure mode (§4.D): degrade to pass-through, never propagate.
		slog.Warn("reranker: request failed, passing through", "error", err)
		return passthrough(documents, topN), nil
	}

	var parsed rerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		slog.Warn("reranker: decoding response failed, passing through", "error", err)
		return passthrough(documents, topN), nil
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, Result{Index: r.Index, Score: r.RelevanceScore})
	}
	if len(results) == 0 {
		return passthrough(documents, topN), nil
	}
	return results, nil
}

func passthrough(documents []string, topN int) []Result {
	n := topN
	if n > len(documents) {
		n = len(documents)
	}
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		results[i] = Result{Index: i, Score: SentinelScore}
	}
	return results
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *HTTPReranker) doPost(ctx context.Context, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := r.cfg.BaseURL + "/rerank"

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			slog.Warn("reranker: retrying request", "url", url, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request to %s failed: %w", url, err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		lastErr = fmt.Errorf("reranker API error %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode != http.StatusTooManyRequests && (resp.StatusCode < 500 || resp.StatusCode >= 600) {
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := minRateLimitDelay * time.Duration(1<<attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					if headerDelay := time.Duration(seconds) * time.Second; headerDelay > delay {
						delay = headerDelay
					}
				}
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// NoopReranker always passes through unchanged, for Config.Reranker.Enabled == false.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, documents []string, topN int) ([]Result, error) {
	return passthrough(documents, topN), nil
}

var (
	_ Reranker = (*HTTPReranker)(nil)
	_ Reranker = NoopReranker{}
)
