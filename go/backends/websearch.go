package backends

import (
	"context"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/slub/hallucinator/go/engine"
)

// WebSearchBackend is the optional, user-supplied search fallback mentioned
// in §6.2: an embedder-configured endpoint expected to answer with a small
// JSON array of {title, authors, url} candidates for a free-text query. It
// never requires a DOI and is always the lowest-priority remote backend in
// practice, since its result quality depends entirely on the embedder's
// endpoint.
type WebSearchBackend struct {
	Endpoint  string
	APIKey    string
	Threshold float64
}

func (b *WebSearchBackend) Name() string      { return "WebSearch" }
func (b *WebSearchBackend) IsLocal() bool     { return false }
func (b *WebSearchBackend) RequiresDOI() bool { return false }

type webSearchResult struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	URL     string   `json:"url"`
}

func (b *WebSearchBackend) Query(ctx context.Context, title, doi string) (engine.DbQueryResult, error) {
	if b.Endpoint == "" {
		return engine.DbQueryResult{}, nil
	}
	u := fmt.Sprintf("%s?q=%s", b.Endpoint, queryEscape(title))

	var headers map[string]string
	if b.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + b.APIKey}
	}

	body, err := getJSON(ctx, u, headers, DefaultUserAgent)
	if err != nil {
		return engine.DbQueryResult{}, err
	}

	var results []webSearchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return engine.DbQueryResult{}, fmt.Errorf("websearch: unmarshal: %w", err)
	}

	threshold := b.Threshold
	if threshold <= 0 {
		threshold = engine.DefaultTitleMatchThreshold
	}
	var (
		best      *webSearchResult
		bestScore float64
	)
	for i := range results {
		if results[i].Title == "" {
			continue
		}
		score := engine.TitleRatio(title, results[i].Title)
		if score >= threshold && score > bestScore {
			bestScore = score
			best = &results[i]
		}
	}
	if best == nil {
		return engine.DbQueryResult{}, nil
	}

	return engine.DbQueryResult{
		Found:   true,
		Title:   best.Title,
		Authors: best.Authors,
		URL:     best.URL,
	}, nil
}
