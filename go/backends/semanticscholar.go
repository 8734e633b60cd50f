package backends

import (
	"context"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/slub/hallucinator/go/engine"
)

// SemanticScholarBackend queries
// api.semanticscholar.org/graph/v1/paper/search with query=TITLE, per §6.2.
// An API key, when present, is sent as the x-api-key header rather than a
// query parameter.
type SemanticScholarBackend struct {
	APIKey    string
	Threshold float64
	// BaseURL overrides https://api.semanticscholar.org for testing.
	BaseURL string
}

func (b *SemanticScholarBackend) Name() string      { return "SemanticScholar" }
func (b *SemanticScholarBackend) IsLocal() bool     { return false }
func (b *SemanticScholarBackend) RequiresDOI() bool { return false }

func (b *SemanticScholarBackend) baseURL() string {
	if b.BaseURL != "" {
		return b.BaseURL
	}
	return "https://api.semanticscholar.org"
}

type semanticScholarResponse struct {
	Data []semanticScholarPaper `json:"data"`
}

type semanticScholarPaper struct {
	Title   string                  `json:"title"`
	URL     string                  `json:"url"`
	Authors []semanticScholarAuthor `json:"authors"`
}

type semanticScholarAuthor struct {
	Name string `json:"name"`
}

func (b *SemanticScholarBackend) Query(ctx context.Context, title, doi string) (engine.DbQueryResult, error) {
	u := fmt.Sprintf("%s/graph/v1/paper/search?query=%s&fields=title,url,authors&limit=5", b.baseURL(), queryEscape(title))

	var headers map[string]string
	if b.APIKey != "" {
		headers = map[string]string{"x-api-key": b.APIKey}
	}

	body, err := getJSON(ctx, u, headers, DefaultUserAgent)
	if err != nil {
		return engine.DbQueryResult{}, err
	}

	var parsed semanticScholarResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return engine.DbQueryResult{}, fmt.Errorf("semanticscholar: unmarshal: %w", err)
	}

	threshold := b.Threshold
	if threshold <= 0 {
		threshold = engine.DefaultTitleMatchThreshold
	}
	var (
		best      *semanticScholarPaper
		bestScore float64
	)
	for i := range parsed.Data {
		if parsed.Data[i].Title == "" {
			continue
		}
		score := engine.TitleRatio(title, parsed.Data[i].Title)
		if score >= threshold && score > bestScore {
			bestScore = score
			best = &parsed.Data[i]
		}
	}
	if best == nil {
		return engine.DbQueryResult{}, nil
	}

	authors := make([]string, 0, len(best.Authors))
	for _, a := range best.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	return engine.DbQueryResult{
		Found:   true,
		Title:   best.Title,
		Authors: authors,
		URL:     best.URL,
	}, nil
}
