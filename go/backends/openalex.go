package backends

import (
	"context"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/slub/hallucinator/go/engine"
)

// OpenAlexBackend queries api.openalex.org/works with search=TITLE, per
// §6.2. OpenAlex author lists are known to be noisy — the engine's
// Config.NoisyAuthorListDatabases defaults to treating "OpenAlex" as such,
// so an author mismatch here does not become the reference's first_mismatch
// unless the embedder opts in.
type OpenAlexBackend struct {
	APIKey    string
	Threshold float64
	// BaseURL overrides https://api.openalex.org for testing.
	BaseURL string
}

func (b *OpenAlexBackend) Name() string      { return "OpenAlex" }
func (b *OpenAlexBackend) IsLocal() bool     { return false }
func (b *OpenAlexBackend) RequiresDOI() bool { return false }

func (b *OpenAlexBackend) baseURL() string {
	if b.BaseURL != "" {
		return b.BaseURL
	}
	return "https://api.openalex.org"
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID           string               `json:"id"`
	DisplayName  string               `json:"display_name"`
	Authorships  []openAlexAuthorship `json:"authorships"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

func (b *OpenAlexBackend) Query(ctx context.Context, title, doi string) (engine.DbQueryResult, error) {
	u := fmt.Sprintf("%s/works?search=%s&per-page=5", b.baseURL(), queryEscape(title))
	if b.APIKey != "" {
		u += "&api_key=" + queryEscape(b.APIKey)
	}

	body, err := getJSON(ctx, u, nil, DefaultUserAgent)
	if err != nil {
		return engine.DbQueryResult{}, err
	}

	var parsed openAlexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return engine.DbQueryResult{}, fmt.Errorf("openalex: unmarshal: %w", err)
	}

	threshold := b.Threshold
	if threshold <= 0 {
		threshold = engine.DefaultTitleMatchThreshold
	}
	var (
		best      *openAlexWork
		bestScore float64
	)
	for i := range parsed.Results {
		if parsed.Results[i].DisplayName == "" {
			continue
		}
		score := engine.TitleRatio(title, parsed.Results[i].DisplayName)
		if score >= threshold && score > bestScore {
			bestScore = score
			best = &parsed.Results[i]
		}
	}
	if best == nil {
		return engine.DbQueryResult{}, nil
	}

	authors := make([]string, 0, len(best.Authorships))
	for _, a := range best.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}

	return engine.DbQueryResult{
		Found:   true,
		Title:   best.DisplayName,
		Authors: authors,
		URL:     best.ID,
	}, nil
}
