package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/slub/hallucinator/go/engine"
)

// DOIBackend resolves doi.org/DOI via content negotiation for CSL-JSON, per
// §6.2. It requires a DOI on the reference; references without one are
// skipped by the drainer before Query is ever called.
type DOIBackend struct {
	// BaseURL overrides https://doi.org for testing.
	BaseURL string
}

func (b *DOIBackend) Name() string      { return "DOI" }
func (b *DOIBackend) IsLocal() bool     { return false }
func (b *DOIBackend) RequiresDOI() bool { return true }

func (b *DOIBackend) baseURL() string {
	if b.BaseURL != "" {
		return b.BaseURL
	}
	return "https://doi.org"
}

type cslWork struct {
	Title string     `json:"title"`
	DOI   string     `json:"DOI"`
	Author []cslAuthor `json:"author"`
}

type cslAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

func (a cslAuthor) fullName() string {
	switch {
	case a.Given == "":
		return a.Family
	case a.Family == "":
		return a.Given
	default:
		return a.Given + " " + a.Family
	}
}

// Query ignores title entirely: a DOI lookup is an exact resolve, not a
// search, so there is no candidate ranking to perform.
func (b *DOIBackend) Query(ctx context.Context, title, doi string) (engine.DbQueryResult, error) {
	if doi == "" {
		return engine.DbQueryResult{}, nil
	}
	u := b.baseURL() + "/" + doi
	body, err := getJSON(ctx, u, map[string]string{"Accept": "application/vnd.citationstyles.csl+json"}, DefaultUserAgent)
	if err != nil {
		if isNotFoundErr(err) {
			return engine.DbQueryResult{}, nil
		}
		return engine.DbQueryResult{}, err
	}

	var work cslWork
	if err := json.Unmarshal(body, &work); err != nil {
		return engine.DbQueryResult{}, fmt.Errorf("doi: unmarshal: %w", err)
	}
	if work.Title == "" {
		return engine.DbQueryResult{}, nil
	}

	authors := make([]string, 0, len(work.Author))
	for _, a := range work.Author {
		if name := a.fullName(); name != "" {
			authors = append(authors, name)
		}
	}

	return engine.DbQueryResult{
		Found:   true,
		Title:   work.Title,
		Authors: authors,
		URL:     u,
	}, nil
}

// isNotFoundErr reports whether err wraps an HTTP 404, which a DOI resolve
// treats as a cacheable not-found rather than a failure.
func isNotFoundErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "HTTP 404")
}
