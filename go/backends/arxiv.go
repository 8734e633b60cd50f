package backends

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/slub/hallucinator/go/engine"
)

// ArxivBackend queries export.arxiv.org/api/query, per §6.2, with a
// search_query on the title. It does not look references up by arXiv ID
// (no id_list query is issued): Query receives only the title and DOI, and
// the DOI is unused here. The response is Atom XML —
// there is no JSON- or protobuf-based client for arXiv in the dependency
// pack, so this backend is the one place the engine reaches for the
// standard library's encoding/xml rather than a third-party parser.
type ArxivBackend struct {
	Threshold float64
	// BaseURL overrides http://export.arxiv.org/api/query for testing.
	BaseURL string
}

func (b *ArxivBackend) Name() string      { return "arXiv" }
func (b *ArxivBackend) IsLocal() bool     { return false }
func (b *ArxivBackend) RequiresDOI() bool { return false }

func (b *ArxivBackend) baseURL() string {
	if b.BaseURL != "" {
		return b.BaseURL
	}
	return "http://export.arxiv.org/api/query"
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string       `xml:"id"`
	Title   string       `xml:"title"`
	Authors []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

func (b *ArxivBackend) Query(ctx context.Context, title, doi string) (engine.DbQueryResult, error) {
	u := fmt.Sprintf("%s?search_query=%s&max_results=5",
		b.baseURL(), queryEscape("all:"+title))

	body, err := getJSON(ctx, u, map[string]string{"Accept": "application/atom+xml"}, DefaultUserAgent)
	if err != nil {
		return engine.DbQueryResult{}, err
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return engine.DbQueryResult{}, fmt.Errorf("arxiv: unmarshal atom feed: %w", err)
	}

	threshold := b.Threshold
	if threshold <= 0 {
		threshold = engine.DefaultTitleMatchThreshold
	}
	var (
		best      *atomEntry
		bestScore float64
	)
	for i := range feed.Entries {
		candidate := strings.TrimSpace(feed.Entries[i].Title)
		if candidate == "" {
			continue
		}
		score := engine.TitleRatio(title, candidate)
		if score >= threshold && score > bestScore {
			bestScore = score
			best = &feed.Entries[i]
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
		Title:   strings.TrimSpace(best.Title),
		Authors: authors,
		URL:     best.ID,
	}, nil
}
