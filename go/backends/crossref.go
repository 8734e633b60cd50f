package backends

import (
	"context"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/slub/hallucinator/go/engine"
)

// CrossRefBackend queries api.crossref.org/works with query.bibliographic,
// per §6.2. Supplying Mailto opts into CrossRef's polite pool, which grants a
// higher rate limit.
type CrossRefBackend struct {
	Mailto    string
	Threshold float64
	// BaseURL overrides https://api.crossref.org for testing.
	BaseURL string
}

func (b *CrossRefBackend) Name() string      { return "CrossRef" }
func (b *CrossRefBackend) IsLocal() bool     { return false }
func (b *CrossRefBackend) RequiresDOI() bool { return false }

func (b *CrossRefBackend) baseURL() string {
	if b.BaseURL != "" {
		return b.BaseURL
	}
	return "https://api.crossref.org"
}

type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	Title   []string `json:"title"`
	Author  []crossrefAuthor `json:"author"`
	DOI     string   `json:"DOI"`
	URL     string   `json:"URL"`
	UpdateTo []crossrefUpdate `json:"update-to"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefUpdate struct {
	Type    string `json:"type"`
	DOI     string `json:"DOI"`
	Updated struct {
		DateTime string `json:"date-time"`
	} `json:"updated"`
}

func (a crossrefAuthor) fullName() string {
	if a.Given == "" {
		return a.Family
	}
	if a.Family == "" {
		return a.Given
	}
	return a.Given + " " + a.Family
}

func (b *CrossRefBackend) Query(ctx context.Context, title, doi string) (engine.DbQueryResult, error) {
	u := fmt.Sprintf("%s/works?query.bibliographic=%s&rows=5", b.baseURL(), queryEscape(title))
	if b.Mailto != "" {
		u += "&mailto=" + queryEscape(b.Mailto)
	}

	body, err := getJSON(ctx, u, nil, DefaultUserAgent)
	if err != nil {
		return engine.DbQueryResult{}, err
	}

	var parsed crossrefResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return engine.DbQueryResult{}, fmt.Errorf("crossref: unmarshal: %w", err)
	}

	threshold := b.Threshold
	best := findBestCrossrefWork(title, parsed.Message.Items, threshold)
	if best == nil {
		return engine.DbQueryResult{}, nil
	}

	authors := make([]string, 0, len(best.Author))
	for _, a := range best.Author {
		if name := a.fullName(); name != "" {
			authors = append(authors, name)
		}
	}
	workTitle := ""
	if len(best.Title) > 0 {
		workTitle = best.Title[0]
	}

	var retraction *engine.RetractionInfo
	for _, upd := range best.UpdateTo {
		if upd.Type == "retraction" {
			retraction = &engine.RetractionInfo{IsRetracted: true, RetractionDOI: upd.DOI}
			break
		}
	}

	return engine.DbQueryResult{
		Found:      true,
		Title:      workTitle,
		Authors:    authors,
		URL:        crossrefWorkURL(best),
		Retraction: retraction,
	}, nil
}

func crossrefWorkURL(w *crossrefWork) string {
	if w.URL != "" {
		return w.URL
	}
	if w.DOI != "" {
		return "https://doi.org/" + w.DOI
	}
	return ""
}

func findBestCrossrefWork(title string, items []crossrefWork, threshold float64) *crossrefWork {
	if threshold <= 0 {
		threshold = engine.DefaultTitleMatchThreshold
	}
	var (
		best      *crossrefWork
		bestScore float64
	)
	for i := range items {
		if len(items[i].Title) == 0 {
			continue
		}
		score := engine.TitleRatio(title, items[i].Title[0])
		if score >= threshold && score > bestScore {
			bestScore = score
			best = &items[i]
		}
	}
	return best
}
