package backends

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/slub/hallucinator/go/engine"
)

// wordPattern and stopWords select the meaningful query terms for an FTS5
// MATCH clause: runs of letters, at least four characters, not a stop word.
var wordPattern = regexp.MustCompile(`[a-zA-Z]+`)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "have": true, "are": true, "was": true,
	"were": true, "been": true, "being": true, "has": true, "had": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "must": true, "shall": true,
	"can": true, "not": true, "but": true, "its": true, "our": true,
	"their": true, "your": true, "into": true, "over": true, "under": true,
	"about": true, "between": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true,
	"each": true, "every": true, "both": true, "few": true, "more": true,
	"most": true, "other": true, "some": true, "such": true, "only": true,
	"than": true, "too": true, "very": true,
}

func queryWords(title string) []string {
	var words []string
	for _, m := range wordPattern.FindAllString(title, -1) {
		w := strings.ToLower(m)
		if len(w) >= 4 && !stopWords[w] {
			words = append(words, w)
		}
	}
	return words
}

// LocalFTSBackend is a local-index DatabaseBackend over a SQLite database
// with an FTS5 virtual table, shared by DBLP and ACL Anthology. The schema
// it expects:
//
//	publications(rowid, uri, title)
//	publications_fts (fts5 over title, content='publications', content_rowid='rowid')
//	authors(pid, name)
//	publication_authors(uri, pid)
type LocalFTSBackend struct {
	name      string
	urlPrefix string
	threshold float64

	mu sync.Mutex
	db *sqlx.DB
}

// NewLocalFTSBackend builds a local FTS5 backend. threshold <= 0 uses
// engine.DefaultTitleMatchThreshold. urlPrefix is prepended to a matched
// record's stored uri to build DbQueryResult.URL (e.g. "https://dblp.org/rec/").
func NewLocalFTSBackend(name string, db *sqlx.DB, urlPrefix string, threshold float64) *LocalFTSBackend {
	if threshold <= 0 {
		threshold = engine.DefaultTitleMatchThreshold
	}
	return &LocalFTSBackend{name: name, db: db, urlPrefix: urlPrefix, threshold: threshold}
}

func (b *LocalFTSBackend) Name() string      { return b.name }
func (b *LocalFTSBackend) IsLocal() bool     { return true }
func (b *LocalFTSBackend) RequiresDOI() bool { return false }

// Ping reports whether the underlying connection is reachable.
func (b *LocalFTSBackend) Ping() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Ping()
}

type candidateRow struct {
	URI   string `db:"uri"`
	Title string `db:"title"`
}

// Query runs the FTS5 word search, then ranks candidates by fuzzy title
// ratio and returns the best match at or above the configured threshold.
// doi is accepted for interface compatibility but unused: local indexes are
// keyed by title, not DOI.
func (b *LocalFTSBackend) Query(ctx context.Context, title, doi string) (engine.DbQueryResult, error) {
	words := queryWords(title)
	if len(words) == 0 {
		return engine.DbQueryResult{}, nil
	}
	ftsQuery := strings.Join(words, " ")

	b.mu.Lock()
	var candidates []candidateRow
	err := b.db.SelectContext(ctx, &candidates,
		`SELECT p.uri AS uri, p.title AS title FROM publications p
		 WHERE p.rowid IN (SELECT rowid FROM publications_fts WHERE title MATCH ?)
		 LIMIT 50`, ftsQuery)
	b.mu.Unlock()
	if err != nil {
		return engine.DbQueryResult{}, fmt.Errorf("%s: fts query: %w", b.name, err)
	}
	if len(candidates) == 0 {
		return engine.DbQueryResult{}, nil
	}

	var (
		bestScore float64
		best      *candidateRow
	)
	for i := range candidates {
		score := engine.TitleRatio(title, candidates[i].Title)
		if score >= b.threshold && score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}
	if best == nil {
		return engine.DbQueryResult{}, nil
	}

	b.mu.Lock()
	var authors []string
	err = b.db.SelectContext(ctx, &authors,
		`SELECT a.name FROM authors a JOIN publication_authors pa ON pa.pid = a.pid WHERE pa.uri = ?`, best.URI)
	b.mu.Unlock()
	if err != nil {
		return engine.DbQueryResult{}, fmt.Errorf("%s: author lookup: %w", b.name, err)
	}

	return engine.DbQueryResult{
		Found:   true,
		Title:   best.Title,
		Authors: authors,
		URL:     b.urlPrefix + best.URI,
	}, nil
}
