// Command refcheck runs the reference-validation engine over a batch of
// citations read from a JSON file and writes a JSON verdict report to
// stdout. It optionally serves a monitor.Server for cache stats and health
// checks while the batch runs.
//
// $ refcheck -refs refs.json -local dblp.db > report.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/andrew-d/go-termutil"
	"github.com/caarlos0/env/v11"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/slub/hallucinator/go/backends"
	"github.com/slub/hallucinator/go/cache"
	"github.com/slub/hallucinator/go/engine"
	"github.com/slub/hallucinator/go/monitor"
)

// envConfig holds the settings that make sense as environment variables
// (API credentials, rate limits, cache TTLs) rather than flags — the things
// an operator sets once per deployment, not once per invocation.
type envConfig struct {
	CrossRefMailto        string        `env:"REFCHECK_CROSSREF_MAILTO"`
	OpenAlexAPIKey        string        `env:"REFCHECK_OPENALEX_API_KEY"`
	SemanticScholarAPIKey string        `env:"REFCHECK_S2_API_KEY"`
	WebSearchEndpoint     string        `env:"REFCHECK_WEBSEARCH_ENDPOINT"`
	WebSearchAPIKey       string        `env:"REFCHECK_WEBSEARCH_API_KEY"`
	CachePath             string        `env:"REFCHECK_CACHE_PATH" envDefault:"refcheck-cache.db"`
	CachePositiveTTL      time.Duration `env:"REFCHECK_CACHE_POSITIVE_TTL" envDefault:"720h"`
	CacheNegativeTTL      time.Duration `env:"REFCHECK_CACHE_NEGATIVE_TTL" envDefault:"24h"`
	MaxRateLimitRetries   int           `env:"REFCHECK_MAX_RATE_LIMIT_RETRIES" envDefault:"3"`
	NumWorkers            int           `env:"REFCHECK_NUM_WORKERS" envDefault:"4"`
	TitleMatchThreshold   float64       `env:"REFCHECK_TITLE_MATCH_THRESHOLD" envDefault:"0.95"`
}

var (
	refsPath    = flag.String("refs", "", "path to a JSON file containing an array of references (required)")
	localDBPath = flag.String("local", "", "path to a local FTS5 SQLite index (DBLP/ACL); local backend disabled if empty")
	listen      = flag.String("l", "", "address to serve the monitor HTTP surface on; disabled if empty")
	timeout     = flag.Duration("timeout", 2*time.Minute, "per-batch deadline")
)

// inputReference mirrors engine.Reference's JSON shape for the input file.
type inputReference struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	DOI         string   `json:"doi"`
	ArxivID     string   `json:"arxiv_id"`
	RawCitation string   `json:"raw_citation"`
}

func main() {
	flag.Parse()
	if *refsPath == "" {
		log.Fatal("refcheck: -refs is required")
	}

	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("refcheck: parsing environment: %v", err)
	}

	refs, err := loadReferences(*refsPath)
	if err != nil {
		log.Fatalf("refcheck: %v", err)
	}

	queryCache, err := cache.Open(cfg.CachePath, cfg.CachePositiveTTL, cfg.CacheNegativeTTL)
	if err != nil {
		log.Printf("refcheck: warning: opening cache %s failed, continuing with in-memory cache only: %v", cfg.CachePath, err)
		if queryCache != nil {
			queryCache.Close()
		}
		queryCache, _ = cache.Open("", cfg.CachePositiveTTL, cfg.CacheNegativeTTL)
	}
	defer queryCache.Close()

	remoteBackends := buildRemoteBackends(cfg)
	localBackends := buildLocalBackends(*localDBPath, cfg.TitleMatchThreshold)

	engineCfg := engine.Config{
		LocalBackends:       localBackends,
		RemoteBackends:      remoteBackends,
		NumWorkers:          cfg.NumWorkers,
		MaxRateLimitRetries: cfg.MaxRateLimitRetries,
		Cache:               queryCache,
		RateLimiters:        buildRateLimiters(remoteBackends),
		Retractor:           &backends.CrossRefRetractor{Mailto: cfg.CrossRefMailto},
		TitleMatchThreshold: cfg.TitleMatchThreshold,
	}

	if *listen != "" {
		allBackends := append(append([]engine.DatabaseBackend{}, localBackends...), remoteBackends...)
		mon := monitor.New(queryCache, allBackends)
		go func() {
			log.Printf("refcheck: monitor listening on %s", *listen)
			if err := http.ListenAndServe(*listen, mon); err != nil {
				log.Printf("refcheck: monitor server stopped: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	progress := newProgressReporter(len(refs))
	results, err := engine.CheckReferences(ctx, refs, engineCfg, progress.report)
	if err != nil {
		log.Printf("refcheck: batch ended early: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Fatalf("refcheck: encoding report: %v", err)
	}
}

func loadReferences(path string) ([]engine.Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var in []inputReference
	if err := json.NewDecoder(f).Decode(&in); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	refs := make([]engine.Reference, len(in))
	for i, r := range in {
		refs[i] = engine.Reference{
			Title: r.Title, Authors: r.Authors, DOI: r.DOI,
			ArxivID: r.ArxivID, RawCitation: r.RawCitation,
		}
	}
	return refs, nil
}

func buildRemoteBackends(cfg envConfig) []engine.DatabaseBackend {
	var out []engine.DatabaseBackend
	out = append(out, &backends.CrossRefBackend{Mailto: cfg.CrossRefMailto, Threshold: cfg.TitleMatchThreshold})
	out = append(out, &backends.OpenAlexBackend{APIKey: cfg.OpenAlexAPIKey, Threshold: cfg.TitleMatchThreshold})
	out = append(out, &backends.SemanticScholarBackend{APIKey: cfg.SemanticScholarAPIKey, Threshold: cfg.TitleMatchThreshold})
	out = append(out, &backends.ArxivBackend{Threshold: cfg.TitleMatchThreshold})
	out = append(out, &backends.DOIBackend{})
	if cfg.WebSearchEndpoint != "" {
		out = append(out, &backends.WebSearchBackend{
			Endpoint: cfg.WebSearchEndpoint, APIKey: cfg.WebSearchAPIKey, Threshold: cfg.TitleMatchThreshold,
		})
	}
	return out
}

func buildLocalBackends(dbPath string, threshold float64) []engine.DatabaseBackend {
	if dbPath == "" {
		return nil
	}
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		log.Fatalf("refcheck: opening local index %s: %v", dbPath, err)
	}
	return []engine.DatabaseBackend{
		backends.NewLocalFTSBackend("DBLP", db, "https://dblp.org/rec/", threshold),
	}
}

// buildRateLimiters gives every remote backend a conservative default token
// bucket; an operator tuning this per-deployment would do so here.
func buildRateLimiters(remoteBackends []engine.DatabaseBackend) map[string]*engine.RateLimiter {
	limiters := make(map[string]*engine.RateLimiter, len(remoteBackends))
	for _, b := range remoteBackends {
		limiters[b.Name()] = engine.NewRateLimiter(b.Name(), 2, 5)
	}
	return limiters
}

// progressReporter renders a progress bar when stdout is a terminal, or
// plain one-line-per-event logging when piped, matching the
// `andrew-d/go-termutil`-gated behaviour described for this tool.
type progressReporter struct {
	total      int
	completed  int
	isTerminal bool
}

func newProgressReporter(total int) *progressReporter {
	return &progressReporter{total: total, isTerminal: termutil.Isatty(os.Stdout.Fd())}
}

func (p *progressReporter) report(ev engine.ProgressEvent) {
	switch ev.Kind {
	case engine.EventChecking:
		if !p.isTerminal {
			log.Printf("[%d/%d] checking %q", ev.Index+1, ev.Total, ev.Title)
		}
	case engine.EventWarning:
		log.Printf("[%d/%d] warning: %s", ev.Index+1, ev.Total, ev.Message)
	case engine.EventResult:
		p.completed++
		if p.isTerminal {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s", p.completed, p.total, ev.Result.Status)
			if p.completed == p.total {
				fmt.Fprintln(os.Stderr)
			}
		} else {
			log.Printf("[%d/%d] %s: %s", ev.Index+1, ev.Total, ev.Title, ev.Result.Status)
		}
	}
}
