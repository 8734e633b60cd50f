package engine

import (
	"time"

	"github.com/slub/hallucinator/go/cache"
)

// Config is a value passed by the embedder; it is immutable for the duration
// of a batch. There are no package-level singletons — rate limiters and the
// cache are plumbed through explicitly.
type Config struct {
	// LocalBackends run inline, in the coordinator, before any remote fan-out.
	LocalBackends []DatabaseBackend
	// RemoteBackends each get one or more dedicated drainer goroutines.
	RemoteBackends []DatabaseBackend
	// DrainersPerBackend allows pipelining beyond one goroutine per remote
	// backend when the rate-limit interval allows it. Defaults to 1.
	DrainersPerBackend map[string]int

	// NumWorkers is the number of coordinator goroutines. Default 4.
	NumWorkers int

	// MaxRateLimitRetries bounds the number of 429 retries per backend call.
	MaxRateLimitRetries int

	// Cache is the two-tier query cache. May be nil to disable caching.
	Cache *cache.QueryCache

	// RateLimiters holds one limiter per remote backend name. Backends absent
	// from this map are not rate-limited.
	RateLimiters map[string]*RateLimiter

	// Retractor performs the post-verification retraction probe. May be nil
	// to disable retraction enrichment.
	Retractor Retractor

	// NoisyAuthorListDatabases marks backends whose author lists are known to
	// be frequently incomplete; author mismatches from these backends are not
	// recorded as first_mismatch unless CheckOpenAlexAuthors is set. Defaults
	// to {"OpenAlex": true}.
	NoisyAuthorListDatabases map[string]bool

	// CheckOpenAlexAuthors forces author-mismatch recording for backends
	// listed in NoisyAuthorListDatabases.
	CheckOpenAlexAuthors bool

	// DrainerTimeout bounds a single backend call.
	DrainerTimeout time.Duration

	// TitleMatchThreshold records the batch's minimum fuzzy-ratio score
	// (0..1) for two titles to count as the same work. The engine itself does
	// not read it: each backend applies its own threshold (NewLocalFTSBackend's
	// threshold argument, the remote backends' Threshold field).
	TitleMatchThreshold float64
}

// isNoisy reports whether dbName's author lists should be treated as
// unreliable for mismatch-recording purposes.
func (c *Config) isNoisy(dbName string) bool {
	if c.CheckOpenAlexAuthors {
		return false
	}
	if c.NoisyAuthorListDatabases == nil {
		return dbName == "OpenAlex"
	}
	return c.NoisyAuthorListDatabases[dbName]
}

func (c *Config) drainersFor(name string) int {
	if c.DrainersPerBackend == nil {
		return 1
	}
	if n, ok := c.DrainersPerBackend[name]; ok && n > 0 {
		return n
	}
	return 1
}
