package engine

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable is returned by a backend when it cannot be reached at
// all (as opposed to returning a well-formed not-found response).
var ErrBackendUnavailable = errors.New("engine: backend unavailable")

// RateLimitedError is returned by DatabaseBackend.Query when the remote
// service answered with HTTP 429. RetryAfter is the server-suggested wait, or
// zero if the response carried no Retry-After header (the drainer then falls
// back to exponential backoff).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "engine: rate limited by backend"
}

// DatabaseBackend is implemented by every source the engine can query: local
// indexed stores (DBLP, ACL Anthology) and remote HTTP clients (CrossRef,
// OpenAlex, Semantic Scholar, arXiv, DOI resolver, web search fallback).
// Variants are flat; there is no backend class hierarchy.
type DatabaseBackend interface {
	// Name identifies the backend in DbResult.DbName and cache keys.
	Name() string
	// IsLocal reports whether this backend answers without network I/O.
	IsLocal() bool
	// RequiresDOI reports whether a reference without a DOI must be skipped.
	RequiresDOI() bool
	// Query looks up title (and doi, if non-empty) against the backend.
	Query(ctx context.Context, title, doi string) (DbQueryResult, error)
}

// Pinger is implemented by backends that can report liveness independent of
// a Query call (e.g. a local SQLite handle, or a remote health endpoint).
type Pinger interface {
	Ping() error
}
