// Package backends implements the concrete DatabaseBackend values: local
// SQLite/FTS5 stores (DBLP, ACL Anthology) and remote HTTP clients (CrossRef,
// OpenAlex, Semantic Scholar, arXiv, the DOI resolver, and an optional
// user-supplied web-search fallback), per §6 of the engine design.
package backends

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/slub/hallucinator/go/engine"
)

// DefaultUserAgent identifies this engine to polite-pool-aware APIs
// (CrossRef, Semantic Scholar) the way the teacher's own tooling identifies
// itself to upstream services.
const DefaultUserAgent = "hallucinator-refcheck (+https://github.com/slub/hallucinator)"

// httpClient is the single client shared by every remote backend; connection
// pooling is handled by net/http's transport, per §5.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// getJSON issues a GET against u and returns the response body. A 429 is
// translated into *engine.RateLimitedError so the drainer's rate limiter can
// back off; any other non-2xx status or transport failure is wrapped in
// engine.ErrBackendUnavailable.
func getJSON(ctx context.Context, u string, headers map[string]string, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrBackendUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", engine.ErrBackendUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &engine.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d from %s", engine.ErrBackendUnavailable, resp.StatusCode, u)
	}
	return body, nil
}

// parseRetryAfter understands both the integer-seconds and HTTP-date forms
// of Retry-After. An unparseable or absent header yields zero, leaving the
// caller's own exponential backoff in charge.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func queryEscape(s string) string { return url.QueryEscape(s) }
