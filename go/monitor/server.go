// Package monitor implements a small HTTP introspection surface for a
// long-running refcheck batch: cache statistics, a cache-purge endpoint, and
// a health check that pings every configured backend and the cache's disk
// tier, in the same shape as the teacher's ckit.Server.
package monitor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/segmentio/encoding/json"

	"github.com/slub/hallucinator/go/cache"
	"github.com/slub/hallucinator/go/engine"
)

// Server exposes the cache and the configured backends over HTTP so an
// operator running refcheck as a long-lived batch process can watch cache
// hit rates and liveness without tailing logs.
type Server struct {
	Cache    *cache.QueryCache
	Backends []engine.DatabaseBackend
	Router   *mux.Router

	logged http.Handler
}

// New builds a Server with its routes already registered.
func New(c *cache.QueryCache, backends []engine.DatabaseBackend) *Server {
	s := &Server{Cache: c, Backends: backends, Router: mux.NewRouter()}
	s.Routes()
	s.logged = handlers.CombinedLoggingHandler(os.Stdout, s.Router)
	return s
}

// Routes registers all endpoints on s.Router.
func (s *Server) Routes() {
	s.Router.HandleFunc("/", s.handleIndex())
	s.Router.HandleFunc("/cache/size", s.handleCacheSize())
	s.Router.HandleFunc("/cache", s.handleCachePurge()).Methods("DELETE")
	s.Router.HandleFunc("/healthz", s.handleHealthz())
}

// ServeHTTP turns the server into an http.Handler, logging every request in
// Apache combined log format the way ckit's spindel sibling tool does.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.logged != nil {
		s.logged.ServeHTTP(w, r)
		return
	}
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "refcheck monitor\n\nAvailable endpoints:\n\n    /cache/size\n    /cache (DELETE)\n    /healthz\n")
	}
}

// cacheSizeResponse is the payload for GET /cache/size.
type cacheSizeResponse struct {
	L1Entries      int     `json:"l1_entries"`
	L2Entries      int     `json:"l2_entries"`
	L1Found        int64   `json:"l1_found"`
	L1NotFound     int64   `json:"l1_not_found"`
	L2Found        int64   `json:"l2_found"`
	L2NotFound     int64   `json:"l2_not_found"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	AvgLookupMs    float64 `json:"avg_lookup_ms"`
	HasPersistence bool    `json:"has_persistence"`
}

func (s *Server) handleCacheSize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Cache == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		l1f, l1n := s.Cache.L1Counts()
		l2f, l2n := s.Cache.L2Counts()
		resp := cacheSizeResponse{
			L1Entries:      s.Cache.Len(),
			L2Entries:      s.Cache.DiskLen(),
			L1Found:        l1f,
			L1NotFound:     l1n,
			L2Found:        l2f,
			L2NotFound:     l2n,
			Hits:           s.Cache.Hits(),
			Misses:         s.Cache.Misses(),
			AvgLookupMs:    s.Cache.AvgLookupMillis(),
			HasPersistence: s.Cache.HasPersistence(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			httpErrLog(w, err)
		}
	}
}

// handleCachePurge empties the cache. Kept separate from ClearNotFound so an
// operator can fully reset after a schema or matching-logic change.
func (s *Server) handleCachePurge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Cache == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.Cache.Clear()
		log.Println("monitor: cache cleared")
	}
}

type healthzResponse struct {
	OK       bool              `json:"ok"`
	Backends map[string]string `json:"backends"`
}

// handleHealthz pings the cache's disk tier (if any) and every backend that
// implements engine.Pinger, reporting per-backend status rather than failing
// fast on the first error — an operator needs to know which backend is down,
// not just that one is.
func (s *Server) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		resp := healthzResponse{OK: true, Backends: map[string]string{}}
		if err := s.Ping(ctx); err != nil {
			resp.OK = false
		}
		for _, b := range s.Backends {
			pinger, ok := b.(engine.Pinger)
			if !ok {
				resp.Backends[b.Name()] = "unknown"
				continue
			}
			if err := pinger.Ping(); err != nil {
				resp.Backends[b.Name()] = err.Error()
				resp.OK = false
			} else {
				resp.Backends[b.Name()] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		if !resp.OK {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			httpErrLog(w, err)
		}
	}
}

// Ping reports whether the cache's disk tier is reachable. It does not probe
// backends; use handleHealthz for the full per-backend report.
func (s *Server) Ping(ctx context.Context) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Ping(ctx)
}

func httpErrLog(w http.ResponseWriter, err error) {
	log.Printf("monitor: %v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
