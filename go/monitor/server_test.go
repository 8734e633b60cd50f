package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/segmentio/encoding/json"

	"github.com/slub/hallucinator/go/cache"
	"github.com/slub/hallucinator/go/engine"
)

type fakeBackend struct {
	name   string
	pingOK bool
}

func (f *fakeBackend) Name() string      { return f.name }
func (f *fakeBackend) IsLocal() bool     { return false }
func (f *fakeBackend) RequiresDOI() bool { return false }

func (f *fakeBackend) Query(context.Context, string, string) (engine.DbQueryResult, error) {
	return engine.DbQueryResult{}, nil
}

func (f *fakeBackend) Ping() error {
	if f.pingOK {
		return nil
	}
	return errBackendDown
}

var errBackendDown = errDown("backend down")

type errDown string

func (e errDown) Error() string { return string(e) }

func TestHandleCacheSizeReportsCounters(t *testing.T) {
	is := is.New(t)
	qc, err := cache.Open("", time.Hour, time.Hour)
	is.NoErr(err)
	qc.Insert("somepaper", "CrossRef", cache.Result{Found: true, Title: "Some Paper"})

	srv := New(qc, nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cache/size", nil))
	is.Equal(rr.Code, http.StatusOK)

	var resp cacheSizeResponse
	is.NoErr(json.Unmarshal(rr.Body.Bytes(), &resp))
	is.Equal(resp.L1Entries, 1)
	is.True(!resp.HasPersistence)
}

func TestHandleCachePurgeEmptiesCache(t *testing.T) {
	is := is.New(t)
	qc, err := cache.Open("", time.Hour, time.Hour)
	is.NoErr(err)
	qc.Insert("somepaper", "CrossRef", cache.Result{Found: true, Title: "Some Paper"})

	srv := New(qc, nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/cache", nil))
	is.Equal(qc.Len(), 0)
}

func TestHandleHealthzReportsPerBackendStatus(t *testing.T) {
	is := is.New(t)
	up := &fakeBackend{name: "CrossRef", pingOK: true}
	down := &fakeBackend{name: "OpenAlex", pingOK: false}

	srv := New(nil, []engine.DatabaseBackend{up, down})
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	is.Equal(rr.Code, http.StatusServiceUnavailable)

	var resp healthzResponse
	is.NoErr(json.Unmarshal(rr.Body.Bytes(), &resp))
	is.True(!resp.OK)
	is.Equal(resp.Backends["CrossRef"], "ok")
	is.Equal(resp.Backends["OpenAlex"], "backend down")
}

func TestHandleHealthzAllUpReturnsOK(t *testing.T) {
	is := is.New(t)
	up := &fakeBackend{name: "CrossRef", pingOK: true}

	srv := New(nil, []engine.DatabaseBackend{up})
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	is.Equal(rr.Code, http.StatusOK)
}
