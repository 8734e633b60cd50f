package engine

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/slub/hallucinator/go/cache"
)

func TestCheckReferences_VerifiedViaLocalBackend(t *testing.T) {
	is := is.New(t)
	dblp := &mockBackend{
		name: "DBLP", local: true,
		result: DbQueryResult{Found: true, Title: "Attention Is All You Need", Authors: []string{"Vaswani"}},
	}
	cfg := Config{LocalBackends: []DatabaseBackend{dblp}}

	refs := []Reference{{Title: "Attention Is All You Need", Authors: []string{"Vaswani"}}}
	results, err := CheckReferences(context.Background(), refs, cfg, nil)
	is.NoErr(err)
	is.Equal(len(results), 1)
	is.Equal(results[0].Status, StatusVerified)
	is.Equal(results[0].Source, "DBLP")
}

func TestCheckReferences_AuthorMismatchReported(t *testing.T) {
	is := is.New(t)
	backend := &mockBackend{
		name: "CrossRef", local: false,
		result: DbQueryResult{Found: true, Title: "Deep Learning", Authors: []string{"LeCun", "Bengio", "Hinton"}},
	}
	cfg := Config{RemoteBackends: []DatabaseBackend{backend}}

	refs := []Reference{{Title: "Deep Learning", Authors: []string{"Someone Unrelated"}}}
	results, err := CheckReferences(context.Background(), refs, cfg, nil)
	is.NoErr(err)
	is.Equal(results[0].Status, StatusAuthorMismatch)
	is.Equal(results[0].Source, "CrossRef")
	is.Equal(len(results[0].FoundAuthors), 3)
}

func TestCheckReferences_FabricatedReferenceNotFound(t *testing.T) {
	is := is.New(t)
	a := &mockBackend{name: "DBLP", local: true, result: DbQueryResult{Found: false}}
	b := &mockBackend{name: "CrossRef", local: false, result: DbQueryResult{Found: false}}
	c := &mockBackend{name: "OpenAlex", local: false, result: DbQueryResult{Found: false}}
	cfg := Config{LocalBackends: []DatabaseBackend{a}, RemoteBackends: []DatabaseBackend{b, c}}

	refs := []Reference{{Title: "Quantum Neural Transformers for Time Travel", Authors: []string{"Fake"}}}
	results, err := CheckReferences(context.Background(), refs, cfg, nil)
	is.NoErr(err)
	is.Equal(results[0].Status, StatusNotFound)
	is.Equal(results[0].Source, "")
	is.Equal(len(results[0].DbResults), 3)
	for _, dr := range results[0].DbResults {
		is.Equal(dr.Status, DbNoMatch)
	}
}

func TestCheckReferences_EarlyExitSkipsSlowerPeer(t *testing.T) {
	is := is.New(t)
	fast := &mockBackend{
		name: "CrossRef", local: false,
		result: DbQueryResult{Found: true, Title: "Some Paper", Authors: []string{"A. Author"}},
	}
	slow := &mockBackend{
		name: "OpenAlex", local: false, delay: 30 * time.Millisecond,
		result: DbQueryResult{Found: true, Title: "Some Paper", Authors: []string{"A. Author"}},
	}
	cfg := Config{RemoteBackends: []DatabaseBackend{fast, slow}}

	refs := []Reference{{Title: "Some Paper", Authors: []string{"A. Author"}}}
	results, err := CheckReferences(context.Background(), refs, cfg, nil)
	is.NoErr(err)
	is.Equal(results[0].Status, StatusVerified)

	var slowResult *DbResult
	for i := range results[0].DbResults {
		if results[0].DbResults[i].DbName == "OpenAlex" {
			slowResult = &results[0].DbResults[i]
		}
	}
	is.True(slowResult != nil)
	is.Equal(slowResult.Status, DbSkipped)
	is.Equal(slow.callCount(), int32(0))
}

func TestCheckReferences_RateLimitBackoffThenSuccess(t *testing.T) {
	is := is.New(t)
	var attempt int
	backend := &mockBackend{
		name: "CrossRef", local: false,
		resultFor: func(title string) (DbQueryResult, error) {
			attempt++
			if attempt < 2 {
				return DbQueryResult{}, &RateLimitedError{RetryAfter: 5 * time.Millisecond}
			}
			return DbQueryResult{Found: true, Title: title, Authors: []string{"A"}}, nil
		},
	}
	limiter := NewRateLimiter("CrossRef", 1000, 10)
	cfg := Config{
		RemoteBackends:      []DatabaseBackend{backend},
		RateLimiters:        map[string]*RateLimiter{"CrossRef": limiter},
		MaxRateLimitRetries: 3,
	}

	refs := []Reference{{Title: "Some Paper", Authors: []string{"A"}}}
	results, err := CheckReferences(context.Background(), refs, cfg, nil)
	is.NoErr(err)
	is.Equal(results[0].Status, StatusVerified)
	is.True(backend.callCount() >= 2)
}

func TestCache_NegativeTTLZeroDisablesNotFoundCaching(t *testing.T) {
	is := is.New(t)
	qc, err := cache.Open("", time.Hour, 0)
	is.NoErr(err)

	qc.Insert("somepaper", "CrossRef", cache.Result{Found: false})
	is.Equal(qc.Len(), 0)
	_, ok := qc.Get("somepaper", "CrossRef")
	is.True(!ok)
}

func TestCache_PositiveResultRoundtrips(t *testing.T) {
	is := is.New(t)
	qc, err := cache.Open("", time.Hour, time.Hour)
	is.NoErr(err)

	qc.Insert("somepaper", "CrossRef", cache.Result{Found: true, Title: "Some Paper", Authors: []string{"A"}})
	result, ok := qc.Get("somepaper", "CrossRef")
	is.True(ok)
	is.Equal(result.Title, "Some Paper")
}

func TestRateLimiter_CircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	is := is.New(t)
	limiter := NewRateLimiter("flaky", 1000, 10)
	failing := func(ctx context.Context) (DbQueryResult, error) {
		return DbQueryResult{}, ErrBackendUnavailable
	}

	for i := 0; i < 5; i++ {
		_, err := limiter.acquire(context.Background(), 0, failing)
		is.True(err != nil)
	}

	var calledAfterTrip bool
	_, err := limiter.acquire(context.Background(), 0, func(ctx context.Context) (DbQueryResult, error) {
		calledAfterTrip = true
		return DbQueryResult{}, nil
	})
	is.True(err != nil)
	is.True(!calledAfterTrip)
}
