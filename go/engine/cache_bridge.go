package engine

import "github.com/slub/hallucinator/go/cache"

// toCacheResult and fromCacheResult translate between the engine's backend
// result type and the cache package's storage-agnostic Result type. The
// conversion lives here, at the boundary, so the cache package itself never
// needs to import engine.

func toCacheResult(result DbQueryResult) cache.Result {
	cr := cache.Result{
		Found:   result.Found,
		Title:   result.Title,
		Authors: result.Authors,
		URL:     result.URL,
	}
	if result.Retraction != nil {
		cr.Retraction = &cache.Retraction{
			IsRetracted:   result.Retraction.IsRetracted,
			RetractionDOI: result.Retraction.RetractionDOI,
			Reason:        result.Retraction.Reason,
		}
	}
	return cr
}

func fromCacheResult(cr cache.Result) DbQueryResult {
	result := DbQueryResult{
		Found:   cr.Found,
		Title:   cr.Title,
		Authors: cr.Authors,
		URL:     cr.URL,
	}
	if cr.Retraction != nil {
		result.Retraction = &RetractionInfo{
			IsRetracted:   cr.Retraction.IsRetracted,
			RetractionDOI: cr.Retraction.RetractionDOI,
			Reason:        cr.Retraction.Reason,
		}
	}
	return result
}
