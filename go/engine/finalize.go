package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/slub/hallucinator/go/set"
)

// finalize derives the terminal ValidationResult from the collector's
// aggregation state, merging local-phase and remote-phase observations, runs
// the retraction probe when verified, emits Warning/Result, and sends on the
// one-shot reply channel. It is called by exactly one drainer per reference
// — whichever decremented remaining to zero — so no further synchronization
// is needed beyond the mutex already guarding c.state.
func (c *RefCollector) finalize(ctx context.Context, cfg *Config) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	result := ValidationResult{
		Title:       c.queryTitle,
		RawCitation: c.ref.RawCitation,
		RefAuthors:  c.ref.Authors,
	}

	switch {
	case state.verifiedInfo != nil:
		result.Status = StatusVerified
		result.Source = state.verifiedInfo.Source
		result.FoundAuthors = state.verifiedInfo.Authors
		result.PaperURL = state.verifiedInfo.URL
	case state.firstMismatch != nil:
		result.Status = StatusAuthorMismatch
		result.Source = state.firstMismatch.Source
		result.FoundAuthors = state.firstMismatch.Authors
		result.PaperURL = state.firstMismatch.URL
	default:
		result.Status = StatusNotFound
	}

	result.DbResults = mergeDbResults(c.localDbResults, state.dbResults)
	result.FailedDbs = mergeFailedDbs(c.localFailedDbs, state.failedDbs)

	result.DOIInfo = buildDOIInfo(c.ref.DOI, findDbResult(result.DbResults, "DOI"))
	result.ArxivInfo = buildArxivInfo(c.ref.ArxivID, findDbResult(result.DbResults, "arXiv"))

	if result.Status == StatusVerified && cfg.Retractor != nil {
		result.RetractionInfo = runRetractionProbe(ctx, cfg.Retractor, c.ref.DOI, c.queryTitle)
	}

	if len(result.FailedDbs) > 0 {
		c.emit(ProgressEvent{
			Kind:    EventWarning,
			Index:   c.index,
			Total:   c.total,
			Title:   c.queryTitle,
			Message: fmt.Sprintf("failed databases: %s", strings.Join(result.FailedDbs, ", ")),
		})
	}
	c.emit(ProgressEvent{
		Kind:   EventResult,
		Index:  c.index,
		Total:  c.total,
		Title:  c.queryTitle,
		Result: &result,
	})

	// Buffered with capacity 1: this send never blocks. If the receiver
	// already gave up (batch cancellation), the value is simply dropped when
	// the channel is garbage collected.
	select {
	case c.reply <- result:
	default:
	}
}

func (c *RefCollector) emit(ev ProgressEvent) {
	if c.progress != nil {
		c.progress(ev)
	}
}

// runRetractionProbe prefers a DOI-based lookup when available, falling back
// to a title-based one. It only ever runs after a reference is verified.
func runRetractionProbe(ctx context.Context, r Retractor, doi, title string) *RetractionInfo {
	if doi != "" {
		if info, err := r.CheckDOI(ctx, doi); err == nil && info != nil {
			return info
		}
	}
	info, err := r.CheckTitle(ctx, title)
	if err != nil {
		return nil
	}
	return info
}

// mergeDbResults concatenates local-phase and remote-phase observations,
// local first, preserving insertion order within each phase.
func mergeDbResults(local, remote []DbResult) []DbResult {
	out := make([]DbResult, 0, len(local)+len(remote))
	out = append(out, local...)
	out = append(out, remote...)
	return out
}

// mergeFailedDbs concatenates and de-duplicates failed database names,
// returned in sorted order.
func mergeFailedDbs(local, remote []string) []string {
	s := set.FromSlice(local)
	for _, name := range remote {
		s.Add(name)
	}
	return s.Sorted()
}

func findDbResult(results []DbResult, dbName string) *DbResult {
	for i := range results {
		if results[i].DbName == dbName {
			return &results[i]
		}
	}
	return nil
}
