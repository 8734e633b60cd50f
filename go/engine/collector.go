package engine

import (
	"sync"
	"sync/atomic"
)

// VerifiedInfo is recorded by the first drainer to observe a matching
// title+author result for a reference.
type VerifiedInfo struct {
	Source  string
	Authors []string
	URL     string
}

// MismatchInfo is recorded by the first drainer to observe a title match with
// a non-matching author list, subject to the noisy-database opt-out.
type MismatchInfo struct {
	Source  string
	Authors []string
	URL     string
}

// aggState is the mutable aggregation state guarded by RefCollector.mu. No
// blocking call is ever made while mu is held.
type aggState struct {
	verifiedInfo  *VerifiedInfo
	firstMismatch *MismatchInfo
	dbResults     []DbResult
	failedDbs     []string
}

// RefCollector is the per-reference aggregation hub created by the
// coordinator when it enters the remote phase. Every remote drainer handling
// this reference holds a pointer to the same RefCollector. Exactly one of
// them — whichever decrements remaining to zero — runs finalize and sends on
// reply.
type RefCollector struct {
	ref          Reference
	queryTitle   string
	progress     ProgressFunc
	index, total int

	remaining atomic.Int32
	verified  atomic.Bool

	mu    sync.Mutex
	state aggState

	// localDbResults and localFailedDbs seed the merge in finalize; they are
	// written once, before any drainer runs, and never touched afterward.
	localDbResults []DbResult
	localFailedDbs []string

	reply chan ValidationResult
}

// newRefCollector builds a collector ready to receive exactly numRemote
// drainer reports. reply is buffered with capacity 1 so the finalizing
// drainer's send never blocks.
func newRefCollector(ref Reference, queryTitle string, index, total int, progress ProgressFunc, numRemote int, localResults []DbResult, localFailed []string, seedMismatch *MismatchInfo) *RefCollector {
	c := &RefCollector{
		ref:            ref,
		queryTitle:     queryTitle,
		progress:       progress,
		index:          index,
		total:          total,
		localDbResults: localResults,
		localFailedDbs: localFailed,
		reply:          make(chan ValidationResult, 1),
	}
	c.remaining.Store(int32(numRemote))
	c.state.firstMismatch = seedMismatch
	return c
}

// isVerified reports the monotonic verified flag with acquire semantics: a
// drainer observing true is guaranteed to see the VerifiedInfo written by the
// verifying drainer, because recordMatch writes VerifiedInfo under c.mu and
// only then stores the flag.
func (c *RefCollector) isVerified() bool {
	return c.verified.Load()
}

// recordMatch marks the reference verified and stores VerifiedInfo, unless
// one is already present (first verifier wins, but the flag can only ever
// transition false->true once regardless).
func (c *RefCollector) recordMatch(dbResult DbResult, info VerifiedInfo) {
	c.mu.Lock()
	c.state.dbResults = append(c.state.dbResults, dbResult)
	if c.state.verifiedInfo == nil {
		c.state.verifiedInfo = &info
	}
	c.mu.Unlock()
	c.verified.Store(true)
}

// recordMismatch stores dbResult and, if this is the first mismatch overall,
// stores info as firstMismatch. A later remote Match still upgrades the
// final status to Verified (see recordMatch / finalize).
func (c *RefCollector) recordMismatch(dbResult DbResult, info MismatchInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.dbResults = append(c.state.dbResults, dbResult)
	if c.state.firstMismatch == nil {
		c.state.firstMismatch = &info
	}
}

// recordObservation appends a DbResult with no effect on verified/mismatch
// state (NoMatch, Skipped) or appends to failedDbs (Error/Timeout/RateLimited).
func (c *RefCollector) recordObservation(dbResult DbResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.dbResults = append(c.state.dbResults, dbResult)
	switch dbResult.Status {
	case DbError, DbTimeout, DbRateLimited:
		c.state.failedDbs = append(c.state.failedDbs, dbResult.DbName)
	}
}

// decrement lowers remaining by one and reports whether this call observed
// it reach zero — the signal that this goroutine must finalize. atomic.Int32
// Add is indivisible, so exactly one caller ever sees zero.
func (c *RefCollector) decrement() bool {
	return c.remaining.Add(-1) == 0
}
