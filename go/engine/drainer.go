package engine

import (
	"context"
	"log"
	"time"
)

// drainerJob is the unit of work a coordinator hands to a remote drainer: the
// shared collector for one reference.
type drainerJob struct {
	collector *RefCollector
}

// drainer is the sole consumer of one remote DatabaseBackend and its rate
// limiter. It processes drainerJobs serially from its queue so that no two
// queries against its backend ever run concurrently, unless multiple drainer
// goroutines were explicitly configured for extra pipelining.
type drainer struct {
	backend DatabaseBackend
	limiter *RateLimiter
	cfg     *Config
	queue   <-chan drainerJob
}

// run drains jobs until ctx is cancelled or the queue is closed. Every job
// is wrapped in a recover() so a panicking backend cannot stall the rest of
// the batch: the reference either finalizes (if this goroutine decremented
// remaining first) or its reply channel is simply never written.
func (d *drainer) run(ctx context.Context) {
	for {
		select {
		case job, ok := <-d.queue:
			if !ok {
				return
			}
			d.processSafely(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (d *drainer) processSafely(ctx context.Context, job drainerJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hallucinator: drainer for %s recovered from panic: %v", d.backend.Name(), r)
		}
	}()
	d.process(ctx, job)
}

func (d *drainer) process(ctx context.Context, job drainerJob) {
	c := job.collector
	name := d.backend.Name()

	finalizeIfLast := func() {
		if c.decrement() {
			c.finalize(ctx, d.cfg)
		}
	}

	if ctx.Err() != nil {
		c.emit(ProgressEvent{Kind: EventDatabaseQueryComplete, Index: c.index, Total: c.total, Title: c.queryTitle, DbName: name, Status: DbSkipped})
		c.recordObservation(DbResult{DbName: name, Status: DbSkipped})
		finalizeIfLast()
		return
	}
	if c.isVerified() {
		c.emit(ProgressEvent{Kind: EventDatabaseQueryComplete, Index: c.index, Total: c.total, Title: c.queryTitle, DbName: name, Status: DbSkipped})
		c.recordObservation(DbResult{DbName: name, Status: DbSkipped})
		finalizeIfLast()
		return
	}
	if d.backend.RequiresDOI() && c.ref.DOI == "" {
		c.emit(ProgressEvent{Kind: EventDatabaseQueryComplete, Index: c.index, Total: c.total, Title: c.queryTitle, DbName: name, Status: DbSkipped})
		c.recordObservation(DbResult{DbName: name, Status: DbSkipped})
		finalizeIfLast()
		return
	}

	started := time.Now()
	result, status, errMsg := d.query(ctx, c.queryTitle, c.ref.DOI)
	if status == DbMatch && !authorsMatch(c.ref.Authors, result.Authors) {
		status = DbAuthorMismatch
	}
	elapsed := time.Since(started)

	dbResult := DbResult{
		DbName:       name,
		Status:       status,
		Elapsed:      elapsed,
		FoundAuthors: result.Authors,
		PaperURL:     result.URL,
		ErrorMessage: errMsg,
	}

	switch status {
	case DbMatch:
		c.emit(ProgressEvent{Kind: EventDatabaseQueryComplete, Index: c.index, Total: c.total, Title: c.queryTitle, DbName: name, Status: status})
		c.recordMatch(dbResult, VerifiedInfo{Source: name, Authors: result.Authors, URL: result.URL})
	case DbAuthorMismatch:
		c.emit(ProgressEvent{Kind: EventDatabaseQueryComplete, Index: c.index, Total: c.total, Title: c.queryTitle, DbName: name, Status: status})
		if !d.cfg.isNoisy(name) {
			c.recordMismatch(dbResult, MismatchInfo{Source: name, Authors: result.Authors, URL: result.URL})
		} else {
			c.recordObservation(dbResult)
		}
	case DbNoMatch:
		c.emit(ProgressEvent{Kind: EventDatabaseQueryComplete, Index: c.index, Total: c.total, Title: c.queryTitle, DbName: name, Status: status})
		c.recordObservation(dbResult)
	default: // DbError, DbTimeout, DbRateLimited
		c.emit(ProgressEvent{Kind: EventDatabaseQueryComplete, Index: c.index, Total: c.total, Title: c.queryTitle, DbName: name, Status: status, Message: errMsg})
		c.recordObservation(dbResult)
	}

	finalizeIfLast()
}

// query consults the cache first; on a miss it acquires the rate limiter and
// calls the backend, writing through to the cache on any cacheable outcome.
// The returned DbStatus is only ever DbMatch, DbNoMatch, DbError, DbTimeout,
// or DbRateLimited — the caller applies the author-match/mismatch split.
func (d *drainer) query(ctx context.Context, title, doi string) (DbQueryResult, DbStatus, string) {
	name := d.backend.Name()
	cacheKey := normalizeTitle(title)

	if d.cfg.Cache != nil {
		if cached, ok := d.cfg.Cache.Get(cacheKey, name); ok {
			result := fromCacheResult(cached)
			return result, statusFor(result), ""
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if d.cfg.DrainerTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.cfg.DrainerTimeout)
		defer cancel()
	}

	maxRetries := d.cfg.MaxRateLimitRetries
	result, err := d.limiter.acquire(callCtx, maxRetries, func(c context.Context) (DbQueryResult, error) {
		return d.backend.Query(c, title, doi)
	})
	if err != nil {
		status := DbError
		switch {
		case callCtx.Err() == context.DeadlineExceeded:
			status = DbTimeout
		case err == errRateLimitExhausted:
			status = DbRateLimited
		}
		return DbQueryResult{}, status, err.Error()
	}

	if d.cfg.Cache != nil {
		d.cfg.Cache.Insert(cacheKey, name, toCacheResult(result))
	}
	return result, statusFor(result), ""
}

func statusFor(result DbQueryResult) DbStatus {
	if result.Found {
		return DbMatch
	}
	return DbNoMatch
}
