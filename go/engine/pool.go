package engine

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultNumWorkers is used when Config.NumWorkers is unset.
const DefaultNumWorkers = 4

// poolJob is one submitted reference awaiting a coordinator.
type poolJob struct {
	index, total int
	ref          Reference
	reply        chan ValidationResult
}

// Pool is the coordinator pool described in §4.1: it accepts per-reference
// jobs, runs the local-DB phase inline in a coordinator goroutine, and fans
// out to the drainers of each remote backend (one per backend unless
// Config.DrainersPerBackend asks for more).
type Pool struct {
	cfg      *Config
	progress ProgressFunc

	jobs chan poolJob

	drainerQueues []chan drainerJob
	drainerNames  []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool builds a pool and starts its coordinator and drainer goroutines.
// capacity is the buffer size of the job queue: up to capacity submitted
// references may wait for a free coordinator without Submit blocking.
// CheckReferences sizes it to the batch.
func NewPool(ctx context.Context, cfg *Config, progress ProgressFunc, capacity int) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultNumWorkers
	}
	pctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		cfg:      cfg,
		progress: progress,
		jobs:     make(chan poolJob, capacity),
		ctx:      pctx,
		cancel:   cancel,
	}

	for _, b := range cfg.RemoteBackends {
		n := cfg.drainersFor(b.Name())
		queue := make(chan drainerJob, capacity+1)
		p.drainerQueues = append(p.drainerQueues, queue)
		p.drainerNames = append(p.drainerNames, b.Name())
		for i := 0; i < n; i++ {
			d := &drainer{backend: b, limiter: cfg.RateLimiters[b.Name()], cfg: cfg, queue: queue}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				d.run(pctx)
			}()
		}
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.coordinatorLoop()
		}()
	}
	return p
}

// Submit enqueues ref for processing and returns the channel its
// ValidationResult will be sent on, exactly once.
func (p *Pool) Submit(ref Reference, index, total int) <-chan ValidationResult {
	reply := make(chan ValidationResult, 1)
	job := poolJob{index: index, total: total, ref: ref, reply: reply}
	select {
	case p.jobs <- job:
	case <-p.ctx.Done():
		close(reply)
	}
	return reply
}

// Shutdown cancels the batch's context and waits for every coordinator and
// drainer goroutine to exit. In-flight references finalize as best-effort;
// no results already emitted are lost.
func (p *Pool) Shutdown() {
	close(p.jobs)
	p.cancel()
	p.wg.Wait()
	for _, q := range p.drainerQueues {
		close(q)
	}
}

func (p *Pool) coordinatorLoop() {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("hallucinator: coordinator recovered from panic: %v", r)
					}
				}()
				p.runCoordinator(job)
			}()
		case <-p.ctx.Done():
			return
		}
	}
}

// runCoordinator implements the per-reference coordinator algorithm of §4.1.
func (p *Pool) runCoordinator(job poolJob) {
	ref := job.ref
	title := ref.Title
	emit := func(ev ProgressEvent) {
		if p.progress != nil {
			p.progress(ev)
		}
	}
	emit(ProgressEvent{Kind: EventChecking, Index: job.index, Total: job.total, Title: title})

	localResults, localFailed, localVerified, verifiedInfo, mismatch := p.runLocalPhase(job, title)

	if localVerified {
		result := ValidationResult{
			Title:        title,
			RawCitation:  ref.RawCitation,
			RefAuthors:   ref.Authors,
			Status:       StatusVerified,
			Source:       verifiedInfo.Source,
			FoundAuthors: verifiedInfo.Authors,
			PaperURL:     verifiedInfo.URL,
		}
		for _, name := range p.drainerNames {
			emit(ProgressEvent{Kind: EventDatabaseQueryComplete, Index: job.index, Total: job.total, Title: title, DbName: name, Status: DbSkipped})
			localResults = append(localResults, DbResult{DbName: name, Status: DbSkipped})
		}
		result.DbResults = localResults
		result.FailedDbs = localFailed
		result.DOIInfo = buildDOIInfo(ref.DOI, findDbResult(result.DbResults, "DOI"))
		result.ArxivInfo = buildArxivInfo(ref.ArxivID, findDbResult(result.DbResults, "arXiv"))
		if p.cfg.Retractor != nil {
			result.RetractionInfo = runRetractionProbe(p.ctx, p.cfg.Retractor, ref.DOI, title)
		}
		p.replyDirect(job, emit, result)
		return
	}

	if len(p.drainerQueues) == 0 {
		status := StatusNotFound
		var source, url string
		var authors []string
		if mismatch != nil {
			status = StatusAuthorMismatch
			source, authors, url = mismatch.Source, mismatch.Authors, mismatch.URL
		}
		result := ValidationResult{
			Title: title, RawCitation: ref.RawCitation, RefAuthors: ref.Authors,
			Status: status, Source: source, FoundAuthors: authors, PaperURL: url,
			DbResults: localResults, FailedDbs: localFailed,
		}
		result.DOIInfo = buildDOIInfo(ref.DOI, findDbResult(result.DbResults, "DOI"))
		result.ArxivInfo = buildArxivInfo(ref.ArxivID, findDbResult(result.DbResults, "arXiv"))
		p.replyDirect(job, emit, result)
		return
	}

	collector := newRefCollector(ref, title, job.index, job.total, p.progress, len(p.drainerQueues), localResults, localFailed, mismatch)
	for _, q := range p.drainerQueues {
		select {
		case q <- drainerJob{collector: collector}:
		case <-p.ctx.Done():
		}
	}
	go func() {
		select {
		case result, ok := <-collector.reply:
			if ok {
				select {
				case job.reply <- result:
				default:
				}
			}
		case <-p.ctx.Done():
		}
	}()
}

func (p *Pool) replyDirect(job poolJob, emit ProgressFunc, result ValidationResult) {
	emit(ProgressEvent{Kind: EventResult, Index: job.index, Total: job.total, Title: job.ref.Title, Result: &result})
	select {
	case job.reply <- result:
	default:
	}
}

// runLocalPhase queries every enabled local backend concurrently. It returns
// the accumulated DbResults and failedDbs, whether the reference was
// verified locally, the winning VerifiedInfo (if any), and the first local
// mismatch (if any) to seed the collector.
func (p *Pool) runLocalPhase(job poolJob, title string) ([]DbResult, []string, bool, VerifiedInfo, *MismatchInfo) {
	if len(p.cfg.LocalBackends) == 0 {
		return nil, nil, false, VerifiedInfo{}, nil
	}

	var (
		mu        sync.Mutex
		results   []DbResult
		failed    []string
		verified  bool
		vinfo     VerifiedInfo
		mismatch  *MismatchInfo
	)

	g, ctx := errgroup.WithContext(p.ctx)
	for _, b := range p.cfg.LocalBackends {
		b := b
		g.Go(func() error {
			res, err := b.Query(ctx, title, job.ref.DOI)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results = append(results, DbResult{DbName: b.Name(), Status: DbError, ErrorMessage: err.Error()})
				failed = append(failed, b.Name())
				return nil
			}
			if !res.Found {
				results = append(results, DbResult{DbName: b.Name(), Status: DbNoMatch})
				return nil
			}
			if authorsMatch(job.ref.Authors, res.Authors) {
				results = append(results, DbResult{DbName: b.Name(), Status: DbMatch, FoundAuthors: res.Authors, PaperURL: res.URL})
				if !verified {
					verified = true
					vinfo = VerifiedInfo{Source: b.Name(), Authors: res.Authors, URL: res.URL}
				}
				return nil
			}
			results = append(results, DbResult{DbName: b.Name(), Status: DbAuthorMismatch, FoundAuthors: res.Authors, PaperURL: res.URL})
			if mismatch == nil && !p.cfg.isNoisy(b.Name()) {
				mismatch = &MismatchInfo{Source: b.Name(), Authors: res.Authors, URL: res.URL}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, failed, verified, vinfo, mismatch
}
