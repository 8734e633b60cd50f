// Package engine implements the reference-validation engine: the per-reference
// fan-out scheduler, the per-database drainer pool, and the aggregation state
// machine that turns many asynchronous database replies into a single verdict
// per reference.
package engine

import (
	"context"
	"time"
)

// Reference is a citation as handed to the engine by the extractor. It is
// never mutated once submitted.
type Reference struct {
	Title       string
	Authors     []string
	DOI         string
	ArxivID     string
	RawCitation string
}

// Status is the terminal verdict for one reference.
type Status int

const (
	// StatusNotFound means no backend produced a matching record.
	StatusNotFound Status = iota
	// StatusVerified means some backend returned a matching title with
	// matching (or absent) authors.
	StatusVerified
	// StatusAuthorMismatch means a backend found the title but the author
	// list did not match.
	StatusAuthorMismatch
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusAuthorMismatch:
		return "author-mismatch"
	default:
		return "not-found"
	}
}

// DbStatus is the per-backend, per-reference observation recorded in
// ValidationResult.DbResults.
type DbStatus int

const (
	DbMatch DbStatus = iota
	DbNoMatch
	DbAuthorMismatch
	DbTimeout
	DbRateLimited
	DbError
	DbSkipped
)

func (s DbStatus) String() string {
	switch s {
	case DbMatch:
		return "match"
	case DbNoMatch:
		return "no-match"
	case DbAuthorMismatch:
		return "author-mismatch"
	case DbTimeout:
		return "timeout"
	case DbRateLimited:
		return "rate-limited"
	case DbError:
		return "error"
	case DbSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// DbQueryResult is the outcome of one successful backend call: Found is true
// for a positive result and false for an explicit not-found. Errors are
// reported through Query's error return, never in this value, and are never
// cached.
type DbQueryResult struct {
	Found      bool
	Title      string
	Authors    []string
	URL        string
	Retraction *RetractionInfo
}

// DbResult is recorded once per backend, per reference, in the final
// ValidationResult — including backends that were skipped.
type DbResult struct {
	DbName       string
	Status       DbStatus
	Elapsed      time.Duration
	FoundAuthors []string
	PaperURL     string
	ErrorMessage string
}

// DOIInfo describes the validity of the reference's DOI, if any.
type DOIInfo struct {
	DOI     string
	Valid   bool
	Matched bool
}

// ArxivInfo describes the validity of the reference's arXiv ID, if any.
type ArxivInfo struct {
	ArxivID string
	Valid   bool
	Matched bool
}

// RetractionInfo is populated when the retraction probe finds a retraction
// notice for an already-verified reference.
type RetractionInfo struct {
	IsRetracted   bool
	RetractionDOI string
	Reason        string
}

// ValidationResult is the per-reference verdict emitted by the engine.
type ValidationResult struct {
	Title          string
	RawCitation    string
	RefAuthors     []string
	Status         Status
	Source         string
	FoundAuthors   []string
	PaperURL       string
	FailedDbs      []string
	DbResults      []DbResult
	DOIInfo        *DOIInfo
	ArxivInfo      *ArxivInfo
	RetractionInfo *RetractionInfo
}

// ProgressEventKind distinguishes the four progress event variants.
type ProgressEventKind int

const (
	EventChecking ProgressEventKind = iota
	EventDatabaseQueryComplete
	EventWarning
	EventResult
)

// ProgressEvent is emitted to the embedder-supplied callback. Events for one
// reference always appear in this order: Checking, zero or more
// DatabaseQueryComplete, optional Warning, Result.
type ProgressEvent struct {
	Kind    ProgressEventKind
	Index   int
	Total   int
	Title   string
	DbName  string
	Status  DbStatus
	Message string
	Result  *ValidationResult
}

// ProgressFunc is the callback supplied by the UI or log writer.
type ProgressFunc func(ProgressEvent)

// Retractor looks up retraction notices, either by DOI or by title.
type Retractor interface {
	CheckDOI(ctx context.Context, doi string) (*RetractionInfo, error)
	CheckTitle(ctx context.Context, title string) (*RetractionInfo, error)
}
