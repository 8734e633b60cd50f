// Package cache implements the engine's two-tier query cache: an in-memory
// L1 backed by github.com/patrickmn/go-cache and an on-disk L2 SQLite store
// with a single writer connection and a pooled reader connection, as
// described in §4.4 of the engine design.
//
// Callers are expected to pass an already title-normalized key (the engine's
// normalizeTitle) — this package has no opinion on title normalization, only
// on storage and TTL bookkeeping, so it can be used independently of the
// engine package without import cycles.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/segmentio/encoding/json"

	_ "github.com/mattn/go-sqlite3"
)

// Retraction is the JSON-encoded retraction record attached to a cached
// positive result, when the underlying backend reported one.
type Retraction struct {
	IsRetracted   bool   `json:"is_retracted"`
	RetractionDOI string `json:"retraction_doi,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Result is the cacheable outcome of a single backend call: either found
// (with bibliographic details) or explicitly not-found. Errors are never
// represented here — callers must not call Insert for a failed lookup.
type Result struct {
	Found      bool
	Title      string
	Authors    []string
	URL        string
	Retraction *Retraction
}

type counts struct {
	found, notFound atomic.Int64
}

func (c *counts) adjust(wasFound, wasPresent bool, isFound bool) {
	if wasPresent {
		if wasFound {
			c.found.Add(-1)
		} else {
			c.notFound.Add(-1)
		}
	}
	if isFound {
		c.found.Add(1)
	} else {
		c.notFound.Add(1)
	}
}

func (c *counts) get() (found, notFound int64) {
	return c.found.Load(), c.notFound.Load()
}

// QueryCache is the two-tier cache. A zero-value QueryCache is not usable;
// construct one with Open.
type QueryCache struct {
	l1 *gocache.Cache

	posTTL, negTTL time.Duration

	hasPersistence bool
	writeDB        *sql.DB
	readDB         *sql.DB
	writeMu        sync.Mutex

	l1Counts counts
	l2Counts counts

	hits, misses  atomic.Int64
	lookupCount   atomic.Int64
	lookupNanosum atomic.Int64
}

// Open builds a QueryCache. If path is empty, the cache runs L1-only — this
// is also the documented fallback when the L2 file cannot be opened. posTTL
// and negTTL are the type-specific TTLs for found/not-found entries; negTTL
// of zero means not-found results are never written to either tier.
func Open(path string, posTTL, negTTL time.Duration) (*QueryCache, error) {
	qc := &QueryCache{
		l1:     gocache.New(gocache.NoExpiration, 10*time.Minute),
		posTTL: posTTL,
		negTTL: negTTL,
	}
	qc.l1.OnEvicted(qc.onL1Evicted)
	if path == "" {
		return qc, nil
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path)
	writeDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return qc, fmt.Errorf("cache: open writer: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return qc, fmt.Errorf("cache: open reader pool: %w", err)
	}
	readDB.SetMaxOpenConns(4)

	qc.writeDB = writeDB
	qc.readDB = readDB
	qc.hasPersistence = true

	if err := qc.migrate(); err != nil {
		return qc, fmt.Errorf("cache: migrate: %w", err)
	}
	if err := qc.sweepExpired(); err != nil {
		return qc, fmt.Errorf("cache: sweep: %w", err)
	}
	if err := qc.loadL2Counts(); err != nil {
		return qc, fmt.Errorf("cache: load counters: %w", err)
	}
	return qc, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	normalized_key  TEXT NOT NULL,
	db_name         TEXT NOT NULL,
	found           INTEGER NOT NULL,
	title           TEXT,
	authors         TEXT,
	url             TEXT,
	inserted_epoch  INTEGER NOT NULL,
	retraction      TEXT,
	PRIMARY KEY (normalized_key, db_name)
);
`

// migrate creates the schema if absent and applies additive migrations:
// columns introduced after the initial release are added with ALTER TABLE
// ... ADD COLUMN, guarded by a check against PRAGMA table_info so re-running
// migrate on an up-to-date database is a no-op.
func (qc *QueryCache) migrate() error {
	if _, err := qc.writeDB.Exec(schemaDDL); err != nil {
		return err
	}
	existing := map[string]bool{}
	rows, err := qc.writeDB.Query(`PRAGMA table_info(cache_entries)`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return err
		}
		existing[name] = true
	}
	additive := []struct{ name, ddl string }{
		{"retraction", "ALTER TABLE cache_entries ADD COLUMN retraction TEXT"},
	}
	for _, col := range additive {
		if !existing[col.name] {
			if _, err := qc.writeDB.Exec(col.ddl); err != nil {
				return err
			}
		}
	}
	return nil
}

// sweepExpired deletes L2 rows whose epoch age exceeds their type-specific
// TTL. Run once on Open, before counters are initialized.
func (qc *QueryCache) sweepExpired() error {
	now := time.Now().Unix()
	if qc.posTTL > 0 {
		if _, err := qc.writeDB.Exec(
			`DELETE FROM cache_entries WHERE found = 1 AND (? - inserted_epoch) > ?`,
			now, int64(qc.posTTL.Seconds())); err != nil {
			return err
		}
	}
	if qc.negTTL > 0 {
		if _, err := qc.writeDB.Exec(
			`DELETE FROM cache_entries WHERE found = 0 AND (? - inserted_epoch) > ?`,
			now, int64(qc.negTTL.Seconds())); err != nil {
			return err
		}
	}
	return nil
}

func (qc *QueryCache) loadL2Counts() error {
	var found, notFound int64
	if err := qc.writeDB.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE found = 1`).Scan(&found); err != nil {
		return err
	}
	if err := qc.writeDB.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE found = 0`).Scan(&notFound); err != nil {
		return err
	}
	qc.l2Counts.found.Store(found)
	qc.l2Counts.notFound.Store(notFound)
	return nil
}

// onL1Evicted keeps l1Counts honest against gocache's own eviction paths —
// the janitor's periodic sweep of TTL-expired items, and any explicit
// Delete — which otherwise drop entries without the counter bookkeeping
// Insert/Get perform on the paths this package controls directly.
func (qc *QueryCache) onL1Evicted(_ string, value interface{}) {
	result, ok := value.(Result)
	if !ok {
		return
	}
	if result.Found {
		qc.l1Counts.found.Add(-1)
	} else {
		qc.l1Counts.notFound.Add(-1)
	}
}

func l1Key(normalizedTitle, dbName string) string {
	return normalizedTitle + "\x00" + dbName
}

// Get looks up (normalizedTitle, dbName). It checks L1 first; on an L1 miss
// it falls through to L2 (if persistence is enabled) and promotes any hit
// back into L1.
func (qc *QueryCache) Get(normalizedTitle, dbName string) (Result, bool) {
	started := time.Now()
	defer func() {
		qc.lookupCount.Add(1)
		qc.lookupNanosum.Add(int64(time.Since(started)))
	}()

	key := l1Key(normalizedTitle, dbName)
	if v, ok := qc.l1.Get(key); ok {
		qc.hits.Add(1)
		return v.(Result), true
	}

	if !qc.hasPersistence {
		qc.misses.Add(1)
		return Result{}, false
	}

	result, epoch, ok, err := qc.readL2(normalizedTitle, dbName)
	if err != nil || !ok {
		qc.misses.Add(1)
		return Result{}, false
	}

	ttl := qc.ttlFor(result.Found)
	age := time.Since(time.Unix(epoch, 0))
	if ttl > 0 && age > ttl {
		// Expired; the row is swept on next startup, not here.
		qc.misses.Add(1)
		return Result{}, false
	}

	remaining := gocache.NoExpiration
	if ttl > 0 {
		remaining = ttl - age
	}
	qc.l1.Set(key, result, remaining)
	qc.l1Counts.adjust(false, false, result.Found)
	qc.hits.Add(1)
	return result, true
}

func (qc *QueryCache) readL2(normalizedTitle, dbName string) (Result, int64, bool, error) {
	var (
		found         int
		title         sql.NullString
		authorsJSON   sql.NullString
		url           sql.NullString
		epoch         int64
		retractionRaw sql.NullString
	)
	row := qc.readDB.QueryRow(
		`SELECT found, title, authors, url, inserted_epoch, retraction FROM cache_entries WHERE normalized_key = ? AND db_name = ?`,
		normalizedTitle, dbName)
	if err := row.Scan(&found, &title, &authorsJSON, &url, &epoch, &retractionRaw); err != nil {
		if err == sql.ErrNoRows {
			return Result{}, 0, false, nil
		}
		return Result{}, 0, false, err
	}
	result := Result{Found: found != 0, Title: title.String, URL: url.String}
	if authorsJSON.Valid && authorsJSON.String != "" {
		_ = json.Unmarshal([]byte(authorsJSON.String), &result.Authors)
	}
	if retractionRaw.Valid && retractionRaw.String != "" {
		var r Retraction
		if err := json.Unmarshal([]byte(retractionRaw.String), &r); err == nil {
			result.Retraction = &r
		}
	}
	return result, epoch, true, nil
}

func (qc *QueryCache) ttlFor(found bool) time.Duration {
	if found {
		return qc.posTTL
	}
	return qc.negTTL
}

// Insert writes result through to L1 and, if persistence is enabled, to L2,
// adjusting both tiers' found/not-found counters by type-delta. A not-found
// result is dropped without writing to either tier when negTTL is zero.
func (qc *QueryCache) Insert(normalizedTitle, dbName string, result Result) {
	if !result.Found && qc.negTTL == 0 {
		return
	}

	key := l1Key(normalizedTitle, dbName)
	_, hadPrior := qc.l1.Get(key)
	var priorFound bool
	if hadPrior {
		if prior, ok := qc.l1.Get(key); ok {
			priorFound = prior.(Result).Found
		}
	}
	ttl := qc.ttlFor(result.Found)
	if ttl <= 0 {
		qc.l1.Set(key, result, gocache.NoExpiration)
	} else {
		qc.l1.Set(key, result, ttl)
	}
	qc.l1Counts.adjust(priorFound, hadPrior, result.Found)

	if !qc.hasPersistence {
		return
	}

	qc.writeMu.Lock()
	defer qc.writeMu.Unlock()

	var priorL2Found sql.NullInt64
	hadL2Prior := false
	if err := qc.writeDB.QueryRow(
		`SELECT found FROM cache_entries WHERE normalized_key = ? AND db_name = ?`,
		normalizedTitle, dbName).Scan(&priorL2Found); err == nil {
		hadL2Prior = true
	}

	authorsJSON, _ := json.Marshal(result.Authors)
	var retractionJSON []byte
	if result.Retraction != nil {
		retractionJSON, _ = json.Marshal(result.Retraction)
	}
	foundFlag := 0
	if result.Found {
		foundFlag = 1
	}
	_, err := qc.writeDB.Exec(
		`INSERT OR REPLACE INTO cache_entries (normalized_key, db_name, found, title, authors, url, inserted_epoch, retraction) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		normalizedTitle, dbName, foundFlag, result.Title, string(authorsJSON), result.URL, time.Now().Unix(), string(retractionJSON))
	if err != nil {
		// The cache writer is best-effort: errors are logged by the caller's
		// own error-handling path, never propagated (§7).
		return
	}
	qc.l2Counts.adjust(hadL2Prior && priorL2Found.Int64 != 0, hadL2Prior, result.Found)
}

// Clear empties both tiers and resets all counters.
func (qc *QueryCache) Clear() {
	qc.l1.Flush()
	qc.l1Counts.found.Store(0)
	qc.l1Counts.notFound.Store(0)
	if !qc.hasPersistence {
		return
	}
	qc.writeMu.Lock()
	defer qc.writeMu.Unlock()
	if _, err := qc.writeDB.Exec(`DELETE FROM cache_entries`); err == nil {
		qc.l2Counts.found.Store(0)
		qc.l2Counts.notFound.Store(0)
	}
}

// ClearNotFound removes only not-found entries from both tiers.
func (qc *QueryCache) ClearNotFound() {
	for key, item := range qc.l1.Items() {
		if result, ok := item.Object.(Result); ok && !result.Found {
			qc.l1.Delete(key)
		}
	}
	qc.l1Counts.notFound.Store(0)
	if !qc.hasPersistence {
		return
	}
	qc.writeMu.Lock()
	defer qc.writeMu.Unlock()
	if _, err := qc.writeDB.Exec(`DELETE FROM cache_entries WHERE found = 0`); err == nil {
		qc.l2Counts.notFound.Store(0)
	}
}

// Len returns the number of items currently held in L1.
func (qc *QueryCache) Len() int {
	return qc.l1.ItemCount()
}

// DiskLen returns the number of rows currently held in L2, or 0 if
// persistence is disabled.
func (qc *QueryCache) DiskLen() int {
	if !qc.hasPersistence {
		return 0
	}
	var n int
	if err := qc.readDB.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// L1Counts returns the current (found, not-found) counter pair for L1.
func (qc *QueryCache) L1Counts() (found, notFound int64) { return qc.l1Counts.get() }

// L2Counts returns the current (found, not-found) counter pair for L2.
func (qc *QueryCache) L2Counts() (found, notFound int64) { return qc.l2Counts.get() }

// Hits returns the number of Get calls that returned a value from either tier.
func (qc *QueryCache) Hits() int64 { return qc.hits.Load() }

// Misses returns the number of Get calls that found nothing in either tier.
func (qc *QueryCache) Misses() int64 { return qc.misses.Load() }

// AvgLookupMillis returns the mean Get() latency in milliseconds.
func (qc *QueryCache) AvgLookupMillis() float64 {
	n := qc.lookupCount.Load()
	if n == 0 {
		return 0
	}
	return float64(qc.lookupNanosum.Load()) / float64(n) / 1e6
}

// HasPersistence reports whether this cache has a working L2 store.
func (qc *QueryCache) HasPersistence() bool { return qc.hasPersistence }

// Ping reports whether the L2 reader connection is reachable. Returns nil
// immediately when persistence is disabled.
func (qc *QueryCache) Ping(ctx context.Context) error {
	if !qc.hasPersistence {
		return nil
	}
	return qc.readDB.PingContext(ctx)
}

// Close releases the underlying SQLite connections, if any.
func (qc *QueryCache) Close() error {
	if !qc.hasPersistence {
		return nil
	}
	if err := qc.writeDB.Close(); err != nil {
		return err
	}
	return qc.readDB.Close()
}
