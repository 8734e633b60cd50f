package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestOpenMemoryOnlyHasNoPersistence(t *testing.T) {
	is := is.New(t)
	qc, err := Open("", time.Hour, time.Hour)
	is.NoErr(err)
	is.True(!qc.HasPersistence())
	is.Equal(qc.DiskLen(), 0)
}

func TestInsertAndGetRoundtripL1(t *testing.T) {
	is := is.New(t)
	qc, err := Open("", time.Hour, time.Hour)
	is.NoErr(err)

	qc.Insert("attentionisallyouneed", "CrossRef", Result{
		Found: true, Title: "Attention Is All You Need", Authors: []string{"Vaswani"},
	})
	result, ok := qc.Get("attentionisallyouneed", "CrossRef")
	is.True(ok)
	is.Equal(result.Title, "Attention Is All You Need")
	is.Equal(qc.Hits(), int64(1))
}

func TestGetMissIncrementsMisses(t *testing.T) {
	is := is.New(t)
	qc, err := Open("", time.Hour, time.Hour)
	is.NoErr(err)

	_, ok := qc.Get("nothingcached", "CrossRef")
	is.True(!ok)
	is.Equal(qc.Misses(), int64(1))
}

func TestPersistenceRoundtripsAcrossReopen(t *testing.T) {
	is := is.New(t)
	dbPath := filepath.Join(t.TempDir(), "cache.sqlite3")

	qc, err := Open(dbPath, time.Hour, time.Hour)
	is.NoErr(err)
	is.True(qc.HasPersistence())

	qc.Insert("somepaper", "CrossRef", Result{Found: true, Title: "Some Paper", Authors: []string{"A. Author"}})
	is.NoErr(qc.Close())

	reopened, err := Open(dbPath, time.Hour, time.Hour)
	is.NoErr(err)
	defer reopened.Close()

	is.Equal(reopened.Len(), 0) // L1 does not survive a restart, only L2
	is.Equal(reopened.DiskLen(), 1)

	result, ok := reopened.Get("somepaper", "CrossRef")
	is.True(ok)
	is.Equal(result.Title, "Some Paper")
	is.Equal(reopened.Len(), 1) // the L2 hit promotes the entry back into L1
}

func TestZeroTTLNeverExpiresInL1(t *testing.T) {
	is := is.New(t)
	qc, err := Open("", 0, time.Hour)
	is.NoErr(err)

	qc.Insert("timelesspaper", "CrossRef", Result{Found: true, Title: "Timeless Paper"})
	result, ok := qc.Get("timelesspaper", "CrossRef")
	is.True(ok)
	is.Equal(result.Title, "Timeless Paper")
}

func TestClearEmptiesBothTiersAndResetsCounters(t *testing.T) {
	is := is.New(t)
	dbPath := filepath.Join(t.TempDir(), "cache.sqlite3")
	qc, err := Open(dbPath, time.Hour, time.Hour)
	is.NoErr(err)
	defer qc.Close()

	qc.Insert("paperone", "CrossRef", Result{Found: true, Title: "Paper One"})
	qc.Insert("papertwo", "CrossRef", Result{Found: false})

	qc.Clear()
	is.Equal(qc.Len(), 0)
	is.Equal(qc.DiskLen(), 0)
	found, notFound := qc.L1Counts()
	is.Equal(found, int64(0))
	is.Equal(notFound, int64(0))
}

func TestClearNotFoundLeavesPositiveEntriesIntact(t *testing.T) {
	is := is.New(t)
	qc, err := Open("", time.Hour, time.Hour)
	is.NoErr(err)

	qc.Insert("fabricatedpaper", "CrossRef", Result{Found: false})
	qc.Insert("realpaper", "CrossRef", Result{Found: true, Title: "Real Paper"})

	qc.ClearNotFound()

	_, ok := qc.Get("fabricatedpaper", "CrossRef")
	is.True(!ok)
	result, ok := qc.Get("realpaper", "CrossRef")
	is.True(ok)
	is.Equal(result.Title, "Real Paper")
}

func TestRetractionRoundtripsThroughL2(t *testing.T) {
	is := is.New(t)
	dbPath := filepath.Join(t.TempDir(), "cache.sqlite3")
	qc, err := Open(dbPath, time.Hour, time.Hour)
	is.NoErr(err)

	qc.Insert("retractedpaper", "CrossRef", Result{
		Found: true, Title: "Retracted Paper",
		Retraction: &Retraction{IsRetracted: true, RetractionDOI: "10.0000/retract", Reason: "duplicate publication"},
	})
	is.NoErr(qc.Close())

	reopened, err := Open(dbPath, time.Hour, time.Hour)
	is.NoErr(err)
	defer reopened.Close()

	result, ok := reopened.Get("retractedpaper", "CrossRef")
	is.True(ok)
	is.True(result.Retraction != nil)
	is.Equal(result.Retraction.RetractionDOI, "10.0000/retract")
}

func TestAvgLookupMillisAccumulatesAcrossGets(t *testing.T) {
	is := is.New(t)
	qc, err := Open("", time.Hour, time.Hour)
	is.NoErr(err)

	qc.Insert("somepaper", "CrossRef", Result{Found: true, Title: "Some Paper"})
	qc.Get("somepaper", "CrossRef")
	qc.Get("somepaper", "CrossRef")

	is.True(qc.AvgLookupMillis() >= 0)
}
