package backends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/matryer/is"
)

func setupLocalDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db := sqlx.MustConnect("sqlite3", ":memory:")
	db.MustExec(`CREATE TABLE publications (uri TEXT PRIMARY KEY, title TEXT)`)
	db.MustExec(`CREATE VIRTUAL TABLE publications_fts USING fts5(title, content='publications', content_rowid='rowid')`)
	db.MustExec(`CREATE TABLE authors (pid TEXT PRIMARY KEY, name TEXT)`)
	db.MustExec(`CREATE TABLE publication_authors (uri TEXT, pid TEXT)`)

	db.MustExec(`INSERT INTO publications (rowid, uri, title) VALUES (1, 'rec/conf/nips/VaswaniSPUJGKP17', 'Attention is All you Need')`)
	db.MustExec(`INSERT INTO publications_fts (rowid, title) VALUES (1, 'Attention is All you Need')`)
	db.MustExec(`INSERT INTO authors (pid, name) VALUES ('pid/1', 'Ashish Vaswani')`)
	db.MustExec(`INSERT INTO authors (pid, name) VALUES ('pid/2', 'Noam Shazeer')`)
	db.MustExec(`INSERT INTO publication_authors (uri, pid) VALUES ('rec/conf/nips/VaswaniSPUJGKP17', 'pid/1')`)
	db.MustExec(`INSERT INTO publication_authors (uri, pid) VALUES ('rec/conf/nips/VaswaniSPUJGKP17', 'pid/2')`)
	return db
}

func TestLocalFTSBackendMatch(t *testing.T) {
	is := is.New(t)
	db := setupLocalDB(t)
	defer db.Close()

	backend := NewLocalFTSBackend("DBLP", db, "https://dblp.org/", 0)
	result, err := backend.Query(context.Background(), "Attention is All you Need", "")
	is.NoErr(err)
	is.True(result.Found)
	is.Equal(result.Title, "Attention is All you Need")
	is.Equal(len(result.Authors), 2)
}

func TestLocalFTSBackendNoMatch(t *testing.T) {
	is := is.New(t)
	db := setupLocalDB(t)
	defer db.Close()

	backend := NewLocalFTSBackend("DBLP", db, "https://dblp.org/", 0)
	result, err := backend.Query(context.Background(), "Completely Unrelated Marine Biology Survey", "")
	is.NoErr(err)
	is.True(!result.Found)
}

func TestQueryWords(t *testing.T) {
	is := is.New(t)
	words := queryWords("Attention is All you Need")
	is.True(containsWord(words, "attention"))
	is.True(containsWord(words, "need"))
	is.True(!containsWord(words, "is"))
}

func containsWord(words []string, w string) bool {
	for _, got := range words {
		if got == w {
			return true
		}
	}
	return false
}

func TestCrossRefBackendQuery(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"items":[{"title":["Attention is All you Need"],"author":[{"given":"Ashish","family":"Vaswani"}],"DOI":"10.0000/x","URL":"https://doi.org/10.0000/x"}]}}`))
	}))
	defer srv.Close()

	b := &CrossRefBackend{BaseURL: srv.URL}
	result, err := b.Query(context.Background(), "Attention is All you Need", "")
	is.NoErr(err)
	is.True(result.Found)
	is.Equal(result.Authors[0], "Ashish Vaswani")
}

func TestOpenAlexBackendNoisyAuthorMismatchStillFound(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"https://openalex.org/W1","display_name":"Attention is All you Need","authorships":[{"author":{"display_name":"Someone Else"}}]}]}`))
	}))
	defer srv.Close()

	b := &OpenAlexBackend{BaseURL: srv.URL}
	result, err := b.Query(context.Background(), "Attention is All you Need", "")
	is.NoErr(err)
	is.True(result.Found)
	is.Equal(result.Authors[0], "Someone Else")
}

func TestArxivBackendQuery(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"><entry><id>http://arxiv.org/abs/1706.03762</id><title>Attention Is All You Need</title><author><name>Ashish Vaswani</name></author></entry></feed>`))
	}))
	defer srv.Close()

	b := &ArxivBackend{BaseURL: srv.URL}
	result, err := b.Query(context.Background(), "Attention Is All You Need", "")
	is.NoErr(err)
	is.True(result.Found)
	is.Equal(result.URL, "http://arxiv.org/abs/1706.03762")
}

func TestDOIBackendRequiresDOI(t *testing.T) {
	is := is.New(t)
	b := &DOIBackend{}
	is.True(b.RequiresDOI())
	result, err := b.Query(context.Background(), "anything", "")
	is.NoErr(err)
	is.True(!result.Found)
}

func TestDOIBackendQuery(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title":"Attention is All you Need","DOI":"10.5555/x","author":[{"given":"Ashish","family":"Vaswani"}]}`))
	}))
	defer srv.Close()

	b := &DOIBackend{BaseURL: srv.URL}
	result, err := b.Query(context.Background(), "", "10.5555/x")
	is.NoErr(err)
	is.True(result.Found)
	is.Equal(result.Authors[0], "Ashish Vaswani")
}

func TestParseRetryAfterSeconds(t *testing.T) {
	is := is.New(t)
	d := parseRetryAfter("120")
	is.Equal(d.Seconds(), float64(120))
}

func TestParseRetryAfterEmpty(t *testing.T) {
	is := is.New(t)
	is.Equal(parseRetryAfter(""), time.Duration(0))
}

func TestGetJSONRateLimited(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := getJSON(context.Background(), srv.URL, nil, DefaultUserAgent)
	is.True(err != nil)
}
