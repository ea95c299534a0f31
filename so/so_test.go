package so

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/pwcmeta/catalog"
	"github.com/teranos/pwcmeta/db"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/fetch"
	pwctest "github.com/teranos/pwcmeta/internal/testing"
	"github.com/teranos/pwcmeta/rdf"
)

const (
	repoA = "https://github.com/a/one"
	repoB = "https://github.com/b/two"
	repoC = "https://gitlab.com/g/sub/three"
)

func dateTime(v string) rdf.Term { return rdf.TypedLiteral(v, rdf.XSDDateTime) }

func canonicalFixture() []rdf.Statement {
	s := func(subj, pred string, o rdf.Term) rdf.Statement {
		return rdf.Triple(rdf.IRI(subj), rdf.IRI(pred), o)
	}
	stmts := []rdf.Statement{
		s(repoA, rdf.RDFType, rdf.SoftwareType),
		s(repoA, rdf.SchemaProgrammingLang, rdf.Literal("Python")),
		s(repoA, rdf.SchemaDateCreated, dateTime("2019-01-02T03:04:05Z")),
		s(repoA, rdf.SchemaDateModified, dateTime("2023-05-06T07:08:09Z")),
		s(repoA, rdf.SchemaLicense, rdf.LicenseIRI("MIT")),
		s(repoA, rdf.SchemaContributor, rdf.IRI("https://github.com/alice")),
		s(repoA, rdf.SchemaContributor, rdf.IRI("https://github.com/bob")),

		// no language: not a table row
		s(repoB, rdf.RDFType, rdf.SoftwareType),
		s(repoB, rdf.SchemaDateCreated, dateTime("2020-01-01T00:00:00Z")),
		s(repoB, rdf.SchemaDateModified, dateTime("2020-02-01T00:00:00Z")),

		s(repoC, rdf.RDFType, rdf.SoftwareType),
		s(repoC, rdf.SchemaProgrammingLang, rdf.Literal("C++")),
		s(repoC, rdf.SchemaDateCreated, dateTime("2018-01-01T00:00:00Z")),
		s(repoC, rdf.SchemaDateModified, dateTime("2018-06-01T00:00:00Z")),
	}
	rdf.Sort(stmts)
	return stmts
}

func openStore(t *testing.T) *TableStore {
	t.Helper()
	store, err := OpenTableStore(filepath.Join(t.TempDir(), "meta.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadStatementsAndMetaRows(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	stmts := canonicalFixture()
	path := pwctest.WriteNTriples(t, stmts, "<https://github.com/x/y> <http://schema.org/name\n")

	n, err := store.LoadStatements(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, len(stmts), n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(stmts), count)

	rows, err := store.MetaRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []MetaRow{
		{
			URL: repoA, Lang: "Python", Contributors: 2,
			License:   "https://spdx.org/licenses/MIT",
			CreatedAt: "2019-01-02T03:04:05Z", UpdatedAt: "2023-05-06T07:08:09Z",
		},
		{
			URL: repoC, Lang: "C++", Contributors: 0,
			CreatedAt: "2018-01-01T00:00:00Z", UpdatedAt: "2018-06-01T00:00:00Z",
		},
	}, rows)
}

func TestLoadStatements_Replaces(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.LoadStatements(ctx, pwctest.WriteNTriples(t, canonicalFixture(), ""))
	require.NoError(t, err)

	only := canonicalFixture()[:1]
	n, err := store.LoadStatements(ctx, pwctest.WriteNTriples(t, only, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLoadStatements_MissingFile(t *testing.T) {
	store := openStore(t)
	_, err := store.LoadStatements(context.Background(), filepath.Join(t.TempDir(), "nope.nt"))
	assert.Error(t, err)
}

func TestTableStore_UseAfterClose(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	path := pwctest.WriteNTriples(t, canonicalFixture(), "")
	require.NoError(t, store.Close())

	_, err := store.LoadStatements(ctx, path)
	assert.True(t, errors.Is(err, db.ErrDatabaseClosed), "%v", err)
	_, err = store.Count(ctx)
	assert.True(t, errors.Is(err, db.ErrDatabaseClosed), "%v", err)
	_, err = store.MetaRows(ctx)
	assert.True(t, errors.Is(err, db.ErrDatabaseClosed), "%v", err)
}

func TestLoadStatements_RollsBackOnInsertError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM statements").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT OR IGNORE INTO statements")
	prep.ExpectExec().WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	store := NewTableStore(conn, nil)
	_, err = store.LoadStatements(context.Background(), pwctest.WriteNTriples(t, canonicalFixture(), ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaRows_Sqlmock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"subject", "lang", "contributors", "license", "created", "modified"}).
		AddRow(repoA, "Go", 3, nil, "2020-01-01T00:00:00Z", "2021-01-01T00:00:00Z")
	mock.ExpectQuery("SELECT t.subject").
		WithArgs(rdf.SchemaContributor, rdf.SchemaLicense, rdf.SchemaProgrammingLang,
			rdf.SchemaDateCreated, rdf.SchemaDateModified,
			rdf.RDFType, rdf.SchemaSoftwareSourceCode, int(rdf.KindIRI)).
		WillReturnRows(rows)

	got, err := NewTableStore(conn, nil).MetaRows(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Go", got[0].Lang)
	assert.Equal(t, 3, got[0].Contributors)
	assert.Empty(t, got[0].License)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetaRows_QueryError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT t.subject").WillReturnError(errors.New("no such table: statements"))

	_, err = NewTableStore(conn, nil).MetaRows(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query repository metadata")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []MetaRow{
		{URL: repoA, Lang: "Python", Contributors: 2, License: "https://spdx.org/licenses/MIT", CreatedAt: "c", UpdatedAt: "u"},
		{URL: repoC, Lang: "C, C++", CreatedAt: "c", UpdatedAt: "u"},
	}))
	assert.Equal(t,
		"url,lang,contributors,license,created_at,updated_at\n"+
			repoA+",Python,2,https://spdx.org/licenses/MIT,c,u\n"+
			repoC+`,"C, C++",0,,c,u`+"\n",
		buf.String())
}

type stubPopularity struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]bool
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *stubPopularity) Popularity(ctx context.Context, repoURL string) (fetch.Popularity, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[repoURL]++
	s.mu.Unlock()

	if s.fail[repoURL] {
		return fetch.Popularity{}, errors.Mark(errors.New("rate limited"), errors.ErrTransientNetwork)
	}
	return fetch.Popularity{Stars: len(repoURL), Forks: 1}, nil
}

func TestJoin(t *testing.T) {
	rows := []MetaRow{{URL: repoA}, {URL: repoB}, {URL: repoC}}
	papers := []catalog.Paper{
		{PaperTitle: "p1", RepoURL: "http://www.github.com/a/one/"},
		{PaperTitle: "p2", RepoURL: repoC + ".git"},
		{PaperTitle: "p3", RepoURL: repoA},
		{PaperTitle: "p4", RepoURL: "not a url"},
	}

	got := Join(rows, papers)
	require.Len(t, got, 3)
	assert.Equal(t, repoA, got[0].URL)
	assert.Equal(t, "p1", got[0].Paper.PaperTitle)
	assert.Equal(t, "p3", got[1].Paper.PaperTitle)
	assert.Equal(t, repoC, got[2].URL)
}

func TestEnhance(t *testing.T) {
	src := &stubPopularity{fail: map[string]bool{repoC: true}}
	e, err := NewEnhancer(src, 2, 16, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	rows := []MetaRow{{URL: repoA}, {URL: repoC}}
	papers := []catalog.Paper{
		{PaperTitle: "p1", RepoURL: repoA},
		{PaperTitle: "p2", RepoURL: repoA},
		{PaperTitle: "p3", RepoURL: repoC},
	}

	got, err := e.Enhance(context.Background(), rows, papers)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, len(repoA), got[0].Stars)
	assert.Equal(t, 1, got[1].Forks)
	assert.Zero(t, got[2].Stars, "failed lookup yields zero")
	assert.Zero(t, got[2].Forks)

	// one lookup per repository, and cached successes are not repeated
	assert.Equal(t, 1, src.calls[repoA])
	_, err = e.Enhance(context.Background(), rows, papers)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls[repoA])
	assert.Equal(t, 2, src.calls[repoC], "failures are not cached")
}

func TestEnhance_BoundedConcurrency(t *testing.T) {
	src := &stubPopularity{}
	e, err := NewEnhancer(src, 3, 64, nil)
	require.NoError(t, err)

	var rows []MetaRow
	var papers []catalog.Paper
	for i := 0; i < 30; i++ {
		u := "https://github.com/o/r" + strings.Repeat("x", i)
		rows = append(rows, MetaRow{URL: u})
		papers = append(papers, catalog.Paper{RepoURL: u})
	}

	got, err := e.Enhance(context.Background(), rows, papers)
	require.NoError(t, err)
	assert.Len(t, got, 30)
	assert.LessOrEqual(t, src.maxSeen.Load(), int32(3))
}

func TestEnhance_Cancelled(t *testing.T) {
	e, err := NewEnhancer(&stubPopularity{}, 1, 4, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Enhance(ctx, []MetaRow{{URL: repoA}}, []catalog.Paper{{RepoURL: repoA}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteEnhancedCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnhancedCSV(&buf, []EnhancedRow{{
		MetaRow: MetaRow{URL: repoA, Lang: "Go", Contributors: 1, CreatedAt: "c", UpdatedAt: "u"},
		Paper:   catalog.Paper{PaperTitle: "T", RepoURL: repoA, IsOfficial: true, Framework: "none"},
		Stars:   10,
		Forks:   2,
	}}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(EnhancedHeader, ","), lines[0])
	assert.Equal(t, repoA+",Go,1,,c,u,,T,,,,"+repoA+",true,false,false,none,10,2", lines[1])
}

func TestTableStore_InMemory(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(pwctest.CreateTestDB(t), nil)

	_, err := store.LoadStatements(ctx, pwctest.WriteNTriples(t, canonicalFixture(), ""))
	require.NoError(t, err)

	rows, err := store.MetaRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
