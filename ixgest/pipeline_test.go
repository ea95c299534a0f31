package ixgest

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/pwcmeta/am"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/fetch"
	"github.com/teranos/pwcmeta/pulse"
	"github.com/teranos/pwcmeta/rdf"
)

func testConfig(t *testing.T) *am.Config {
	t.Helper()
	v := viper.New()
	am.SetDefaults(v)
	cfg, err := am.LoadWithViper(v)
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Location.Metadata = filepath.Join(dir, "processed", "projects_meta.nt")
	cfg.Location.WorkDir = filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Location.Metadata), 0755))
	cfg.Extract.BatchSize = 2
	return cfg
}

func newTestPipeline(t *testing.T, cfg *am.Config, f fetch.Fetcher) (*Pipeline, *pulse.WorkerPool) {
	t.Helper()
	p, pool, err := New(cfg, f, pulse.NewMetrics(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	pool.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return p, pool
}

func fact(repo, name string) rdf.Statement {
	return rdf.Triple(rdf.IRI(repo), rdf.IRI(rdf.SchemaName), rdf.Literal(name))
}

func TestPipeline_FiveItemScenario(t *testing.T) {
	// Given five items where 3 is malformed and 5 repeats item 1's fact
	shared := fact("https://github.com/o/one", "one")
	second := fact("https://github.com/o/two", "two")
	fourth := fact("https://github.com/o/four", "four")

	byURL := map[string]fetch.Outcome{
		"https://github.com/o/one":  fetch.Success([]rdf.Statement{shared}),
		"https://github.com/o/two":  fetch.Success([]rdf.Statement{second}),
		"not-a-repo":                fetch.Fail(fetch.MalformedURL, "not-a-repo", nil),
		"https://github.com/o/four": fetch.Success([]rdf.Statement{fourth}),
		"https://github.com/o/five": fetch.Success([]rdf.Statement{shared}),
	}
	f := fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome { return byURL[url] })

	items := []WorkItem{
		{Seq: 1, RepoURL: "https://github.com/o/one"},
		{Seq: 2, RepoURL: "https://github.com/o/two"},
		{Seq: 3, RepoURL: "not-a-repo"},
		{Seq: 4, RepoURL: "https://github.com/o/four"},
		{Seq: 5, RepoURL: "https://github.com/o/five"},
	}

	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, f)

	// When the pipeline runs
	report, err := p.Run(context.Background(), items)
	require.NoError(t, err)

	// Then the canonical store holds exactly the three distinct facts
	got := readCanonical(t, cfg.Location.Metadata)
	want := []rdf.Statement{fourth, shared, second}
	rdf.Sort(want)
	assert.Equal(t, want, got)

	assert.Equal(t, 5, report.Items)
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Kind(fetch.MalformedURL))
	assert.Equal(t, 4, report.Statements)
	assert.Equal(t, 3, report.UniqueStatements)

	assert.NoFileExists(t, cfg.MergedPath(), "merged store removed after success")
	assert.NoDirExists(t, p.ArtifactDir, "artifact directory removed after success")
}

func TestPipeline_EmptyInput(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		t.Fatal("no fetch expected")
		return fetch.Outcome{}
	}))

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Items)

	info, err := os.Stat(cfg.Location.Metadata)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "empty canonical store, not an error")
}

func TestPipeline_AllFailed(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		return fetch.Fail(fetch.PermanentRejection, url, nil)
	}))

	report, err := p.Run(context.Background(), workItems(3))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 3, report.Kind(fetch.PermanentRejection))
	assert.FileExists(t, cfg.Location.Metadata)
}

func TestPipeline_ConcurrentArtifactsNeverInterleave(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extract.Workers = 4
	cfg.Extract.BatchSize = 20

	f := fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		time.Sleep(time.Duration(rand.Intn(4)) * time.Millisecond)
		stmts := make([]rdf.Statement, 0, 50)
		for i := 0; i < 50; i++ {
			stmts = append(stmts, fact(url, fmt.Sprintf("statement %d with some padding to make lines long", i)))
		}
		return fetch.Success(stmts)
	})
	p, _ := newTestPipeline(t, cfg, f)

	report, err := p.Run(context.Background(), workItems(20))
	require.NoError(t, err)

	assert.Equal(t, 20, report.Succeeded)
	assert.Equal(t, 1000, report.Statements)
	assert.Equal(t, 1000, report.UniqueStatements)
	assert.Zero(t, report.PartialLines, "every merged line parsed as a complete statement")
}

func TestPipeline_TransientRecovery(t *testing.T) {
	cfg := testConfig(t)
	var calls atomic.Int32
	f := fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		if calls.Add(1) == 1 {
			return fetch.Fail(fetch.TransientNetwork, url, errors.New("reset"))
		}
		return fetch.Success([]rdf.Statement{fact(url, "x")})
	})
	p, pool := newTestPipeline(t, cfg, f)
	var slept []time.Duration
	pool.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	report, err := p.Run(context.Background(), workItems(1))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []time.Duration{cfg.Extract.RetryBackoff()}, slept)
}

func TestPipeline_CancellationKeepsMergedStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extract.Workers = 1
	cfg.Extract.BatchSize = 1

	// a previous good canonical store
	require.NoError(t, os.WriteFile(cfg.Location.Metadata, []byte(lineA+"\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		return fetch.Success([]rdf.Statement{fact(url, "in flight")})
	})
	p, _ := newTestPipeline(t, cfg, f)
	p.OnResult = func(res Result) {
		if res.Item.Seq == 1 {
			cancel()
		}
	}

	report, err := p.Run(ctx, workItems(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	// every item accounted for; finished work was ingested
	assert.Equal(t, 5, report.Items)
	assert.Equal(t, report.Items, report.Succeeded+report.Failed+report.Skipped)
	assert.GreaterOrEqual(t, report.Succeeded, 2)
	assert.Positive(t, report.Skipped)

	merged, readErr := os.ReadFile(cfg.MergedPath())
	require.NoError(t, readErr, "merged store kept for inspection")
	assert.Len(t, readCanonicalBytes(t, merged), report.Succeeded)

	body, readErr := os.ReadFile(cfg.Location.Metadata)
	require.NoError(t, readErr)
	assert.Equal(t, lineA+"\n", string(body), "canonical store untouched")
}

func TestPipeline_Deadline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extract.Workers = 1
	cfg.Extract.BatchSize = 1

	f := fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		<-ctx.Done()
		return fetch.Fail(fetch.TransientNetwork, url, ctx.Err())
	})
	p, _ := newTestPipeline(t, cfg, f)
	p.Deadline = 20 * time.Millisecond

	report, err := p.Run(context.Background(), workItems(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 3, report.Skipped)
	assert.NoFileExists(t, cfg.Location.Metadata)
}

func TestPipeline_ReportYAML(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		return fetch.Success([]rdf.Statement{fact(url, "y")})
	}))
	report, err := p.Run(context.Background(), workItems(2))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, report.WriteYAML(path))
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "run_id: "+p.RunID)
	assert.Contains(t, string(body), "succeeded: 2")
	assert.Contains(t, report.Summary(), "2 items: 2 ok")
}

func readCanonicalBytes(t *testing.T, body []byte) []rdf.Statement {
	t.Helper()
	path := filepath.Join(t.TempDir(), "x.nt")
	require.NoError(t, os.WriteFile(path, body, 0644))
	return readCanonical(t, path)
}

var _ Runner = (*pulse.WorkerPool)(nil)

func TestPipeline_RepeatedURLsWithoutSeq(t *testing.T) {
	a := fact("https://github.com/o/a", "a")
	b := fact("https://github.com/o/b", "b")
	f := fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		return fetch.Success([]rdf.Statement{fact(url, url[len(url)-1:])})
	})

	cfg := testConfig(t)
	cfg.Extract.Workers = 3
	cfg.Extract.BatchSize = 3
	p, _ := newTestPipeline(t, cfg, f)

	items := []WorkItem{
		{RepoURL: "https://github.com/o/a"},
		{RepoURL: "https://github.com/o/a"},
		{RepoURL: "https://github.com/o/b"},
	}
	report, err := p.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Lost())
	assert.Equal(t, 3, report.Statements)
	assert.Equal(t, []rdf.Statement{a, b}, readCanonical(t, cfg.Location.Metadata))
}

func TestPipeline_LostArtifactsAreReported(t *testing.T) {
	huge := rdf.Triple(rdf.IRI("https://github.com/o/big"), rdf.IRI(rdf.SchemaDescription),
		rdf.Literal(strings.Repeat("x", rdf.MaxLineBytes)))
	small := fact("https://github.com/o/small", "small")
	f := fetch.FetcherFunc(func(ctx context.Context, url string) fetch.Outcome {
		if url == "https://github.com/o/big" {
			return fetch.Success([]rdf.Statement{huge})
		}
		return fetch.Success([]rdf.Statement{small})
	})

	core, logs := observer.New(zap.WarnLevel)
	cfg := testConfig(t)
	p, pool, err := New(cfg, f, pulse.NewMetrics(), zap.New(core).Sugar())
	require.NoError(t, err)
	pool.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	report, err := p.Run(context.Background(), []WorkItem{
		{Seq: 1, RepoURL: "https://github.com/o/big"},
		{Seq: 2, RepoURL: "https://github.com/o/small"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Lost())
	assert.Equal(t, 1, report.ByKind[KindArtifactIO])
	assert.Contains(t, report.Summary(), "1 artifacts lost")
	assert.Equal(t, []rdf.Statement{small}, readCanonical(t, cfg.Location.Metadata))

	warned := logs.FilterMessage("Statements of some items never reached the canonical store").All()
	require.Len(t, warned, 1)
	assert.EqualValues(t, 1, warned[0].ContextMap()["lost_artifacts"])
}
