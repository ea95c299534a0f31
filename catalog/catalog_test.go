package catalog

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var samplePapers = []Paper{
	{PaperTitle: "one", RepoURL: "https://github.com/a/one"},
	{PaperTitle: "two", RepoURL: "https://bitbucket.org/a/two"},
	{PaperTitle: "three", RepoURL: "http://www.gitlab.com/g/three"},
	{PaperTitle: "four", RepoURL: "https://github.company.com/a/four"},
	{PaperTitle: "five", RepoURL: "https://github.com/a/five"},
}

func TestFilter(t *testing.T) {
	got := Filter(samplePapers, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "one", got[0].PaperTitle)
	assert.Equal(t, "three", got[1].PaperTitle)
	assert.Equal(t, "five", got[2].PaperTitle)

	// truncation happens before filtering
	got = Filter(samplePapers, 3)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[1].PaperTitle)

	assert.Empty(t, Filter(nil, 10))
}

func TestSaveAndReadPapers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed", "filtered.json.gz")
	require.NoError(t, SavePapers(path, samplePapers))

	got, err := ReadPapers(path)
	require.NoError(t, err)
	assert.Equal(t, samplePapers, got)
}

func TestReadPapers_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPapers(filepath.Join(dir, "missing.json.gz"))
	assert.Error(t, err)

	plain := filepath.Join(dir, "plain.json.gz")
	require.NoError(t, os.WriteFile(plain, []byte(`[]`), 0644))
	_, err = ReadPapers(plain)
	assert.Error(t, err)
}

func TestReadPapers_NullFields(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`[{"paper_title": "x", "paper_arxiv_id": null, "repo_url": "https://github.com/a/b", "framework": "none"}]`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "p.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	got, err := ReadPapers(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].PaperArxivID)
}

func TestWorkItems(t *testing.T) {
	items := WorkItems(Filter(samplePapers, 0))
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].Seq)
	assert.Equal(t, "https://github.com/a/one", items[0].RepoURL)
	assert.Equal(t, 3, items[2].Seq)
}

func TestDownload_SkipsExisting(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "all.json.gz")
	require.NoError(t, os.WriteFile(dst, []byte("keep"), 0644))

	downloaded, err := Download(context.Background(), "http://127.0.0.1:1/never", dst, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.False(t, downloaded)

	body, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(body))
}

func TestDownload_KeepsCompressedBytes(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`[{"repo_url": "https://github.com/a/b"}]`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	payload := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(payload)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "raw", "all.json.gz")
	downloaded, err := Download(context.Background(), srv.URL+"/links.json.gz", dst, nil)
	require.NoError(t, err)
	assert.True(t, downloaded)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	papers, err := ReadPapers(dst)
	require.NoError(t, err)
	require.Len(t, papers, 1)
}
