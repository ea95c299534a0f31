package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/internal/httpclient"
	"github.com/teranos/pwcmeta/rdf"
)

func TestKind(t *testing.T) {
	assert.True(t, TransientNetwork.Retryable())
	assert.False(t, MalformedURL.Retryable())
	assert.False(t, PermanentRejection.Retryable())

	f := NewFailure(PermanentRejection, "https://github.com/a/b", errors.New("404"))
	assert.True(t, errors.Is(f, errors.ErrPermanentRejection))
	assert.False(t, errors.Is(f, errors.ErrTransientNetwork))
	assert.Contains(t, f.Error(), "permanent_rejection")

	assert.Equal(t, TransientNetwork, KindOf(errors.New("connection reset")))
	text, err := MalformedURL.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "malformed_url", string(text))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code   int
		header map[string]string
		want   Kind
		ok     bool
	}{
		{200, nil, 0, true},
		{204, nil, 0, true},
		{404, nil, PermanentRejection, false},
		{410, nil, PermanentRejection, false},
		{451, nil, PermanentRejection, false},
		{401, nil, PermanentRejection, false},
		{403, nil, PermanentRejection, false},
		{403, map[string]string{"X-RateLimit-Remaining": "0"}, TransientNetwork, false},
		{403, map[string]string{"X-RateLimit-Remaining": "12"}, PermanentRejection, false},
		{403, map[string]string{"Retry-After": "60"}, TransientNetwork, false},
		{429, nil, TransientNetwork, false},
		{500, nil, TransientNetwork, false},
		{502, nil, TransientNetwork, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %v", tt.code, tt.header), func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.code, Header: http.Header{}}
			for k, v := range tt.header {
				resp.Header.Set(k, v)
			}
			kind, ok := ClassifyStatus(resp)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

// newGitHubServer serves a minimal GitHub API for repo a/b.
func newGitHubServer(t *testing.T, repoStatus *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/a/b", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if code := repoStatus.Load(); code != 0 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(int(code))
			return
		}
		fmt.Fprint(w, `{
			"full_name": "a/b",
			"html_url": "https://github.com/a/b",
			"description": "A thing",
			"language": "Python",
			"created_at": "2019-05-01T10:00:00Z",
			"updated_at": "2021-02-03T04:05:06Z",
			"stargazers_count": 42,
			"forks_count": 7,
			"topics": ["nlp"],
			"license": {"spdx_id": "MIT"},
			"owner": {"html_url": "https://github.com/a"}
		}`)
	})
	mux.HandleFunc("/repos/a/b/contributors", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		fmt.Fprint(w, `[
			{"html_url": "https://github.com/alice", "type": "User"},
			{"html_url": "https://github.com/bob", "type": "User"},
			{"html_url": "", "type": "Anonymous"}
		]`)
	})
	mux.HandleFunc("/repos/a/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/repos/a/truncated", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"full_name": "a/trunc`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, githubURL, gitlabURL string) *Client {
	t.Helper()
	hc := httpclient.WrapClient(&http.Client{}, nil)
	return NewClient(zaptest.NewLogger(t).Sugar(),
		NewGitHub(hc, githubURL, "tok"),
		NewGitLab(hc, gitlabURL, ""),
	)
}

func TestGitHubFetch(t *testing.T) {
	var status atomic.Int32
	srv := newGitHubServer(t, &status)
	c := newTestClient(t, srv.URL, "http://unused.invalid")

	out := c.Fetch(context.Background(), "https://www.github.com/a/b.git")
	require.True(t, out.OK(), "%v", out.Failure)

	s := rdf.IRI("https://github.com/a/b")
	want := []rdf.Statement{
		rdf.Triple(s, rdf.TypePredicate, rdf.SoftwareType),
		rdf.Triple(s, rdf.IRI(rdf.SchemaName), rdf.Literal("a/b")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaCodeRepository), rdf.IRI("https://github.com/a/b")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaDescription), rdf.Literal("A thing")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaProgrammingLang), rdf.Literal("Python")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaDateCreated), rdf.TypedLiteral("2019-05-01T10:00:00Z", rdf.XSDDateTime)),
		rdf.Triple(s, rdf.IRI(rdf.SchemaDateModified), rdf.TypedLiteral("2021-02-03T04:05:06Z", rdf.XSDDateTime)),
		rdf.Triple(s, rdf.IRI(rdf.SchemaLicense), rdf.IRI("https://spdx.org/licenses/MIT")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaAuthor), rdf.IRI("https://github.com/a")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaContributor), rdf.IRI("https://github.com/alice")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaContributor), rdf.IRI("https://github.com/bob")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaKeywords), rdf.Literal("nlp")),
	}
	assert.Equal(t, want, out.Statements)

	pop, err := c.Popularity(context.Background(), "https://github.com/a/b")
	require.NoError(t, err)
	assert.Equal(t, Popularity{Stars: 42, Forks: 7}, pop)
}

func TestGitHubFetch_Failures(t *testing.T) {
	var status atomic.Int32
	srv := newGitHubServer(t, &status)
	c := newTestClient(t, srv.URL, "http://unused.invalid")
	ctx := context.Background()

	t.Run("not found is permanent", func(t *testing.T) {
		out := c.Fetch(ctx, "https://github.com/a/missing")
		require.False(t, out.OK())
		assert.Equal(t, PermanentRejection, out.Failure.Kind)
		assert.Empty(t, out.Statements)
	})

	t.Run("rate limited is transient", func(t *testing.T) {
		status.Store(http.StatusForbidden)
		defer status.Store(0)
		out := c.Fetch(ctx, "https://github.com/a/b")
		require.False(t, out.OK())
		assert.Equal(t, TransientNetwork, out.Failure.Kind)
	})

	t.Run("server error is transient", func(t *testing.T) {
		status.Store(http.StatusBadGateway)
		defer status.Store(0)
		out := c.Fetch(ctx, "https://github.com/a/b")
		assert.Equal(t, TransientNetwork, out.Failure.Kind)
	})

	t.Run("truncated body is transient", func(t *testing.T) {
		out := c.Fetch(ctx, "https://github.com/a/truncated")
		require.False(t, out.OK())
		assert.Equal(t, TransientNetwork, out.Failure.Kind)
	})

	t.Run("unsupported host is malformed", func(t *testing.T) {
		out := c.Fetch(ctx, "https://example.org/a/b")
		require.False(t, out.OK())
		assert.Equal(t, MalformedURL, out.Failure.Kind)
		assert.Equal(t, "https://example.org/a/b", out.Failure.RepoURL)
	})

	t.Run("connection refused is transient", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		deadURL := dead.URL
		dead.Close()
		c := newTestClient(t, deadURL, deadURL)
		out := c.Fetch(ctx, "https://github.com/a/b")
		require.False(t, out.OK())
		assert.Equal(t, TransientNetwork, out.Failure.Kind)
	})
}

func TestGitLabFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/projects/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		switch {
		case path == "/projects/grp%2Fsub%2Fproj":
			assert.Equal(t, "true", r.URL.Query().Get("license"))
			fmt.Fprint(w, `{
				"web_url": "https://gitlab.com/grp/sub/proj",
				"description": "",
				"created_at": "2018-01-01T00:00:00.000Z",
				"last_activity_at": "2020-06-30T12:00:00.123+02:00",
				"star_count": 3,
				"forks_count": 1,
				"topics": [],
				"license": {"key": "apache-2.0", "html_url": "http://www.apache.org/licenses/LICENSE-2.0"},
				"namespace": {"web_url": "https://gitlab.com/groups/grp/sub"}
			}`)
		case strings.HasSuffix(path, "/languages"):
			fmt.Fprint(w, `{"C++": 61.5, "Python": 38.5}`)
		case strings.HasSuffix(path, "/members/all"):
			fmt.Fprint(w, `[{"web_url": "https://gitlab.com/carol", "state": "active"}, {"web_url": "https://gitlab.com/dan", "state": "blocked"}]`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestClient(t, "http://unused.invalid", srv.URL)
	out := c.Fetch(context.Background(), "https://gitlab.com/grp/sub/proj")
	require.True(t, out.OK(), "%v", out.Failure)

	s := rdf.IRI("https://gitlab.com/grp/sub/proj")
	want := []rdf.Statement{
		rdf.Triple(s, rdf.TypePredicate, rdf.SoftwareType),
		rdf.Triple(s, rdf.IRI(rdf.SchemaName), rdf.Literal("grp/sub/proj")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaCodeRepository), rdf.IRI("https://gitlab.com/grp/sub/proj")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaProgrammingLang), rdf.Literal("C++")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaDateCreated), rdf.TypedLiteral("2018-01-01T00:00:00Z", rdf.XSDDateTime)),
		rdf.Triple(s, rdf.IRI(rdf.SchemaDateModified), rdf.TypedLiteral("2020-06-30T10:00:00Z", rdf.XSDDateTime)),
		rdf.Triple(s, rdf.IRI(rdf.SchemaLicense), rdf.IRI("https://spdx.org/licenses/Apache-2.0")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaAuthor), rdf.IRI("https://gitlab.com/groups/grp/sub")),
		rdf.Triple(s, rdf.IRI(rdf.SchemaContributor), rdf.IRI("https://gitlab.com/carol")),
	}
	assert.Equal(t, want, out.Statements)

	pop, err := c.Popularity(context.Background(), "https://gitlab.com/grp/sub/proj")
	require.NoError(t, err)
	assert.Equal(t, Popularity{Stars: 3, Forks: 1}, pop)

	missing := c.Fetch(context.Background(), "https://gitlab.com/grp/gone")
	assert.Equal(t, PermanentRejection, missing.Failure.Kind)
}

func TestFetcherFunc(t *testing.T) {
	var f Fetcher = FetcherFunc(func(ctx context.Context, repoURL string) Outcome {
		return Fail(TransientNetwork, repoURL, nil)
	})
	out := f.Fetch(context.Background(), "u")
	require.NotNil(t, out.Failure)
	assert.True(t, errors.Is(out.Failure, errors.ErrTransientNetwork))
}

func TestSSRFBlockIsPermanent(t *testing.T) {
	hc := httpclient.New(0, httpclient.Options{})
	c := NewClient(nil, NewGitHub(hc, "http://127.0.0.1:9", ""))
	out := c.Fetch(context.Background(), "https://github.com/a/b")
	require.False(t, out.OK())
	assert.Equal(t, PermanentRejection, out.Failure.Kind)
}

func TestGitHubContributorPageLimit(t *testing.T) {
	var pages atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/a/big", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"full_name": "a/big", "html_url": "https://github.com/a/big", "owner": {"html_url": "https://github.com/a"}}`)
	})
	mux.HandleFunc("/repos/a/big/contributors", func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		page := r.URL.Query().Get("page")
		parts := make([]string, 100)
		for i := range parts {
			parts[i] = fmt.Sprintf(`{"html_url": "https://github.com/u%s-%d", "type": "User"}`, page, i)
		}
		fmt.Fprint(w, "["+strings.Join(parts, ",")+"]")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := NewGitHub(httpclient.WrapClient(&http.Client{}, nil), srv.URL, "")
	gh.MaxContributorPages = 2

	core, logs := observer.New(zap.DebugLevel)
	c := NewClient(zap.New(core).Sugar(), gh)
	out := c.Fetch(context.Background(), "https://github.com/a/big")
	require.True(t, out.OK(), "%v", out.Failure)
	assert.EqualValues(t, 2, pages.Load())

	contributors := 0
	for _, st := range out.Statements {
		if st.Predicate == rdf.IRI(rdf.SchemaContributor) {
			contributors++
		}
	}
	assert.Equal(t, 200, contributors)

	capped := logs.FilterMessage("Contributor list cut at page limit").All()
	require.Len(t, capped, 1)
	assert.EqualValues(t, 200, capped[0].ContextMap()["count"])
}

func TestGitHubContributorsShortPageNotCapped(t *testing.T) {
	var status atomic.Int32
	srv := newGitHubServer(t, &status)
	gh := NewGitHub(httpclient.WrapClient(&http.Client{}, nil), srv.URL, "tok")

	r, err := Resolve("https://github.com/a/b")
	require.NoError(t, err)
	d, err := gh.Describe(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, d.ContributorsCapped)
	assert.Len(t, d.Contributors, 2)
}
