package so

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/pwcmeta/catalog"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/fetch"
	"github.com/teranos/pwcmeta/logger"
)

// PopularitySource looks up star and fork counts. *fetch.Client satisfies it.
type PopularitySource interface {
	Popularity(ctx context.Context, repoURL string) (fetch.Popularity, error)
}

// EnhancedRow is a metadata row joined with the paper that links to it.
type EnhancedRow struct {
	MetaRow
	Paper catalog.Paper
	Stars int
	Forks int
}

// EnhancedHeader is the column order of WriteEnhancedCSV.
var EnhancedHeader = append(append([]string{}, MetaHeader...),
	"paper_url", "paper_title", "paper_arxiv_id", "paper_url_abs", "paper_url_pdf",
	"repo_url", "is_official", "mentioned_in_paper", "mentioned_in_github", "framework",
	"stars", "forks",
)

// Enhancer joins metadata with the catalog and adds popularity counts.
type Enhancer struct {
	Source  PopularitySource
	Workers int
	Cache   *lru.Cache[string, fetch.Popularity]
	Logger  *zap.SugaredLogger
}

// NewEnhancer returns an Enhancer with a cache of cacheSize entries.
func NewEnhancer(src PopularitySource, workers, cacheSize int, log *zap.SugaredLogger) (*Enhancer, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[string, fetch.Popularity](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create popularity cache")
	}
	return &Enhancer{Source: src, Workers: workers, Cache: cache, Logger: log}, nil
}

// joinKey normalises a repository URL so that catalog spellings
// (www., trailing slash, .git) meet the canonical statement subject.
func joinKey(u string) string {
	if repo, err := fetch.Resolve(u); err == nil {
		return repo.URL
	}
	return u
}

// Join pairs every row with each paper whose repository is the row's URL.
// Rows keep their order; a row linked from two papers appears twice and
// rows without a paper are dropped.
func Join(rows []MetaRow, papers []catalog.Paper) []EnhancedRow {
	byRepo := make(map[string][]catalog.Paper, len(papers))
	for _, p := range papers {
		k := joinKey(p.RepoURL)
		byRepo[k] = append(byRepo[k], p)
	}
	var out []EnhancedRow
	for _, r := range rows {
		for _, p := range byRepo[joinKey(r.URL)] {
			out = append(out, EnhancedRow{MetaRow: r, Paper: p})
		}
	}
	return out
}

// Enhance joins rows with papers and fills in Stars and Forks. A failed
// lookup leaves both at zero and logs a warning; only cancellation is an
// error.
func (e *Enhancer) Enhance(ctx context.Context, rows []MetaRow, papers []catalog.Paper) ([]EnhancedRow, error) {
	log := logger.OrNop(e.Logger)
	joined := Join(rows, papers)

	urls := make([]string, 0, len(joined))
	seen := make(map[string]bool, len(joined))
	for _, r := range joined {
		if !seen[r.URL] {
			seen[r.URL] = true
			urls = append(urls, r.URL)
		}
	}

	pops := make([]fetch.Popularity, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	if e.Workers > 0 {
		g.SetLimit(e.Workers)
	}
	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pops[i] = e.lookup(gctx, u, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "popularity lookups")
	}

	byURL := make(map[string]fetch.Popularity, len(urls))
	for i, u := range urls {
		byURL[u] = pops[i]
	}
	for i := range joined {
		p := byURL[joined[i].URL]
		joined[i].Stars, joined[i].Forks = p.Stars, p.Forks
	}
	log.Infow("Enhanced metadata", logger.FieldCount, len(joined), "repositories", len(urls))
	return joined, nil
}

func (e *Enhancer) lookup(ctx context.Context, u string, log *zap.SugaredLogger) fetch.Popularity {
	if e.Cache != nil {
		if p, ok := e.Cache.Get(u); ok {
			return p
		}
	}
	p, err := e.Source.Popularity(ctx, u)
	if err != nil {
		log.Warnw("Popularity lookup failed", logger.FieldRepoURL, u, logger.FieldError, err)
		return fetch.Popularity{}
	}
	if e.Cache != nil {
		e.Cache.Add(u, p)
	}
	return p
}

func (r EnhancedRow) record() []string {
	p := r.Paper
	return append(r.MetaRow.record(),
		p.PaperURL, p.PaperTitle, p.PaperArxivID, p.PaperURLAbs, p.PaperURLPDF,
		p.RepoURL,
		strconv.FormatBool(p.IsOfficial),
		strconv.FormatBool(p.MentionedInPaper),
		strconv.FormatBool(p.MentionedInGitHub),
		p.Framework,
		strconv.Itoa(r.Stars), strconv.Itoa(r.Forks),
	)
}

// WriteEnhancedCSV writes rows with an EnhancedHeader header line.
func WriteEnhancedCSV(w io.Writer, rows []EnhancedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EnhancedHeader); err != nil {
		return errors.Wrap(err, "failed to write headers")
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return errors.Wrap(err, "failed to write row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
