package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/logger"
)

// Provider is one hosting-provider API.
type Provider interface {
	Host() string
	Describe(ctx context.Context, r Repo) (Description, error)
	Popularity(ctx context.Context, r Repo) (Popularity, error)
}

// Client resolves repository URLs and dispatches them to the matching provider.
type Client struct {
	providers map[string]Provider
	log       *zap.SugaredLogger
}

// NewClient creates a Client serving the given providers.
func NewClient(log *zap.SugaredLogger, providers ...Provider) *Client {
	c := &Client{
		providers: make(map[string]Provider, len(providers)),
		log:       logger.OrNop(log),
	}
	for _, p := range providers {
		c.providers[p.Host()] = p
	}
	return c
}

func (c *Client) provider(repoURL string) (Repo, Provider, error) {
	r, err := Resolve(repoURL)
	if err != nil {
		return Repo{}, nil, err
	}
	p, ok := c.providers[r.Host]
	if !ok {
		return Repo{}, nil, errors.Mark(errors.Newf("no provider configured for %s", r.Host), errors.ErrMalformedURL)
	}
	return r, p, nil
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, repoURL string) Outcome {
	start := time.Now()
	r, p, err := c.provider(repoURL)
	if err != nil {
		return FailWith(repoURL, err)
	}

	d, err := p.Describe(ctx, r)
	if err != nil {
		c.log.Debugw("Fetch failed",
			logger.FieldRepoURL, repoURL,
			logger.FieldKind, KindOf(err).String(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			logger.FieldError, err)
		return FailWith(repoURL, err)
	}

	if d.ContributorsCapped {
		c.log.Debugw("Contributor list cut at page limit",
			logger.FieldRepoURL, repoURL,
			logger.FieldCount, len(d.Contributors))
	}
	stmts := d.Statements()
	c.log.Debugw("Fetched",
		logger.FieldRepoURL, repoURL,
		logger.FieldStatements, len(stmts),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return Success(stmts)
}

// Popularity returns star and fork counts for a repository URL. Errors carry
// the same marks as Fetch failures.
func (c *Client) Popularity(ctx context.Context, repoURL string) (Popularity, error) {
	r, p, err := c.provider(repoURL)
	if err != nil {
		return Popularity{}, err
	}
	return p.Popularity(ctx, r)
}
