// Package commands implements the pwcmeta subcommands.
package commands

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/am"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/fetch"
	"github.com/teranos/pwcmeta/internal/httpclient"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/version"
)

// loadConfig loads and range-checks the effective configuration. The result
// is a copy, so flag overrides do not leak into the cached configuration.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(
			errors.Mark(errors.Wrap(err, "invalid configuration"), errors.ErrInvalidRequest),
			"run 'pwcmeta am validate' for details")
	}
	c := *cfg
	return &c, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so runs stop gracefully.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// apiHost returns the lower-case host name of a provider base URL.
func apiHost(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "invalid provider base url %q", base)
	}
	if u.Hostname() == "" {
		return "", errors.Newf("provider base url %q has no host", base)
	}
	return strings.ToLower(u.Hostname()), nil
}

// providerLimits maps each provider API host to its configured budget.
func providerLimits(cfg *am.Config) (map[string]httpclient.Limit, error) {
	limits := map[string]httpclient.Limit{}
	for _, p := range []am.ProviderConfig{cfg.Providers.GitHub, cfg.Providers.GitLab} {
		host, err := apiHost(p.BaseURL)
		if err != nil {
			return nil, err
		}
		limits[host] = httpclient.Limit{RequestsPerSecond: p.RequestsPerSecond, Burst: p.Burst}
	}
	return limits, nil
}

// newFetchClient builds the GitHub and GitLab providers over one
// rate-limited HTTP client. At -vvv every provider request is logged.
func newFetchClient(cmd *cobra.Command, cfg *am.Config, log *zap.SugaredLogger) (*fetch.Client, error) {
	limits, err := providerLimits(cfg)
	if err != nil {
		return nil, err
	}
	opts := httpclient.Options{
		UserAgent: "pwcmeta/" + version.Get().Short(),
		Limits:    limits,
	}
	if cmd != nil {
		if verbosity, _ := cmd.Flags().GetCount("verbose"); logger.ShouldLogTrace(verbosity) {
			opts.Trace = log.Named("http")
		}
	}
	hc := httpclient.New(cfg.Extract.RequestTimeout(), opts)
	gh, gl := cfg.Providers.GitHub, cfg.Providers.GitLab
	if gh.Token == "" {
		log.Warnw("No GitHub token configured, anonymous API limits apply", logger.FieldHost, fetch.HostGitHub)
	}
	return fetch.NewClient(log,
		fetch.NewGitHub(hc, gh.BaseURL, gh.Token),
		fetch.NewGitLab(hc, gl.BaseURL, gl.Token),
	), nil
}

// createFile creates path and its parent directories.
func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	return f, nil
}
