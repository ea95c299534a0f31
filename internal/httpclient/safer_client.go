// Package httpclient provides the HTTP client used for all provider API
// traffic: SSRF checks on every request and redirect, plus a token-bucket
// limiter per destination host.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/internal/util"
	"github.com/teranos/pwcmeta/logger"
)

// Limit is a per-host request budget. Zero RequestsPerSecond means unlimited.
type Limit struct {
	RequestsPerSecond float64
	Burst             int
}

// Options customises a SaferClient. Nil pointers take defaults.
type Options struct {
	AllowedSchemes []string           // Default: ["http", "https"]
	MaxRedirects   *int               // Default: 10
	BlockPrivateIP *bool              // Default: true
	UserAgent      string             // Default: "pwcmeta"
	Limits         map[string]Limit   // keyed by lower-case hostname
	Trace          *zap.SugaredLogger // if set, every request is logged at debug level
}

// SaferClient wraps http.Client with SSRF protection and host rate limiting
type SaferClient struct {
	*http.Client
	allowedSchemes []string
	blockPrivateIP bool
	maxRedirects   int
	userAgent      string
	trace          *zap.SugaredLogger

	mu       sync.Mutex
	limits   map[string]Limit
	limiters map[string]*rate.Limiter
}

// New creates a client with the given per-request timeout
func New(timeout time.Duration, opts Options) *SaferClient {
	c := &SaferClient{
		Client:         &http.Client{Timeout: timeout},
		allowedSchemes: []string{"http", "https"},
		blockPrivateIP: true,
		maxRedirects:   10,
		userAgent:      "pwcmeta",
		limits:         map[string]Limit{},
		limiters:       map[string]*rate.Limiter{},
	}
	if opts.AllowedSchemes != nil {
		c.allowedSchemes = opts.AllowedSchemes
	}
	c.maxRedirects = util.Deref(opts.MaxRedirects, c.maxRedirects)
	c.blockPrivateIP = util.Deref(opts.BlockPrivateIP, c.blockPrivateIP)
	if opts.UserAgent != "" {
		c.userAgent = opts.UserAgent
	}
	c.trace = opts.Trace
	for host, l := range opts.Limits {
		c.limits[strings.ToLower(host)] = l
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if c.blockPrivateIP {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, "invalid address")
			}
			// resolve here so a rebinding DNS answer cannot slip past validateURL
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve host %q", host)
			}
			for _, ip := range ips {
				if isPrivateIP(ip) {
					return nil, errors.Newf("private IP address blocked: %s", ip)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		}
	}
	c.Transport = transport

	return c
}

// WrapClient wraps an existing http.Client without SSRF protection.
// Only for tests that talk to httptest servers on localhost.
func WrapClient(client *http.Client, limits map[string]Limit) *SaferClient {
	c := New(client.Timeout, Options{BlockPrivateIP: util.Ptr(false), Limits: limits})
	client.CheckRedirect = c.CheckRedirect
	c.Client = client
	return c
}

// SetLimit installs or replaces the budget for a host.
func (c *SaferClient) SetLimit(host string, l Limit) {
	host = strings.ToLower(host)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits[host] = l
	delete(c.limiters, host)
}

// limiter returns the shared limiter for a host, or nil when unlimited.
func (c *SaferClient) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.limiters[host]; ok {
		return l
	}
	budget, ok := c.limits[host]
	if !ok || budget.RequestsPerSecond <= 0 {
		return nil
	}
	burst := budget.Burst
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(budget.RequestsPerSecond), burst)
	c.limiters[host] = l
	return l
}

// Wait blocks until the host's budget admits one more request or ctx ends.
func (c *SaferClient) Wait(ctx context.Context, host string) error {
	l := c.limiter(host)
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limit wait for %s", host)
	}
	return nil
}

// Do executes a request after SSRF validation and the host's rate limit.
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "request blocked by SSRF protection"), errors.ErrPermanentRejection)
	}
	if err := c.Wait(req.Context(), req.URL.Hostname()); err != nil {
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.trace == nil {
		return c.Client.Do(req)
	}

	start := time.Now()
	resp, err := c.Client.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.trace.Debugw("HTTP request",
		"method", req.Method,
		"url", req.URL.Redacted(),
		logger.FieldStatus, status,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
		logger.FieldError, err,
	)
	return resp, err
}

// Get is a context-aware GET through Do.
func (c *SaferClient) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	return c.Do(req)
}

// ValidateURL parses and validates a URL string before creating a request
func (c *SaferClient) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *SaferClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(c.allowedSchemes, scheme) {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}

	// http://evil.com@localhost/
	if u.User != nil || strings.Contains(u.Host, "@") {
		return errors.New("URL contains userinfo (potential SSRF attempt)")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}

	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}
	return nil
}

var privateBlocks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"100.64.0.0/10", // carrier-grade NAT
		"224.0.0.0/4",
		"240.0.0.0/4",
		"fc00::/7",
		"fec0::/10",
		"2001:db8::/32",
	}
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}()

// isPrivateIP checks if an IP is in private/special use ranges
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
