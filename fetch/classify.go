package fetch

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/teranos/pwcmeta/errors"
)

// ClassifyStatus maps an HTTP response to a failure kind. ok is true for 2xx.
//
// 403 is ambiguous on GitHub: it is returned both for forbidden resources
// and for exhausted rate limits. Only the latter is retryable.
func ClassifyStatus(resp *http.Response) (kind Kind, ok bool) {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return 0, true
	case code == http.StatusTooManyRequests:
		return TransientNetwork, false
	case code == http.StatusForbidden && rateLimited(resp.Header):
		return TransientNetwork, false
	case code == http.StatusRequestTimeout:
		return TransientNetwork, false
	case code >= 500:
		return TransientNetwork, false
	default:
		// 401, 403, 404, 410, 451 and any other 4xx
		return PermanentRejection, false
	}
}

func rateLimited(h http.Header) bool {
	if h.Get("Retry-After") != "" {
		return true
	}
	if remaining := h.Get("X-RateLimit-Remaining"); remaining != "" {
		n, err := strconv.Atoi(remaining)
		return err == nil && n == 0
	}
	// GitLab
	if remaining := h.Get("RateLimit-Remaining"); remaining != "" {
		n, err := strconv.Atoi(remaining)
		return err == nil && n == 0
	}
	return false
}

// RetryAfter returns the provider's requested wait, if any. It is logged
// alongside the fixed backoff; the policy itself stays fixed.
func RetryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}

// statusError builds the marked error for a non-2xx response.
func statusError(resp *http.Response, kind Kind) error {
	err := errors.Newf("%s %s: %s", resp.Request.Method, resp.Request.URL.Redacted(), resp.Status)
	if wait := RetryAfter(resp.Header); wait > 0 {
		err = errors.WithDetailf(err, "provider asked to retry after %s", wait)
	}
	return errors.Mark(err, kind.Sentinel())
}

// transportError marks an error from the HTTP round trip. Requests refused
// before leaving the process keep their existing mark.
func transportError(err error) error {
	if errors.Is(err, errors.ErrPermanentRejection) || errors.Is(err, errors.ErrMalformedURL) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Mark(err, errors.ErrTransientNetwork)
}
