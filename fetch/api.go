package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/internal/httpclient"
)

// maxBodyBytes bounds a single API response.
const maxBodyBytes = 8 << 20

// api is the JSON-over-HTTP plumbing shared by providers.
type api struct {
	http    *httpclient.SaferClient
	base    string
	headers http.Header
}

// getJSON performs a GET and decodes a 2xx body into out. A 204 leaves out
// untouched. The returned header is that of the response, on any status.
func (a *api) getJSON(ctx context.Context, path string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+path, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "build request"), errors.ErrMalformedURL)
	}
	for k, vs := range a.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if kind, ok := ClassifyStatus(resp); !ok {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.Header, statusError(resp, kind)
	}
	if resp.StatusCode == http.StatusNoContent {
		return resp.Header, nil
	}

	// a body that does not decode is almost always a cut-off transfer
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return resp.Header, errors.Mark(errors.Wrapf(err, "decode %s", req.URL.Redacted()), errors.ErrTransientNetwork)
	}
	return resp.Header, nil
}
