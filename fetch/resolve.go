package fetch

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/teranos/pwcmeta/errors"
)

// Supported hosts
const (
	HostGitHub = "github.com"
	HostGitLab = "gitlab.com"
)

// Repo identifies a repository on a supported host.
type Repo struct {
	Host  string // github.com or gitlab.com
	Owner string // first path segment (user, org or top-level group)
	Name  string // last path segment
	Path  string // owner/name, or group/sub/.../name on GitLab
	URL   string // canonical https URL, used as statement subject
}

// Resolve parses the forms found in the catalog: https and http URLs with
// or without "www.", trailing slashes, ".git" suffixes, deep links such as
// /tree/master, and scp-style git@host:owner/name.git remotes.
func Resolve(raw string) (Repo, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Repo{}, malformed(raw, "empty url")
	}

	ep, err := transport.NewEndpoint(trimmed)
	if err != nil {
		return Repo{}, errors.Mark(errors.Wrapf(err, "parse %q", raw), errors.ErrMalformedURL)
	}
	switch ep.Protocol {
	case "http", "https", "ssh", "git":
	default:
		return Repo{}, malformed(raw, "unsupported scheme "+ep.Protocol)
	}

	host := strings.TrimPrefix(strings.ToLower(ep.Host), "www.")
	if host != HostGitHub && host != HostGitLab {
		return Repo{}, malformed(raw, "unsupported host "+ep.Host)
	}

	var segments []string
	for _, s := range strings.Split(ep.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	switch host {
	case HostGitHub:
		// github.com/owner/name[/tree/...]
		if len(segments) >= 2 {
			segments = segments[:2]
		}
	case HostGitLab:
		// gitlab.com/group/sub/name[/-/tree/...]
		for i, s := range segments {
			if s == "-" {
				segments = segments[:i]
				break
			}
		}
	}
	if len(segments) < 2 {
		return Repo{}, malformed(raw, "missing owner or repository name")
	}

	last := len(segments) - 1
	segments[last] = strings.TrimSuffix(segments[last], ".git")
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return Repo{}, malformed(raw, "invalid path segment")
		}
	}

	path := strings.Join(segments, "/")
	return Repo{
		Host:  host,
		Owner: segments[0],
		Name:  segments[last],
		Path:  path,
		URL:   "https://" + host + "/" + path,
	}, nil
}

func malformed(raw, reason string) error {
	return errors.Mark(errors.Newf("%q: %s", raw, reason), errors.ErrMalformedURL)
}
