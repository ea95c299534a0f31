package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/teranos/pwcmeta/internal/httpclient"
)

// GitLab reads project metadata from the GitLab v4 API.
type GitLab struct {
	api
	MaxMemberPages int
}

// NewGitLab creates a GitLab provider. An empty baseURL selects gitlab.com/api/v4.
func NewGitLab(client *httpclient.SaferClient, baseURL, token string) *GitLab {
	if baseURL == "" {
		baseURL = "https://gitlab.com/api/v4"
	}
	h := http.Header{}
	if token != "" {
		h.Set("PRIVATE-TOKEN", token)
	}
	return &GitLab{
		api:            api{http: client, base: strings.TrimRight(baseURL, "/"), headers: h},
		MaxMemberPages: 5,
	}
}

func (g *GitLab) Host() string { return HostGitLab }

type gitlabProject struct {
	WebURL         string   `json:"web_url"`
	Description    string   `json:"description"`
	CreatedAt      string   `json:"created_at"`
	LastActivityAt string   `json:"last_activity_at"`
	Stars          int      `json:"star_count"`
	Forks          int      `json:"forks_count"`
	Topics         []string `json:"topics"`
	License        *struct {
		Key     string `json:"key"`
		HTMLURL string `json:"html_url"`
	} `json:"license"`
	Namespace struct {
		WebURL string `json:"web_url"`
	} `json:"namespace"`
}

type gitlabMember struct {
	WebURL string `json:"web_url"`
	State  string `json:"state"`
}

// gitlabLicenses maps GitLab license keys to SPDX identifiers.
var gitlabLicenses = map[string]string{
	"mit":          "MIT",
	"apache-2.0":   "Apache-2.0",
	"gpl-2.0":      "GPL-2.0",
	"gpl-3.0":      "GPL-3.0",
	"lgpl-2.1":     "LGPL-2.1",
	"lgpl-3.0":     "LGPL-3.0",
	"agpl-3.0":     "AGPL-3.0",
	"bsd-2-clause": "BSD-2-Clause",
	"bsd-3-clause": "BSD-3-Clause",
	"mpl-2.0":      "MPL-2.0",
	"epl-2.0":      "EPL-2.0",
	"unlicense":    "Unlicense",
	"cc0-1.0":      "CC0-1.0",
}

func (g *GitLab) projectPath(r Repo) string {
	return "/projects/" + url.PathEscape(r.Path)
}

func (g *GitLab) project(ctx context.Context, r Repo) (gitlabProject, error) {
	var out gitlabProject
	_, err := g.getJSON(ctx, g.projectPath(r)+"?license=true", &out)
	return out, err
}

// Describe fetches the project, its language breakdown and members.
func (g *GitLab) Describe(ctx context.Context, r Repo) (Description, error) {
	p, err := g.project(ctx, r)
	if err != nil {
		return Description{}, err
	}

	d := Description{
		Repo:        r,
		HTMLURL:     p.WebURL,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.LastActivityAt,
		OwnerURL:    p.Namespace.WebURL,
		Topics:      p.Topics,
	}
	if p.License != nil {
		if spdx, ok := gitlabLicenses[strings.ToLower(p.License.Key)]; ok {
			d.LicenseSPDX = spdx
		} else {
			d.LicenseURL = p.License.HTMLURL
		}
	}

	// GitLab reports percentages per language; the largest is the primary one
	var langs map[string]float64
	if _, err := g.getJSON(ctx, g.projectPath(r)+"/languages", &langs); err != nil {
		return Description{}, err
	}
	d.Language = primaryLanguage(langs)

	for page := 1; ; page++ {
		if page > g.MaxMemberPages {
			d.ContributorsCapped = true
			break
		}
		var batch []gitlabMember
		path := fmt.Sprintf("%s/members/all?per_page=100&page=%d", g.projectPath(r), page)
		if _, err := g.getJSON(ctx, path, &batch); err != nil {
			return Description{}, err
		}
		for _, m := range batch {
			if m.State == "active" && m.WebURL != "" {
				d.Contributors = append(d.Contributors, m.WebURL)
			}
		}
		if len(batch) < 100 {
			break
		}
	}
	return d, nil
}

func primaryLanguage(langs map[string]float64) string {
	best, bestShare := "", -1.0
	for name, share := range langs {
		// ties broken by name for stable output
		if share > bestShare || (share == bestShare && name < best) {
			best, bestShare = name, share
		}
	}
	return best
}

// Popularity returns star and fork counts.
func (g *GitLab) Popularity(ctx context.Context, r Repo) (Popularity, error) {
	p, err := g.project(ctx, r)
	if err != nil {
		return Popularity{}, err
	}
	return Popularity{Stars: p.Stars, Forks: p.Forks}, nil
}
