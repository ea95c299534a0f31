package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/teranos/pwcmeta/internal/httpclient"
)

// GitHub reads repository metadata from the GitHub REST API.
type GitHub struct {
	api
	// MaxContributorPages bounds contributor pagination (100 per page).
	MaxContributorPages int
}

// NewGitHub creates a GitHub provider. An empty baseURL selects api.github.com.
func NewGitHub(client *httpclient.SaferClient, baseURL, token string) *GitHub {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	h := http.Header{}
	h.Set("Accept", "application/vnd.github+json")
	h.Set("X-GitHub-Api-Version", "2022-11-28")
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return &GitHub{
		api:                 api{http: client, base: strings.TrimRight(baseURL, "/"), headers: h},
		MaxContributorPages: 5,
	}
}

func (g *GitHub) Host() string { return HostGitHub }

type githubRepo struct {
	FullName    string   `json:"full_name"`
	HTMLURL     string   `json:"html_url"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	Stars       int      `json:"stargazers_count"`
	Forks       int      `json:"forks_count"`
	Topics      []string `json:"topics"`
	License     *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
	Owner struct {
		HTMLURL string `json:"html_url"`
	} `json:"owner"`
}

type githubContributor struct {
	HTMLURL string `json:"html_url"`
	Type    string `json:"type"`
}

func (g *GitHub) repo(ctx context.Context, r Repo) (githubRepo, error) {
	var out githubRepo
	_, err := g.getJSON(ctx, "/repos/"+r.Path, &out)
	return out, err
}

// Describe fetches the repository and its contributors.
func (g *GitHub) Describe(ctx context.Context, r Repo) (Description, error) {
	meta, err := g.repo(ctx, r)
	if err != nil {
		return Description{}, err
	}

	d := Description{
		Repo:        r,
		HTMLURL:     meta.HTMLURL,
		Description: meta.Description,
		Language:    meta.Language,
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
		OwnerURL:    meta.Owner.HTMLURL,
		Topics:      meta.Topics,
	}
	if meta.License != nil && meta.License.SPDXID != "" && meta.License.SPDXID != "NOASSERTION" {
		d.LicenseSPDX = meta.License.SPDXID
	}

	for page := 1; ; page++ {
		if page > g.MaxContributorPages {
			d.ContributorsCapped = true
			break
		}
		var batch []githubContributor
		path := fmt.Sprintf("/repos/%s/contributors?per_page=100&page=%d", r.Path, page)
		if _, err := g.getJSON(ctx, path, &batch); err != nil {
			return Description{}, err
		}
		for _, c := range batch {
			if c.Type == "Anonymous" || c.HTMLURL == "" {
				continue
			}
			d.Contributors = append(d.Contributors, c.HTMLURL)
		}
		if len(batch) < 100 {
			break
		}
	}
	return d, nil
}

// Popularity returns star and fork counts.
func (g *GitHub) Popularity(ctx context.Context, r Repo) (Popularity, error) {
	meta, err := g.repo(ctx, r)
	if err != nil {
		return Popularity{}, err
	}
	return Popularity{Stars: meta.Stars, Forks: meta.Forks}, nil
}
