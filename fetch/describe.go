package fetch

import (
	"strings"
	"time"

	"github.com/teranos/pwcmeta/rdf"
)

// Description is the provider-neutral view of a repository, before it is
// mapped onto schema.org statements.
type Description struct {
	Repo         Repo
	HTMLURL      string
	Description  string
	Language     string
	CreatedAt    string
	UpdatedAt    string
	LicenseSPDX  string
	LicenseURL   string // used when no SPDX identifier is known
	OwnerURL     string
	Contributors []string // profile URLs
	Topics       []string

	// ContributorsCapped is set when pagination stopped at the page limit
	// with more pages possibly left; Contributors is then a lower bound.
	ContributorsCapped bool
}

// Statements maps a description onto schema.org. The subject is the
// canonical repository URL so that the same repository fetched twice yields
// identical statements.
func (d Description) Statements() []rdf.Statement {
	s := rdf.IRI(d.Repo.URL)
	out := []rdf.Statement{
		rdf.Triple(s, rdf.TypePredicate, rdf.SoftwareType),
		rdf.Triple(s, rdf.IRI(rdf.SchemaName), rdf.Literal(d.Repo.Path)),
	}
	add := func(pred string, o rdf.Term) {
		out = append(out, rdf.Triple(s, rdf.IRI(pred), o))
	}

	repoURL := d.HTMLURL
	if repoURL == "" {
		repoURL = d.Repo.URL
	}
	add(rdf.SchemaCodeRepository, rdf.IRI(repoURL))

	if v := strings.TrimSpace(d.Description); v != "" {
		add(rdf.SchemaDescription, rdf.Literal(v))
	}
	if d.Language != "" {
		add(rdf.SchemaProgrammingLang, rdf.Literal(d.Language))
	}
	if v, ok := normaliseTime(d.CreatedAt); ok {
		add(rdf.SchemaDateCreated, rdf.TypedLiteral(v, rdf.XSDDateTime))
	}
	if v, ok := normaliseTime(d.UpdatedAt); ok {
		add(rdf.SchemaDateModified, rdf.TypedLiteral(v, rdf.XSDDateTime))
	}
	switch {
	case d.LicenseSPDX != "":
		add(rdf.SchemaLicense, rdf.LicenseIRI(d.LicenseSPDX))
	case d.LicenseURL != "":
		add(rdf.SchemaLicense, rdf.IRI(d.LicenseURL))
	}
	if d.OwnerURL != "" {
		add(rdf.SchemaAuthor, rdf.IRI(d.OwnerURL))
	}

	seen := make(map[string]bool, len(d.Contributors))
	for _, c := range d.Contributors {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		add(rdf.SchemaContributor, rdf.IRI(c))
	}
	for _, topic := range d.Topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			add(rdf.SchemaKeywords, rdf.Literal(topic))
		}
	}
	return out
}

// normaliseTime renders provider timestamps as second-precision UTC so that
// "2020-01-02T03:04:05.000+00:00" and "2020-01-02T03:04:05Z" are one literal.
func normaliseTime(v string) (string, bool) {
	if v == "" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return "", false
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339), true
}
