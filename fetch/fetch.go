// Package fetch retrieves repository metadata from hosting-provider APIs.
//
// A fetch never returns a Go error to its caller: it returns an Outcome that
// is either a full statement set or a classified Failure. There are no
// partial results.
package fetch

import (
	"context"
	"fmt"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/rdf"
)

// Kind classifies a failed fetch.
type Kind int

const (
	// MalformedURL: the input does not identify a supported provider. Terminal.
	MalformedURL Kind = iota + 1
	// TransientNetwork: connection, timeout or rate-limit failure. Retryable.
	TransientNetwork
	// PermanentRejection: the provider definitively refused (not found, forbidden). Terminal.
	PermanentRejection
)

// Kinds lists every failure kind, for reporting.
var Kinds = []Kind{MalformedURL, TransientNetwork, PermanentRejection}

func (k Kind) String() string {
	switch k {
	case MalformedURL:
		return "malformed_url"
	case TransientNetwork:
		return "transient_network"
	case PermanentRejection:
		return "permanent_rejection"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText makes Kind usable as a YAML/JSON map key.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Retryable reports whether the retry policy applies.
func (k Kind) Retryable() bool { return k == TransientNetwork }

// Sentinel returns the errors-package mark for this kind.
func (k Kind) Sentinel() error {
	switch k {
	case MalformedURL:
		return errors.ErrMalformedURL
	case PermanentRejection:
		return errors.ErrPermanentRejection
	default:
		return errors.ErrTransientNetwork
	}
}

// KindOf classifies an error by its mark. Unmarked errors are treated as
// transient: they come from the transport, not from a provider verdict.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, errors.ErrMalformedURL):
		return MalformedURL
	case errors.Is(err, errors.ErrPermanentRejection):
		return PermanentRejection
	default:
		return TransientNetwork
	}
}

// Failure is a classified fetch failure for one repository.
type Failure struct {
	Kind    Kind
	RepoURL string
	Err     error
}

// NewFailure builds a Failure whose Err carries the kind's mark.
func NewFailure(kind Kind, repoURL string, err error) *Failure {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &Failure{Kind: kind, RepoURL: repoURL, Err: errors.Mark(err, kind.Sentinel())}
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.RepoURL, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Outcome is the tagged result of one fetch: Statements on success, or Failure.
type Outcome struct {
	Statements []rdf.Statement
	Failure    *Failure
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool { return o.Failure == nil }

// Success wraps a complete statement set.
func Success(stmts []rdf.Statement) Outcome {
	return Outcome{Statements: stmts}
}

// Fail wraps a classified failure.
func Fail(kind Kind, repoURL string, err error) Outcome {
	return Outcome{Failure: NewFailure(kind, repoURL, err)}
}

// FailWith classifies err by its mark.
func FailWith(repoURL string, err error) Outcome {
	return Fail(KindOf(err), repoURL, err)
}

// Fetcher retrieves the metadata statements for one repository URL.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL string) Outcome
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, repoURL string) Outcome

func (f FetcherFunc) Fetch(ctx context.Context, repoURL string) Outcome { return f(ctx, repoURL) }

// Popularity holds the counters used for enrichment.
type Popularity struct {
	Stars int
	Forks int
}
