// Package errors provides error handling for pwcmeta.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for user-facing reports
//   - Marks for classifying errors without string matching
//
// Usage:
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Classify a failure so callers can branch on it
//	return errors.Mark(errors.Wrap(err, "fetch repo"), errors.ErrTransientNetwork)
//
//	// Check errors
//	if errors.Is(err, errors.ErrTransientNetwork) {
//	    // retry
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	CombineErrors      = crdb.CombineErrors
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Generic sentinels.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")
)

// Pipeline failure taxonomy. Per-item kinds are absorbed by the worker pool;
// ErrAggregationIO is the only one that aborts a run.
var (
	// ErrMalformedURL marks input that does not identify a supported hosting provider
	ErrMalformedURL = New("malformed repository url")

	// ErrTransientNetwork marks connection, timeout and rate-limit failures
	ErrTransientNetwork = New("transient network failure")

	// ErrPermanentRejection marks definitive not-found / forbidden responses
	ErrPermanentRejection = New("permanent rejection")

	// ErrPartialArtifact marks a truncated or corrupted line in the merged store
	ErrPartialArtifact = New("partial artifact line")

	// ErrAggregationIO marks a merged store that cannot be opened or parsed at all
	ErrAggregationIO = New("aggregation io failure")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}
