// Package queryerr defines the error taxonomy the query engine propagates:
// cancellation and data corruption are fatal, upstream failures from an
// external index are fatal, but an index simply having nothing to say about
// a term is not an error at all — that case is represented by a nil/empty
// result, never by one of these sentinels.
package queryerr

import "errors"

// ErrCancelled indicates the calling context was cancelled or its deadline
// exceeded while a query was still evaluating.
var ErrCancelled = errors.New("queryerr: evaluation cancelled")

// ErrInvalidArgument indicates a query, filter, or option value was
// malformed in a way the compiler or evaluator refuses to proceed with.
var ErrInvalidArgument = errors.New("queryerr: invalid argument")

// ErrNotSupported indicates a requested combination of operators or options
// is recognized but not implemented by this evaluator.
var ErrNotSupported = errors.New("queryerr: not supported")

// ErrDataCorruption indicates an external index returned a value that
// violates the invariants the query engine depends on (e.g. an ordinal with
// no backing record).
var ErrDataCorruption = errors.New("queryerr: data corruption")

// ErrUpstreamFailure indicates an external index's lookup failed for a
// reason other than "no match" — e.g. a backing store error.
var ErrUpstreamFailure = errors.New("queryerr: upstream failure")

// IsFatal reports whether err should abort the whole query evaluation
// rather than simply be treated as "this term contributed nothing."
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, ErrDataCorruption) ||
		errors.Is(err, ErrUpstreamFailure)
}
