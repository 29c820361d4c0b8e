package hnsw

import "errors"

// Error taxonomy for the graph engine. GraphChanged never escapes the
// package: it drives the internal retry loop in KNNSearch and is recovered
// there. Everything else is returned to the caller.
var (
	// ErrUninitialized is returned when an operation is attempted on a
	// graph that has not been constructed via New.
	ErrUninitialized = errors.New("hnsw: graph is uninitialized")

	// ErrUnknownID is returned by RemoveItem when the id was never
	// assigned or has already been removed.
	ErrUnknownID = errors.New("hnsw: unknown item id")

	// ErrInvalidParameters is returned by New when the supplied
	// Parameters fail validation (e.g. M < 2).
	ErrInvalidParameters = errors.New("hnsw: invalid parameters")

	// ErrInvalidData is returned by DeserializeGraph when the stream does not
	// carry a recognizable header or its contents fail validation.
	ErrInvalidData = errors.New("hnsw: invalid serialized data")

	// ErrRetriesExhausted is returned by KNNSearch when more than
	// maxSearchRetries concurrent structural changes prevented the
	// search from completing. It indicates sustained writer contention,
	// not a data problem.
	ErrRetriesExhausted = errors.New("hnsw: search retries exhausted under sustained writer contention")
)

// graphChanged signals that a reader observed the graph's version counter
// move out from under it mid-search. It is caught and retried by KNNSearch
// and must never reach the caller.
type graphChanged struct{}

func (graphChanged) Error() string { return "hnsw: graph changed during search" }

func isGraphChanged(err error) bool {
	_, ok := err.(graphChanged)
	return ok
}
