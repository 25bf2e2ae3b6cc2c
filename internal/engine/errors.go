package engine

import "errors"

// Sentinel errors returned by engine operations. Callers match them with
// errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrNotFound means the referenced memory does not exist.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidEmbedding means an embedding was missing, empty, or had
	// the wrong dimensionality for the index.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrIndexUnavailable means the vector index could not serve the
	// request and no fallback strategy applied.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrWriteConflict means a write could not acquire the single-writer
	// slot before its deadline.
	ErrWriteConflict = errors.New("write conflict")

	// ErrCollaboratorUnavailable means an external collaborator (embedder
	// or reasoner) failed and no fallback produced a usable result.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
