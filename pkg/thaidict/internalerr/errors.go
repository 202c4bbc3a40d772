package internalerr

import "errors"

// Sentinel errors for common cases
var (
	// ErrEntryNotFound means the requested id or definition does not
	// resolve: an HTTP 404, or a definition id absent from its entry.
	// Batch callers typically skip-and-continue on this one and abort
	// on everything else.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrRecursionDetected means a composite structure looped back into
	// itself during super-entry resolution.
	ErrRecursionDetected = errors.New("recursion detected")

	// ErrNoSuitableDefinition means an entry has definitions but none
	// pass the formatter's suitability filter.
	ErrNoSuitableDefinition = errors.New("no suitable definitions")

	ErrInvalidConfig = errors.New("invalid configuration")
)
