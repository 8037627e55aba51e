package models

import (
	"errors"
)

// Error taxonomy for the pipeline. Callers classify failures by
// errors.Is against these sentinels; wrap with fmt.Errorf("...: %w").
var (
	// ErrInvalidInput marks a malformed or empty document. Surfaced
	// immediately, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransientService marks a gateway timeout or rate-limit
	// rejection. Retried with backoff up to the attempt limit.
	ErrTransientService = errors.New("transient service error")

	// ErrPermanentService marks a schema violation or content-policy
	// rejection. Not retried within the same attempt.
	ErrPermanentService = errors.New("permanent service error")

	// ErrConcurrencyConflict marks a write that lost an optimistic
	// version check. Never silently overwritten.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrServiceUnavailable marks a fail-fast rejection while a
	// capability's circuit breaker is open.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrNotFound marks a missing document, result or batch.
	ErrNotFound = errors.New("not found")
)

// Transient reports whether err should be retried.
func Transient(err error) bool {
	return errors.Is(err, ErrTransientService)
}
