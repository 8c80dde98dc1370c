package provider

import "errors"

// Sentinel errors returned by adapters. Callers match them with errors.Is and
// map them onto transport-level responses; adapters wrap them with call
// context via fmt.Errorf("...: %w", ...).
var (
	// ErrUnavailable covers transport and authentication failures talking to
	// the backend. Surfaced to the user with a retry affordance; never
	// retried automatically by the orchestration core.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrProtocol marks a backend response that parsed but was missing
	// required fields, or did not parse at all. Non-recoverable for the
	// attempt.
	ErrProtocol = errors.New("provider protocol error")

	// ErrInvalidIdentifier is returned when a caller-supplied identifier is
	// empty or malformed before any network call is made.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNotFound is returned when the referenced upload or asset does not
	// exist at the backend, either because it never did or because it was
	// already deleted.
	ErrNotFound = errors.New("provider resource not found")

	// ErrNotConfigured is returned by adapters constructed without
	// credentials.
	ErrNotConfigured = errors.New("provider credentials missing")
)
