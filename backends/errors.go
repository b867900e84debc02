package backends

import "errors"

// Sentinel errors for the runtime. Callers match them with errors.Is; every
// error surfaced by this module wraps exactly one of these.
var (
	// ErrInvalidImage is returned when an image cannot be decoded or has zero area.
	ErrInvalidImage = errors.New("invalid image")

	// ErrUninitialized is returned when an operation is invoked before the
	// required setup (e.g. running a session set before loading it).
	ErrUninitialized = errors.New("not initialized")

	// ErrSessionLoad is returned when a required named artifact is missing or unreadable.
	ErrSessionLoad = errors.New("session load failed")

	// ErrUnknownRole is returned when the requested role is not present in the loaded set.
	ErrUnknownRole = errors.New("unknown session role")

	// ErrInference is returned when the underlying forward pass fails. The call
	// fails atomically: no partial outputs are returned.
	ErrInference = errors.New("inference failed")

	// ErrCancelled is reported when the consumer abandons a streaming operation.
	ErrCancelled = errors.New("generation cancelled")
)
