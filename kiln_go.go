package kiln

import (
	"github.com/kiln-ml/kiln/options"
)

// NewGoSession creates a session backed by the pure Go inference backend.
// It needs no shared libraries, at the cost of slower inference.
func NewGoSession(opts ...options.WithOption) (*Session, error) {
	return newSession("GO", opts...)
}
