//go:build NOORT && !ALL

package kiln

import (
	"errors"

	"github.com/kiln-ml/kiln/options"
)

func NewORTSession(_ ...options.WithOption) (*Session, error) {
	return nil, errors.New("the ORT backend is excluded from this build, drop the NOORT build tag or build with -tags ALL")
}
