//go:build NOORT && !ALL

package backends

import (
	"errors"

	"github.com/kiln-ml/kiln/options"
)

type ortSession struct{}

func createORTSessionHandle(_ string, _ []byte, _ *options.Options) (*SessionHandle, error) {
	return nil, errors.New("the ORT backend is not included in this build, use the GO backend or rebuild without the NOORT tag")
}

func runORTSession(_ *SessionHandle, _ map[string]*Tensor) (map[string]*Tensor, error) {
	return nil, errors.New("the ORT backend is not included in this build")
}
