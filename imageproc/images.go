package imageproc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/kiln-ml/kiln/backends"
	"github.com/kiln-ml/kiln/util/fileutil"
)

// LoadImage resolves an image source: a data: URI with base64 payload, or a
// location readable through the afs file system (local path, s3:// URL).
func LoadImage(source string) (image.Image, error) {
	if strings.HasPrefix(source, "data:") {
		return decodeDataURI(source)
	}
	raw, err := fileutil.ReadFileBytes(source)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", backends.ErrInvalidImage, source, err)
	}
	return DecodeImage(raw)
}

// DecodeImage decodes raw image bytes (at minimum PNG and JPEG).
func DecodeImage(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backends.ErrInvalidImage, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return nil, fmt.Errorf("%w: image has zero area", backends.ErrInvalidImage)
	}
	return img, nil
}

func decodeDataURI(source string) (image.Image, error) {
	_, payload, found := strings.Cut(source, ";base64,")
	if !found {
		return nil, fmt.Errorf("%w: data URI without base64 payload", backends.ErrInvalidImage)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding data URI: %w", backends.ErrInvalidImage, err)
	}
	return DecodeImage(raw)
}
