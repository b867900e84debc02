package imageproc

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/backends"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := uniformImage(width, height, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoadImageFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 4, 3), 0o644))

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
}

func TestLoadImageFromDataURI(t *testing.T) {
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 2, 2))
	img, err := LoadImage(uri)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
}

func TestLoadImageMissingFile(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "nope.png"))
	assert.ErrorIs(t, err, backends.ErrInvalidImage)
}

func TestLoadImageMalformedDataURI(t *testing.T) {
	_, err := LoadImage("data:image/png;base64,!!!notbase64!!!")
	assert.ErrorIs(t, err, backends.ErrInvalidImage)
}

func TestDecodeImageGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("not an image"))
	assert.ErrorIs(t, err, backends.ErrInvalidImage)
}
