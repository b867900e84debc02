package imageproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiln-ml/kiln/backends"
)

func uniformImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func identityConfig() Config {
	return Config{Std: [3]float32{1, 1, 1}}
}

func TestEncodeRejectsNilImage(t *testing.T) {
	_, _, err := Encode(nil, identityConfig())
	assert.ErrorIs(t, err, backends.ErrInvalidImage)
}

func TestEncodeRejectsZeroArea(t *testing.T) {
	_, _, err := Encode(image.NewRGBA(image.Rect(0, 0, 0, 0)), identityConfig())
	assert.ErrorIs(t, err, backends.ErrInvalidImage)
}

func TestEncodeShapeWithoutPadding(t *testing.T) {
	img := uniformImage(10, 6, color.RGBA{R: 255, A: 255})
	tensor, plan, err := Encode(img, identityConfig())
	assert.NoError(t, err)
	assert.Equal(t, backends.NewShape(1, 3, 6, 10), tensor.Shape)
	assert.False(t, plan.Padded())
	assert.Len(t, tensor.Float32s, 3*6*10)
}

func TestEncodeResizeKeepsAspectRatio(t *testing.T) {
	img := uniformImage(100, 60, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	config := identityConfig()
	config.TargetSize = 50
	tensor, plan, err := Encode(img, config)
	assert.NoError(t, err)
	// longest side scaled to 50, the other truncates: 60*0.5 = 30
	assert.Equal(t, backends.NewShape(1, 3, 30, 50), tensor.Shape)
	assert.Equal(t, 50, plan.OriginalWidth)
	assert.Equal(t, 30, plan.OriginalHeight)
}

func TestEncodeNeverUpscales(t *testing.T) {
	img := uniformImage(8, 4, color.RGBA{A: 255})
	config := identityConfig()
	config.TargetSize = 512
	tensor, _, err := Encode(img, config)
	assert.NoError(t, err)
	assert.Equal(t, backends.NewShape(1, 3, 4, 8), tensor.Shape)
}

func TestEncodeNormalization(t *testing.T) {
	img := uniformImage(2, 2, color.RGBA{R: 255, G: 0, B: 127, A: 255})
	config := Config{
		Mean: [3]float32{0.5, 0.5, 0.5},
		Std:  [3]float32{0.5, 0.5, 0.5},
	}
	tensor, _, err := Encode(img, config)
	assert.NoError(t, err)
	// channel-first layout: all R values first, then G, then B
	assert.InDelta(t, 1.0, tensor.Float32s[0], 1e-6)
	assert.InDelta(t, -1.0, tensor.Float32s[4], 1e-6)
	assert.InDelta(t, (127.0/255.0-0.5)/0.5, tensor.Float32s[8], 1e-6)
}

func TestEncodePadsWithEdgeReplication(t *testing.T) {
	img := uniformImage(3, 3, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	config := identityConfig()
	config.Pad = true
	config.PadSize = 8
	tensor, plan, err := Encode(img, config)
	assert.NoError(t, err)
	assert.Equal(t, backends.NewShape(1, 3, 8, 8), tensor.Shape)
	assert.True(t, plan.Padded())

	// replication of a uniform image keeps every value identical, corners included
	expected := float32(200) / 255
	assert.InDelta(t, expected, tensor.Float32s[0], 1e-6)
	assert.InDelta(t, expected, tensor.Float32s[63], 1e-6)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := uniformImage(5, 3, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	config := identityConfig()
	config.Pad = true
	config.PadSize = 4

	tensor, plan, err := Encode(img, config)
	assert.NoError(t, err)

	buffer, err := Decode(tensor, plan)
	assert.NoError(t, err)
	assert.Equal(t, 5, buffer.Width)
	assert.Equal(t, 3, buffer.Height)
	assert.Len(t, buffer.Pixels, 5*3*4)
	for i := 0; i < len(buffer.Pixels); i += 4 {
		assert.Equal(t, byte(200), buffer.Pixels[i])
		assert.Equal(t, byte(100), buffer.Pixels[i+1])
		assert.Equal(t, byte(50), buffer.Pixels[i+2])
		assert.Equal(t, byte(255), buffer.Pixels[i+3])
	}
}

func TestDecodeAccepts3DTensor(t *testing.T) {
	data := make([]float32, 3*2*2)
	tensor, err := backends.NewFloat32Tensor(backends.NewShape(3, 2, 2), data)
	assert.NoError(t, err)
	buffer, err := Decode(tensor, nil)
	assert.NoError(t, err)
	assert.Equal(t, 2, buffer.Width)
	assert.Equal(t, 2, buffer.Height)
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	flat, err := backends.NewFloat32Tensor(backends.NewShape(12), make([]float32, 12))
	assert.NoError(t, err)
	_, decodeErr := Decode(flat, nil)
	assert.Error(t, decodeErr)

	batch2, err := backends.NewFloat32Tensor(backends.NewShape(2, 3, 1, 2), make([]float32, 12))
	assert.NoError(t, err)
	_, decodeErr = Decode(batch2, nil)
	assert.Error(t, decodeErr)

	gray, err := backends.NewFloat32Tensor(backends.NewShape(1, 1, 3, 4), make([]float32, 12))
	assert.NoError(t, err)
	_, decodeErr = Decode(gray, nil)
	assert.Error(t, decodeErr)

	ids, err := backends.NewInt64Tensor(backends.NewShape(1, 3, 2, 2), make([]int64, 12))
	assert.NoError(t, err)
	_, decodeErr = Decode(ids, nil)
	assert.Error(t, decodeErr)
}

func TestDecodeClampsOutOfRangeValues(t *testing.T) {
	data := make([]float32, 3)
	data[0] = -0.5 // R
	data[1] = 1.7  // G, separate channel on a 1x1 image
	data[2] = 0.5  // B
	tensor, err := backends.NewFloat32Tensor(backends.NewShape(3, 1, 1), data)
	assert.NoError(t, err)
	buffer, err := Decode(tensor, nil)
	assert.NoError(t, err)
	assert.Equal(t, byte(0), buffer.Pixels[0])
	assert.Equal(t, byte(255), buffer.Pixels[1])
	assert.Equal(t, byte(128), buffer.Pixels[2])
	assert.Equal(t, byte(255), buffer.Pixels[3])
}

func TestDecodeCropUsesFullRowStride(t *testing.T) {
	// 3x2 output, crop keeps the middle column only; a wrong stride would
	// read the same row shifted instead
	data := []float32{
		0.0, 0.1, 0.2,
		0.3, 0.4, 0.5,

		0.0, 0.1, 0.2,
		0.3, 0.4, 0.5,

		0.0, 0.1, 0.2,
		0.3, 0.4, 0.5,
	}
	tensor, err := backends.NewFloat32Tensor(backends.NewShape(3, 2, 3), data)
	assert.NoError(t, err)

	plan := PlanGeometry(1, 2, 3, 2)
	buffer, err := Decode(tensor, plan)
	assert.NoError(t, err)
	assert.Equal(t, 1, buffer.Width)
	assert.Equal(t, 2, buffer.Height)
	assert.Equal(t, byte(26), buffer.Pixels[0])
	assert.Equal(t, byte(102), buffer.Pixels[4])
}

func TestConfigFromModel(t *testing.T) {
	config := ConfigFromModel(&backends.ModelConfig{
		TargetSize: 512,
		ImageMean:  [3]float32{0.5, 0.5, 0.5},
		ImageStd:   [3]float32{0.5, 0.5, 0.5},
		Pad:        true,
		PadSize:    64,
	})
	assert.Equal(t, 512, config.TargetSize)
	assert.True(t, config.Pad)
	assert.Equal(t, 64, config.PadSize)
}
