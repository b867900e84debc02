package imageproc

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/kiln-ml/kiln/backends"
)

// Config holds the preprocessing options applied by Encode.
type Config struct {
	// TargetSize resizes so that the longest side equals TargetSize, keeping
	// the aspect ratio. 0 disables resizing; images already within the target
	// are never upscaled. Non-integer intermediate sizes truncate toward zero.
	TargetSize int
	// Mean and Std normalize each channel as (v/255 - mean) / std.
	Mean [3]float32
	Std  [3]float32
	// Pad extends both axes to the next multiple of PadSize by replicating the
	// edge pixels, split evenly between the two sides of each axis with the
	// extra pixel on the high side.
	Pad     bool
	PadSize int
}

// ConfigFromModel derives the encode configuration from a resolved model configuration.
func ConfigFromModel(m *backends.ModelConfig) Config {
	return Config{
		TargetSize: m.TargetSize,
		Mean:       m.ImageMean,
		Std:        m.ImageStd,
		Pad:        m.Pad && m.PadSize > 0,
		PadSize:    m.PadSize,
	}
}

// Encode converts an image into a channel-first [1, 3, H, W] float32 tensor
// and the geometry plan needed to invert any padding at decode time. Fails
// with ErrInvalidImage when the image is nil or has zero area.
func Encode(img image.Image, config Config) (*backends.Tensor, *GeometryPlan, error) {
	if img == nil {
		return nil, nil, fmt.Errorf("%w: no image provided", backends.ErrInvalidImage)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 1 || height < 1 {
		return nil, nil, fmt.Errorf("%w: image has zero area (%dx%d)", backends.ErrInvalidImage, width, height)
	}

	if config.TargetSize > 0 && max(width, height) > config.TargetSize {
		scale := float64(config.TargetSize) / float64(max(width, height))
		width = max(int(float64(width)*scale), 1)
		height = max(int(float64(height)*scale), 1)
	}
	rgba := resampleToRGBA(img, width, height)

	paddedWidth, paddedHeight := width, height
	if config.Pad && config.PadSize > 0 {
		paddedWidth = nextMultiple(width, config.PadSize)
		paddedHeight = nextMultiple(height, config.PadSize)
	}
	plan := PlanGeometry(width, height, paddedWidth, paddedHeight)

	data := make([]float32, 3*paddedHeight*paddedWidth)
	channelStride := paddedHeight * paddedWidth
	for y := 0; y < paddedHeight; y++ {
		// Edge replication: out-of-frame coordinates clamp to the nearest
		// content pixel.
		srcY := clamp(y-plan.PadTop, 0, height-1)
		for x := 0; x < paddedWidth; x++ {
			srcX := clamp(x-plan.PadLeft, 0, width-1)
			pixel := rgba.PixOffset(srcX, srcY)
			for c := 0; c < 3; c++ {
				v := float32(rgba.Pix[pixel+c]) / 255.0
				data[c*channelStride+y*paddedWidth+x] = (v - config.Mean[c]) / config.Std[c]
			}
		}
	}

	t, err := backends.NewFloat32Tensor(backends.NewShape(1, 3, int64(paddedHeight), int64(paddedWidth)), data)
	if err != nil {
		return nil, nil, err
	}
	return t, plan, nil
}

// PixelBuffer is an interleaved RGBA byte buffer.
type PixelBuffer struct {
	Pixels []byte
	Width  int
	Height int
}

// Decode converts a [3, H, W] or [1, 3, H, W] float32 tensor into an
// interleaved RGBA buffer, cropping to the plan's region. Channel values are
// clamped to [0, 1] before scaling to [0, 255]; out-of-range model outputs are
// a documented numeric policy, not an error. Alpha is fixed at 255.
func Decode(t *backends.Tensor, plan *GeometryPlan) (*PixelBuffer, error) {
	if t == nil || !t.IsFloat32() {
		return nil, fmt.Errorf("decode expects a float32 tensor")
	}
	dims := t.Shape
	switch len(dims) {
	case 3:
	case 4:
		if dims[0] != 1 {
			return nil, fmt.Errorf("decode expects batch size 1, got shape %s", dims)
		}
		dims = dims[1:]
	default:
		return nil, fmt.Errorf("decode expects a 3- or 4-dimensional tensor, got shape %s", t.Shape)
	}
	if dims[0] != 3 {
		return nil, fmt.Errorf("decode expects 3 channels (RGB), got shape %s", t.Shape)
	}
	outputHeight := int(dims[1])
	outputWidth := int(dims[2])

	x0, y0, x1, y1 := 0, 0, outputWidth, outputHeight
	if plan != nil {
		x0, y0, x1, y1 = plan.CropRegion(outputWidth, outputHeight)
	}
	width, height := x1-x0, y1-y0
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("crop region %dx%d is empty for output %dx%d", width, height, outputWidth, outputHeight)
	}

	// Rows are read with the full output width as the stride; indexing with
	// the cropped width would shear every row after the first.
	channelStride := outputHeight * outputWidth
	pixels := make([]byte, width*height*4)
	i := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			for c := 0; c < 3; c++ {
				v := t.Float32s[c*channelStride+y*outputWidth+x]
				if v < 0 {
					v = 0
				} else if v > 1 {
					v = 1
				}
				pixels[i] = byte(v*255 + 0.5)
				i++
			}
			pixels[i] = 255
			i++
		}
	}
	return &PixelBuffer{Pixels: pixels, Width: width, Height: height}, nil
}

func resampleToRGBA(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func nextMultiple(v, block int) int {
	if remainder := v % block; remainder != 0 {
		return v + block - remainder
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
