// Package imageproc converts images to normalized model input tensors and
// model output tensors back to pixel buffers, keeping the padding applied
// during preprocessing and the crop applied after inference numerically
// consistent.
package imageproc

import "math"

// GeometryPlan records, for one processed image, how preprocessing padded it.
// A plan is derived fresh per image during Encode and consumed by Decode to
// crop the model output back to the original content; it is never persisted.
type GeometryPlan struct {
	OriginalWidth  int
	OriginalHeight int
	PaddedWidth    int
	PaddedHeight   int

	// Offsets of the original content inside the padded frame. The pad amount
	// splits evenly across the two sides of each axis, with the extra pixel on
	// the high side, so PadLeft = (PaddedWidth-OriginalWidth)/2.
	PadLeft int
	PadTop  int
}

// PlanGeometry computes the padding plan for an image of the given original
// size padded to the given frame. Passing equal sizes yields an identity plan.
func PlanGeometry(originalWidth, originalHeight, paddedWidth, paddedHeight int) *GeometryPlan {
	return &GeometryPlan{
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
		PaddedWidth:    paddedWidth,
		PaddedHeight:   paddedHeight,
		PadLeft:        (paddedWidth - originalWidth) / 2,
		PadTop:         (paddedHeight - originalHeight) / 2,
	}
}

// IdentityPlan returns the plan of an image that was not padded.
func IdentityPlan(width, height int) *GeometryPlan {
	return PlanGeometry(width, height, width, height)
}

// Padded reports whether any padding was applied.
func (p *GeometryPlan) Padded() bool {
	return p.PaddedWidth != p.OriginalWidth || p.PaddedHeight != p.OriginalHeight
}

// CropRegion maps the plan into output-tensor space. The model may scale the
// padded input by an arbitrary per-axis factor outputDim/paddedDim; the valid
// content occupies [PadLeft, PadLeft+OriginalWidth) in padded space, which
// scales to [PadLeft*ratio, (PadLeft+OriginalWidth)*ratio) in output space.
// The lower bound rounds down and the upper bound rounds up, the same
// direction for both axes; this mirrors the encoder's padding exactly, so the
// crop removes precisely the padding added. For an identity plan the crop is
// the full output.
func (p *GeometryPlan) CropRegion(outputWidth, outputHeight int) (x0, y0, x1, y1 int) {
	if !p.Padded() {
		return 0, 0, outputWidth, outputHeight
	}
	x0, x1 = cropAxis(p.PadLeft, p.OriginalWidth, p.PaddedWidth, outputWidth)
	y0, y1 = cropAxis(p.PadTop, p.OriginalHeight, p.PaddedHeight, outputHeight)
	return x0, y0, x1, y1
}

func cropAxis(pad, original, padded, output int) (lo, hi int) {
	if padded == original {
		return 0, output
	}
	ratio := float64(output) / float64(padded)
	lo = int(math.Floor(float64(pad) * ratio))
	hi = int(math.Ceil(float64(pad+original) * ratio))
	if hi > output {
		hi = output
	}
	return lo, hi
}
