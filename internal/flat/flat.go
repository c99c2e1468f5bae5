// Package flat models the detector flat field: a static per-pixel relative
// sensitivity map in detector coordinates with a valid-footprint mask.
package flat

import (
	"fmt"
	"math"
)

// Field is a read-only 2D sensitivity map. Pixels outside the detector
// footprint carry a false mask entry and are excluded from aperture averages.
type Field struct {
	Width  int
	Height int
	Data   []float64 // row-major, len Width*Height
	Mask   []bool    // true where the pixel is inside the valid footprint

	// PlateScale is the angular size of one pixel in degrees.
	PlateScale float64

	// CenterX, CenterY are the pixel coordinates of the boresight.
	CenterX float64
	CenterY float64
}

// New creates a Field from raw pixel data. Pixels that are zero, negative or
// NaN are masked out as off-footprint.
func New(width, height int, data []float64, plateScale float64) (*Field, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid flat dimensions %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("flat data length %d does not match %dx%d", len(data), width, height)
	}
	if plateScale <= 0 {
		return nil, fmt.Errorf("invalid plate scale %v", plateScale)
	}
	mask := make([]bool, len(data))
	for i, v := range data {
		mask[i] = v > 0 && !math.IsNaN(v)
	}
	return &Field{
		Width:      width,
		Height:     height,
		Data:       data,
		Mask:       mask,
		PlateScale: plateScale,
		CenterX:    float64(width) / 2,
		CenterY:    float64(height) / 2,
	}, nil
}

// At returns the sensitivity at integer pixel coordinates. ok is false for
// pixels outside the array bounds or the valid footprint.
func (f *Field) At(x, y int) (v float64, ok bool) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return 0, false
	}
	i := y*f.Width + x
	if !f.Mask[i] {
		return 0, false
	}
	return f.Data[i], true
}

// InFootprint reports whether the (possibly fractional) detector position
// falls on a valid pixel.
func (f *Field) InFootprint(x, y float64) bool {
	_, ok := f.At(int(math.Floor(x)), int(math.Floor(y)))
	return ok
}

// RadiusPixels converts an angular radius in degrees to pixels.
func (f *Field) RadiusPixels(deg float64) float64 {
	return deg / f.PlateScale
}

// ApertureMean computes the mean sensitivity inside a circular aperture of
// radiusPx pixels centered at (cx, cy). Pixels outside the array or the valid
// footprint are excluded. n is the number of pixels that contributed; a zero n
// means the aperture does not touch the footprint at all.
func (f *Field) ApertureMean(cx, cy, radiusPx float64) (mean float64, n int) {
	if radiusPx <= 0 {
		return 0, 0
	}
	x0 := int(math.Floor(cx - radiusPx))
	x1 := int(math.Ceil(cx + radiusPx))
	y0 := int(math.Floor(cy - radiusPx))
	y1 := int(math.Ceil(cy + radiusPx))

	r2 := radiusPx * radiusPx
	var sum float64
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			// Sample at the pixel center.
			dx := float64(x) + 0.5 - cx
			dy := float64(y) + 0.5 - cy
			if dx*dx+dy*dy > r2 {
				continue
			}
			v, ok := f.At(x, y)
			if !ok {
				continue
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
