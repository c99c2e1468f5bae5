// Package respmap builds and samples sky-projected relative-response maps:
// the flat field stamped through the per-second aspect solution onto a fixed
// sky grid, as produced by the canonical pipeline before flat-correcting a
// count image. The aperture estimator never uses these maps; they exist for
// cross-validation.
package respmap

import (
	"context"
	"fmt"
	"math"

	"uvcal/internal/aspect"
	"uvcal/internal/flat"
	"uvcal/internal/projection"
)

// Map is a sky-gridded response map centered on a tangent point. Cell values
// are response-seconds: relative sensitivity integrated over effective
// exposure time.
type Map struct {
	RA0  float64 // grid center, degrees
	Dec0 float64
	Step float64 // cell size, degrees

	Width  int
	Height int
	Cells  []float64
	Seen   []bool // cell received at least one in-footprint stamp

	Exposure float64 // total effective exposure seconds
	Ticks    int     // ticks stamped
	GapTicks int     // ticks with no aspect sample
}

// cellCenter returns the tangent-plane coordinates (degrees) of a cell.
func (m *Map) cellCenter(col, row int) (xi, eta float64) {
	xi = (float64(col) + 0.5 - float64(m.Width)/2) * m.Step
	eta = (float64(row) + 0.5 - float64(m.Height)/2) * m.Step
	return xi, eta
}

// Sample returns the response-seconds value of the cell containing the sky
// position. ok is false when the position is off the grid or the cell never
// received an in-footprint stamp.
func (m *Map) Sample(ra, dec float64) (v float64, ok bool) {
	xi, eta, ok := projection.SkyToTangent(ra, dec, m.RA0, m.Dec0)
	if !ok {
		return 0, false
	}
	col := int(math.Floor(xi/m.Step + float64(m.Width)/2))
	row := int(math.Floor(eta/m.Step + float64(m.Height)/2))
	if col < 0 || col >= m.Width || row < 0 || row >= m.Height {
		return 0, false
	}
	i := row*m.Width + col
	if !m.Seen[i] {
		return 0, false
	}
	return m.Cells[i], true
}

// ApertureMean averages the stamped cells within an angular radius of the sky
// position. n reports the contributing cell count.
func (m *Map) ApertureMean(ra, dec, radius float64) (mean float64, n int) {
	xi0, eta0, ok := projection.SkyToTangent(ra, dec, m.RA0, m.Dec0)
	if !ok {
		return 0, 0
	}
	r2 := radius * radius
	var sum float64
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			i := row*m.Width + col
			if !m.Seen[i] {
				continue
			}
			xi, eta := m.cellCenter(col, row)
			dx := xi - xi0
			dy := eta - eta0
			if dx*dx+dy*dy > r2 {
				continue
			}
			sum += m.Cells[i]
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// Mean averages all stamped cells.
func (m *Map) Mean() float64 {
	var sum float64
	var n int
	for i, v := range m.Cells {
		if !m.Seen[i] {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Builder stamps a flat field through the aspect solution onto a sky grid.
// This is the expensive, interpolation-heavy path the aperture estimator
// exists to avoid.
type Builder struct {
	Flat   *flat.Field
	Aspect aspect.Provider

	// Step is the sky cell size in degrees; zero defaults to the flat plate
	// scale.
	Step float64

	// Scale adjusts each tick's stamp for calibration epochs; nil means no
	// adjustment.
	Scale func(t float64) float64
}

// Build stamps the flat for every tick onto a grid of the given angular
// half-width centered at (ra, dec). Missing aspect ticks are counted as gaps.
func (b *Builder) Build(ctx context.Context, ra, dec float64, ticks []int64, halfWidth float64) (*Map, error) {
	if b.Flat == nil || b.Aspect == nil {
		return nil, fmt.Errorf("respmap builder missing flat field or aspect provider")
	}
	if halfWidth <= 0 {
		return nil, fmt.Errorf("invalid sky half-width %v", halfWidth)
	}
	step := b.Step
	if step <= 0 {
		step = b.Flat.PlateScale
	}

	size := int(math.Ceil(2*halfWidth/step)) + 1
	m := &Map{
		RA0:    ra,
		Dec0:   dec,
		Step:   step,
		Width:  size,
		Height: size,
		Cells:  make([]float64, size*size),
		Seen:   make([]bool, size*size),
	}

	// Precompute cell sky positions once; they are fixed for all ticks.
	cellRA := make([]float64, size*size)
	cellDec := make([]float64, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			xi, eta := m.cellCenter(col, row)
			i := row*size + col
			cellRA[i], cellDec[i] = projection.TangentToSky(xi, eta, ra, dec)
		}
	}

	for _, tick := range ticks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, ok := b.Aspect.Lookup(tick)
		if !ok || s.ExpFrac <= 0 {
			m.GapTicks++
			continue
		}
		scale := 1.0
		if b.Scale != nil {
			scale = b.Scale(float64(tick))
		}
		for i := range m.Cells {
			x, y, ok := projection.SkyToDetector(cellRA[i], cellDec[i], s.RA, s.Dec, s.Roll,
				b.Flat.PlateScale, b.Flat.CenterX, b.Flat.CenterY)
			if !ok {
				continue
			}
			v, ok := b.Flat.At(int(math.Floor(x)), int(math.Floor(y)))
			if !ok {
				continue
			}
			m.Cells[i] += v * s.ExpFrac * scale
			m.Seen[i] = true
		}
		m.Exposure += s.ExpFrac
		m.Ticks++
	}
	return m, nil
}
