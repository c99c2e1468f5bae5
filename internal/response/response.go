// Package response computes the effective relative response of the detector
// at a fixed sky position, used to flat-correct photometric measurements.
//
// Two estimation strategies implement the Estimator interface: the aperture
// estimator inverts the aspect correction at the single point of interest and
// averages the flat field over a small aperture, while the map estimator
// samples a canonical sky-projected response map built by the full pipeline.
// The two agree in order of magnitude but not exactly, since one interpolates
// onto a sky grid and the other inverts the transform directly.
package response

import (
	"errors"
	"fmt"
	"math"
)

// Band identifies a detector channel.
type Band string

const (
	FUV Band = "FUV"
	NUV Band = "NUV"
)

// ParseBand validates a band identifier.
func ParseBand(s string) (Band, error) {
	switch Band(s) {
	case FUV, NUV:
		return Band(s), nil
	}
	return "", fmt.Errorf("%w: unsupported band %q", ErrInvalidParameters, s)
}

// TimeRange is one continuous observation interval in mission seconds.
// Ticks are enumerated at 1 Hz over [Start, End): start-inclusive,
// end-exclusive, so adjacent ranges partition their union without
// double-counting the shared boundary tick.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Request describes one response query.
type Request struct {
	Band     Band        `json:"band"`
	RA       float64     `json:"ra"`       // degrees
	Dec      float64     `json:"dec"`      // degrees
	Ranges   []TimeRange `json:"ranges"`   // ordered, disjoint
	Aperture float64     `json:"aperture"` // radius, degrees
}

// Result is the outcome of a response query.
type Result struct {
	// Response is the exposure-weighted mean relative response at the sky
	// position, with the post-CSP scale already applied.
	Response float64 `json:"response"`

	// Exposure is the total effective exposure time in seconds (the sum of
	// per-tick weights).
	Exposure float64 `json:"exposure"`

	// Product is Response*Exposure, the quantity directly comparable to a
	// canonical response-map sample.
	Product float64 `json:"product"`

	// Ticks counts the 1-second samples that contributed to the average.
	Ticks int `json:"ticks"`

	// GapTicks counts ticks with no aspect sample (missing exposure).
	GapTicks int `json:"gapTicks"`

	// OffTicks counts ticks whose projected position fell outside the flat
	// field footprint.
	OffTicks int `json:"offTicks"`
}

// Error kinds. All three are unrecoverable for the call; partial gaps are
// recovered silently by exclusion and renormalization.
var (
	ErrNoAspectCoverage  = errors.New("no aspect coverage for requested time ranges")
	ErrOutOfFootprint    = errors.New("sky position outside flat field footprint")
	ErrInvalidParameters = errors.New("invalid parameters")
)

// Post-CSP scale correction. The detector electronics timing change at the
// CSP epoch shifted the global sensitivity by 1.8%; observations at or after
// the epoch are scaled uniformly, independent of detector position.
const (
	CSPEpoch     = 881881215.995
	PostCSPScale = 1.018
)

// EpochScale returns the calibration scale factor for an observation time.
func EpochScale(t float64) float64 {
	if t >= CSPEpoch {
		return PostCSPScale
	}
	return 1.0
}

// Validate checks a request against the error contract.
func (r Request) Validate() error {
	if _, err := ParseBand(string(r.Band)); err != nil {
		return err
	}
	if r.Aperture <= 0 {
		return fmt.Errorf("%w: aperture radius must be positive, got %v", ErrInvalidParameters, r.Aperture)
	}
	if len(r.Ranges) == 0 {
		return fmt.Errorf("%w: no time ranges", ErrInvalidParameters)
	}
	for _, tr := range r.Ranges {
		if tr.End <= tr.Start {
			return fmt.Errorf("%w: malformed time range [%v, %v)", ErrInvalidParameters, tr.Start, tr.End)
		}
	}
	return nil
}

// Ticks enumerates the integer 1-second mission-time ticks covered by the
// range, matching the aspect-solution resolution.
func (r TimeRange) Ticks() []int64 {
	start := int64(math.Ceil(r.Start))
	var ticks []int64
	for t := start; float64(t) < r.End; t++ {
		ticks = append(ticks, t)
	}
	return ticks
}

// ticksOf flattens all ranges of a request into one tick list.
func ticksOf(ranges []TimeRange) []int64 {
	var all []int64
	for _, tr := range ranges {
		all = append(all, tr.Ticks()...)
	}
	return all
}
