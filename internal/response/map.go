package response

import (
	"context"
	"fmt"
	"log/slog"

	"uvcal/internal/aspect"
	"uvcal/internal/flat"
	"uvcal/internal/respmap"
)

// MapBuilder produces a canonical sky-projected response map for a band, sky
// position and time ranges. The aperture estimator never calls it; it backs
// the map estimation strategy and cross-validation.
type MapBuilder interface {
	Build(ctx context.Context, band Band, ra, dec float64, ranges []TimeRange, halfWidth float64) (*respmap.Map, error)
}

// GridBuilder is the band-aware adapter over the respmap stamping builder.
type GridBuilder struct {
	flats  map[Band]*flat.Field
	aspect aspect.Provider
	step   float64
}

// NewGridBuilder creates a builder over per-band flats. step is the sky cell
// size in degrees; zero defaults to the flat plate scale.
func NewGridBuilder(flats map[Band]*flat.Field, provider aspect.Provider, step float64) *GridBuilder {
	return &GridBuilder{flats: flats, aspect: provider, step: step}
}

// Build implements MapBuilder.
func (g *GridBuilder) Build(ctx context.Context, band Band, ra, dec float64, ranges []TimeRange, halfWidth float64) (*respmap.Map, error) {
	field, ok := g.flats[band]
	if !ok {
		return nil, fmt.Errorf("%w: no flat field loaded for band %s", ErrInvalidParameters, band)
	}
	b := &respmap.Builder{
		Flat:   field,
		Aspect: g.aspect,
		Step:   g.step,
		Scale:  EpochScale,
	}
	return b.Build(ctx, ra, dec, ticksOf(ranges), halfWidth)
}

// MapEstimator estimates the response by building a canonical response map
// around the sky position and averaging it over the aperture: the full-map
// resampling method of the canonical pipeline, reduced to a stamp small
// enough to cover the aperture.
type MapEstimator struct {
	builder MapBuilder
	margin  float64 // extra sky half-width beyond the aperture radius
	log     *slog.Logger
}

// NewMapEstimator creates a map-backed estimator. margin pads the stamped
// region beyond the aperture radius; values at or below zero default to one
// aperture radius.
func NewMapEstimator(builder MapBuilder, margin float64, logger *slog.Logger) *MapEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MapEstimator{builder: builder, margin: margin, log: logger}
}

// Estimate implements Estimator.
func (m *MapEstimator) Estimate(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	margin := m.margin
	if margin <= 0 {
		margin = req.Aperture
	}

	mp, err := m.builder.Build(ctx, req.Band, req.RA, req.Dec, req.Ranges, req.Aperture+margin)
	if err != nil {
		return Result{}, err
	}
	if mp.Exposure == 0 {
		return Result{}, fmt.Errorf("%w: %d of %d ticks missing", ErrNoAspectCoverage, mp.GapTicks, mp.Ticks+mp.GapTicks)
	}

	product, n := mp.ApertureMean(req.RA, req.Dec, req.Aperture)
	if n == 0 {
		return Result{}, fmt.Errorf("%w: aperture missed all stamped cells", ErrOutOfFootprint)
	}

	return Result{
		Response: product / mp.Exposure,
		Exposure: mp.Exposure,
		Product:  product,
		Ticks:    mp.Ticks,
		GapTicks: mp.GapTicks,
	}, nil
}
