package response

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"uvcal/internal/aspect"
	"uvcal/internal/flat"
	"uvcal/internal/projection"
)

// Estimator is the single response-estimation capability. Implementations are
// swappable strategies selected by the caller.
type Estimator interface {
	Estimate(ctx context.Context, req Request) (Result, error)
}

// ApertureEstimator computes the response by inverting the aspect correction
// at the single sky position of interest, once per 1-second tick, and
// averaging the flat field over a circular aperture at the projected detector
// location. It avoids the full-map resampling of the canonical pipeline and
// its interpolation error, at the cost of producing a value only at that
// point.
//
// Per-tick work is independent; ticks are processed by a fixed worker pool
// and reduced with a commutative weighted sum. All shared data (flat field,
// aspect table) is read-only for the duration of the call.
type ApertureEstimator struct {
	flats   map[Band]*flat.Field
	aspect  aspect.Provider
	workers int
	log     *slog.Logger
}

// NewApertureEstimator creates an estimator over the given per-band flat
// fields and aspect provider. workers below 1 is clamped to 1.
func NewApertureEstimator(flats map[Band]*flat.Field, provider aspect.Provider, workers int, logger *slog.Logger) *ApertureEstimator {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ApertureEstimator{
		flats:   flats,
		aspect:  provider,
		workers: workers,
		log:     logger,
	}
}

// tickResult is the contribution of a single tick to the reduction.
type tickResult struct {
	value  float64 // aperture-mean flat response, epoch-scaled
	weight float64 // effective exposure seconds
	gap    bool    // no aspect sample for the tick
	off    bool    // projected position outside the flat footprint
}

// Estimate implements Estimator.
func (e *ApertureEstimator) Estimate(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	field, ok := e.flats[req.Band]
	if !ok {
		return Result{}, fmt.Errorf("%w: no flat field loaded for band %s", ErrInvalidParameters, req.Band)
	}

	ticks := ticksOf(req.Ranges)
	if len(ticks) == 0 {
		return Result{}, fmt.Errorf("%w: time ranges shorter than one tick", ErrInvalidParameters)
	}
	radiusPx := field.RadiusPixels(req.Aperture)

	jobs := make(chan int64, e.workers*2)
	results := make(chan tickResult, e.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tick := range jobs {
				res := e.estimateTick(field, req, tick, radiusPx)
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, tick := range ticks {
			select {
			case jobs <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var res Result
	var sum, weight float64
	for tr := range results {
		switch {
		case tr.gap:
			res.GapTicks++
		case tr.off:
			res.OffTicks++
		default:
			sum += tr.value * tr.weight
			weight += tr.weight
			res.Ticks++
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if weight == 0 {
		// Zero total weight means no valid exposure at all: a data-quality
		// failure, never a silent zero.
		if res.OffTicks > 0 && res.GapTicks < len(ticks) {
			return Result{}, fmt.Errorf("%w: all %d covered ticks project off-detector", ErrOutOfFootprint, res.OffTicks)
		}
		return Result{}, fmt.Errorf("%w: %d of %d ticks missing", ErrNoAspectCoverage, res.GapTicks, len(ticks))
	}

	res.Response = sum / weight
	res.Exposure = weight
	res.Product = res.Response * res.Exposure

	if res.GapTicks > 0 {
		e.log.Debug("aspect gaps excluded from response average",
			"band", req.Band,
			"gap_ticks", res.GapTicks,
			"valid_ticks", res.Ticks,
		)
	}
	return res, nil
}

// estimateTick computes the aperture-mean response for one tick. Ticks with
// no aspect sample are gaps; ticks whose aperture misses the valid footprint
// entirely are counted separately so the caller can distinguish the two
// failure kinds.
func (e *ApertureEstimator) estimateTick(field *flat.Field, req Request, tick int64, radiusPx float64) tickResult {
	s, ok := e.aspect.Lookup(tick)
	if !ok || s.ExpFrac <= 0 {
		return tickResult{gap: true}
	}
	x, y, ok := projection.SkyToDetector(req.RA, req.Dec, s.RA, s.Dec, s.Roll,
		field.PlateScale, field.CenterX, field.CenterY)
	if !ok {
		return tickResult{off: true}
	}
	mean, n := field.ApertureMean(x, y, radiusPx)
	if n == 0 {
		return tickResult{off: true}
	}
	return tickResult{
		value:  mean * EpochScale(float64(tick)),
		weight: s.ExpFrac,
	}
}
