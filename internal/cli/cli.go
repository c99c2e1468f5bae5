package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"uvcal/internal/aspect"
	"uvcal/internal/config"
	"uvcal/internal/flat"
	"uvcal/internal/pipeline"
	"uvcal/internal/response"
	"uvcal/internal/storage"
)

// Root wires CLI commands to the configuration, store and estimators.
type Root struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.Store
}

// NewRoot constructs the CLI root state.
func NewRoot(cfg *config.Config, logger *slog.Logger, store *storage.Store) *Root {
	return &Root{
		cfg:   cfg,
		log:   logger,
		store: store,
	}
}

// loadFlat reads the configured flat field for a band.
func (r *Root) loadFlat(band response.Band) (*flat.Field, error) {
	var path string
	switch band {
	case response.FUV:
		path = r.cfg.Calibration.FlatFUV
	case response.NUV:
		path = r.cfg.Calibration.FlatNUV
	}
	if path == "" {
		return nil, fmt.Errorf("no flat field configured for band %s", band)
	}
	return flat.Load(path, r.cfg.Calibration.PlateScale)
}

// loadAspect reads aspect samples covering the requested ranges from the
// configured aspect database.
func (r *Root) loadAspect(ranges []response.TimeRange) (*aspect.Table, error) {
	if r.cfg.Calibration.AspectDB == "" {
		return nil, fmt.Errorf("no aspect database configured")
	}
	db, err := aspect.NewDB(r.cfg.Calibration.AspectDB)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(); err != nil {
		return nil, err
	}
	defer db.Close()

	table := aspect.NewTable()
	for _, tr := range ranges {
		part, err := db.LoadRange(tr.Start, tr.End)
		if err != nil {
			return nil, err
		}
		part.Each(func(tick int64, s aspect.Sample) {
			if s.ExpFrac <= 0 {
				return
			}
			table.Set(tick, s)
		})
	}
	return table, nil
}

// loadConfiguredFlats loads the flat field of every band that has one
// configured. The server needs at least one.
func (r *Root) loadConfiguredFlats() (map[response.Band]*flat.Field, error) {
	flats := make(map[response.Band]*flat.Field)
	for band, path := range map[response.Band]string{
		response.FUV: r.cfg.Calibration.FlatFUV,
		response.NUV: r.cfg.Calibration.FlatNUV,
	} {
		if path == "" {
			continue
		}
		field, err := flat.Load(path, r.cfg.Calibration.PlateScale)
		if err != nil {
			return nil, fmt.Errorf("loading %s flat field: %w", band, err)
		}
		flats[band] = field
	}
	if len(flats) == 0 {
		return nil, fmt.Errorf("no flat fields configured")
	}
	return flats, nil
}

// loadFullAspect materializes the whole configured aspect database into
// memory for the long-running server.
func (r *Root) loadFullAspect() (*aspect.Table, error) {
	if r.cfg.Calibration.AspectDB == "" {
		return nil, fmt.Errorf("no aspect database configured")
	}
	db, err := aspect.NewDB(r.cfg.Calibration.AspectDB)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(); err != nil {
		return nil, err
	}
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		return nil, err
	}
	first, firstOK := stats["first_tick"].(float64)
	last, lastOK := stats["last_tick"].(float64)
	if !firstOK || !lastOK {
		return aspect.NewTable(), nil
	}

	table, err := db.LoadRange(first, last+1)
	if err != nil {
		return nil, err
	}
	r.log.Info("aspect solution loaded",
		"path", r.cfg.Calibration.AspectDB,
		"ticks", table.Len(),
	)
	return table, nil
}

// buildEstimators constructs both estimation strategies for a band from the
// configured calibration products.
func (r *Root) buildEstimators(band response.Band, ranges []response.TimeRange) (map[pipeline.Method]response.Estimator, error) {
	field, err := r.loadFlat(band)
	if err != nil {
		return nil, fmt.Errorf("loading flat field: %w", err)
	}
	table, err := r.loadAspect(ranges)
	if err != nil {
		return nil, fmt.Errorf("loading aspect solution: %w", err)
	}

	flats := map[response.Band]*flat.Field{band: field}
	aperture := response.NewApertureEstimator(flats, table, r.cfg.Processing.ParallelJobs, r.log)
	builder := response.NewGridBuilder(flats, table, r.cfg.Calibration.MapStep)
	mapEst := response.NewMapEstimator(builder, 0, r.log)

	return map[pipeline.Method]response.Estimator{
		pipeline.MethodAperture: aperture,
		pipeline.MethodMap:      mapEst,
	}, nil
}

// parseRanges converts "start:end" strings to time ranges.
func parseRanges(specs []string) ([]response.TimeRange, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one time range is required")
	}
	ranges := make([]response.TimeRange, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time range %q, expected start:end", spec)
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q: %w", parts[0], err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q: %w", parts[1], err)
		}
		ranges = append(ranges, response.TimeRange{Start: start, End: end})
	}
	return ranges, nil
}

// estimate runs a single query against the configured calibration products.
func (r *Root) estimate(ctx context.Context, method pipeline.Method, req response.Request) (response.Result, error) {
	estimators, err := r.buildEstimators(req.Band, req.Ranges)
	if err != nil {
		return response.Result{}, err
	}
	est, ok := estimators[method]
	if !ok {
		return response.Result{}, fmt.Errorf("unknown estimation method %q", method)
	}
	return est.Estimate(ctx, req)
}
