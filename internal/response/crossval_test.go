package response

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"uvcal/internal/aspect"
	"uvcal/internal/flat"
)

func TestMapEstimatorMatchesApertureOnUniformFlat(t *testing.T) {
	f := uniformFlat(t, 0.8)
	p := aspect.NewTable()
	for tick := int64(1000); tick < 1200; tick++ {
		p.Set(tick, aspect.Sample{RA: testRA, Dec: testDec, Roll: 10, ExpFrac: 1.0})
	}
	flats := map[Band]*flat.Field{FUV: f}

	apEst := NewApertureEstimator(flats, p, 2, nil)
	mapEst := NewMapEstimator(NewGridBuilder(flats, p, 0), 0, nil)

	req := Request{Band: FUV, RA: testRA, Dec: testDec, Aperture: 0.01,
		Ranges: []TimeRange{{Start: 1000, End: 1200}}}

	cmp, err := CrossValidate(context.Background(), apEst, mapEst, req)
	if err != nil {
		t.Fatalf("CrossValidate: %v", err)
	}
	// On a uniform flat both strategies must agree exactly up to gridding.
	if math.Abs(cmp.Aperture.Response-0.8) > 1e-9 {
		t.Fatalf("aperture response = %v, want 0.8", cmp.Aperture.Response)
	}
	if math.Abs(cmp.Map.Response-0.8) > 1e-9 {
		t.Fatalf("map response = %v, want 0.8", cmp.Map.Response)
	}
	if math.Abs(cmp.Ratio-1.0) > 1e-9 {
		t.Fatalf("ratio = %v, want 1", cmp.Ratio)
	}
}

func TestMapEstimatorCloseToApertureOnGradient(t *testing.T) {
	f := gradientFlat(t)
	p := driftingAspect(1000, 1100)
	flats := map[Band]*flat.Field{NUV: f}

	apEst := NewApertureEstimator(flats, p, 2, nil)
	mapEst := NewMapEstimator(NewGridBuilder(flats, p, 0), 0, nil)

	req := Request{Band: NUV, RA: testRA, Dec: testDec, Aperture: 0.01,
		Ranges: []TimeRange{{Start: 1000, End: 1100}}}

	cmp, err := CrossValidate(context.Background(), apEst, mapEst, req)
	if err != nil {
		t.Fatalf("CrossValidate: %v", err)
	}
	// Gridded point sampling vs aperture inversion: same order of magnitude,
	// not identical. Allow a few percent on a smooth flat.
	if cmp.Ratio < 0.95 || cmp.Ratio > 1.05 {
		t.Fatalf("strategies diverged: ratio %v (aperture %v, map %v)",
			cmp.Ratio, cmp.Aperture.Product, cmp.Map.Product)
	}
}

// TestCrossValidationScenario reproduces the documented comparison of the two
// methods on real mission calibration products: FUV, the LDS749B field epoch,
// a single 1244-second visit, 0.01 degree aperture. The canonical map mean is
// ~913.89 response-seconds against ~1118.70 from the aperture method, a known
// ~22% discrepancy between the strategies that is documented rather than
// reconciled. Requires the calibration data directory; skipped otherwise.
func TestCrossValidationScenario(t *testing.T) {
	dir := os.Getenv("UVCAL_CALDATA")
	if dir == "" {
		t.Skip("UVCAL_CALDATA not set; skipping real-data cross-validation")
	}

	field, err := flat.Load(filepath.Join(dir, "flat_fuv.fits"), 0.0015)
	if err != nil {
		t.Fatalf("load flat: %v", err)
	}
	adb, err := aspect.NewDB(filepath.Join(dir, "aspect.db"))
	if err != nil {
		t.Fatalf("open aspect db: %v", err)
	}
	if err := adb.Connect(); err != nil {
		t.Fatalf("connect aspect db: %v", err)
	}
	defer adb.Close()

	const t0, t1 = 766525332.995, 766526576.995
	table, err := adb.LoadRange(t0, t1)
	if err != nil {
		t.Fatalf("load aspect range: %v", err)
	}

	flats := map[Band]*flat.Field{FUV: field}
	apEst := NewApertureEstimator(flats, table, 4, nil)
	mapEst := NewMapEstimator(NewGridBuilder(flats, table, 0), 0, nil)

	req := Request{
		Band:     FUV,
		RA:       176.919525856024,
		Dec:      0.255696872807351,
		Aperture: 0.01,
		Ranges:   []TimeRange{{Start: t0, End: t1}},
	}
	cmp, err := CrossValidate(context.Background(), apEst, mapEst, req)
	if err != nil {
		t.Fatalf("CrossValidate: %v", err)
	}

	const (
		wantAperture = 1118.70
		wantMap      = 913.89
	)
	if math.Abs(cmp.Aperture.Product-wantAperture)/wantAperture > 0.01 {
		t.Fatalf("aperture product = %v, want %v within 1%%", cmp.Aperture.Product, wantAperture)
	}
	if math.Abs(cmp.Map.Product-wantMap)/wantMap > 0.01 {
		t.Fatalf("map product = %v, want %v within 1%%", cmp.Map.Product, wantMap)
	}
}
