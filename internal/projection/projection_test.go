package projection

import (
	"math"
	"testing"
)

func TestBoresightMapsToCenter(t *testing.T) {
	x, y, ok := SkyToDetector(176.9, 0.25, 176.9, 0.25, 33.0, 0.0015, 400, 400)
	if !ok {
		t.Fatalf("boresight projection failed")
	}
	if math.Abs(x-400) > 1e-9 || math.Abs(y-400) > 1e-9 {
		t.Fatalf("boresight should land on detector center, got (%v, %v)", x, y)
	}
}

func TestDetectorRoundTrip(t *testing.T) {
	const (
		ra0        = 176.919525856024
		dec0       = 0.255696872807351
		roll       = 27.5
		plateScale = 0.0015
		cx, cy     = 400.0, 400.0
	)
	cases := []struct{ ra, dec float64 }{
		{176.92, 0.26},
		{177.10, 0.40},
		{176.70, -0.05},
		{176.919525856024, 0.255696872807351},
	}
	for _, c := range cases {
		x, y, ok := SkyToDetector(c.ra, c.dec, ra0, dec0, roll, plateScale, cx, cy)
		if !ok {
			t.Fatalf("projection failed for (%v, %v)", c.ra, c.dec)
		}
		ra, dec := DetectorToSky(x, y, ra0, dec0, roll, plateScale, cx, cy)
		if math.Abs(ra-c.ra) > 1e-9 || math.Abs(dec-c.dec) > 1e-9 {
			t.Fatalf("round trip mismatch: (%v, %v) -> (%v, %v)", c.ra, c.dec, ra, dec)
		}
	}
}

func TestTangentRoundTrip(t *testing.T) {
	xi, eta, ok := SkyToTangent(323.1, 0.3, 323.06766667, 0.254)
	if !ok {
		t.Fatalf("tangent projection failed")
	}
	ra, dec := TangentToSky(xi, eta, 323.06766667, 0.254)
	if math.Abs(ra-323.1) > 1e-9 || math.Abs(dec-0.3) > 1e-9 {
		t.Fatalf("tangent round trip mismatch: got (%v, %v)", ra, dec)
	}
}

func TestFarHemisphereRejected(t *testing.T) {
	if _, _, ok := SkyToTangent(0, 0, 180, 0); ok {
		t.Fatalf("antipodal point must not project")
	}
}

func TestRollRotatesAboutBoresight(t *testing.T) {
	const (
		ra0, dec0  = 150.0, 20.0
		plateScale = 0.0015
		cx, cy     = 400.0, 400.0
	)
	// Offset point at zero roll.
	x0, y0, _ := SkyToDetector(150.1, 20.0, ra0, dec0, 0, plateScale, cx, cy)
	// Same point with a 90 degree roll should land at the same radius.
	x9, y9, _ := SkyToDetector(150.1, 20.0, ra0, dec0, 90, plateScale, cx, cy)

	r0 := math.Hypot(x0-cx, y0-cy)
	r9 := math.Hypot(x9-cx, y9-cy)
	if math.Abs(r0-r9) > 1e-9 {
		t.Fatalf("roll changed boresight distance: %v vs %v", r0, r9)
	}
	if math.Abs(x0-x9) < 1e-6 && math.Abs(y0-y9) < 1e-6 {
		t.Fatalf("roll had no effect on off-axis point")
	}
}
