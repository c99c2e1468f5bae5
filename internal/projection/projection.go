// Package projection provides sky/detector coordinate transformations for the
// aperture response estimator.
//
// The detector is modeled as a tangent plane (gnomonic projection) centered on
// the boresight pointing, rotated by the spacecraft roll angle. SkyToDetector
// inverts the aspect correction applied by the canonical pipeline: it maps a
// fixed celestial position into detector pixel coordinates for one aspect
// sample. DetectorToSky is the forward transform used when stamping the flat
// field onto a sky grid.
//
// Reference: Calabretta & Greisen, "Representations of celestial coordinates
// in FITS" (the TAN projection), A&A 395, 1077.
package projection

import "math"

const degToRad = math.Pi / 180.0
const radToDeg = 180.0 / math.Pi

// SkyToTangent projects a celestial position onto the tangent plane centered
// at (ra0, dec0). The returned standard coordinates (xi, eta) are in degrees,
// with xi increasing toward increasing RA and eta toward increasing Dec.
// ok is false when the position is on the far hemisphere, where the gnomonic
// projection is undefined.
func SkyToTangent(ra, dec, ra0, dec0 float64) (xi, eta float64, ok bool) {
	raR := ra * degToRad
	decR := dec * degToRad
	ra0R := ra0 * degToRad
	dec0R := dec0 * degToRad

	dRA := raR - ra0R
	sinDec, cosDec := math.Sincos(decR)
	sinDec0, cosDec0 := math.Sincos(dec0R)
	cosDRA := math.Cos(dRA)

	// Cosine of the angular distance from the tangent point.
	denom := sinDec*sinDec0 + cosDec*cosDec0*cosDRA
	if denom <= 0 {
		return 0, 0, false
	}

	xi = cosDec * math.Sin(dRA) / denom * radToDeg
	eta = (sinDec*cosDec0 - cosDec*sinDec0*cosDRA) / denom * radToDeg
	return xi, eta, true
}

// TangentToSky inverts SkyToTangent: standard coordinates (degrees) on the
// tangent plane at (ra0, dec0) back to celestial RA/Dec in degrees.
func TangentToSky(xi, eta, ra0, dec0 float64) (ra, dec float64) {
	xiR := xi * degToRad
	etaR := eta * degToRad
	ra0R := ra0 * degToRad
	dec0R := dec0 * degToRad

	sinDec0, cosDec0 := math.Sincos(dec0R)

	denom := cosDec0 - etaR*sinDec0
	raR := ra0R + math.Atan2(xiR, denom)
	decR := math.Atan2(sinDec0+etaR*cosDec0, math.Hypot(xiR, denom))

	ra = math.Mod(raR*radToDeg, 360.0)
	if ra < 0 {
		ra += 360.0
	}
	dec = decR * radToDeg
	return ra, dec
}

// rotate applies a rotation by the roll angle (degrees) about the boresight.
func rotate(x, y, roll float64) (float64, float64) {
	sinR, cosR := math.Sincos(roll * degToRad)
	return x*cosR + y*sinR, -x*sinR + y*cosR
}

// SkyToDetector maps a celestial position to detector pixel coordinates given
// one aspect sample (boresight ra0/dec0 and roll, degrees), the detector plate
// scale (degrees per pixel) and the pixel coordinates of the boresight. ok is
// false when the position is outside the projectable hemisphere.
func SkyToDetector(ra, dec, ra0, dec0, roll, plateScale, cx, cy float64) (x, y float64, ok bool) {
	xi, eta, ok := SkyToTangent(ra, dec, ra0, dec0)
	if !ok {
		return 0, 0, false
	}
	xr, yr := rotate(xi, eta, roll)
	return cx + xr/plateScale, cy + yr/plateScale, true
}

// DetectorToSky maps detector pixel coordinates back to a celestial position
// for one aspect sample. It is the exact inverse of SkyToDetector.
func DetectorToSky(x, y, ra0, dec0, roll, plateScale, cx, cy float64) (ra, dec float64) {
	xr := (x - cx) * plateScale
	yr := (y - cy) * plateScale
	xi, eta := rotate(xr, yr, -roll)
	return TangentToSky(xi, eta, ra0, dec0)
}
