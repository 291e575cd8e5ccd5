// Package geo converts planar state-plane coordinates to WGS84 with bounds
// validation against the service area.
//
// The source system is a Lambert Conformal Conic (2SP) projection in US survey
// feet. The inverse projection is computed directly from the EPSG formulas:
// results falling outside the configured geographic window are rejected as
// soft failures, never errors.
package geo

import (
	"math"
	"sync/atomic"
)

// usFootM is the US survey foot in meters (1200/3937 exactly).
const usFootM = 1200.0 / 3937.0

// Params defines the source projection and the geographic acceptance window.
// All latitudes and longitudes are degrees; E/N offsets are US survey feet.
type Params struct {
	SemiMajorM      float64 // ellipsoid semi-major axis, meters
	InvFlattening   float64 // ellipsoid inverse flattening
	StdParallel1Deg float64
	StdParallel2Deg float64
	OriginLatDeg    float64
	OriginLonDeg    float64
	FalseEastingFt  float64
	FalseNorthingFt float64

	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// DefaultParams is the Tennessee State Plane projection (NAD83, US survey
// feet) with the Nashville-area acceptance window.
func DefaultParams() Params {
	return Params{
		SemiMajorM:      6378137.0,
		InvFlattening:   298.257222101,
		StdParallel1Deg: 36.0 + 25.0/60.0,
		StdParallel2Deg: 35.25,
		OriginLatDeg:    34.0 + 20.0/60.0,
		OriginLonDeg:    -86.0,
		FalseEastingFt:  1968500.0,
		FalseNorthingFt: 0.0,
		MinLat:          35.0,
		MaxLat:          37.0,
		MinLon:          -88.0,
		MaxLon:          -85.0,
	}
}

// Reprojector performs the inverse projection. Safe for concurrent use.
type Reprojector struct {
	p Params

	// derived projection constants
	e      float64 // eccentricity
	n      float64 // cone constant
	bigF   float64
	rF     float64 // radius at the false origin latitude, meters
	lam0   float64 // origin longitude, radians
	east0  float64 // false easting, meters
	north0 float64

	failures atomic.Int64
}

// New derives the projection constants for the given parameters.
func New(p Params) *Reprojector {
	f := 1.0 / p.InvFlattening
	e2 := 2*f - f*f
	e := math.Sqrt(e2)

	phi1 := p.StdParallel1Deg * math.Pi / 180
	phi2 := p.StdParallel2Deg * math.Pi / 180
	phiF := p.OriginLatDeg * math.Pi / 180

	m1 := lccM(phi1, e)
	m2 := lccM(phi2, e)
	t1 := lccT(phi1, e)
	t2 := lccT(phi2, e)
	tF := lccT(phiF, e)

	n := (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	bigF := m1 / (n * math.Pow(t1, n))
	rF := p.SemiMajorM * bigF * math.Pow(tF, n)

	return &Reprojector{
		p:      p,
		e:      e,
		n:      n,
		bigF:   bigF,
		rF:     rF,
		lam0:   p.OriginLonDeg * math.Pi / 180,
		east0:  p.FalseEastingFt * usFootM,
		north0: p.FalseNorthingFt * usFootM,
	}
}

// ToWGS84 converts planar (x, y) in US survey feet to (longitude, latitude)
// degrees. ok is false when the input is not finite, the inverse fails to
// converge, or the result falls outside the acceptance window; such calls
// count as soft failures and the caller should store a null coordinate pair.
func (r *Reprojector) ToWGS84(x, y float64) (lon, lat float64, ok bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		r.failures.Add(1)
		return 0, 0, false
	}

	eM := x*usFootM - r.east0
	nM := y*usFootM - r.north0

	rPrime := math.Sqrt(eM*eM + (r.rF-nM)*(r.rF-nM))
	if r.n < 0 {
		rPrime = -rPrime
	}
	tPrime := math.Pow(rPrime/(r.p.SemiMajorM*r.bigF), 1.0/r.n)
	theta := math.Atan2(eM, r.rF-nM)

	lonRad := theta/r.n + r.lam0

	// Iterate the latitude from the isometric form.
	phi := math.Pi/2 - 2*math.Atan(tPrime)
	for i := 0; i < 15; i++ {
		es := r.e * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(tPrime*math.Pow((1-es)/(1+es), r.e/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}
	if math.IsNaN(phi) || math.IsNaN(lonRad) {
		r.failures.Add(1)
		return 0, 0, false
	}

	lat = phi * 180 / math.Pi
	lon = lonRad * 180 / math.Pi

	if lat < r.p.MinLat || lat > r.p.MaxLat || lon < r.p.MinLon || lon > r.p.MaxLon {
		r.failures.Add(1)
		return 0, 0, false
	}
	return lon, lat, true
}

// Failures returns the soft-failure count since construction.
func (r *Reprojector) Failures() int64 {
	return r.failures.Load()
}

// lccM is the cos φ / (1 - e² sin² φ)^½ term.
func lccM(phi, e float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-e*e*s*s)
}

// lccT is the isometric latitude function tan(π/4 - φ/2) / ((1-e sinφ)/(1+e sinφ))^(e/2).
func lccT(phi, e float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-e*s)/(1+e*s), e/2)
}

// PolygonCentroid returns the unweighted vertex centroid of the first ring.
// ok is false when the geometry has no usable vertices.
func PolygonCentroid(rings [][][]float64) (x, y float64, ok bool) {
	if len(rings) == 0 || len(rings[0]) == 0 {
		return 0, 0, false
	}
	var sumX, sumY float64
	count := 0
	for _, pt := range rings[0] {
		if len(pt) < 2 {
			continue
		}
		sumX += pt[0]
		sumY += pt[1]
		count++
	}
	if count == 0 {
		return 0, 0, false
	}
	return sumX / float64(count), sumY / float64(count), true
}

// PathMidpoint returns the vertex at the midpoint index of the first path.
func PathMidpoint(paths [][][]float64) (x, y float64, ok bool) {
	if len(paths) == 0 || len(paths[0]) == 0 {
		return 0, 0, false
	}
	path := paths[0]
	mid := len(path) / 2
	if mid >= len(path) || len(path[mid]) < 2 {
		return 0, 0, false
	}
	return path[mid][0], path[mid][1], true
}
