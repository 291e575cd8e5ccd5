package geo

import (
	"math"
	"testing"
)

// wideParams is the default projection with the acceptance window opened up so
// tests can observe raw inverse results near the projection origin.
func wideParams() Params {
	p := DefaultParams()
	p.MinLat, p.MaxLat = 30.0, 40.0
	p.MinLon, p.MaxLon = -90.0, -80.0
	return p
}

func TestToWGS84_FalseOrigin(t *testing.T) {
	// At the false origin the inverse is exact: E=EF, N=NF maps back to the
	// origin latitude and longitude.
	r := New(wideParams())
	lon, lat, ok := r.ToWGS84(1968500.0, 0.0)
	if !ok {
		t.Fatal("origin point rejected")
	}
	if math.Abs(lat-(34.0+20.0/60.0)) > 1e-6 {
		t.Errorf("origin latitude: got %.8f", lat)
	}
	if math.Abs(lon-(-86.0)) > 1e-6 {
		t.Errorf("origin longitude: got %.8f", lon)
	}
}

func TestToWGS84_Displacement(t *testing.T) {
	// 500000 ftUS north and 100000 ftUS east of the false origin is roughly
	// 152 km north and 30 km east: about 35.7N, 85.7W.
	r := New(wideParams())
	lon, lat, ok := r.ToWGS84(1968500.0+100000.0, 500000.0)
	if !ok {
		t.Fatal("displaced point rejected")
	}
	if lat < 35.5 || lat > 35.9 {
		t.Errorf("latitude out of expected band: got %.5f", lat)
	}
	if lon < -85.8 || lon > -85.5 {
		t.Errorf("longitude out of expected band: got %.5f", lon)
	}
}

func TestToWGS84_BoundsReject(t *testing.T) {
	// With the production window the projection origin (34.3N) is out of range
	// and must come back as a soft failure, not an error.
	r := New(DefaultParams())
	_, _, ok := r.ToWGS84(1968500.0, 0.0)
	if ok {
		t.Fatal("expected out-of-window point to be rejected")
	}
	if r.Failures() != 1 {
		t.Errorf("failures: got %d, want 1", r.Failures())
	}
}

func TestToWGS84_NonFinite(t *testing.T) {
	r := New(DefaultParams())
	cases := [][2]float64{
		{math.NaN(), 0},
		{0, math.NaN()},
		{math.Inf(1), 0},
		{0, math.Inf(-1)},
	}
	for _, c := range cases {
		if _, _, ok := r.ToWGS84(c[0], c[1]); ok {
			t.Errorf("ToWGS84(%v, %v) should fail", c[0], c[1])
		}
	}
	if r.Failures() != int64(len(cases)) {
		t.Errorf("failures: got %d, want %d", r.Failures(), len(cases))
	}
}

func TestPolygonCentroid(t *testing.T) {
	rings := [][][]float64{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}},
		{{100, 100}, {200, 200}}, // second ring is ignored
	}
	x, y, ok := PolygonCentroid(rings)
	if !ok {
		t.Fatal("centroid failed")
	}
	if x != 2 || y != 2 {
		t.Errorf("centroid: got (%v, %v), want (2, 2)", x, y)
	}
}

func TestPolygonCentroid_SkipsShortVertices(t *testing.T) {
	rings := [][][]float64{{{0, 0}, {6}, {6, 6}}}
	x, y, ok := PolygonCentroid(rings)
	if !ok {
		t.Fatal("centroid failed")
	}
	if x != 3 || y != 3 {
		t.Errorf("centroid: got (%v, %v), want (3, 3)", x, y)
	}
}

func TestPolygonCentroid_Empty(t *testing.T) {
	if _, _, ok := PolygonCentroid(nil); ok {
		t.Error("nil rings should fail")
	}
	if _, _, ok := PolygonCentroid([][][]float64{{}}); ok {
		t.Error("empty first ring should fail")
	}
	if _, _, ok := PolygonCentroid([][][]float64{{{1}}}); ok {
		t.Error("ring with only short vertices should fail")
	}
}

func TestPathMidpoint(t *testing.T) {
	paths := [][][]float64{{{0, 0}, {5, 5}, {10, 0}}}
	x, y, ok := PathMidpoint(paths)
	if !ok {
		t.Fatal("midpoint failed")
	}
	if x != 5 || y != 5 {
		t.Errorf("midpoint: got (%v, %v), want (5, 5)", x, y)
	}

	// Even-length path takes the upper-middle vertex.
	paths = [][][]float64{{{0, 0}, {1, 1}, {2, 2}, {3, 3}}}
	x, y, ok = PathMidpoint(paths)
	if !ok {
		t.Fatal("midpoint failed")
	}
	if x != 2 || y != 2 {
		t.Errorf("even midpoint: got (%v, %v), want (2, 2)", x, y)
	}
}

func TestPathMidpoint_Empty(t *testing.T) {
	if _, _, ok := PathMidpoint(nil); ok {
		t.Error("nil paths should fail")
	}
	if _, _, ok := PathMidpoint([][][]float64{{}}); ok {
		t.Error("empty first path should fail")
	}
	if _, _, ok := PathMidpoint([][][]float64{{{1}}}); ok {
		t.Error("short midpoint vertex should fail")
	}
}
