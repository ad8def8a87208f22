package navigation

import (
	"math"
	"path/filepath"
	"testing"
)

func testRoute() *Route {
	return NewRoute(
		NewWaypoint("EDDM", 48.3538, 11.7861),
		NewWaypoint("EDMA", 48.4250, 10.9317),
		NewWaypoint("EDTY", 49.1183, 9.7792),
	)
}

func TestRoute_LegsAndTotalLength(t *testing.T) {
	r := testRoute()
	legs := r.Legs()
	if len(legs) != 2 {
		t.Fatalf("legs=%d want 2", len(legs))
	}

	// EDDM->EDMA is roughly 34 nm.
	if legs[0].LengthNm < 30 || legs[0].LengthNm > 40 {
		t.Fatalf("leg[0] length=%v nm, outside plausible range", legs[0].LengthNm)
	}
	for _, leg := range legs {
		if leg.TrueCourseDeg < 0 || leg.TrueCourseDeg >= 360 {
			t.Fatalf("true course=%v out of [0,360)", leg.TrueCourseDeg)
		}
	}

	total := r.TotalLengthNm()
	if math.Abs(total-(legs[0].LengthNm+legs[1].LengthNm)) > 1e-9 {
		t.Fatalf("total=%v != sum of legs", total)
	}
}

func TestRoute_ReversePreservesLength(t *testing.T) {
	r := testRoute()
	forward := r.TotalLengthNm()
	r.Reverse()
	backward := r.TotalLengthNm()
	if math.Abs(forward-backward) > 1e-6 {
		t.Fatalf("forward=%v backward=%v", forward, backward)
	}
	if r.Waypoints()[0].Name != "EDTY" {
		t.Fatalf("first waypoint=%q after reverse, want EDTY", r.Waypoints()[0].Name)
	}
}

func TestRoute_CanAppend(t *testing.T) {
	r := NewRoute()
	wp := NewWaypoint("EDDM", 48.3538, 11.7861)
	if !r.CanAppend(wp) {
		t.Fatalf("cannot append to empty route")
	}
	r.Append(wp)
	if r.CanAppend(wp) {
		t.Fatalf("duplicate append allowed at the route end")
	}
	if !r.CanAppend(NewWaypoint("EDMA", 48.4250, 10.9317)) {
		t.Fatalf("distant waypoint rejected")
	}
}

func TestRoute_EditOperations(t *testing.T) {
	r := testRoute()

	if err := r.Insert(1, NewWaypoint("X", 48.4, 11.3)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if r.Size() != 4 || r.Waypoints()[1].Name != "X" {
		t.Fatalf("waypoints=%+v after insert", r.Waypoints())
	}

	if err := r.MoveDown(1); err != nil {
		t.Fatalf("MoveDown: %v", err)
	}
	if r.Waypoints()[2].Name != "X" {
		t.Fatalf("waypoints=%+v after move down", r.Waypoints())
	}
	if err := r.MoveUp(2); err != nil {
		t.Fatalf("MoveUp: %v", err)
	}

	if err := r.RemoveAt(1); err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	if r.Size() != 3 {
		t.Fatalf("size=%d after remove, want 3", r.Size())
	}

	if err := r.RemoveAt(17); err == nil {
		t.Fatalf("out-of-range remove accepted")
	}
	if err := r.Insert(-1, NewWaypoint("Y", 0, 0)); err == nil {
		t.Fatalf("out-of-range insert accepted")
	}

	r.Clear()
	if r.Size() != 0 {
		t.Fatalf("size=%d after clear", r.Size())
	}
}

func TestRoute_BoundEmpty(t *testing.T) {
	r := NewRoute()
	if _, ok := r.Bound(); ok {
		t.Fatalf("bound for empty route")
	}
	if legs := r.Legs(); legs != nil {
		t.Fatalf("legs=%v for empty route", legs)
	}

	r = testRoute()
	b, ok := r.Bound()
	if !ok {
		t.Fatalf("no bound for populated route")
	}
	if b.Min.Lat() > 48.3538 || b.Max.Lat() < 49.1183 {
		t.Fatalf("bound=%+v does not contain route", b)
	}
}

func TestRoute_GeoJSONRoundTrip(t *testing.T) {
	r := testRoute()
	path := filepath.Join(t.TempDir(), "route.geojson")
	if err := r.SaveGeoJSON(path); err != nil {
		t.Fatalf("SaveGeoJSON: %v", err)
	}

	loaded := NewRoute()
	if err := loaded.LoadGeoJSON(path); err != nil {
		t.Fatalf("LoadGeoJSON: %v", err)
	}

	orig := r.Waypoints()
	got := loaded.Waypoints()
	if len(got) != len(orig) {
		t.Fatalf("waypoints=%d want %d", len(got), len(orig))
	}
	for i := range orig {
		if got[i].Name != orig[i].Name {
			t.Fatalf("waypoint[%d].name=%q want %q", i, got[i].Name, orig[i].Name)
		}
		if math.Abs(got[i].LatDeg()-orig[i].LatDeg()) > 1e-9 ||
			math.Abs(got[i].LonDeg()-orig[i].LonDeg()) > 1e-9 {
			t.Fatalf("waypoint[%d] moved in round trip", i)
		}
	}
}

func TestRoute_GPXRoundTrip(t *testing.T) {
	r := testRoute()
	path := filepath.Join(t.TempDir(), "route.gpx")
	if err := r.SaveGPX(path); err != nil {
		t.Fatalf("SaveGPX: %v", err)
	}

	loaded := NewRoute()
	if err := loaded.LoadGPX(path); err != nil {
		t.Fatalf("LoadGPX: %v", err)
	}
	if loaded.Size() != r.Size() {
		t.Fatalf("waypoints=%d want %d", loaded.Size(), r.Size())
	}
	for i, wp := range loaded.Waypoints() {
		orig := r.Waypoints()[i]
		if wp.Name != orig.Name || math.Abs(wp.LatDeg()-orig.LatDeg()) > 1e-9 {
			t.Fatalf("waypoint[%d]=%+v want %+v", i, wp, orig)
		}
	}
}

func TestRoute_GPXRejectsOutOfRange(t *testing.T) {
	r := NewRoute()
	bad := `<?xml version="1.0"?><gpx version="1.1" creator="t"><rte><rtept lat="123.0" lon="11.0"></rtept></rte></gpx>`
	if err := r.UnmarshalGPX([]byte(bad)); err == nil {
		t.Fatalf("out-of-range latitude accepted")
	}
}
