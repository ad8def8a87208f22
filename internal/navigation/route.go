package navigation

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const metersPerNm = 1852.0

// nearbyNm is the distance under which a waypoint counts as "near" the
// route end, to avoid accidental duplicate appends.
const nearbyNm = 0.5

// Waypoint is one point of an intended flight route. Coordinate follows
// the orb convention: lon first, lat second.
type Waypoint struct {
	Name       string
	Coordinate orb.Point
}

func NewWaypoint(name string, latDeg, lonDeg float64) Waypoint {
	return Waypoint{Name: name, Coordinate: orb.Point{lonDeg, latDeg}}
}

func (w Waypoint) LatDeg() float64 { return w.Coordinate.Lat() }
func (w Waypoint) LonDeg() float64 { return w.Coordinate.Lon() }

// Leg is one segment of the route with its great-circle geometry.
type Leg struct {
	From          Waypoint
	To            Waypoint
	LengthNm      float64
	TrueCourseDeg float64
}

// Route is an ordered list of waypoints. In essence this type is little
// more than that list plus the derived leg geometry. It is not safe for
// concurrent use.
type Route struct {
	waypoints []Waypoint
}

func NewRoute(waypoints ...Waypoint) *Route {
	r := &Route{}
	r.waypoints = append(r.waypoints, waypoints...)
	return r
}

func (r *Route) Size() int {
	return len(r.waypoints)
}

// Waypoints returns a copy of the waypoint list.
func (r *Route) Waypoints() []Waypoint {
	out := make([]Waypoint, len(r.waypoints))
	copy(out, r.waypoints)
	return out
}

func (r *Route) Append(wp Waypoint) {
	r.waypoints = append(r.waypoints, wp)
}

// CanAppend reports whether wp can become the new route end: true if the
// route is empty or wp is not near the current end.
func (r *Route) CanAppend(wp Waypoint) bool {
	if len(r.waypoints) == 0 {
		return true
	}
	end := r.waypoints[len(r.waypoints)-1]
	return geo.Distance(end.Coordinate, wp.Coordinate)/metersPerNm > nearbyNm
}

func (r *Route) Insert(i int, wp Waypoint) error {
	if i < 0 || i > len(r.waypoints) {
		return fmt.Errorf("insert index %d out of range", i)
	}
	r.waypoints = append(r.waypoints, Waypoint{})
	copy(r.waypoints[i+1:], r.waypoints[i:])
	r.waypoints[i] = wp
	return nil
}

func (r *Route) RemoveAt(i int) error {
	if i < 0 || i >= len(r.waypoints) {
		return fmt.Errorf("remove index %d out of range", i)
	}
	r.waypoints = append(r.waypoints[:i], r.waypoints[i+1:]...)
	return nil
}

func (r *Route) MoveUp(i int) error {
	if i <= 0 || i >= len(r.waypoints) {
		return fmt.Errorf("move index %d out of range", i)
	}
	r.waypoints[i-1], r.waypoints[i] = r.waypoints[i], r.waypoints[i-1]
	return nil
}

func (r *Route) MoveDown(i int) error {
	if i < 0 || i >= len(r.waypoints)-1 {
		return fmt.Errorf("move index %d out of range", i)
	}
	r.waypoints[i], r.waypoints[i+1] = r.waypoints[i+1], r.waypoints[i]
	return nil
}

func (r *Route) Reverse() {
	for i, j := 0, len(r.waypoints)-1; i < j; i, j = i+1, j-1 {
		r.waypoints[i], r.waypoints[j] = r.waypoints[j], r.waypoints[i]
	}
}

func (r *Route) Clear() {
	r.waypoints = nil
}

// Legs computes the segments between consecutive waypoints.
func (r *Route) Legs() []Leg {
	if len(r.waypoints) < 2 {
		return nil
	}
	out := make([]Leg, 0, len(r.waypoints)-1)
	for i := 1; i < len(r.waypoints); i++ {
		from := r.waypoints[i-1]
		to := r.waypoints[i]
		out = append(out, Leg{
			From:          from,
			To:            to,
			LengthNm:      geo.Distance(from.Coordinate, to.Coordinate) / metersPerNm,
			TrueCourseDeg: normalizeDeg(geo.Bearing(from.Coordinate, to.Coordinate)),
		})
	}
	return out
}

func (r *Route) TotalLengthNm() float64 {
	total := 0.0
	for _, leg := range r.Legs() {
		total += leg.LengthNm
	}
	return total
}

// Bound returns the bounding box of the route; false for an empty route.
func (r *Route) Bound() (orb.Bound, bool) {
	if len(r.waypoints) == 0 {
		return orb.Bound{}, false
	}
	mp := make(orb.MultiPoint, 0, len(r.waypoints))
	for _, wp := range r.waypoints {
		mp = append(mp, wp.Coordinate)
	}
	return mp.Bound(), true
}

func normalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
