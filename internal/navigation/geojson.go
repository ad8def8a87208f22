package navigation

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MarshalGeoJSON encodes the route as a FeatureCollection of points, one
// per waypoint, with the waypoint name as a property.
func (r *Route) MarshalGeoJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, wp := range r.waypoints {
		f := geojson.NewFeature(wp.Coordinate)
		f.Properties["name"] = wp.Name
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

// UnmarshalGeoJSON replaces the route with the point features of the
// given FeatureCollection. Non-point features are skipped.
func (r *Route) UnmarshalGeoJSON(data []byte) error {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("geojson parse: %w", err)
	}

	var wps []Waypoint
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		wps = append(wps, Waypoint{
			Name:       f.Properties.MustString("name", ""),
			Coordinate: pt,
		})
	}
	r.waypoints = wps
	return nil
}

func (r *Route) SaveGeoJSON(path string) error {
	b, err := r.MarshalGeoJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (r *Route) LoadGeoJSON(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.UnmarshalGeoJSON(b)
}
