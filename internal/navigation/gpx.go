package navigation

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

type gpxFile struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Route   gpxRoute `xml:"rte"`
}

type gpxRoute struct {
	Name   string     `xml:"name,omitempty"`
	Points []gpxPoint `xml:"rtept"`
}

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Name string  `xml:"name,omitempty"`
}

// MarshalGPX encodes the route as a GPX 1.1 document with a single rte
// element.
func (r *Route) MarshalGPX() ([]byte, error) {
	doc := gpxFile{Version: "1.1", Creator: "enroute-hub"}
	for _, wp := range r.waypoints {
		doc.Route.Points = append(doc.Route.Points, gpxPoint{
			Lat:  wp.LatDeg(),
			Lon:  wp.LonDeg(),
			Name: wp.Name,
		})
	}
	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}

// UnmarshalGPX replaces the route with the rte points of the document.
func (r *Route) UnmarshalGPX(data []byte) error {
	var doc gpxFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("gpx parse: %w", err)
	}

	var wps []Waypoint
	for _, p := range doc.Route.Points {
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return fmt.Errorf("gpx point out of range: lat=%v lon=%v", p.Lat, p.Lon)
		}
		wps = append(wps, Waypoint{Name: p.Name, Coordinate: orb.Point{p.Lon, p.Lat}})
	}
	r.waypoints = wps
	return nil
}

func (r *Route) SaveGPX(path string) error {
	b, err := r.MarshalGPX()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (r *Route) LoadGPX(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.UnmarshalGPX(b)
}
