package report

import (
	"fmt"
	"hash/fnv"

	"freightplan/internal/opt"
)

// Marker colours for point features.
const (
	SupplyColor = "#1f77b4"
	DemandColor = "#2ca02c"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// RouteFunc returns the [lng, lat] polyline for lane (i,j), or nil.
type RouteFunc func(i, j int) [][2]float64

// DriverColor is a stable hex colour for driver k.
func DriverColor(k int) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "driver-%d", k)
	v := h.Sum32()
	// Keep channels away from white so lines stay visible on light tiles.
	r := 40 + (v>>16&0xff)%176
	g := 40 + (v>>8&0xff)%176
	b := 40 + (v&0xff)%176
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// GeoJSON maps supply and demand points and one line per allocation. Lines
// follow routes when available and are straight otherwise.
func GeoJSON(p opt.Problem, res opt.Result, routes RouteFunc) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for i, s := range p.Supply {
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "Point", Coordinates: [2]float64{s.Location.Lng, s.Location.Lat}},
			Properties: map[string]any{
				"role": "supply", "index": i, "name": supplierLabel(p, i),
				"available": s.Available, "marker-color": SupplyColor,
			},
		})
	}
	for j, d := range p.Demand {
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "Point", Coordinates: [2]float64{d.Location.Lng, d.Location.Lat}},
			Properties: map[string]any{
				"role": "demand", "index": j, "name": clientLabel(p, j),
				"required": d.Required, "marker-color": DemandColor,
			},
		})
	}
	for _, a := range res.Allocations {
		var line [][2]float64
		if routes != nil {
			line = routes(a.Supply, a.Demand)
		}
		if len(line) < 2 {
			s, d := p.Supply[a.Supply].Location, p.Demand[a.Demand].Location
			line = [][2]float64{{s.Lng, s.Lat}, {d.Lng, d.Lat}}
		}
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "LineString", Coordinates: line},
			Properties: map[string]any{
				"role": "allocation", "driver": a.Driver, "supply": a.Supply, "demand": a.Demand,
				"quantity": a.Quantity, "cost": a.Cost, "stroke": DriverColor(a.Driver),
				"name": fmt.Sprintf("%s: %s to %s", driverLabel(p, a.Driver), supplierLabel(p, a.Supply), clientLabel(p, a.Demand)),
			},
		})
	}
	return fc
}
