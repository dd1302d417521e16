package traveltime

import (
	"context"
	"math"

	"freightplan/internal/opt"
)

const (
	earthRadiusKm   = 6371.0
	DefaultSpeedKMH = 60.0
)

// Haversine estimates durations from great-circle distance at a constant speed.
type Haversine struct {
	SpeedKMH float64
}

func (h Haversine) Name() string { return "haversine" }

func (h Haversine) Route(ctx context.Context, from, to opt.Location) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	speed := h.SpeedKMH
	if speed <= 0 {
		speed = DefaultSpeedKMH
	}
	km := DistanceKm(from, to)
	return Route{
		Hours:    km / speed,
		Known:    true,
		Geometry: [][2]float64{{from.Lng, from.Lat}, {to.Lng, to.Lat}},
	}, nil
}

// DistanceKm is the great-circle distance between two points.
func DistanceKm(a, b opt.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}
