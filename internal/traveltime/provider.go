// Package traveltime estimates lane durations between supply and demand
// locations, either from OpenRouteService or offline.
package traveltime

import (
	"context"
	"errors"

	"freightplan/internal/opt"
)

// ErrNoRoute is returned when a provider has no usable route for a lane.
var ErrNoRoute = errors.New("traveltime: no route")

// Route is one lane estimate. Geometry is a [lng, lat] polyline and may be
// empty.
type Route struct {
	Hours    float64
	Known    bool
	Geometry [][2]float64
}

// TravelTime converts the estimate for the optimizer.
func (r Route) TravelTime() opt.TravelTime {
	if !r.Known {
		return opt.Unknown()
	}
	return opt.Hours(r.Hours)
}

// Provider resolves the driving time from one location to another.
type Provider interface {
	Name() string
	Route(ctx context.Context, from, to opt.Location) (Route, error)
}
