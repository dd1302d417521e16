package traveltime

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"freightplan/internal/metrics"
	"freightplan/internal/opt"
)

// Lanes holds one estimate per (supply, demand) pair.
type Lanes struct {
	Times    [][]opt.TravelTime `json:"travelTimes"`
	Geometry [][][][2]float64   `json:"geometry,omitempty"`
}

// Route returns the polyline for lane (i,j), or nil.
func (l Lanes) Route(i, j int) [][2]float64 {
	if i < len(l.Geometry) && j < len(l.Geometry[i]) {
		return l.Geometry[i][j]
	}
	return nil
}

// Matrix resolves every supply-demand lane with at most limit concurrent
// lookups. A failed lane is logged and left unknown; only cancellation of
// ctx aborts the whole matrix.
func Matrix(ctx context.Context, p Provider, supply []opt.SupplyPoint, demand []opt.DemandPoint, limit int) (Lanes, error) {
	out := Lanes{
		Times:    make([][]opt.TravelTime, len(supply)),
		Geometry: make([][][][2]float64, len(supply)),
	}
	for i := range supply {
		out.Times[i] = make([]opt.TravelTime, len(demand))
		out.Geometry[i] = make([][][2]float64, len(demand))
	}
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range supply {
		for j := range demand {
			i, j := i, j
			g.Go(func() error {
				r, err := p.Route(gctx, supply[i].Location, demand[j].Location)
				if err != nil {
					if cerr := ctx.Err(); cerr != nil {
						return cerr
					}
					result := "error"
					if errors.Is(err, ErrNoRoute) {
						result = "unknown"
					}
					metrics.TravelTimeLookups.WithLabelValues(p.Name(), result).Inc()
					log.Printf("traveltime: lane (%d,%d) via %s: %v", i, j, p.Name(), err)
					return nil
				}
				if r.Known {
					metrics.TravelTimeLookups.WithLabelValues(p.Name(), "known").Inc()
				} else {
					metrics.TravelTimeLookups.WithLabelValues(p.Name(), "unknown").Inc()
				}
				out.Times[i][j] = r.TravelTime()
				out.Geometry[i][j] = r.Geometry
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Lanes{}, err
	}
	return out, nil
}
