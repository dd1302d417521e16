package opt

import (
	"fmt"
	"math"

	"freightplan/internal/milp"
)

const diagTol = 1e-7

// diagnose explains a non-optimal solve in terms of the input entities.
// Infeasibility checks are necessary conditions only, so the list falls back
// to a model-wide finding when none of them trips.
func diagnose(f *Formulation, sol *milp.Solution) []Diagnostic {
	switch sol.Status {
	case milp.StatusUnbounded:
		return []Diagnostic{{
			Kind:    DiagBuilderDefect,
			Entity:  "model",
			Index:   -1,
			Message: "allocation model reported unbounded; every flow is capped by a driver load so this indicates a build defect",
		}}
	case milp.StatusError:
		msg := sol.Reason
		if msg == "" {
			msg = "solver failed"
		}
		return []Diagnostic{{Kind: DiagSolverError, Entity: "solver", Index: -1, Message: msg}}
	}

	p := f.Problem
	var out []Diagnostic
	var supply, demand float64
	for _, s := range p.Supply {
		supply += s.Available
	}
	for _, d := range p.Demand {
		demand += d.Required
	}
	if supply+diagTol < demand {
		out = append(out, Diagnostic{
			Kind:    DiagSupplyShortfall,
			Entity:  "supply",
			Index:   -1,
			Message: fmt.Sprintf("total demand %g exceeds total supply %g", demand, supply),
		})
	}

	for j, d := range p.Demand {
		if d.Required <= diagTol {
			continue
		}
		var fromSupply, byDrivers float64
		usable, unknownBlocked := false, false
		for i, s := range p.Supply {
			laneOpen := false
			for k, drv := range p.Drivers {
				if f.Closed(i, j, k) {
					if !p.TravelTimes[i][j].Known && drv.Available() {
						unknownBlocked = true
					}
					continue
				}
				laneOpen = true
				byDrivers += math.Min(drv.MaxLoad, d.Required)
			}
			if laneOpen {
				usable = true
				fromSupply += s.Available
			}
		}
		name := demandLabel(p, j)
		switch {
		case !usable && unknownBlocked:
			out = append(out, Diagnostic{
				Kind:    DiagMissingTravelTime,
				Entity:  name,
				Index:   j,
				Message: fmt.Sprintf("%s is reachable only over lanes with unknown travel time, which are forbidden", name),
			})
		case !usable:
			out = append(out, Diagnostic{
				Kind:    DiagUnreachableDemand,
				Entity:  name,
				Index:   j,
				Message: fmt.Sprintf("no driver can serve %s within its hours and load", name),
			})
		default:
			if c := math.Min(fromSupply, byDrivers); c+diagTol < d.Required {
				out = append(out, Diagnostic{
					Kind:    DiagDemandCapacity,
					Entity:  name,
					Index:   j,
					Message: fmt.Sprintf("%s requires %g but reachable supply and driver load allow at most %g", name, d.Required, c),
				})
			}
		}
	}

	if len(out) == 0 {
		out = append(out, Diagnostic{
			Kind:    DiagOverConstrained,
			Entity:  "model",
			Index:   -1,
			Message: "no single supply point, demand point or driver explains the infeasibility; driver hours and shared supply conflict jointly",
		})
	}
	return out
}

func demandLabel(p Problem, j int) string {
	if n := p.Demand[j].Name; n != "" {
		return n
	}
	return fmt.Sprintf("demand %d", j)
}
