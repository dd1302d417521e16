package opt

import (
	"freightplan/internal/milp"
)

func extract(f *Formulation, sol *milp.Solution) Result {
	res := Result{
		Status:       statusOf(sol.Status),
		Allocations:  []Allocation{},
		Reason:       sol.Reason,
		UnknownLanes: f.UnknownLanes,
		Stats: Stats{
			Variables:   len(f.Model.Vars()),
			Constraints: len(f.Model.Constraints()),
			IntegerVars: len(f.Y),
			Nodes:       sol.Nodes,
			RuntimeMs:   float64(sol.Runtime.Microseconds()) / 1000,
		},
	}
	if res.Status != StatusOptimal {
		res.Diagnostics = diagnose(f, sol)
		return res
	}

	eps := f.Options.Epsilon
	cost := f.Problem.Cost
	for idx, x := range f.X {
		q := sol.Value(x)
		if q <= eps {
			continue
		}
		i, j, k := f.Coords(idx)
		res.Allocations = append(res.Allocations, Allocation{Driver: k, Supply: i, Demand: j, Quantity: q, Cost: q * cost[i][j]})
	}
	obj := sol.Objective
	if obj < 0 && obj > -eps {
		obj = 0
	}
	res.Objective = &obj

	res.Constraints = make([]ConstraintReport, len(sol.Rows))
	for r, row := range sol.Rows {
		res.Constraints[r] = ConstraintReport{
			Name:     row.Name,
			Family:   f.Family(r),
			Sense:    row.Sense.String(),
			RHS:      row.RHS,
			Activity: row.Activity,
			Dual:     row.Dual,
			Slack:    row.Slack,
		}
	}
	res.DualsExact = sol.DualsExact
	res.DualSource = sol.DualSource
	switch {
	case sol.DualSource == milp.DualSourceNone:
		res.DualNote = noteNone
	case sol.DualError != "":
		res.DualsExact = false
		res.DualNote = "duals unavailable: " + sol.DualError
	case !sol.DualsExact:
		res.DualNote = noteFixed
	}
	return res
}
