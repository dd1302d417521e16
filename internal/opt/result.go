package opt

import (
	"math"

	"freightplan/internal/milp"
)

// Status mirrors the solver outcome for one run.
type Status string

const (
	StatusOptimal    Status = "Optimal"
	StatusInfeasible Status = "Infeasible"
	StatusUnbounded  Status = "Unbounded"
	StatusError      Status = "Error"
)

func statusOf(s milp.Status) Status {
	switch s {
	case milp.StatusOptimal:
		return StatusOptimal
	case milp.StatusInfeasible:
		return StatusInfeasible
	case milp.StatusUnbounded:
		return StatusUnbounded
	}
	return StatusError
}

// Allocation is one positive flow. Indices are 0-based.
type Allocation struct {
	Driver   int     `json:"driver"`
	Supply   int     `json:"supply"`
	Demand   int     `json:"demand"`
	Quantity float64 `json:"quantity"`
	Cost     float64 `json:"cost"`
}

type ConstraintReport struct {
	Name     string  `json:"name"`
	Family   Family  `json:"family"`
	Sense    string  `json:"sense"`
	RHS      float64 `json:"rhs"`
	Activity float64 `json:"activity"`
	Dual     float64 `json:"dual"`
	Slack    float64 `json:"slack"`
}

// Diagnostic explains a non-optimal run. Index is -1 when the finding is not
// about a single entity.
type Diagnostic struct {
	Kind    string `json:"kind"`
	Entity  string `json:"entity"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

const (
	DiagSupplyShortfall   = "supply_shortfall"
	DiagUnreachableDemand = "unreachable_demand"
	DiagDemandCapacity    = "demand_capacity"
	DiagMissingTravelTime = "missing_travel_time"
	DiagOverConstrained   = "over_constrained"
	DiagBuilderDefect     = "builder_defect"
	DiagSolverError       = "solver_error"
)

type Stats struct {
	Variables   int     `json:"variables"`
	Constraints int     `json:"constraints"`
	IntegerVars int     `json:"integerVars"`
	Nodes       int     `json:"nodes"`
	RuntimeMs   float64 `json:"runtimeMs"`
}

// Result is the extracted outcome of a run. Objective is set only when Status
// is StatusOptimal.
type Result struct {
	Status       Status             `json:"status"`
	Allocations  []Allocation       `json:"allocations"`
	Objective    *float64           `json:"objective,omitempty"`
	Constraints  []ConstraintReport `json:"constraints,omitempty"`
	DualsExact   bool               `json:"dualsExact"`
	DualSource   string             `json:"dualSource,omitempty"`
	DualNote     string             `json:"dualNote,omitempty"`
	Diagnostics  []Diagnostic       `json:"diagnostics,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	UnknownLanes []Lane             `json:"unknownLanes,omitempty"`
	Stats        Stats              `json:"stats"`
}

// ObjectiveValue returns the objective, or NaN when there is none.
func (r Result) ObjectiveValue() float64 {
	if r.Objective == nil {
		return math.NaN()
	}
	return *r.Objective
}

// ConstraintByName finds a row report by its build-time name.
func (r Result) ConstraintByName(name string) (ConstraintReport, bool) {
	for _, c := range r.Constraints {
		if c.Name == name {
			return c, true
		}
	}
	return ConstraintReport{}, false
}

// ConstraintMap indexes the constraint report by name.
func (r Result) ConstraintMap() map[string]ConstraintReport {
	out := make(map[string]ConstraintReport, len(r.Constraints))
	for _, c := range r.Constraints {
		out[c.Name] = c
	}
	return out
}

const (
	noteFixed = "duals come from the LP with every lane indicator fixed at its optimal value; they are sensitivities of that LP, not exact shadow prices of the MILP"
	noteNone  = "duals were not computed"
)
