package milp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Status is the terminal outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "Optimal"
	case StatusInfeasible:
		return "Infeasible"
	case StatusUnbounded:
		return "Unbounded"
	default:
		return "Error"
	}
}

// DualPolicy selects how row duals are produced for a model with integer columns.
type DualPolicy string

const (
	// DualsFixed re-solves the LP with every integer column fixed at its
	// incumbent value and reports that LP's duals.
	DualsFixed DualPolicy = "fixed"
	// DualsNone skips dual computation.
	DualsNone DualPolicy = "none"
)

// Dual sources reported on Solution.DualSource.
const (
	DualSourceLP    = "lp"
	DualSourceFixed = "fixed-integer LP"
	DualSourceNone  = "none"
)

// ErrEmptyModel is returned for a nil model or one without columns.
var ErrEmptyModel = errors.New("milp: empty model")

// LimitReason prefixes Solution.Reason when a time, node or context limit stops
// the search.
const LimitReason = "limit reached"

type Options struct {
	TimeLimit      time.Duration
	MaxNodes       int
	IntegralityTol float64
	Tolerance      float64
	Duals          DualPolicy
}

func (o Options) withDefaults() Options {
	if o.MaxNodes <= 0 {
		o.MaxNodes = 100000
	}
	if o.IntegralityTol <= 0 {
		o.IntegralityTol = 1e-6
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-9
	}
	if o.Duals == "" {
		o.Duals = DualsFixed
	}
	return o
}

// RowResult is the post-solve view of one constraint.
type RowResult struct {
	Name     string
	Sense    Sense
	RHS      float64
	Activity float64
	Slack    float64
	Dual     float64
}

// Solution is the outcome of Solve. Values and Rows are populated only when
// Status is StatusOptimal.
type Solution struct {
	Status     Status
	Objective  float64
	Values     []float64
	Rows       []RowResult
	DualSource string
	DualsExact bool
	DualError  string
	Reason     string
	Nodes      int
	Runtime    time.Duration
}

func (s *Solution) IsOptimal() bool { return s.Status == StatusOptimal }

// Value returns the solved value of v, or 0 when there is no solution.
func (s *Solution) Value(v *Var) float64 {
	if s.Values == nil || v.index >= len(s.Values) {
		return 0
	}
	return s.Values[v.index]
}

// Solve minimizes m. The error result is reserved for unusable input; every
// solver outcome, including limits, is reported through Solution.Status.
func Solve(ctx context.Context, m *Model, o Options) (*Solution, error) {
	if m == nil || len(m.vars) == 0 {
		return nil, ErrEmptyModel
	}
	rows, err := compileRows(m)
	if err != nil {
		return nil, err
	}
	o = o.withDefaults()
	start := time.Now()
	var deadline time.Time
	if o.TimeLimit > 0 {
		deadline = start.Add(o.TimeLimit)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	e := &engine{ctx: ctx, model: m, rows: rows, opts: o, deadline: deadline, best: math.Inf(1)}
	sol := e.run()
	if sol.Status == StatusOptimal {
		e.finish(sol)
	}
	sol.Nodes = e.nodes
	sol.Runtime = time.Since(start)
	return sol, nil
}

// finish fills row activities, slacks and duals for an optimal solution.
func (e *engine) finish(sol *Solution) {
	m := e.model
	sol.Objective = m.objectiveValue(sol.Values)
	sol.Rows = make([]RowResult, len(m.cons))
	for r, c := range m.cons {
		act := c.Activity(sol.Values)
		sol.Rows[r] = RowResult{Name: c.name, Sense: c.sense, RHS: c.rhs, Activity: act, Slack: slack(c.sense, c.rhs, act)}
	}

	if e.opts.Duals == DualsNone {
		sol.DualSource = DualSourceNone
		return
	}
	lo, hi := e.bounds()
	sol.DualSource = DualSourceLP
	sol.DualsExact = true
	if m.IntegerCount() > 0 {
		for j, v := range m.vars {
			if v.IsInteger() {
				lo[j] = math.Round(sol.Values[j])
				hi[j] = lo[j]
			}
		}
		sol.DualSource = DualSourceFixed
		sol.DualsExact = false
	}
	duals, err := e.lpDuals(lo, hi)
	if err != nil {
		sol.DualError = err.Error()
		return
	}
	for r := range sol.Rows {
		sol.Rows[r].Dual = duals[r]
	}
}

// lpDuals solves the LP under lo/hi on the tableau and expands its row duals
// to model constraints. gonum's explicit dual LP is the fallback.
func (e *engine) lpDuals(lo, hi []float64) ([]float64, error) {
	box, st := newBoxLP(e.model, e.rows, lo, hi)
	if st == lpOptimal {
		blo, bhi, _ := box.bounds(lo, hi)
		t := newTableau(box, blo, bhi)
		if t.cold() == lpOptimal {
			return box.duals(e.model, e.rows, t.rowDuals(), box.values(t.x, blo, bhi)), nil
		}
	}
	return rowDuals(e.model, e.rows, lo, hi, e.opts.Tolerance)
}

func slack(s Sense, rhs, activity float64) float64 {
	if s == GreaterEqual {
		return activity - rhs
	}
	return rhs - activity
}

func (e *engine) bounds() (lo, hi []float64) {
	lo = make([]float64, len(e.model.vars))
	hi = make([]float64, len(e.model.vars))
	for j, v := range e.model.vars {
		lo[j], hi[j] = v.lb, v.ub
	}
	return lo, hi
}

func limitError(detail string) *Solution {
	return &Solution{Status: StatusError, Reason: fmt.Sprintf("%s: %s", LimitReason, detail)}
}
