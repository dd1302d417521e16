package milp

import (
	"context"
	"math"
	"time"
)

type node struct {
	lo, hi []float64
	bound  float64
	warm   *basisState
	tab    *tableau // parent tableau, handed to the child explored next
}

// engine is a depth-first branch and bound over LP relaxations. Children
// restart from their parent's optimal basis.
type engine struct {
	ctx      context.Context
	model    *Model
	rows     [][]entry
	box      *boxLP
	opts     Options
	deadline time.Time

	nodes     int
	best      float64
	incumbent []float64
}

func (e *engine) run() *Solution {
	lo, hi := e.bounds()
	for j, v := range e.model.vars {
		if v.IsInteger() {
			lo[j] = math.Ceil(lo[j] - e.opts.IntegralityTol)
			hi[j] = math.Floor(hi[j] + e.opts.IntegralityTol)
		}
	}
	box, st := newBoxLP(e.model, e.rows, lo, hi)
	if st != lpOptimal {
		return &Solution{Status: StatusInfeasible, Reason: "column bounds conflict with single-column rows"}
	}
	e.box = box
	stack := []node{{lo: lo, hi: hi, bound: math.Inf(-1)}}

	for len(stack) > 0 {
		if sol := e.checkLimits(); sol != nil {
			return sol
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e.incumbent != nil && nd.bound >= e.best-e.gap() {
			continue
		}

		rel := e.relax(nd)
		e.nodes++
		switch rel.status {
		case lpInfeasible:
			continue
		case lpUnbounded:
			return &Solution{Status: StatusUnbounded, Reason: "LP relaxation is unbounded"}
		case lpFailed:
			reason := "LP relaxation failed"
			if rel.err != nil {
				reason += ": " + rel.err.Error()
			}
			return &Solution{Status: StatusError, Reason: reason}
		}
		if e.incumbent != nil && rel.obj >= e.best-e.gap() {
			continue
		}

		j := e.branchColumn(rel.values)
		if j < 0 {
			e.accept(rel)
			continue
		}
		v := rel.values[j]
		down := node{lo: nd.lo, hi: clone(nd.hi), bound: rel.obj, warm: rel.basis}
		down.hi[j] = math.Floor(v)
		up := node{lo: clone(nd.lo), hi: nd.hi, bound: rel.obj, warm: rel.basis, tab: rel.tab}
		up.lo[j] = math.Ceil(v)
		// Up is explored first.
		stack = append(stack, down, up)
	}

	if e.incumbent == nil {
		return &Solution{Status: StatusInfeasible, Reason: "no integer-feasible point"}
	}
	return &Solution{Status: StatusOptimal, Values: e.incumbent}
}

// relax solves the node LP on the bounded tableau, reusing the parent's
// tableau or rebuilding from its basis when there is one. gonum's simplex
// takes over when the tableau gives up.
func (e *engine) relax(nd node) relaxation {
	lo, hi, ok := e.box.bounds(nd.lo, nd.hi)
	if !ok {
		return relaxation{status: lpInfeasible}
	}
	if nd.tab != nil {
		if st, ok := nd.tab.resolve(lo, hi); ok {
			return e.fromTableau(nd.tab, st, lo, hi)
		}
	}
	if nd.warm != nil {
		t := newTableau(e.box, lo, hi)
		if st, ok := t.warm(nd.warm); ok {
			return e.fromTableau(t, st, lo, hi)
		}
	}
	t := newTableau(e.box, lo, hi)
	if st := t.cold(); st != lpFailed {
		return e.fromTableau(t, st, lo, hi)
	}
	return relaxStandard(e.model, e.rows, nd.lo, nd.hi, e.opts.Tolerance)
}

func (e *engine) fromTableau(t *tableau, st lpStatus, lo, hi []float64) relaxation {
	if st != lpOptimal {
		return relaxation{status: st}
	}
	vals := e.box.values(t.x, lo, hi)
	return relaxation{status: lpOptimal, values: vals, obj: e.model.objectiveValue(vals), basis: t.state(), tab: t}
}

// branchColumn picks the most fractional integer column, lowest index on ties.
// It returns -1 when the point is integral.
func (e *engine) branchColumn(values []float64) int {
	best, pick := e.opts.IntegralityTol, -1
	for j, v := range e.model.vars {
		if !v.IsInteger() {
			continue
		}
		f := values[j] - math.Floor(values[j])
		if d := math.Min(f, 1-f); d > best {
			best, pick = d, j
		}
	}
	return pick
}

func (e *engine) accept(rel relaxation) {
	vals := clone(rel.values)
	for j, v := range e.model.vars {
		if v.IsInteger() {
			vals[j] = math.Round(vals[j])
		}
	}
	e.incumbent = vals
	e.best = e.model.objectiveValue(vals)
}

func (e *engine) gap() float64 {
	return 1e-9 * math.Max(1, math.Abs(e.best))
}

func (e *engine) checkLimits() *Solution {
	if err := e.ctx.Err(); err != nil {
		return limitError(err.Error())
	}
	if !e.deadline.IsZero() && time.Now().After(e.deadline) {
		return limitError("time limit")
	}
	if e.nodes >= e.opts.MaxNodes {
		return limitError("node limit")
	}
	return nil
}

func clone(s []float64) []float64 {
	return append([]float64(nil), s...)
}
