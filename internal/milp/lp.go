package milp

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	coefEps  = 1e-12
	boundTol = 1e-9
	feasTol  = 1e-7
)

// lpSimplex is swapped in tests.
var lpSimplex = lp.Simplex

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpFailed
)

type entry struct {
	v    int
	coef float64
}

// compileRows merges duplicate terms and drops zero coefficients.
func compileRows(m *Model) ([][]entry, error) {
	out := make([][]entry, len(m.cons))
	for r, c := range m.cons {
		acc := map[int]float64{}
		var order []int
		for _, t := range c.terms {
			if t.Var == nil || t.Var.index >= len(m.vars) || m.vars[t.Var.index] != t.Var {
				return nil, fmt.Errorf("milp: constraint %q references a variable from another model", c.name)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return nil, fmt.Errorf("milp: constraint %q has a non-finite coefficient on %q", c.name, t.Var.name)
			}
			if _, seen := acc[t.Var.index]; !seen {
				order = append(order, t.Var.index)
			}
			acc[t.Var.index] += t.Coef
		}
		sort.Ints(order)
		for _, j := range order {
			if math.Abs(acc[j]) > coefEps {
				out[r] = append(out[r], entry{v: j, coef: acc[j]})
			}
		}
	}
	return out, nil
}

type sfRow struct {
	cols  []entry // entry.v is a column index here
	sense Sense
	rhs   float64
	con   int // model constraint, -1 for bound rows
	pin   bool
}

// standardForm is min cᵀz, Az = b, z >= 0 over the free columns of one node.
type standardForm struct {
	c      []float64
	A      *mat.Dense
	b      []float64
	rowCon []int
	varCol []int
	fixed  []float64
	lo     []float64
	hi     []float64
}

// buildStandardForm shifts free columns by their lower bound, substitutes fixed
// columns and adds a slack per inequality. When pinEq is set every equality row
// also gets a slack bounded to [0,0], which keeps A at full row rank.
func buildStandardForm(m *Model, rows [][]entry, lo, hi []float64, pinEq bool) (*standardForm, lpStatus) {
	n := len(m.vars)
	sf := &standardForm{
		varCol: make([]int, n),
		fixed:  make([]float64, n),
		lo:     lo,
		hi:     hi,
	}
	free := make([]bool, n)
	for j := 0; j < n; j++ {
		sf.varCol[j] = -1
		if hi[j] < lo[j]-boundTol {
			return nil, lpInfeasible
		}
		if hi[j]-lo[j] <= boundTol {
			sf.fixed[j] = lo[j]
			continue
		}
		free[j] = true
	}

	appears := make([]bool, n)
	for _, row := range rows {
		for _, e := range row {
			if free[e.v] {
				appears[e.v] = true
			}
		}
	}
	ncols := 0
	for j := 0; j < n; j++ {
		if !free[j] {
			continue
		}
		if !appears[j] {
			// Only the objective sees this column, so it sits at its best bound.
			switch {
			case m.obj[j] >= 0:
				sf.fixed[j] = lo[j]
			case math.IsInf(hi[j], 1):
				return nil, lpUnbounded
			default:
				sf.fixed[j] = hi[j]
			}
			free[j] = false
			continue
		}
		sf.varCol[j] = ncols
		ncols++
	}

	var srows []sfRow
	for r, row := range rows {
		c := m.cons[r]
		rhs := c.rhs
		var cols []entry
		for _, e := range row {
			if free[e.v] {
				cols = append(cols, entry{v: sf.varCol[e.v], coef: e.coef})
				rhs -= e.coef * lo[e.v]
			} else {
				rhs -= e.coef * sf.fixed[e.v]
			}
		}
		if len(cols) == 0 {
			if !constantRowHolds(c.sense, rhs) {
				return nil, lpInfeasible
			}
			continue
		}
		srows = append(srows, sfRow{cols: cols, sense: c.sense, rhs: rhs, con: r, pin: pinEq && c.sense == Equal})
	}
	for j := 0; j < n; j++ {
		if sf.varCol[j] >= 0 && !math.IsInf(hi[j], 1) {
			srows = append(srows, sfRow{cols: []entry{{v: sf.varCol[j], coef: 1}}, sense: LessEqual, rhs: hi[j] - lo[j], con: -1})
		}
	}
	if len(srows) == 0 {
		return sf, lpOptimal
	}

	nrows, nslack := 0, 0
	for _, r := range srows {
		nrows++
		if r.sense != Equal {
			nslack++
		}
		if r.pin {
			nrows++
			nslack += 2
		}
	}
	total := ncols + nslack
	sf.A = mat.NewDense(nrows, total, nil)
	sf.b = make([]float64, nrows)
	sf.rowCon = make([]int, nrows)
	sf.c = make([]float64, total)
	for j := 0; j < n; j++ {
		if col := sf.varCol[j]; col >= 0 {
			sf.c[col] = m.obj[j]
		}
	}

	ri, slack := 0, ncols
	for _, r := range srows {
		for _, e := range r.cols {
			sf.A.Set(ri, e.v, e.coef)
		}
		sf.b[ri] = r.rhs
		sf.rowCon[ri] = r.con
		switch r.sense {
		case LessEqual:
			sf.A.Set(ri, slack, 1)
			slack++
		case GreaterEqual:
			sf.A.Set(ri, slack, -1)
			slack++
		}
		if r.pin {
			// s appears in the equality row and in s + t = 0.
			sf.A.Set(ri, slack, 1)
			sf.A.Set(ri+1, slack, 1)
			sf.A.Set(ri+1, slack+1, 1)
			sf.rowCon[ri+1] = -1
			slack += 2
			ri++
		}
		ri++
	}
	return sf, lpOptimal
}

func constantRowHolds(s Sense, rhs float64) bool {
	switch s {
	case LessEqual:
		return rhs >= -feasTol
	case GreaterEqual:
		return rhs <= feasTol
	default:
		return math.Abs(rhs) <= feasTol
	}
}

// values maps a standard-form point back to model columns.
func (sf *standardForm) values(z []float64) []float64 {
	out := make([]float64, len(sf.varCol))
	for j, col := range sf.varCol {
		if col < 0 {
			out[j] = sf.fixed[j]
			continue
		}
		v := sf.lo[j] + z[col]
		if v < sf.lo[j] {
			v = sf.lo[j]
		}
		if v > sf.hi[j] {
			v = sf.hi[j]
		}
		out[j] = v
	}
	return out
}

// simplex runs gonum's solver and converts its panics and sentinel errors into
// a status.
func simplex(c []float64, A *mat.Dense, b []float64, tol float64) (z []float64, st lpStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			z, st, err = nil, lpFailed, fmt.Errorf("simplex: %v", r)
		}
	}()
	_, z, err = lpSimplex(c, A, b, tol, nil)
	switch {
	case err == nil:
		return z, lpOptimal, nil
	case errors.Is(err, lp.ErrInfeasible):
		return nil, lpInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return nil, lpUnbounded, nil
	default:
		return nil, lpFailed, err
	}
}

type relaxation struct {
	status lpStatus
	values []float64
	obj    float64
	err    error
	basis  *basisState
	tab    *tableau
}

// relaxStandard solves the LP relaxation of m under the node bounds lo/hi with
// gonum's simplex on a dense standard form. A failed first attempt is retried
// once with pinned equality rows.
func relaxStandard(m *Model, rows [][]entry, lo, hi []float64, tol float64) relaxation {
	var last error
	for _, pin := range []bool{false, true} {
		sf, st := buildStandardForm(m, rows, lo, hi, pin)
		if st != lpOptimal {
			return relaxation{status: st}
		}
		var z []float64
		if sf.A != nil {
			var err error
			z, st, err = simplex(sf.c, sf.A, sf.b, tol)
			if st == lpFailed {
				last = err
				continue
			}
			if st != lpOptimal {
				return relaxation{status: st}
			}
		}
		vals := sf.values(z)
		return relaxation{status: lpOptimal, values: vals, obj: m.objectiveValue(vals)}
	}
	return relaxation{status: lpFailed, err: last}
}
