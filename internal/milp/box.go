package milp

import "math"

// boxLP is a model relaxation in bounded form. Fixed columns move into the
// right-hand side, rows left with one free column become bounds on it, and
// the remaining rows are stored so each reads a·x + s = b with s >= 0 (s = 0
// for equalities); >= rows are negated to get there.
type boxLP struct {
	cols  []int // box column -> model column
	colOf []int // model column -> box column, -1 when fixed
	rowOf []int // box row -> model constraint
	a     [][]float64
	b     []float64
	eq    []bool
	neg   []bool
	c     []float64

	// Per model column, after folding.
	lo, hi       []float64
	loSrc, hiSrc []int // constraint that set the bound, -1 for the column's own
	fixed        []bool
}

// newBoxLP folds single-column rows into bounds until nothing changes.
func newBoxLP(m *Model, rows [][]entry, lo, hi []float64) (*boxLP, lpStatus) {
	n := len(m.vars)
	p := &boxLP{
		lo:    clone(lo),
		hi:    clone(hi),
		loSrc: make([]int, n),
		hiSrc: make([]int, n),
		fixed: make([]bool, n),
		colOf: make([]int, n),
	}
	for j := 0; j < n; j++ {
		p.loSrc[j], p.hiSrc[j] = -1, -1
		if p.hi[j] < p.lo[j]-boundTol {
			return nil, lpInfeasible
		}
		if p.hi[j]-p.lo[j] <= boundTol {
			p.hi[j] = p.lo[j]
			p.fixed[j] = true
		}
	}

	retired := make([]bool, len(rows))
	for changed := true; changed; {
		changed = false
		for r, row := range rows {
			if retired[r] {
				continue
			}
			c := m.cons[r]
			rhs, nfree, col, coef := c.rhs, 0, -1, 0.0
			for _, e := range row {
				if p.fixed[e.v] {
					rhs -= e.coef * p.lo[e.v]
					continue
				}
				nfree++
				col, coef = e.v, e.coef
			}
			switch nfree {
			case 0:
				if !constantRowHolds(c.sense, rhs) {
					return nil, lpInfeasible
				}
				retired[r] = true
			case 1:
				retired[r] = true
				fixedNow, ok := p.fold(r, col, coef, c.sense, rhs)
				if !ok {
					return nil, lpInfeasible
				}
				changed = changed || fixedNow
			}
		}
	}

	for j := 0; j < n; j++ {
		p.colOf[j] = -1
		if !p.fixed[j] {
			p.colOf[j] = len(p.cols)
			p.cols = append(p.cols, j)
			p.c = append(p.c, m.obj[j])
		}
	}
	for r, row := range rows {
		if retired[r] {
			continue
		}
		c := m.cons[r]
		sign := 1.0
		if c.sense == GreaterEqual {
			sign = -1
		}
		a := make([]float64, len(p.cols))
		rhs := c.rhs
		for _, e := range row {
			if p.fixed[e.v] {
				rhs -= e.coef * p.lo[e.v]
				continue
			}
			a[p.colOf[e.v]] = sign * e.coef
		}
		p.rowOf = append(p.rowOf, r)
		p.a = append(p.a, a)
		p.b = append(p.b, sign*rhs)
		p.eq = append(p.eq, c.sense == Equal)
		p.neg = append(p.neg, sign < 0)
	}
	return p, lpOptimal
}

// fold applies coef*x[j] (sense) rhs as a bound on column j. It reports
// whether the column became fixed, and false when the bounds cross.
func (p *boxLP) fold(r, j int, coef float64, s Sense, rhs float64) (fixedNow, ok bool) {
	v := rhs / coef
	upper := s == Equal || (s == LessEqual) == (coef > 0)
	lower := s == Equal || (s == GreaterEqual) == (coef > 0)
	if upper && v < p.hi[j] {
		p.hi[j], p.hiSrc[j] = v, r
	}
	if lower && v > p.lo[j] {
		p.lo[j], p.loSrc[j] = v, r
	}
	if p.hi[j] < p.lo[j] {
		if p.lo[j]-p.hi[j] > feasTol {
			return false, false
		}
		p.hi[j] = p.lo[j]
	}
	if p.hi[j]-p.lo[j] <= boundTol {
		p.hi[j] = p.lo[j]
		p.fixed[j] = true
		return true, true
	}
	return false, true
}

// bounds intersects node bounds with the folded ones, per box column.
func (p *boxLP) bounds(nodeLo, nodeHi []float64) (lo, hi []float64, ok bool) {
	lo = make([]float64, len(p.cols))
	hi = make([]float64, len(p.cols))
	for k, j := range p.cols {
		lo[k] = math.Max(nodeLo[j], p.lo[j])
		hi[k] = math.Min(nodeHi[j], p.hi[j])
		if hi[k] < lo[k] {
			if lo[k]-hi[k] > feasTol {
				return nil, nil, false
			}
			hi[k] = lo[k]
		}
	}
	return lo, hi, true
}

// values maps box column values back to model columns.
func (p *boxLP) values(x, lo, hi []float64) []float64 {
	out := make([]float64, len(p.colOf))
	for j, k := range p.colOf {
		if k < 0 {
			out[j] = p.lo[j]
			continue
		}
		out[j] = math.Min(math.Max(x[k], lo[k]), hi[k])
	}
	return out
}

// duals expands box row duals to model constraints. A folded row is credited
// with the reduced cost of its column when that column sits on the bound the
// row set.
func (p *boxLP) duals(m *Model, rows [][]entry, pi, values []float64) []float64 {
	out := make([]float64, len(m.cons))
	for i, r := range p.rowOf {
		out[r] = pi[i]
	}
	d := clone(m.obj)
	for _, r := range p.rowOf {
		if out[r] == 0 {
			continue
		}
		for _, e := range rows[r] {
			d[e.v] -= out[r] * e.coef
		}
	}
	for j := range m.vars {
		if r := p.hiSrc[j]; r >= 0 && d[j] < -optTol && values[j] >= p.hi[j]-feasTol {
			out[r] = d[j] / coefOf(rows[r], j)
		}
		if r := p.loSrc[j]; r >= 0 && d[j] > optTol && values[j] <= p.lo[j]+feasTol {
			out[r] = d[j] / coefOf(rows[r], j)
		}
	}
	return out
}

func coefOf(row []entry, j int) float64 {
	for _, e := range row {
		if e.v == j {
			return e.coef
		}
	}
	return 1
}
