package milp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	optTol        = 1e-9
	pivTol        = 1e-9
	tieTol        = 1e-11
	refactorEvery = 100
	blandAfter    = 50
	maxCond       = 1e12
)

// pivotLimit caps the pivots of one LP solve.
var pivotLimit = func(rows, cols int) int { return 50*(rows+cols) + 1000 }

// basisState is an optimal basis kept on a node so its children can start
// from it instead of from scratch.
type basisState struct {
	basis []int
	upper []bool
	art   []float64
}

// tableau is a dense bounded-variable simplex over a boxLP. Columns are the
// box columns, then one slack and one artificial per row.
type tableau struct {
	p       *boxLP
	m, n, w int

	a     [][]float64 // [A I diag(art)]
	t     [][]float64 // B⁻¹ a
	cost  []float64
	d     []float64
	x     []float64
	lo    []float64
	hi    []float64
	basis []int
	pos   []int // column -> basis row, -1 when nonbasic
	upper []bool
	art   []float64

	pivots int
	limit  int
	degen  int
	bland  bool
}

func newTableau(p *boxLP, lo, hi []float64) *tableau {
	m, n := len(p.b), len(p.cols)
	w := n + 2*m
	t := &tableau{
		p: p, m: m, n: n, w: w,
		cost:  make([]float64, w),
		d:     make([]float64, w),
		x:     make([]float64, w),
		lo:    make([]float64, w),
		hi:    make([]float64, w),
		basis: make([]int, m),
		pos:   make([]int, w),
		upper: make([]bool, w),
		art:   make([]float64, m),
		limit: pivotLimit(m, w),
	}
	copy(t.lo, lo)
	copy(t.hi, hi)
	copy(t.cost, p.c)
	for i := 0; i < m; i++ {
		if !p.eq[i] {
			t.hi[n+i] = math.Inf(1)
		}
		t.art[i] = 1
	}
	for j := range t.pos {
		t.pos[j] = -1
	}
	return t
}

func (t *tableau) buildRows() {
	t.a = make([][]float64, t.m)
	for i := range t.a {
		row := make([]float64, t.w)
		copy(row, t.p.a[i])
		row[t.n+i] = 1
		row[t.n+t.m+i] = t.art[i]
		t.a[i] = row
	}
}

// cold solves from the slack basis, with artificials on the rows the slack
// cannot cover and a first phase that drives them to zero.
func (t *tableau) cold() lpStatus {
	for j := 0; j < t.n; j++ {
		t.x[j] = t.lo[j]
	}
	phaseOne := false
	for i := 0; i < t.m; i++ {
		r := t.b(i) - floats.Dot(t.p.a[i], t.x[:t.n])
		slack, art := t.n+i, t.n+t.m+i
		if r >= 0 && (!t.p.eq[i] || r <= feasTol) {
			t.basis[i] = slack
			t.x[slack] = r
		} else {
			if r < 0 {
				t.art[i] = -1
			}
			t.basis[i] = art
			t.x[art] = math.Abs(r)
			t.hi[art] = math.Inf(1)
			phaseOne = true
		}
		t.pos[t.basis[i]] = i
	}
	t.buildRows()
	t.t = make([][]float64, t.m)
	for i, row := range t.a {
		tr := clone(row)
		if t.basis[i] >= t.n+t.m && t.art[i] < 0 {
			floats.Scale(-1, tr)
		}
		t.t[i] = tr
	}

	if phaseOne {
		cost := t.cost
		t.cost = make([]float64, t.w)
		for i := 0; i < t.m; i++ {
			t.cost[t.n+t.m+i] = 1
		}
		t.pricing()
		if st := t.primal(); st != lpOptimal {
			t.cost = cost
			if st == lpUnbounded {
				st = lpFailed
			}
			return st
		}
		var infeas, scale float64
		for i := 0; i < t.m; i++ {
			infeas += t.x[t.n+t.m+i]
			scale = math.Max(scale, math.Abs(t.b(i)))
		}
		if infeas > feasTol*(1+scale) {
			t.cost = cost
			return lpInfeasible
		}
		for i := 0; i < t.m; i++ {
			col := t.n + t.m + i
			t.hi[col] = 0
			t.x[col] = 0
		}
		t.cost = cost
	}
	t.pricing()
	return t.primal()
}

// warm restarts from a parent basis. Only the bounds differ from the parent,
// so the basis stays dual feasible and the dual simplex repairs the primal
// side. ok is false when the basis cannot be used.
func (t *tableau) warm(s *basisState) (st lpStatus, ok bool) {
	if s == nil || len(s.basis) != t.m || len(s.upper) != t.w {
		return lpFailed, false
	}
	copy(t.art, s.art)
	t.buildRows()
	copy(t.basis, s.basis)
	for i, col := range t.basis {
		t.pos[col] = i
	}
	for i := 0; i < t.m; i++ {
		t.hi[t.n+t.m+i] = 0
	}
	for j := 0; j < t.w; j++ {
		if t.pos[j] >= 0 {
			continue
		}
		t.upper[j] = s.upper[j] && !math.IsInf(t.hi[j], 1)
		if t.upper[j] {
			t.x[j] = t.hi[j]
		} else {
			t.x[j] = t.lo[j]
		}
	}
	t.t = make([][]float64, t.m)
	if !t.refactor() || !t.restoreDualFeasible() {
		return lpFailed, false
	}
	if st := t.dual(); st != lpOptimal {
		return st, st != lpFailed
	}
	st = t.primal()
	return st, st != lpFailed
}

// resolve re-optimizes in place after the structural bounds change.
func (t *tableau) resolve(lo, hi []float64) (lpStatus, bool) {
	t.pivots, t.degen, t.bland = 0, 0, false
	for k := 0; k < t.n; k++ {
		t.lo[k], t.hi[k] = lo[k], hi[k]
		if t.pos[k] >= 0 {
			continue
		}
		t.upper[k] = t.upper[k] && !math.IsInf(t.hi[k], 1)
		target := t.lo[k]
		if t.upper[k] {
			target = t.hi[k]
		}
		t.shift(k, target-t.x[k])
	}
	if !t.restoreDualFeasible() {
		return lpFailed, false
	}
	st := t.dual()
	if st == lpOptimal {
		st = t.primal()
	}
	return st, st != lpFailed
}

func (t *tableau) b(i int) float64 { return t.p.b[i] }

// pricing recomputes reduced costs for the current basis.
func (t *tableau) pricing() {
	copy(t.d, t.cost)
	for i, row := range t.t {
		if cb := t.cost[t.basis[i]]; cb != 0 {
			floats.AddScaled(t.d, -cb, row)
		}
	}
}

// refactor rebuilds B⁻¹a and the basic values from the basis.
func (t *tableau) refactor() bool {
	if t.m == 0 {
		t.pricing()
		return true
	}
	B := mat.NewDense(t.m, t.m, nil)
	full := mat.NewDense(t.m, t.w, nil)
	for i, row := range t.a {
		full.SetRow(i, row)
		for k, col := range t.basis {
			B.Set(i, k, row[col])
		}
	}
	var lu mat.LU
	lu.Factorize(B)
	if lu.Cond() > maxCond {
		return false
	}
	var inv mat.Dense
	if err := lu.SolveTo(&inv, false, full); err != nil {
		return false
	}
	rhs := clone(t.p.b)
	for j := 0; j < t.w; j++ {
		if t.pos[j] >= 0 || t.x[j] == 0 {
			continue
		}
		for i, row := range t.a {
			rhs[i] -= row[j] * t.x[j]
		}
	}
	var xb mat.VecDense
	if err := lu.SolveVecTo(&xb, false, mat.NewVecDense(t.m, rhs)); err != nil {
		return false
	}
	for i, col := range t.basis {
		t.t[i] = inv.RawRowView(i)
		t.x[col] = xb.AtVec(i)
	}
	t.pricing()
	return true
}

// restoreDualFeasible moves boxed nonbasic columns to the bound their reduced
// cost prefers. It fails when an unboxed column has the wrong sign.
func (t *tableau) restoreDualFeasible() bool {
	for j := 0; j < t.w; j++ {
		if t.pos[j] >= 0 || t.hi[j]-t.lo[j] <= boundTol {
			continue
		}
		switch {
		case !t.upper[j] && t.d[j] < -optTol:
			if math.IsInf(t.hi[j], 1) {
				return false
			}
			t.shift(j, t.hi[j]-t.lo[j])
			t.upper[j] = true
		case t.upper[j] && t.d[j] > optTol:
			t.shift(j, t.lo[j]-t.hi[j])
			t.upper[j] = false
		}
	}
	return true
}

// price picks the entering column and its direction, or -1 at optimality.
func (t *tableau) price() (int, float64) {
	q, best := -1, optTol
	for j := 0; j < t.w; j++ {
		if t.pos[j] >= 0 || t.hi[j]-t.lo[j] <= boundTol {
			continue
		}
		score := -t.d[j]
		if t.upper[j] {
			score = t.d[j]
		}
		if score <= best {
			continue
		}
		q, best = j, score
		if t.bland {
			break
		}
	}
	if q < 0 {
		return -1, 0
	}
	if t.upper[q] {
		return q, -1
	}
	return q, 1
}

// ratio finds how far column q can move in direction dir. row is -1 when q
// reaches its own opposite bound first.
func (t *tableau) ratio(q int, dir float64) (row int, step float64, toUpper bool) {
	row, step = -1, t.hi[q]-t.lo[q]
	var bestAlpha float64
	for i, tr := range t.t {
		alpha := tr[q] * dir
		if math.Abs(alpha) <= pivTol {
			continue
		}
		l := t.basis[i]
		var lim float64
		up := false
		if alpha > 0 {
			lim = (t.x[l] - t.lo[l]) / alpha
		} else {
			if math.IsInf(t.hi[l], 1) {
				continue
			}
			lim = (t.hi[l] - t.x[l]) / -alpha
			up = true
		}
		lim = math.Max(lim, 0)
		better := lim < step-tieTol
		if !better && row >= 0 && lim <= step+tieTol {
			if t.bland {
				better = l < t.basis[row]
			} else {
				better = math.Abs(alpha) > bestAlpha
			}
		}
		if better {
			row, step, toUpper, bestAlpha = i, lim, up, math.Abs(alpha)
		}
	}
	return row, step, toUpper
}

// primal runs the bounded primal simplex from a primal feasible basis.
func (t *tableau) primal() lpStatus {
	for {
		if t.pivots >= t.limit {
			return lpFailed
		}
		q, dir := t.price()
		if q < 0 {
			return lpOptimal
		}
		r, step, toUpper := t.ratio(q, dir)
		if math.IsInf(step, 1) {
			return lpUnbounded
		}
		if step < tieTol {
			t.degen++
			t.bland = t.degen > blandAfter
		} else {
			t.degen, t.bland = 0, false
		}
		t.shift(q, dir*step)
		if r < 0 {
			t.upper[q] = !t.upper[q]
			if t.upper[q] {
				t.x[q] = t.hi[q]
			} else {
				t.x[q] = t.lo[q]
			}
			t.pivots++
			continue
		}
		t.pivot(r, q, toUpper)
	}
}

// dual runs the bounded dual simplex from a dual feasible basis until every
// basic value is within its bounds.
func (t *tableau) dual() lpStatus {
	for {
		if t.pivots >= t.limit {
			return lpFailed
		}
		r, below, worst := -1, false, feasTol
		for i, col := range t.basis {
			if v := t.lo[col] - t.x[col]; v > worst {
				r, below, worst = i, true, v
			}
			if v := t.x[col] - t.hi[col]; v > worst {
				r, below, worst = i, false, v
			}
		}
		if r < 0 {
			return lpOptimal
		}
		tr := t.t[r]
		q, best, bestAlpha := -1, math.Inf(1), 0.0
		for j := 0; j < t.w; j++ {
			if t.pos[j] >= 0 || t.hi[j]-t.lo[j] <= boundTol {
				continue
			}
			alpha := tr[j]
			if math.Abs(alpha) <= pivTol {
				continue
			}
			// Raising x[j] moves the leaving value by -alpha.
			if below != (!t.upper[j] == (alpha < 0)) {
				continue
			}
			ratio := math.Abs(t.d[j]) / math.Abs(alpha)
			if ratio < best-tieTol || (ratio <= best+tieTol && math.Abs(alpha) > bestAlpha) {
				q, best, bestAlpha = j, ratio, math.Abs(alpha)
			}
		}
		if q < 0 {
			return lpInfeasible
		}
		col := t.basis[r]
		target := t.hi[col]
		if below {
			target = t.lo[col]
		}
		t.shift(q, (t.x[col]-target)/tr[q])
		t.pivot(r, q, !below)
	}
}

// shift moves nonbasic column q by delta and updates the basic values.
func (t *tableau) shift(q int, delta float64) {
	if delta == 0 {
		return
	}
	t.x[q] += delta
	for i, tr := range t.t {
		if a := tr[q]; a != 0 {
			t.x[t.basis[i]] -= a * delta
		}
	}
}

// pivot brings q into the basis at row r. The leaving column rests on its
// upper bound when toUpper is set, else on its lower one.
func (t *tableau) pivot(r, q int, toUpper bool) {
	l := t.basis[r]
	tr := t.t[r]
	floats.Scale(1/tr[q], tr)
	tr[q] = 1
	for i, row := range t.t {
		if i == r {
			continue
		}
		if f := row[q]; f != 0 {
			floats.AddScaled(row, -f, tr)
			row[q] = 0
		}
	}
	if f := t.d[q]; f != 0 {
		floats.AddScaled(t.d, -f, tr)
		t.d[q] = 0
	}
	t.basis[r], t.pos[q], t.pos[l] = q, r, -1
	t.upper[q] = false
	t.upper[l] = toUpper
	if toUpper {
		t.x[l] = t.hi[l]
	} else {
		t.x[l] = t.lo[l]
	}
	t.pivots++
	if t.pivots%refactorEvery == 0 {
		t.refactor()
	}
}

// rowDuals returns one dual per box row in the model's orientation.
func (t *tableau) rowDuals() []float64 {
	pi := make([]float64, t.m)
	for i := range pi {
		pi[i] = -t.d[t.n+i]
		if t.p.neg[i] {
			pi[i] = -pi[i]
		}
	}
	return pi
}

func (t *tableau) state() *basisState {
	return &basisState{
		basis: append([]int(nil), t.basis...),
		upper: append([]bool(nil), t.upper...),
		art:   clone(t.art),
	}
}
