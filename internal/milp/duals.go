package milp

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var errDualInfeasible = errors.New("milp: dual LP has no optimal point")

// rowDuals returns one dual per model constraint for the LP defined by the
// bounds lo/hi. It solves the explicit dual of the standard form,
//
//	max bᵀπ  s.t.  Aᵀπ <= c,  π free,
//
// with π = p - q and a slack per column. Rows that drop out of the standard
// form (no free columns left) get dual 0.
func rowDuals(m *Model, rows [][]entry, lo, hi []float64, tol float64) ([]float64, error) {
	out := make([]float64, len(m.cons))
	sf, st := buildStandardForm(m, rows, lo, hi, false)
	if st != lpOptimal {
		return nil, fmt.Errorf("milp: fixed LP is not solvable (status %d)", st)
	}
	if sf.A == nil {
		return out, nil
	}
	nr, nc := sf.A.Dims()

	// Columns: p (nr), q (nr), t (nc). Rows: one per primal column.
	d := mat.NewDense(nc, 2*nr+nc, nil)
	cost := make([]float64, 2*nr+nc)
	for r := 0; r < nr; r++ {
		cost[r] = -sf.b[r]
		cost[nr+r] = sf.b[r]
		for j := 0; j < nc; j++ {
			if a := sf.A.At(r, j); a != 0 {
				d.Set(j, r, a)
				d.Set(j, nr+r, -a)
			}
		}
	}
	for j := 0; j < nc; j++ {
		d.Set(j, 2*nr+j, 1)
	}

	z, st, err := simplex(cost, d, sf.c, tol)
	switch st {
	case lpOptimal:
	case lpFailed:
		return nil, fmt.Errorf("milp: dual LP: %w", err)
	default:
		return nil, errDualInfeasible
	}
	for r := 0; r < nr; r++ {
		if con := sf.rowCon[r]; con >= 0 {
			out[con] = z[r] - z[nr+r]
		}
	}
	return out, nil
}
