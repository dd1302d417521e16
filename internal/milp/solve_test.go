package milp

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func approx(a, b float64) bool { return math.Abs(a-b) <= 1e-6 }

// must unwraps a model builder result; builder errors are test bugs.
func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestSolveLPWithDuals(t *testing.T) {
	m := NewModel()
	x := must(m.NewContinuous("x", 0, math.Inf(1)))
	y := must(m.NewContinuous("y", 0, math.Inf(1)))
	m.SetObjective(x, 2)
	m.SetObjective(y, 3)
	must(m.NewConstraint("need", GreaterEqual, 4)).NewTerm(1, x).NewTerm(1, y)
	must(m.NewConstraint("cap", LessEqual, 3)).NewTerm(1, x)

	sol, err := Solve(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusOptimal {
		t.Fatalf("status %v, reason %q", sol.Status, sol.Reason)
	}
	if !approx(sol.Objective, 9) || !approx(sol.Value(x), 3) || !approx(sol.Value(y), 1) {
		t.Fatalf("got obj=%g x=%g y=%g", sol.Objective, sol.Value(x), sol.Value(y))
	}
	if !sol.DualsExact || sol.DualSource != DualSourceLP {
		t.Fatalf("pure LP duals should be exact, got %v %q", sol.DualsExact, sol.DualSource)
	}
	if sol.DualError != "" {
		t.Fatalf("dual error: %s", sol.DualError)
	}
	need, capRow := sol.Rows[0], sol.Rows[1]
	if need.Name != "need" || !approx(need.Dual, 3) || !approx(need.Slack, 0) {
		t.Fatalf("need row: %+v", need)
	}
	if capRow.Name != "cap" || !approx(capRow.Dual, -1) || !approx(capRow.Slack, 0) {
		t.Fatalf("cap row: %+v", capRow)
	}
}

func TestSolveEqualityRow(t *testing.T) {
	m := NewModel()
	x := must(m.NewContinuous("x", 0, 2))
	y := must(m.NewContinuous("y", 0, math.Inf(1)))
	m.SetObjective(x, 1)
	m.SetObjective(y, 4)
	must(m.NewConstraint("total", Equal, 5)).NewTerm(1, x).NewTerm(1, y)

	sol, err := Solve(context.Background(), m, Options{})
	if err != nil || sol.Status != StatusOptimal {
		t.Fatalf("solve: %v %+v", err, sol)
	}
	if !approx(sol.Value(x), 2) || !approx(sol.Value(y), 3) || !approx(sol.Objective, 14) {
		t.Fatalf("got x=%g y=%g obj=%g", sol.Value(x), sol.Value(y), sol.Objective)
	}
	if !approx(sol.Rows[0].Dual, 4) {
		t.Fatalf("equality dual = %g, want 4", sol.Rows[0].Dual)
	}
}

func TestSolveKnapsack(t *testing.T) {
	m := NewModel()
	a := must(m.NewBinary("a"))
	b := must(m.NewBinary("b"))
	c := must(m.NewBinary("c"))
	m.SetObjective(a, -5)
	m.SetObjective(b, -4)
	m.SetObjective(c, -3)
	must(m.NewConstraint("weight", LessEqual, 5)).NewTerm(2, a).NewTerm(3, b).NewTerm(1, c)

	sol, err := Solve(context.Background(), m, Options{})
	if err != nil || sol.Status != StatusOptimal {
		t.Fatalf("solve: %v %+v", err, sol)
	}
	if !approx(sol.Objective, -9) {
		t.Fatalf("objective %g, want -9", sol.Objective)
	}
	if sol.Value(a) != 1 || sol.Value(b) != 1 || sol.Value(c) != 0 {
		t.Fatalf("picks a=%g b=%g c=%g", sol.Value(a), sol.Value(b), sol.Value(c))
	}
	if sol.Nodes < 2 {
		t.Fatalf("expected branching, nodes=%d", sol.Nodes)
	}
	if sol.DualsExact || sol.DualSource != DualSourceFixed {
		t.Fatalf("integer model duals must be flagged inexact: %v %q", sol.DualsExact, sol.DualSource)
	}
}

func TestSolveFixedChargeDuals(t *testing.T) {
	m := NewModel()
	x := must(m.NewContinuous("x", 0, math.Inf(1)))
	y := must(m.NewBinary("y"))
	m.SetObjective(x, 1)
	m.SetObjective(y, 10)
	must(m.NewConstraint("need", GreaterEqual, 3)).NewTerm(1, x)
	must(m.NewConstraint("link", LessEqual, 0)).NewTerm(1, x).NewTerm(-5, y)

	sol, err := Solve(context.Background(), m, Options{})
	if err != nil || sol.Status != StatusOptimal {
		t.Fatalf("solve: %v %+v", err, sol)
	}
	if !approx(sol.Objective, 13) || sol.Value(y) != 1 {
		t.Fatalf("obj=%g y=%g", sol.Objective, sol.Value(y))
	}
	if !approx(sol.Rows[0].Dual, 1) || !approx(sol.Rows[1].Dual, 0) {
		t.Fatalf("duals need=%g link=%g", sol.Rows[0].Dual, sol.Rows[1].Dual)
	}
	if !approx(sol.Rows[1].Slack, 2) {
		t.Fatalf("link slack = %g, want 2", sol.Rows[1].Slack)
	}
}

func TestSolveInfeasible(t *testing.T) {
	m := NewModel()
	x := must(m.NewContinuous("x", 0, math.Inf(1)))
	m.SetObjective(x, 1)
	must(m.NewConstraint("lo", GreaterEqual, 2)).NewTerm(1, x)
	must(m.NewConstraint("hi", LessEqual, 1)).NewTerm(1, x)

	sol, err := Solve(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusInfeasible || sol.Values != nil {
		t.Fatalf("want infeasible without values, got %+v", sol)
	}
}

func TestSolveUnbounded(t *testing.T) {
	m := NewModel()
	x := must(m.NewContinuous("x", 0, math.Inf(1)))
	m.SetObjective(x, -1)
	sol, err := Solve(context.Background(), m, Options{})
	if err != nil || sol.Status != StatusUnbounded {
		t.Fatalf("free column: %v %+v", err, sol)
	}

	m = NewModel()
	x = must(m.NewContinuous("x", 0, math.Inf(1)))
	y := must(m.NewContinuous("y", 0, math.Inf(1)))
	m.SetObjective(x, -1)
	must(m.NewConstraint("gap", LessEqual, 1)).NewTerm(1, x).NewTerm(-1, y)
	sol, err = Solve(context.Background(), m, Options{})
	if err != nil || sol.Status != StatusUnbounded {
		t.Fatalf("ray: %v %+v", err, sol)
	}
}

func TestSolveLimits(t *testing.T) {
	build := func() *Model {
		m := NewModel()
		a, _ := m.NewBinary("a")
		b, _ := m.NewBinary("b")
		c, _ := m.NewBinary("c")
		m.SetObjective(a, -5)
		m.SetObjective(b, -4)
		m.SetObjective(c, -3)
		w, _ := m.NewConstraint("weight", LessEqual, 5)
		w.NewTerm(2, a).NewTerm(3, b).NewTerm(1, c)
		return m
	}

	sol, err := Solve(context.Background(), build(), Options{MaxNodes: 1})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusError || !strings.HasPrefix(sol.Reason, LimitReason) {
		t.Fatalf("node limit: %+v", sol)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err = Solve(ctx, build(), Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusError || !strings.HasPrefix(sol.Reason, LimitReason) {
		t.Fatalf("cancelled: %+v", sol)
	}
}

func TestSolveDualsNone(t *testing.T) {
	m := NewModel()
	x := must(m.NewContinuous("x", 1, 4))
	m.SetObjective(x, 1)
	must(m.NewConstraint("floor", GreaterEqual, 2)).NewTerm(1, x)
	sol, err := Solve(context.Background(), m, Options{Duals: DualsNone})
	if err != nil || sol.Status != StatusOptimal {
		t.Fatalf("solve: %v %+v", err, sol)
	}
	if sol.DualSource != DualSourceNone || sol.Rows[0].Dual != 0 {
		t.Fatalf("duals should be skipped: %+v", sol)
	}
	if !approx(sol.Value(x), 2) {
		t.Fatalf("x = %g", sol.Value(x))
	}
}

func TestSolveSimplexFailureIsError(t *testing.T) {
	origSimplex, origLimit := lpSimplex, pivotLimit
	defer func() { lpSimplex, pivotLimit = origSimplex, origLimit }()
	pivotLimit = func(int, int) int { return 0 }
	lpSimplex = func(c []float64, A mat.Matrix, b []float64, tol float64, basic []int) (float64, []float64, error) {
		return 0, nil, errors.New("boom")
	}
	m := NewModel()
	x := must(m.NewContinuous("x", 0, math.Inf(1)))
	y := must(m.NewContinuous("y", 0, math.Inf(1)))
	m.SetObjective(x, 1)
	m.SetObjective(y, 1)
	must(m.NewConstraint("floor", GreaterEqual, 1)).NewTerm(1, x).NewTerm(1, y)

	sol, err := Solve(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusError || !strings.Contains(sol.Reason, "boom") {
		t.Fatalf("want solver error, got %+v", sol)
	}
}

func TestSolveFallsBackToStandardForm(t *testing.T) {
	orig := pivotLimit
	defer func() { pivotLimit = orig }()
	pivotLimit = func(int, int) int { return 0 }

	m := NewModel()
	x := must(m.NewContinuous("x", 0, math.Inf(1)))
	y := must(m.NewContinuous("y", 0, math.Inf(1)))
	m.SetObjective(x, 2)
	m.SetObjective(y, 3)
	must(m.NewConstraint("need", GreaterEqual, 4)).NewTerm(1, x).NewTerm(1, y)
	must(m.NewConstraint("cap", LessEqual, 3)).NewTerm(1, x)

	sol, err := Solve(context.Background(), m, Options{})
	if err != nil || sol.Status != StatusOptimal {
		t.Fatalf("solve: %v %+v", err, sol)
	}
	if !approx(sol.Objective, 9) {
		t.Fatalf("objective %g, want 9", sol.Objective)
	}
	if sol.DualError != "" || !approx(sol.Rows[0].Dual, 3) || !approx(sol.Rows[1].Dual, -1) {
		t.Fatalf("fallback duals: %+v err=%q", sol.Rows, sol.DualError)
	}
}

func TestModelRejectsDuplicates(t *testing.T) {
	m := NewModel()
	if _, err := m.NewConstraint("supply[0]", LessEqual, 1); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := m.NewConstraint("supply[0]", LessEqual, 1); err == nil {
		t.Fatal("duplicate constraint name accepted")
	}
	if _, err := m.NewBinary("y"); err != nil {
		t.Fatalf("var: %v", err)
	}
	if _, err := m.NewBinary("y"); err == nil {
		t.Fatal("duplicate variable name accepted")
	}
	if _, err := Solve(context.Background(), NewModel(), Options{}); !errors.Is(err, ErrEmptyModel) {
		t.Fatalf("empty model: %v", err)
	}
}
