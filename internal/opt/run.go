package opt

import (
	"context"
	"fmt"
	"sync"

	"freightplan/internal/milp"
)

// Stage is the lifecycle position of a Run.
type Stage int

const (
	StageBuilt Stage = iota
	StageSolving
	StageOptimal
	StageInfeasible
	StageUnbounded
	StageError
	StageExtracted
)

func (s Stage) String() string {
	switch s {
	case StageBuilt:
		return "Built"
	case StageSolving:
		return "Solving"
	case StageOptimal:
		return "Optimal"
	case StageInfeasible:
		return "Infeasible"
	case StageUnbounded:
		return "Unbounded"
	case StageError:
		return "Error"
	case StageExtracted:
		return "Extracted"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Terminal reports whether Solve has finished with this outcome.
func (s Stage) Terminal() bool {
	return s == StageOptimal || s == StageInfeasible || s == StageUnbounded || s == StageError
}

func stageOf(s milp.Status) Stage {
	switch s {
	case milp.StatusOptimal:
		return StageOptimal
	case milp.StatusInfeasible:
		return StageInfeasible
	case milp.StatusUnbounded:
		return StageUnbounded
	}
	return StageError
}

// Run is a one-shot optimization: build, solve once, extract.
type Run struct {
	mu    sync.Mutex
	stage Stage
	form  *Formulation
	sol   *milp.Solution
}

// NewRun validates p and builds its model. Input errors are returned here and
// never reach the solver.
func NewRun(p Problem, o Options) (*Run, error) {
	f, err := Build(p, o)
	if err != nil {
		return nil, err
	}
	return &Run{stage: StageBuilt, form: f}, nil
}

func (r *Run) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Formulation exposes the built model. It is nil once an optimal run has
// been extracted.
func (r *Run) Formulation() *Formulation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.form
}

// Solve runs the solver once. A solver failure is reported as StatusError,
// not as an error; the error return is only for misuse of the run.
func (r *Run) Solve(ctx context.Context) (Status, error) {
	r.mu.Lock()
	if r.stage != StageBuilt {
		st := r.stage
		r.mu.Unlock()
		return "", fmt.Errorf("%w: solve in stage %s", ErrStage, st)
	}
	r.stage = StageSolving
	f := r.form
	r.mu.Unlock()

	o := f.Options
	sol, err := milp.Solve(ctx, f.Model, milp.Options{
		TimeLimit: o.TimeLimit,
		MaxNodes:  o.MaxNodes,
		Duals:     o.Duals,
	})
	if err != nil {
		sol = &milp.Solution{Status: milp.StatusError, Reason: err.Error()}
	}

	r.mu.Lock()
	r.sol = sol
	r.stage = stageOf(sol.Status)
	r.mu.Unlock()
	return statusOf(sol.Status), nil
}

// Extract reads the result. From Optimal it moves the run to Extracted and
// releases the model; from the other terminal stages it returns diagnostics
// and leaves the stage as is.
func (r *Run) Extract() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stage.Terminal() {
		return Result{}, fmt.Errorf("%w: extract in stage %s", ErrStage, r.stage)
	}
	res := extract(r.form, r.sol)
	if r.stage == StageOptimal {
		r.stage = StageExtracted
		r.form = nil
		r.sol = nil
	}
	return res, nil
}

// Optimize validates, builds, solves and extracts in one call. The error is
// non-nil only for input faults.
func Optimize(ctx context.Context, p Problem, o Options) (Result, error) {
	r, err := NewRun(p, o)
	if err != nil {
		return Result{}, err
	}
	if _, err := r.Solve(ctx); err != nil {
		return Result{}, err
	}
	return r.Extract()
}
