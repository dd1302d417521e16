package opt

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrShape             = errors.New("input shape mismatch")
	ErrInvalidValue      = errors.New("invalid input value")
	ErrMissingTravelTime = errors.New("missing travel time")
	ErrStage             = errors.New("invalid run stage")
)

// InputError lists every problem found with one kind of input fault. It
// unwraps to ErrShape, ErrInvalidValue or ErrMissingTravelTime.
type InputError struct {
	Kind   error
	Issues []string
	Lanes  []Lane
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Issues, "; "))
}

func (e *InputError) Unwrap() error { return e.Kind }

// Validate checks dimensions first and values second. Nothing is padded or
// truncated.
func Validate(p Problem) error {
	S, D, K := len(p.Supply), len(p.Demand), len(p.Drivers)
	var issues []string
	if S == 0 {
		issues = append(issues, "no supply points")
	}
	if D == 0 {
		issues = append(issues, "no demand points")
	}
	if K == 0 {
		issues = append(issues, "no drivers")
	}
	issues = append(issues, matrixShape("cost", len(p.Cost), func(i int) int { return len(p.Cost[i]) }, S, D)...)
	issues = append(issues, matrixShape("travel time", len(p.TravelTimes), func(i int) int { return len(p.TravelTimes[i]) }, S, D)...)
	if len(issues) > 0 {
		return &InputError{Kind: ErrShape, Issues: issues}
	}

	bad := func(v float64) bool { return v < 0 || math.IsNaN(v) || math.IsInf(v, 0) }
	for i, s := range p.Supply {
		if bad(s.Available) {
			issues = append(issues, fmt.Sprintf("supply %d: available quantity %g", i, s.Available))
		}
	}
	for j, d := range p.Demand {
		if bad(d.Required) {
			issues = append(issues, fmt.Sprintf("demand %d: required quantity %g", j, d.Required))
		}
	}
	for k, d := range p.Drivers {
		if bad(d.MaxHours) {
			issues = append(issues, fmt.Sprintf("driver %d: max hours %g", k, d.MaxHours))
		}
		if bad(d.MaxLoad) {
			issues = append(issues, fmt.Sprintf("driver %d: max load %g", k, d.MaxLoad))
		}
	}
	for i := range p.Cost {
		for j, c := range p.Cost[i] {
			if bad(c) {
				issues = append(issues, fmt.Sprintf("cost[%d][%d] = %g", i, j, c))
			}
			if t := p.TravelTimes[i][j]; t.Known && bad(t.Hours) {
				issues = append(issues, fmt.Sprintf("travel time[%d][%d] = %g", i, j, t.Hours))
			}
		}
	}
	if len(issues) > 0 {
		return &InputError{Kind: ErrInvalidValue, Issues: issues}
	}
	return nil
}

func matrixShape(name string, rows int, cols func(int) int, S, D int) []string {
	if rows != S {
		return []string{fmt.Sprintf("%s matrix has %d rows, want %d (one per supply point)", name, rows, S)}
	}
	var out []string
	for i := 0; i < rows; i++ {
		if c := cols(i); c != D {
			out = append(out, fmt.Sprintf("%s row %d has %d columns, want %d (one per demand point)", name, i, c, D))
		}
	}
	return out
}

// UnknownLanes lists lanes with no travel-time estimate, supply-major.
func UnknownLanes(p Problem) []Lane {
	var out []Lane
	for i := range p.TravelTimes {
		for j, t := range p.TravelTimes[i] {
			if !t.Known {
				out = append(out, Lane{Supply: i, Demand: j})
			}
		}
	}
	return out
}

func missingTimeError(lanes []Lane) error {
	issues := make([]string, len(lanes))
	for n, l := range lanes {
		issues[n] = fmt.Sprintf("lane (%d,%d)", l.Supply, l.Demand)
	}
	return &InputError{Kind: ErrMissingTravelTime, Issues: issues, Lanes: lanes}
}
