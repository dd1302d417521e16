package opt

import (
	"fmt"
	"math"

	"freightplan/internal/milp"
)

// Family groups constraints of the same kind.
type Family string

const (
	FamilySupply   Family = "supply"
	FamilyDemand   Family = "demand"
	FamilyHours    Family = "hours"
	FamilyCapacity Family = "capacity"
	FamilyLink     Family = "link"
)

func SupplyName(i int) string { return fmt.Sprintf("supply[%d]", i) }
func DemandName(j int) string { return fmt.Sprintf("demand[%d]", j) }
func HoursName(k int) string { return fmt.Sprintf("hours[%d]", k) }
func CapacityName(i, j, k int) string { return fmt.Sprintf("capacity[%d,%d,%d]", i, j, k) }
func LinkName(i, j, k int) string { return fmt.Sprintf("link[%d,%d,%d]", i, j, k) }

// Formulation is the MILP built for one Problem. Variables live in two flat
// blocks addressed by Index: x then y.
type Formulation struct {
	Problem Problem
	Options Options
	Model   *milp.Model
	X, Y    []*milp.Var
	S, D, K int

	families     []Family
	closed       []bool
	UnknownLanes []Lane
}

// Index maps (supply, demand, driver) to the flat slot used by X and Y.
func (f *Formulation) Index(i, j, k int) int { return (i*f.D+j)*f.K + k }

// Coords inverts Index.
func (f *Formulation) Coords(idx int) (i, j, k int) {
	k = idx % f.K
	idx /= f.K
	return idx / f.D, idx % f.D, k
}

// Closed reports whether driver k is barred from lane (i,j) at build time.
func (f *Formulation) Closed(i, j, k int) bool { return f.closed[f.Index(i, j, k)] }

// Family returns the family of the constraint at model row r.
func (f *Formulation) Family(r int) Family { return f.families[r] }

// Build validates p and assembles the allocation MILP.
func Build(p Problem, o Options) (*Formulation, error) {
	o, err := o.normalized()
	if err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	unknown := UnknownLanes(p)
	if len(unknown) > 0 && o.MissingTravelTime == MissingReject {
		return nil, missingTimeError(unknown)
	}

	f := &Formulation{
		Problem:      p,
		Options:      o,
		Model:        milp.NewModel(),
		S:            len(p.Supply),
		D:            len(p.Demand),
		K:            len(p.Drivers),
		UnknownLanes: unknown,
	}
	n := f.S * f.D * f.K
	f.X = make([]*milp.Var, n)
	f.Y = make([]*milp.Var, n)
	f.closed = make([]bool, n)
	if err := f.addVars(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if err := f.addConstraints(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	return f, nil
}

// laneClosed applies the build-time tightenings: unavailable drivers, lanes
// longer than a driver's budget, and unknown lanes under MissingForbid.
func (f *Formulation) laneClosed(i, j, k int) bool {
	d := f.Problem.Drivers[k]
	if !d.Available() {
		return true
	}
	t := f.Problem.TravelTimes[i][j]
	if !t.Known {
		return f.Options.MissingTravelTime == MissingForbid
	}
	return t.Hours > d.MaxHours
}

func (f *Formulation) addVars() error {
	m := f.Model
	for i := 0; i < f.S; i++ {
		for j := 0; j < f.D; j++ {
			for k := 0; k < f.K; k++ {
				v, err := m.NewContinuous(fmt.Sprintf("x[%d,%d,%d]", i, j, k), 0, math.Inf(1))
				if err != nil {
					return err
				}
				m.SetObjective(v, f.Problem.Cost[i][j])
				f.X[f.Index(i, j, k)] = v
			}
		}
	}
	for i := 0; i < f.S; i++ {
		for j := 0; j < f.D; j++ {
			for k := 0; k < f.K; k++ {
				idx := f.Index(i, j, k)
				v, err := m.NewBinary(fmt.Sprintf("y[%d,%d,%d]", i, j, k))
				if err != nil {
					return err
				}
				if f.laneClosed(i, j, k) {
					f.closed[idx] = true
					if err := m.SetUpperBound(v, 0); err != nil {
						return err
					}
				}
				f.Y[idx] = v
			}
		}
	}
	return nil
}

func (f *Formulation) addConstraints() error {
	p := f.Problem
	m := f.Model
	add := func(fam Family, name string, sense milp.Sense, rhs float64) (*milp.Constraint, error) {
		c, err := m.NewConstraint(name, sense, rhs)
		if err != nil {
			return nil, err
		}
		f.families = append(f.families, fam)
		return c, nil
	}

	for i := 0; i < f.S; i++ {
		c, err := add(FamilySupply, SupplyName(i), milp.LessEqual, p.Supply[i].Available)
		if err != nil {
			return err
		}
		for j := 0; j < f.D; j++ {
			for k := 0; k < f.K; k++ {
				c.NewTerm(1, f.X[f.Index(i, j, k)])
			}
		}
	}
	for j := 0; j < f.D; j++ {
		c, err := add(FamilyDemand, DemandName(j), milp.Equal, p.Demand[j].Required)
		if err != nil {
			return err
		}
		for i := 0; i < f.S; i++ {
			for k := 0; k < f.K; k++ {
				c.NewTerm(1, f.X[f.Index(i, j, k)])
			}
		}
	}
	for k := 0; k < f.K; k++ {
		c, err := add(FamilyHours, HoursName(k), milp.LessEqual, p.Drivers[k].MaxHours)
		if err != nil {
			return err
		}
		for i := 0; i < f.S; i++ {
			for j := 0; j < f.D; j++ {
				// Unknown lanes are either excluded from the sum or closed.
				if t := p.TravelTimes[i][j]; t.Known {
					c.NewTerm(t.Hours, f.Y[f.Index(i, j, k)])
				}
			}
		}
	}
	for i := 0; i < f.S; i++ {
		for j := 0; j < f.D; j++ {
			for k := 0; k < f.K; k++ {
				c, err := add(FamilyCapacity, CapacityName(i, j, k), milp.LessEqual, p.Drivers[k].MaxLoad)
				if err != nil {
					return err
				}
				c.NewTerm(1, f.X[f.Index(i, j, k)])
			}
		}
	}
	for i := 0; i < f.S; i++ {
		for j := 0; j < f.D; j++ {
			for k := 0; k < f.K; k++ {
				idx := f.Index(i, j, k)
				c, err := add(FamilyLink, LinkName(i, j, k), milp.LessEqual, 0)
				if err != nil {
					return err
				}
				c.NewTerm(1, f.X[idx]).NewTerm(-p.Demand[j].Required, f.Y[idx])
			}
		}
	}
	return nil
}
