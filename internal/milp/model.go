// Package milp holds a small mixed-integer linear programming model and a
// branch-and-bound solver. Node LPs run on a bounded-variable simplex that
// warm-starts children from their parent's basis; gonum's lp.Simplex is the
// fallback when it stalls.
package milp

import (
	"fmt"
	"math"
)

// Sense is the relation of a constraint row to its right-hand side.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "=="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// VarKind distinguishes continuous from integer columns.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
)

// Var is a decision variable owned by a Model.
type Var struct {
	index int
	name  string
	kind  VarKind
	lb    float64
	ub    float64
}

func (v *Var) Index() int { return v.index }
func (v *Var) Name() string { return v.name }
func (v *Var) Kind() VarKind { return v.kind }
func (v *Var) IsInteger() bool { return v.kind == Binary }
func (v *Var) Bounds() (lb, ub float64) { return v.lb, v.ub }

// Term is one coefficient of a constraint row.
type Term struct {
	Var  *Var
	Coef float64
}

// Constraint is a named linear row. Terms are added with NewTerm.
type Constraint struct {
	index int
	name  string
	sense Sense
	rhs   float64
	terms []Term
}

// NewTerm appends coef*v to the row and returns the row for chaining.
func (c *Constraint) NewTerm(coef float64, v *Var) *Constraint {
	c.terms = append(c.terms, Term{Var: v, Coef: coef})
	return c
}

func (c *Constraint) Index() int { return c.index }
func (c *Constraint) Name() string { return c.name }
func (c *Constraint) Sense() Sense { return c.sense }
func (c *Constraint) RHS() float64 { return c.rhs }
func (c *Constraint) Terms() []Term { return c.terms }

// Activity evaluates the row at the given column values.
func (c *Constraint) Activity(values []float64) float64 {
	var sum float64
	for _, t := range c.terms {
		sum += t.Coef * values[t.Var.index]
	}
	return sum
}

// Model is a minimization MILP. It is not safe for concurrent mutation.
type Model struct {
	vars     []*Var
	obj      []float64
	cons     []*Constraint
	varNames map[string]int
	conNames map[string]int
}

func NewModel() *Model {
	return &Model{varNames: map[string]int{}, conNames: map[string]int{}}
}

// NewContinuous adds a continuous column with bounds [lb, ub]. Use math.Inf(1)
// for an unbounded column.
func (m *Model) NewContinuous(name string, lb, ub float64) (*Var, error) {
	return m.newVar(name, Continuous, lb, ub)
}

// NewBinary adds a {0,1} column.
func (m *Model) NewBinary(name string) (*Var, error) {
	return m.newVar(name, Binary, 0, 1)
}

func (m *Model) newVar(name string, kind VarKind, lb, ub float64) (*Var, error) {
	if _, dup := m.varNames[name]; dup {
		return nil, fmt.Errorf("milp: duplicate variable %q", name)
	}
	if math.IsNaN(lb) || math.IsNaN(ub) || math.IsInf(lb, 0) || ub < lb {
		return nil, fmt.Errorf("milp: variable %q has invalid bounds [%g, %g]", name, lb, ub)
	}
	v := &Var{index: len(m.vars), name: name, kind: kind, lb: lb, ub: ub}
	m.vars = append(m.vars, v)
	m.obj = append(m.obj, 0)
	m.varNames[name] = v.index
	return v, nil
}

// SetUpperBound tightens or relaxes the upper bound of v.
func (m *Model) SetUpperBound(v *Var, ub float64) error {
	if math.IsNaN(ub) || ub < v.lb {
		return fmt.Errorf("milp: upper bound %g below lower bound of %q", ub, v.name)
	}
	if v.kind == Binary && ub > 1 {
		ub = 1
	}
	v.ub = ub
	return nil
}

// SetObjective sets the minimization coefficient of v.
func (m *Model) SetObjective(v *Var, coef float64) {
	m.obj[v.index] = coef
}

// NewConstraint adds an empty named row. Names must be unique within the model.
func (m *Model) NewConstraint(name string, sense Sense, rhs float64) (*Constraint, error) {
	if _, dup := m.conNames[name]; dup {
		return nil, fmt.Errorf("milp: duplicate constraint %q", name)
	}
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return nil, fmt.Errorf("milp: constraint %q has non-finite rhs", name)
	}
	c := &Constraint{index: len(m.cons), name: name, sense: sense, rhs: rhs}
	m.cons = append(m.cons, c)
	m.conNames[name] = c.index
	return c, nil
}

func (m *Model) Vars() []*Var { return m.vars }
func (m *Model) Constraints() []*Constraint { return m.cons }
func (m *Model) Objective() []float64 { return m.obj }

// Constraint looks a row up by name.
func (m *Model) Constraint(name string) (*Constraint, bool) {
	i, ok := m.conNames[name]
	if !ok {
		return nil, false
	}
	return m.cons[i], true
}

// IntegerCount reports the number of integer columns.
func (m *Model) IntegerCount() int {
	n := 0
	for _, v := range m.vars {
		if v.IsInteger() {
			n++
		}
	}
	return n
}

func (m *Model) objectiveValue(values []float64) float64 {
	var sum float64
	for j, c := range m.obj {
		sum += c * values[j]
	}
	return sum
}
