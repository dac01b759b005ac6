package formulation

import (
	"fmt"
	"math"
	"sort"

	"github.com/uranc/slmea/expr"
	"github.com/uranc/slmea/nlp"
	"github.com/uranc/slmea/variables"
)

// ErrUnbalanced indicates constraint, lower and upper bound sequences of different lengths.
var ErrUnbalanced = fmt.Errorf("formulation: constraint and bound sequences differ in length: %w", ErrDimension)

// Builder accumulates objective terms and constraint rows. Constraints are
// stored as three parallel sequences plus a group label per row.
type Builder struct {
	costs       []expr.Poly
	constraints []expr.Expr
	lower       []float64
	upper       []float64
	groups      []string
}

// AddCost appends an objective term.
func (b *Builder) AddCost(p expr.Poly) {
	b.costs = append(b.costs, p)
}

// AddConstraint appends lo <= e <= hi under group.
func (b *Builder) AddConstraint(group string, e expr.Expr, lo, hi float64) {
	b.constraints = append(b.constraints, e)
	b.lower = append(b.lower, lo)
	b.upper = append(b.upper, hi)
	b.groups = append(b.groups, group)
}

// AddEquality appends e == v.
func (b *Builder) AddEquality(group string, e expr.Expr, v float64) {
	b.AddConstraint(group, e, v, v)
}

// AddUpper appends e <= hi.
func (b *Builder) AddUpper(group string, e expr.Expr, hi float64) {
	b.AddConstraint(group, e, math.Inf(-1), hi)
}

// Len returns the number of constraint rows.
func (b *Builder) Len() int {
	return len(b.constraints)
}

// Finalize concatenates the accumulated terms into a Problem over vars and
// checks the length invariants.
func (b *Builder) Finalize(vars *variables.Set, x0 []float64) (*Problem, error) {
	if len(b.constraints) != len(b.lower) || len(b.constraints) != len(b.upper) || len(b.constraints) != len(b.groups) {
		return nil, fmt.Errorf("%w: %d expressions, %d lower, %d upper", ErrUnbalanced, len(b.constraints), len(b.lower), len(b.upper))
	}
	if len(x0) != vars.Len() {
		return nil, fmt.Errorf("%w: initial guess has %d entries, %d variables", ErrDimension, len(x0), vars.Len())
	}
	lo, hi := vars.Bounds()
	p := &Problem{
		Problem: nlp.Problem{
			Objective:   expr.Sum(b.costs...),
			Constraints: append([]expr.Expr(nil), b.constraints...),
			Lower:       append([]float64(nil), b.lower...),
			Upper:       append([]float64(nil), b.upper...),
			VarLower:    lo,
			VarUpper:    hi,
			X0:          x0,
		},
		Vars:   vars,
		Groups: append([]string(nil), b.groups...),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Problem is an assembled formulation.
type Problem struct {
	nlp.Problem
	Vars     *variables.Set
	Strategy string
	// Groups labels every constraint row, e.g. "fidelity" or "tv".
	Groups []string
}

// Description summarizes a Problem for logs.
type Description struct {
	Variables    int
	Constraints  int
	Equalities   int
	Inequalities int
	ByGroup      map[string]int
}

// GroupNames returns the group labels in sorted order.
func (d Description) GroupNames() []string {
	res := make([]string, 0, len(d.ByGroup))
	for g := range d.ByGroup {
		res = append(res, g)
	}
	sort.Strings(res)
	return res
}

// Describe counts variables and constraints.
func (p *Problem) Describe() Description {
	d := Description{
		Variables:   p.N(),
		Constraints: len(p.Constraints),
		ByGroup:     make(map[string]int),
	}
	for i := range p.Constraints {
		if p.Lower[i] == p.Upper[i] {
			d.Equalities++
		} else {
			d.Inequalities++
		}
		d.ByGroup[p.Groups[i]]++
	}
	return d
}

// Rows returns the indices of the constraints in group.
func (p *Problem) Rows(group string) []int {
	var res []int
	for i, g := range p.Groups {
		if g == group {
			res = append(res, i)
		}
	}
	return res
}
