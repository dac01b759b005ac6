// Package nlp defines the contract between an assembled formulation and a
// nonlinear programming backend, and provides one backend.
package nlp

import (
	"context"
	"fmt"
	"math"

	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/expr"
)

// ErrMalformed indicates a problem whose vectors disagree in length.
var ErrMalformed = fmt.Errorf("nlp: malformed problem: %w", errs.ErrStructuralPrecondition)

// Problem is
//
//	minimize   Objective(x)
//	subject to Lower[i] <= Constraints[i](x) <= Upper[i]
//	           VarLower[j] <= x[j] <= VarUpper[j]
//
// starting from X0. Lower == Upper marks an equality.
type Problem struct {
	Objective   expr.Expr
	Constraints []expr.Expr
	Lower       []float64
	Upper       []float64
	VarLower    []float64
	VarUpper    []float64
	X0          []float64
}

// N returns the number of decision variables.
func (p *Problem) N() int {
	return len(p.X0)
}

// Validate checks the length invariants between the problem's vectors.
func (p *Problem) Validate() error {
	n := len(p.X0)
	switch {
	case p.Objective == nil:
		return fmt.Errorf("%w: no objective", ErrMalformed)
	case n == 0:
		return fmt.Errorf("%w: no variables", ErrMalformed)
	case len(p.Constraints) != len(p.Lower) || len(p.Constraints) != len(p.Upper):
		return fmt.Errorf("%w: %d constraints, %d lower, %d upper bounds", ErrMalformed, len(p.Constraints), len(p.Lower), len(p.Upper))
	case len(p.VarLower) != n || len(p.VarUpper) != n:
		return fmt.Errorf("%w: %d variables, %d lower, %d upper bounds", ErrMalformed, n, len(p.VarLower), len(p.VarUpper))
	}
	for i := range p.Lower {
		if p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("%w: constraint %d has bounds [%g, %g]", ErrMalformed, i, p.Lower[i], p.Upper[i])
		}
	}
	for _, c := range p.Constraints {
		for _, v := range c.Vars() {
			if v >= n {
				return fmt.Errorf("%w: constraint reads x[%d] of %d", ErrMalformed, v, n)
			}
		}
	}
	return nil
}

// MaxViolation returns the largest amount by which x violates a constraint or
// variable bound.
func (p *Problem) MaxViolation(x []float64) float64 {
	var res float64
	for i, c := range p.Constraints {
		res = math.Max(res, outside(c.Eval(x), p.Lower[i], p.Upper[i]))
	}
	for j := range x {
		res = math.Max(res, outside(x[j], p.VarLower[j], p.VarUpper[j]))
	}
	return res
}

func outside(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo - v
	case v > hi:
		return v - hi
	}
	return 0
}

// Status is the terminal state of a solve. Non-convergence is a status, not an error.
type Status int

const (
	Success Status = iota
	Failed
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Options are passed through to the backend.
type Options struct {
	// MaxIter caps the outer iterations.
	MaxIter int
	// HessianApproximation names the quasi-Newton strategy.
	HessianApproximation string
	// LinearSolver names a linear algebra backend. Backends that have no choice ignore it.
	LinearSolver string
	// CallbackEvery is the iteration cadence of the progress callback.
	CallbackEvery int
	// Tolerance on the maximum constraint violation and the objective change.
	Tolerance float64
	// Extra holds backend-specific settings.
	Extra map[string]string
}

// Default option values.
const (
	DefaultMaxIter              = 10000
	DefaultHessianApproximation = "limited-memory"
	DefaultTolerance            = 1e-6
)

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.HessianApproximation == "" {
		o.HessianApproximation = DefaultHessianApproximation
	}
	if o.CallbackEvery <= 0 {
		o.CallbackEvery = 1
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	return o
}

// Result is the outcome of a solve.
type Result struct {
	X            []float64
	Objective    float64
	Status       Status
	Iterations   int
	MaxViolation float64
	Message      string
}

// Callback receives the current iterate. A non-nil error aborts the solve.
// x is a copy owned by the callee.
type Callback func(iter int, x []float64) error

// Solver is an NLP backend.
type Solver interface {
	Solve(ctx context.Context, p *Problem, opts Options, cb Callback) (*Result, error)
}
