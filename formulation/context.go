// Package formulation assembles reconstruction problems for an NLP backend.
//
// A Context carries everything a formulation step reads or writes: the grid,
// forward matrix and measurement window, the tuning parameters, the decision
// variables and the constraint builder. Strategies fill it in through a fixed
// sequence of stages; calling a step out of order fails with an error
// wrapping errs.ErrStructuralPrecondition.
package formulation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/monitoring"
	"github.com/uranc/slmea/nlp"
	"github.com/uranc/slmea/variables"
	"github.com/uranc/slmea/voxel"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrStage indicates a formulation step invoked in the wrong stage.
	ErrStage = fmt.Errorf("formulation: step out of order: %w", errs.ErrStructuralPrecondition)
	// ErrDimension indicates forward matrix, grid and measurements that disagree.
	ErrDimension = fmt.Errorf("formulation: inconsistent dimensions: %w", errs.ErrStructuralPrecondition)
	// ErrParam indicates an invalid tuning parameter.
	ErrParam = errors.New("formulation: invalid parameter")
)

// DefaultTVBound bounds the mask's spatial roughness per voxel.
const DefaultTVBound = 50

// Stage is the progress of a formulation session.
type Stage int

const (
	Initialized Stage = iota
	VariablesDeclared
	CostsAdded
	ConstraintsAdded
	Assembled
	Solved
)

func (s Stage) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case VariablesDeclared:
		return "variables-declared"
	case CostsAdded:
		return "costs-added"
	case ConstraintsAdded:
		return "constraints-added"
	case Assembled:
		return "assembled"
	case Solved:
		return "solved"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Data is the read-only input of one formulation.
type Data struct {
	Grid *voxel.Grid
	// Forward is the (n_electrodes x n_voxels) forward matrix.
	Forward mat.Matrix
	// Measurements is the (n_electrodes x t_int) window being explained.
	Measurements mat.Matrix
}

// Params are the tuning parameters shared by all strategies.
type Params struct {
	// Sigma weighs sparsity. The mask formulation pins its sigma variable to it.
	Sigma float64
	// DataTolerance widens the data variables to [y-eps, y+eps].
	DataTolerance float64
	// LiftedMask leaves the mask unbounded and forces it binary with m(1-m) == 0.
	LiftedMask bool
	// TVBound bounds the per-voxel mask roughness. Zero selects DefaultTVBound.
	TVBound float64
	// Orientation adds unit-norm orientation vectors with their own smoothness bound.
	Orientation bool
	// InitialJitter perturbs the free entries of the initial guess uniformly in
	// [-InitialJitter, InitialJitter]. Zero keeps the all-zero guess.
	InitialJitter float64
	// Seed drives the jitter.
	Seed uint64
}

// Context is the explicit state of one formulation session.
type Context struct {
	Data    Data
	Params  Params
	Vars    *variables.Set
	Builder *Builder

	strategy Strategy
	stage    Stage
	problem  *Problem
	result   *nlp.Result
	ne, nv   int
	nt       int
}

// NewContext validates data and params and returns a context in the
// Initialized stage for strategy.
func NewContext(data Data, params Params, strategy Strategy) (*Context, error) {
	if data.Grid == nil || data.Forward == nil || data.Measurements == nil {
		return nil, fmt.Errorf("%w: grid, forward matrix and measurements are required", ErrDimension)
	}
	ne, nv := data.Forward.Dims()
	me, nt := data.Measurements.Dims()
	switch {
	case nv != data.Grid.Len():
		return nil, fmt.Errorf("%w: forward matrix has %d columns, grid has %d voxels", ErrDimension, nv, data.Grid.Len())
	case me != ne:
		return nil, fmt.Errorf("%w: forward matrix has %d rows, measurements have %d", ErrDimension, ne, me)
	}
	if params.Sigma < 0 || math.IsNaN(params.Sigma) {
		return nil, fmt.Errorf("%w: sigma %g", ErrParam, params.Sigma)
	}
	if params.DataTolerance < 0 {
		return nil, fmt.Errorf("%w: data tolerance %g", ErrParam, params.DataTolerance)
	}
	if params.TVBound < 0 {
		return nil, fmt.Errorf("%w: tv bound %g", ErrParam, params.TVBound)
	}
	if params.TVBound == 0 {
		params.TVBound = DefaultTVBound
	}
	if strategy == nil {
		return nil, fmt.Errorf("%w: no strategy", ErrParam)
	}
	return &Context{
		Data:     data,
		Params:   params,
		Vars:     variables.New(),
		Builder:  &Builder{},
		strategy: strategy,
		ne:       ne,
		nv:       nv,
		nt:       nt,
	}, nil
}

// Stage returns the current stage.
func (c *Context) Stage() Stage {
	return c.stage
}

// Strategy returns the strategy the context was created for.
func (c *Context) Strategy() Strategy {
	return c.strategy
}

// Dims returns (n_electrodes, n_voxels, t_int).
func (c *Context) Dims() (ne, nv, nt int) {
	return c.ne, c.nv, c.nt
}

func (c *Context) require(s Stage, step string) error {
	if c.stage != s {
		return fmt.Errorf("%w: %s requires stage %s, context is %s", ErrStage, step, s, c.stage)
	}
	return nil
}

// DeclareVariables moves Initialized to VariablesDeclared.
func (c *Context) DeclareVariables() error {
	if err := c.require(Initialized, "DeclareVariables"); err != nil {
		return err
	}
	if err := c.strategy.Declare(c); err != nil {
		return err
	}
	c.stage = VariablesDeclared
	return nil
}

// AddCosts moves VariablesDeclared to CostsAdded.
func (c *Context) AddCosts() error {
	if err := c.require(VariablesDeclared, "AddCosts"); err != nil {
		return err
	}
	if err := c.strategy.AddCosts(c); err != nil {
		return err
	}
	c.stage = CostsAdded
	return nil
}

// AddConstraints moves CostsAdded to ConstraintsAdded.
func (c *Context) AddConstraints() error {
	if err := c.require(CostsAdded, "AddConstraints"); err != nil {
		return err
	}
	if err := c.strategy.AddConstraints(c); err != nil {
		return err
	}
	c.stage = ConstraintsAdded
	return nil
}

// Assemble finalizes the builder with the strategy's initial guess and moves
// ConstraintsAdded to Assembled.
func (c *Context) Assemble() (*Problem, error) {
	if err := c.require(ConstraintsAdded, "Assemble"); err != nil {
		return nil, err
	}
	x0, err := c.strategy.InitialGuess(c)
	if err != nil {
		return nil, err
	}
	p, err := c.Builder.Finalize(c.Vars, x0)
	if err != nil {
		return nil, err
	}
	p.Strategy = c.strategy.Name()
	c.problem = p
	c.stage = Assembled
	d := p.Describe()
	monitoring.Logf("[formulation] %s: %d variables, %d constraints (%d equalities, %d inequalities)",
		p.Strategy, d.Variables, d.Constraints, d.Equalities, d.Inequalities)
	return p, nil
}

// Formulate runs every stage up to Assembled.
func (c *Context) Formulate() (*Problem, error) {
	for _, step := range []func() error{c.DeclareVariables, c.AddCosts, c.AddConstraints} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return c.Assemble()
}

// Minimize hands the assembled problem to solver and moves Assembled to
// Solved. A non-converged solve still reaches Solved; check Outcome.
func (c *Context) Minimize(ctx context.Context, solver nlp.Solver, opts nlp.Options, cb nlp.Callback) (*nlp.Result, error) {
	if err := c.require(Assembled, "Minimize"); err != nil {
		return nil, err
	}
	res, err := solver.Solve(ctx, &c.problem.Problem, opts, cb)
	if err != nil {
		return nil, err
	}
	c.result = res
	c.stage = Solved
	return res, nil
}

// Outcome returns the solver status once the context is Solved.
func (c *Context) Outcome() (nlp.Status, error) {
	if err := c.require(Solved, "Outcome"); err != nil {
		return nlp.Failed, err
	}
	return c.result.Status, nil
}

// Problem returns the assembled problem, or nil before Assemble.
func (c *Context) Problem() *Problem {
	return c.problem
}
