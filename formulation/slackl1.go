package formulation

import (
	"github.com/uranc/slmea/expr"
	"gonum.org/v1/gonum/mat"
)

// SlackL1 bounds the per-voxel energy sum_t x[j,t]^2 by a slack xs[j] and
// minimizes sigma * sum_j xs[j], a differentiable stand-in for the row-wise
// group-sparsity penalty.
//
// Variables: x (n_v x t_int), xs (n_v), ys (n_e x t_int).
type SlackL1 struct{}

const (
	varSource = "x"
	varSlack  = "xs"
)

// Name implements Strategy.
func (SlackL1) Name() string { return NameSlackL1 }

// Declare implements Strategy.
func (SlackL1) Declare(c *Context) error {
	if _, err := c.Vars.Declare(varSource, c.nv, c.nt); err != nil {
		return err
	}
	if _, err := c.Vars.Declare(varSlack, c.nv); err != nil {
		return err
	}
	return declareData(c)
}

// AddCosts implements Strategy.
func (SlackL1) AddCosts(c *Context) error {
	for j := 0; j < c.nv; j++ {
		c.Builder.AddCost(c.Vars.Var(varSlack, j).Scale(c.Params.Sigma))
	}
	return nil
}

// AddConstraints implements Strategy. Per voxel j, with E = sum_t x[j,t]^2:
//
//	-xs[j] - E <= 0
//	-xs[j] + E <= 0
//	-xs[j]     <= 0
func (SlackL1) AddConstraints(c *Context) error {
	addFidelity(c, c.Data.Forward, func(v, t int) expr.Poly {
		return c.Vars.Var(varSource, v, t)
	})
	for j := 0; j < c.nv; j++ {
		xs := c.Vars.Var(varSlack, j)
		energy := sumSquares(c, varSource, j)
		c.Builder.AddUpper(groupSlack, xs.Scale(-1).Sub(energy), 0)
		c.Builder.AddUpper(groupSlack, xs.Scale(-1).Add(energy), 0)
		c.Builder.AddUpper(groupSlack, xs.Scale(-1), 0)
	}
	return nil
}

// InitialGuess implements Strategy.
func (SlackL1) InitialGuess(c *Context) ([]float64, error) {
	return initialGuess(c, []string{varSource}, nil)
}

// Source implements Strategy.
func (SlackL1) Source(c *Context, x []float64) (*mat.Dense, error) {
	return c.Vars.Unpack(x, varSource)
}
