package formulation

import (
	"github.com/uranc/slmea/expr"
	"github.com/uranc/slmea/gonumExtensions"
	"gonum.org/v1/gonum/mat"
)

// PosNeg splits the source into non-negative parts, x = xp - xn, and
// penalizes sum(xp^2 + xn^2). The data term applies [fwd, fwd] to the
// stacked source [xp; -xn].
//
// Variables: xp, xn (n_v x t_int), ys (n_e x t_int).
type PosNeg struct{}

const (
	varPos = "xp"
	varNeg = "xn"
)

// Name implements Strategy.
func (PosNeg) Name() string { return NamePosNeg }

// Declare implements Strategy.
func (PosNeg) Declare(c *Context) error {
	for _, name := range []string{varPos, varNeg} {
		if _, err := c.Vars.Declare(name, c.nv, c.nt); err != nil {
			return err
		}
	}
	return declareData(c)
}

// AddCosts implements Strategy.
func (PosNeg) AddCosts(c *Context) error {
	for j := 0; j < c.nv; j++ {
		c.Builder.AddCost(sumSquares(c, varPos, j).Add(sumSquares(c, varNeg, j)))
	}
	return nil
}

// AddConstraints implements Strategy.
func (PosNeg) AddConstraints(c *Context) error {
	addFidelity(c, gonumExtensions.RepeatHorizontal(c.Data.Forward, 2), func(u, t int) expr.Poly {
		if u < c.nv {
			return c.Vars.Var(varPos, u, t)
		}
		return c.Vars.Var(varNeg, u-c.nv, t).Scale(-1)
	})
	for _, name := range []string{varPos, varNeg} {
		for j := 0; j < c.nv; j++ {
			for t := 0; t < c.nt; t++ {
				c.Builder.AddUpper(groupSign, c.Vars.Var(name, j, t).Scale(-1), 0)
			}
		}
	}
	return nil
}

// InitialGuess implements Strategy.
func (PosNeg) InitialGuess(c *Context) ([]float64, error) {
	return initialGuess(c, []string{varPos, varNeg}, nil)
}

// Source implements Strategy.
func (PosNeg) Source(c *Context, x []float64) (*mat.Dense, error) {
	pos, err := c.Vars.Unpack(x, varPos)
	if err != nil {
		return nil, err
	}
	neg, err := c.Vars.Unpack(x, varNeg)
	if err != nil {
		return nil, err
	}
	var res mat.Dense
	res.Sub(pos, neg)
	return &res, nil
}
