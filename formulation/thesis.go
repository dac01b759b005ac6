package formulation

import (
	"github.com/uranc/slmea/expr"
	"github.com/uranc/slmea/gradient"
	"gonum.org/v1/gonum/mat"
)

// Thesis models the source as an amplitude a[v,t] gated by a per-voxel mask
// m[v] and minimizes sum_v sigma*m[v], with sigma a variable pinned to
// Params.Sigma. Constraints:
//
//	ys[e,t] - dot(fwd[e,:], a[:,t]*m)  == 0
//	m[v](1 - m[v])                     == 0   (lifted mask only)
//	sigma                              == Params.Sigma
//	sum_t a[v,t]^2 (1 - m[v])          == 0
//	||forward_diff(m)[v]||_2           <= TVBound
//
// With Params.Orientation, a unit orientation s[v] (dot(s,s) == 1) is added
// and each of its components gets the same roughness bound.
//
// Variables: a (n_v x t_int), m (n_v), sigma, ys (n_e x t_int), s (n_v x 3).
type Thesis struct{}

const (
	varAmp    = "a"
	varMask   = "m"
	varSigma  = "sigma"
	varOrient = "s"
)

// Name implements Strategy.
func (Thesis) Name() string { return NameThesis }

// Declare implements Strategy.
func (Thesis) Declare(c *Context) error {
	if _, err := c.Vars.Declare(varAmp, c.nv, c.nt); err != nil {
		return err
	}
	if _, err := c.Vars.Declare(varMask, c.nv); err != nil {
		return err
	}
	if !c.Params.LiftedMask {
		if err := c.Vars.SetBounds(varMask, 0, 1); err != nil {
			return err
		}
	}
	if _, err := c.Vars.Declare(varSigma); err != nil {
		return err
	}
	if c.Params.Orientation {
		if _, err := c.Vars.Declare(varOrient, c.nv, 3); err != nil {
			return err
		}
	}
	return declareData(c)
}

// AddCosts implements Strategy.
func (Thesis) AddCosts(c *Context) error {
	sigma := c.Vars.MustIndex(varSigma)
	for v := 0; v < c.nv; v++ {
		c.Builder.AddCost(expr.Term(1, sigma, c.Vars.MustIndex(varMask, v)))
	}
	return nil
}

// AddConstraints implements Strategy.
func (Thesis) AddConstraints(c *Context) error {
	addFidelity(c, c.Data.Forward, func(v, t int) expr.Poly {
		return expr.Term(1, c.Vars.MustIndex(varAmp, v, t), c.Vars.MustIndex(varMask, v))
	})

	if c.Params.LiftedMask {
		for v := 0; v < c.nv; v++ {
			c.Builder.AddEquality(groupBinary, binary(c.Vars.Var(varMask, v)), 0)
		}
	}

	c.Builder.AddEquality(groupPin, c.Vars.Var(varSigma), c.Params.Sigma)

	for v := 0; v < c.nv; v++ {
		off := expr.Const(1).Sub(c.Vars.Var(varMask, v))
		c.Builder.AddEquality(groupBack, sumSquares(c, varAmp, v).Mul(off), 0)
	}

	op := gradient.New(c.Data.Grid, gradient.Forward)
	mask := make([]expr.Poly, c.nv)
	for v := range mask {
		mask[v] = c.Vars.Var(varMask, v)
	}
	if err := addRoughness(c, op, groupTV, mask); err != nil {
		return err
	}

	if c.Params.Orientation {
		for v := 0; v < c.nv; v++ {
			ps := make([]expr.Poly, 3)
			for k := range ps {
				ps[k] = c.Vars.Var(varOrient, v, k).Square()
			}
			c.Builder.AddEquality(groupUnit, expr.Sum(ps...), 1)
		}
		for k := 0; k < 3; k++ {
			comp := make([]expr.Poly, c.nv)
			for v := range comp {
				comp[v] = c.Vars.Var(varOrient, v, k)
			}
			if err := addRoughness(c, op, groupOrient, comp); err != nil {
				return err
			}
		}
	}
	return nil
}

// binary returns m(1-m), zero exactly at m in {0, 1}.
func binary(m expr.Poly) expr.Poly {
	return m.Mul(expr.Const(1).Sub(m))
}

// addRoughness bounds the Euclidean norm of the three forward differences of
// field at every voxel.
func addRoughness(c *Context, op *gradient.Operator, group string, field []expr.Poly) error {
	d, err := op.ApplyPoly(field)
	if err != nil {
		return err
	}
	for v := range field {
		c.Builder.AddUpper(group, expr.NormOf(d[0][v], d[1][v], d[2][v]), c.Params.TVBound)
	}
	return nil
}

// InitialGuess implements Strategy. Sigma starts at its pinned value.
func (Thesis) InitialGuess(c *Context) ([]float64, error) {
	free := []string{varAmp, varMask}
	if c.Params.Orientation {
		free = append(free, varOrient)
	}
	return initialGuess(c, free, map[string]float64{varSigma: c.Params.Sigma})
}

// Source implements Strategy. The effective source is a[v,t]*m[v].
func (Thesis) Source(c *Context, x []float64) (*mat.Dense, error) {
	a, err := c.Vars.Unpack(x, varAmp)
	if err != nil {
		return nil, err
	}
	m, err := c.Vars.Unpack(x, varMask)
	if err != nil {
		return nil, err
	}
	r, cols := a.Dims()
	for v := 0; v < r; v++ {
		row := a.Slice(v, v+1, 0, cols).(*mat.Dense)
		row.Scale(m.At(v, 0), row)
	}
	return a, nil
}

// Mask extracts the per-voxel mask of a thesis solution.
func Mask(c *Context, x []float64) (*mat.Dense, error) {
	return c.Vars.Unpack(x, varMask)
}
