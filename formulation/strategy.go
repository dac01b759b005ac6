package formulation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/uranc/slmea/expr"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownStrategy indicates a strategy name with no registered Strategy.
var ErrUnknownStrategy = fmt.Errorf("formulation: unknown strategy: %w", ErrParam)

// Strategy is one formulation. Each method implements one stage transition
// and is only called by the matching Context step.
type Strategy interface {
	Name() string
	Declare(c *Context) error
	AddCosts(c *Context) error
	AddConstraints(c *Context) error
	InitialGuess(c *Context) ([]float64, error)
	// Source extracts the (n_voxels x t_int) source amplitude from a solution.
	Source(c *Context, x []float64) (*mat.Dense, error)
}

// Strategy names.
const (
	NameSlackL1 = "slack_l1"
	NamePosNeg  = "posneg"
	NameThesis  = "thesis"
)

var registry = map[string]func() Strategy{
	NameSlackL1: func() Strategy { return SlackL1{} },
	NamePosNeg:  func() Strategy { return PosNeg{} },
	NameThesis:  func() Strategy { return Thesis{} },
}

// Lookup returns the strategy registered under name.
func Lookup(name string) (Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return f(), nil
}

// Names returns the registered strategy names, sorted.
func Names() []string {
	res := make([]string, 0, len(registry))
	for n := range registry {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}

// Variable and constraint group names shared by the strategies.
const (
	varData     = "ys"
	groupData   = "fidelity"
	groupSign   = "sign"
	groupSlack  = "slack"
	groupBinary = "binary"
	groupPin    = "pin"
	groupBack   = "background"
	groupTV     = "tv"
	groupUnit   = "unit"
	groupOrient = "orientation"
)

// declareData declares the lifted data copies ys (n_e x t_int), bounded to
// the measurements widened by the data tolerance.
func declareData(c *Context) error {
	if _, err := c.Vars.Declare(varData, c.ne, c.nt); err != nil {
		return err
	}
	eps := c.Params.DataTolerance
	for e := 0; e < c.ne; e++ {
		for t := 0; t < c.nt; t++ {
			y := c.Data.Measurements.At(e, t)
			if err := c.Vars.SetBoundsAt(y-eps, y+eps, varData, e, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// addFidelity adds ys[e,t] - dot(fwd[e,:], source[:,t]) == 0 for every
// electrode and time sample. source(u, t) returns column u's source term; fwd
// may be wider than the grid (the split formulation stacks two copies).
func addFidelity(c *Context, fwd mat.Matrix, source func(u, t int) expr.Poly) {
	_, nu := fwd.Dims()
	row := make([]float64, nu)
	terms := make([]expr.Poly, nu)
	for e := 0; e < c.ne; e++ {
		mat.Row(row, e, fwd)
		for t := 0; t < c.nt; t++ {
			for u := range terms {
				if row[u] != 0 {
					terms[u] = source(u, t)
				} else {
					terms[u] = expr.Poly{}
				}
			}
			pred := expr.Dot(row, terms)
			c.Builder.AddEquality(groupData, c.Vars.Var(varData, e, t).Sub(pred), 0)
		}
	}
}

// initialGuess returns the all-zero vector, with the free entries jittered
// when InitialJitter is set and every entry in pinned filled with its value.
// A jittered entry is drawn uniformly from [-j, j] intersected with its
// bounds, or sits on the bound nearest 0 when the two do not overlap.
func initialGuess(c *Context, free []string, pinned map[string]float64) ([]float64, error) {
	x := c.Vars.Zero()
	if j := c.Params.InitialJitter; j > 0 {
		rng := rand.New(rand.NewPCG(c.Params.Seed, c.Params.Seed^0x9e3779b97f4a7c15))
		lower, upper := c.Vars.Bounds()
		for _, name := range free {
			e, err := c.Vars.Entry(name)
			if err != nil {
				return nil, err
			}
			for i := e.Offset; i < e.Offset+e.Size(); i++ {
				lo, hi := math.Max(lower[i], -j), math.Min(upper[i], j)
				if lo > hi {
					x[i] = math.Min(math.Max(0, lower[i]), upper[i])
					continue
				}
				x[i] = lo + (hi-lo)*rng.Float64()
			}
		}
	}
	for name, v := range pinned {
		if err := c.Vars.Fill(x, name, v); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// sumSquares returns sum_t x[v,t]^2 for entry name.
func sumSquares(c *Context, name string, v int) expr.Poly {
	ps := make([]expr.Poly, c.nt)
	for t := range ps {
		ps[t] = c.Vars.Var(name, v, t).Square()
	}
	return expr.Sum(ps...)
}
