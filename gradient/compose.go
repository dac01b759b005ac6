package gradient

import (
	"github.com/uranc/slmea/expr"
	"github.com/uranc/slmea/voxel"
	"gonum.org/v1/gonum/mat"
)

// Apply evaluates the operator on every voxel and time sample of field and
// stacks the three axis results into a 3 x (n_voxels*n_t) matrix. Column
// v*n_t + t holds voxel v (row-major (i,j,k) order) at sample t; constraint
// indices elsewhere rely on this order.
func (op *Operator) Apply(field []float64) (*mat.Dense, error) {
	nt, err := op.grid.TimeSamples(len(field))
	if err != nil {
		return nil, err
	}
	var rows [3][]float64
	for v := 0; v < op.grid.Len(); v++ {
		stencils := op.stencils(v)
		for t := 0; t < nt; t++ {
			for _, a := range voxel.Axes {
				rows[a] = append(rows[a], stencils[a].Eval(field, t, nt))
			}
		}
	}
	data := make([]float64, 0, 3*len(rows[0]))
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.NewDense(3, len(rows[0]), data), nil
}

// ApplyPoly is Apply over a symbolic field. The result is indexed
// [axis][v*n_t + t].
func (op *Operator) ApplyPoly(field []expr.Poly) ([3][]expr.Poly, error) {
	var rows [3][]expr.Poly
	nt, err := op.grid.TimeSamples(len(field))
	if err != nil {
		return rows, err
	}
	for v := 0; v < op.grid.Len(); v++ {
		stencils := op.stencils(v)
		for t := 0; t < nt; t++ {
			for _, a := range voxel.Axes {
				rows[a] = append(rows[a], stencils[a].Poly(field, t, nt))
			}
		}
	}
	return rows, nil
}

func (op *Operator) stencils(v int) [3]Stencil {
	var res [3]Stencil
	for _, a := range voxel.Axes {
		res[a] = op.Stencil(v, a)
	}
	return res
}

// Poly applies the stencil to time sample t of a symbolic field.
func (s Stencil) Poly(field []expr.Poly, t, nt int) expr.Poly {
	coefs := make([]float64, len(s))
	ps := make([]expr.Poly, len(s))
	for i, tp := range s {
		coefs[i] = tp.Weight
		ps[i] = field[voxel.FieldIndex(tp.Index, t, nt)]
	}
	return expr.Dot(coefs, ps)
}

// CmpGradient is the central-difference gradient of field.
func CmpGradient(grid *voxel.Grid, field []float64) (*mat.Dense, error) {
	return New(grid, Central).Apply(field)
}

// CmpFwdDiff is the forward-difference gradient of field.
func CmpFwdDiff(grid *voxel.Grid, field []float64) (*mat.Dense, error) {
	return New(grid, Forward).Apply(field)
}

// CmpAverage is the forward average of field, used for coordinates rather than values.
func CmpAverage(grid *voxel.Grid, field []float64) (*mat.Dense, error) {
	return New(grid, Average).Apply(field)
}
