package voxel

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FieldIndex returns the flat position of (voxel v, time sample t) in a field
// packing nt samples per voxel.
func FieldIndex(v, t, nt int) int {
	return v*nt + t
}

// FieldFromMatrix flattens an (n_voxels x n_t) matrix into a field.
func (g *Grid) FieldFromMatrix(m mat.Matrix) ([]float64, error) {
	r, c := m.Dims()
	if r != g.Len() {
		return nil, fmt.Errorf("%w: matrix has %d rows, grid has %d voxels", ErrFieldLength, r, g.Len())
	}
	res := make([]float64, r*c)
	for v := 0; v < r; v++ {
		for t := 0; t < c; t++ {
			res[FieldIndex(v, t, c)] = m.At(v, t)
		}
	}
	return res, nil
}

// Volume is a field reshaped onto the grid: At(i, j, k, t).
type Volume struct {
	grid *Grid
	nt   int
	data []float64
}

// Reshape validates a flat field and exposes it as a Volume. The field is not copied.
func (g *Grid) Reshape(field []float64) (*Volume, error) {
	nt, err := g.TimeSamples(len(field))
	if err != nil {
		return nil, err
	}
	return &Volume{grid: g, nt: nt, data: field}, nil
}

// Shape returns (ni, nj, nk, nt).
func (vol *Volume) Shape() (ni, nj, nk, nt int) {
	ni, nj, nk = vol.grid.Shape()
	return ni, nj, nk, vol.nt
}

// At returns the value at voxel (i,j,k) and time sample t.
func (vol *Volume) At(i, j, k, t int) float64 {
	return vol.data[FieldIndex(vol.grid.Index(i, j, k), t, vol.nt)]
}

// Frame returns the values of time sample t in voxel order.
func (vol *Volume) Frame(t int) []float64 {
	n := vol.grid.Len()
	res := make([]float64, n)
	for v := 0; v < n; v++ {
		res[v] = vol.data[FieldIndex(v, t, vol.nt)]
	}
	return res
}

// Matrix returns the volume as an (n_voxels x n_t) matrix.
func (vol *Volume) Matrix() *mat.Dense {
	return mat.NewDense(vol.grid.Len(), vol.nt, append([]float64(nil), vol.data...))
}
