// Package voxel holds the discretized source space: a regular 3D grid of voxel
// centers, the mapping between (i,j,k) voxel coordinates and row-major flat
// indices, and the helpers that validate and reshape fields defined on it.
package voxel

import (
	"errors"
	"fmt"
	"math"

	"github.com/uranc/slmea/errs"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyGrid indicates a grid with a zero extent along some axis.
	ErrEmptyGrid = fmt.Errorf("voxel: grid must have at least one voxel per axis: %w", errs.ErrStructuralPrecondition)
	// ErrShapeMismatch indicates coordinate arrays that disagree with the declared extents.
	ErrShapeMismatch = fmt.Errorf("voxel: coordinate arrays do not match grid shape: %w", errs.ErrStructuralPrecondition)
	// ErrFieldLength indicates a field whose length is not a multiple of the voxel count.
	ErrFieldLength = fmt.Errorf("voxel: field length is not a multiple of the voxel count: %w", errs.ErrStructuralPrecondition)
	// ErrBadResolution indicates a non-positive voxel resolution.
	ErrBadResolution = errors.New("voxel: resolution must be positive")
)

// Axis names one of the three grid directions.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Axes lists the grid directions in the order operators stack them.
var Axes = [3]Axis{AxisX, AxisY, AxisZ}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Grid is an immutable set of voxel centers laid out on an (ni, nj, nk) lattice.
// Voxels are flattened in row-major (i,j,k) order: v = (i*nj + j)*nk + k.
type Grid struct {
	shape   [3]int
	x, y, z []float64
}

// NewGrid builds the ij-indexed meshgrid of the three axis coordinate vectors.
func NewGrid(xs, ys, zs []float64) (*Grid, error) {
	ni, nj, nk := len(xs), len(ys), len(zs)
	if ni == 0 || nj == 0 || nk == 0 {
		return nil, ErrEmptyGrid
	}
	n := ni * nj * nk
	x := make([]float64, n)
	y := make([]float64, n)
	z := make([]float64, n)
	for i := 0; i < ni; i++ {
		for j := 0; j < nj; j++ {
			for k := 0; k < nk; k++ {
				v := (i*nj+j)*nk + k
				x[v], y[v], z[v] = xs[i], ys[j], zs[k]
			}
		}
	}
	return &Grid{shape: [3]int{ni, nj, nk}, x: x, y: y, z: z}, nil
}

// NewGridFromCoordinates wraps three row-major coordinate arrays of shape
// (ni, nj, nk). The slices are copied.
func NewGridFromCoordinates(ni, nj, nk int, x, y, z []float64) (*Grid, error) {
	if ni <= 0 || nj <= 0 || nk <= 0 {
		return nil, ErrEmptyGrid
	}
	n := ni * nj * nk
	if len(x) != n || len(y) != n || len(z) != n {
		return nil, ErrShapeMismatch
	}
	g := &Grid{
		shape: [3]int{ni, nj, nk},
		x:     append([]float64(nil), x...),
		y:     append([]float64(nil), y...),
		z:     append([]float64(nil), z...),
	}
	return g, nil
}

// NewGridFromBounds spans the box [lo, hi] with res voxels along every axis.
// A degenerate box side, as for a planar electrode array, collapses that axis
// onto a single voxel.
func NewGridFromBounds(lo, hi [3]float64, res int) (*Grid, error) {
	if res <= 0 {
		return nil, ErrBadResolution
	}
	var axes [3][]float64
	for a := range axes {
		n := res
		if hi[a] <= lo[a] {
			n = 1
		}
		axes[a] = linspace(lo[a], hi[a], n)
	}
	return NewGrid(axes[0], axes[1], axes[2])
}

func linspace(lo, hi float64, n int) []float64 {
	res := make([]float64, n)
	if n == 1 {
		res[0] = (lo + hi) / 2
		return res
	}
	step := (hi - lo) / float64(n-1)
	for i := range res {
		res[i] = lo + float64(i)*step
	}
	return res
}

// BoundsOf returns the axis-aligned bounding box of an (n x 3) position matrix.
func BoundsOf(points mat.Matrix) (lo, hi [3]float64, err error) {
	r, c := points.Dims()
	if r == 0 || c != 3 {
		return lo, hi, ErrShapeMismatch
	}
	for a := 0; a < 3; a++ {
		lo[a], hi[a] = math.Inf(1), math.Inf(-1)
	}
	for row := 0; row < r; row++ {
		for a := 0; a < 3; a++ {
			lo[a] = math.Min(lo[a], points.At(row, a))
			hi[a] = math.Max(hi[a], points.At(row, a))
		}
	}
	return lo, hi, nil
}

// Shape returns the extents (ni, nj, nk).
func (g *Grid) Shape() (ni, nj, nk int) {
	return g.shape[0], g.shape[1], g.shape[2]
}

// Extent returns the number of voxels along axis.
func (g *Grid) Extent(axis Axis) int {
	return g.shape[axis]
}

// Len returns the number of voxels.
func (g *Grid) Len() int {
	return g.shape[0] * g.shape[1] * g.shape[2]
}

// Index maps (i,j,k) to the flat voxel index.
func (g *Grid) Index(i, j, k int) int {
	return (i*g.shape[1]+j)*g.shape[2] + k
}

// Coord maps a flat voxel index back to (i,j,k).
func (g *Grid) Coord(v int) (i, j, k int) {
	k = v % g.shape[2]
	v /= g.shape[2]
	j = v % g.shape[1]
	i = v / g.shape[1]
	return i, j, k
}

// AxisIndex returns the coordinate of voxel v along axis.
func (g *Grid) AxisIndex(v int, axis Axis) int {
	i, j, k := g.Coord(v)
	return [3]int{i, j, k}[axis]
}

// Step returns the flat index of the voxel delta cells away from v along axis,
// and false when that voxel lies outside the grid.
func (g *Grid) Step(v int, axis Axis, delta int) (int, bool) {
	c := [3]int{}
	c[0], c[1], c[2] = g.Coord(v)
	c[axis] += delta
	if c[axis] < 0 || c[axis] >= g.shape[axis] {
		return -1, false
	}
	return g.Index(c[0], c[1], c[2]), true
}

// Position returns the center of voxel v.
func (g *Grid) Position(v int) [3]float64 {
	return [3]float64{g.x[v], g.y[v], g.z[v]}
}

// Positions returns an (n_voxels x 3) matrix of voxel centers.
func (g *Grid) Positions() *mat.Dense {
	n := g.Len()
	res := mat.NewDense(n, 3, nil)
	for v := 0; v < n; v++ {
		res.Set(v, 0, g.x[v])
		res.Set(v, 1, g.y[v])
		res.Set(v, 2, g.z[v])
	}
	return res
}

// Spacing returns the distance between the first two voxel centers along axis.
// Axes with a single voxel report a spacing of 1 so difference quotients stay finite.
func (g *Grid) Spacing(axis Axis) float64 {
	if g.shape[axis] < 2 {
		return 1
	}
	next, _ := g.Step(0, axis, 1)
	p0, p1 := g.Position(0), g.Position(next)
	h := math.Abs(p1[axis] - p0[axis])
	if h == 0 {
		return 1
	}
	return h
}

// MinSpacing returns the smallest spacing over axes with more than one voxel,
// or 1 for a single-voxel grid.
func (g *Grid) MinSpacing() float64 {
	h := math.Inf(1)
	for _, a := range Axes {
		if g.shape[a] > 1 {
			h = math.Min(h, g.Spacing(a))
		}
	}
	if math.IsInf(h, 1) {
		return 1
	}
	return h
}

// TimeSamples infers how many time samples a flat field of length n packs.
func (g *Grid) TimeSamples(n int) (int, error) {
	nv := g.Len()
	if n == 0 || n%nv != 0 {
		return 0, fmt.Errorf("%w: length %d, voxels %d", ErrFieldLength, n, nv)
	}
	return n / nv, nil
}
