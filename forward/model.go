// Package forward builds the electrode-to-voxel sensitivity (lead field) matrix
// and its depth weighting.
package forward

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/gonumExtensions"
	"github.com/uranc/slmea/voxel"
	"gonum.org/v1/gonum/mat"
)

// DefaultConductivity is the extracellular conductivity in S/m.
const DefaultConductivity = 0.3

var (
	// ErrElectrodeShape indicates an electrode position matrix that is not n x 3.
	ErrElectrodeShape = fmt.Errorf("forward: electrode positions must be an n x 3 matrix: %w", errs.ErrStructuralPrecondition)
	// ErrDimension indicates a source whose row count differs from the voxel count.
	ErrDimension = fmt.Errorf("forward: source rows do not match forward matrix columns: %w", errs.ErrStructuralPrecondition)
	// ErrNotFinite indicates a forward matrix containing NaN or Inf.
	ErrNotFinite = errors.New("forward: matrix contains NaN or Inf")
	// ErrConductivity indicates a non-positive conductivity.
	ErrConductivity = errors.New("forward: conductivity must be positive")
)

// Options controls Build.
type Options struct {
	// Conductivity of the medium. Zero selects DefaultConductivity.
	Conductivity float64
	// DepthWeighting right-multiplies the matrix by DepthWeights(F, DepthExponent).
	DepthWeighting bool
	// DepthExponent p in 1/||F[:,v]||^p. Zero selects 1.
	DepthExponent float64
}

// Model is a memoryless observation y = F x of a voxel-domain source x.
type Model struct {
	// F is the (n_electrodes x n_voxels) forward matrix, depth weighted when
	// Weights is non-nil.
	F *mat.Dense
	// Weights is the diagonal of the depth weighting, nil when unweighted.
	Weights []float64
}

// NewModel wraps an explicit forward matrix.
func NewModel(f mat.Matrix) (*Model, error) {
	if gonumExtensions.NANORINF(f) {
		return nil, ErrNotFinite
	}
	return &Model{F: mat.DenseCopyOf(f)}, nil
}

// Build computes the point-source sensitivity of every electrode to every voxel
// center, F[e,v] = 1 / (4 pi sigma max(|r_e - r_v|, r_min)), with r_min half
// the smallest grid spacing.
func Build(electrodes mat.Matrix, grid *voxel.Grid, opts Options) (*Model, error) {
	ne, c := electrodes.Dims()
	if c != 3 || ne == 0 {
		return nil, fmt.Errorf("%w: got %d x %d", ErrElectrodeShape, ne, c)
	}
	sigma := opts.Conductivity
	if sigma == 0 {
		sigma = DefaultConductivity
	}
	if sigma < 0 {
		return nil, ErrConductivity
	}
	rmin := grid.MinSpacing() / 2
	nv := grid.Len()
	f := mat.NewDense(ne, nv, nil)

	// Every electrode row is independent.
	var wg sync.WaitGroup
	for e := 0; e < ne; e++ {
		wg.Add(1)
		go func(e int) {
			defer wg.Done()
			re := [3]float64{electrodes.At(e, 0), electrodes.At(e, 1), electrodes.At(e, 2)}
			for v := 0; v < nv; v++ {
				rv := grid.Position(v)
				d := math.Max(math.Sqrt(sq(re[0]-rv[0])+sq(re[1]-rv[1])+sq(re[2]-rv[2])), rmin)
				f.Set(e, v, 1/(4*math.Pi*sigma*d))
			}
		}(e)
	}
	wg.Wait()

	model, err := NewModel(f)
	if err != nil {
		return nil, err
	}
	if opts.DepthWeighting {
		p := opts.DepthExponent
		if p == 0 {
			p = 1
		}
		model.ApplyWeights(DepthWeights(model.F, p))
	}
	return model, nil
}

func sq(x float64) float64 { return x * x }

// DepthWeights returns w[v] = 1/||F[:,v]||^p. Columns with zero norm get weight 1.
func DepthWeights(f mat.Matrix, p float64) []float64 {
	norms := gonumExtensions.ColumnNorms(f)
	res := make([]float64, len(norms))
	for v, n := range norms {
		if n == 0 {
			res[v] = 1
			continue
		}
		res[v] = 1 / math.Pow(n, p)
	}
	return res
}

// ApplyWeights replaces F by F diag(w) and records w.
func (m *Model) ApplyWeights(w []float64) {
	var res mat.Dense
	res.Mul(m.F, mat.NewDiagDense(len(w), w))
	m.F = &res
	m.Weights = w
}

// Electrodes returns the number of rows of F.
func (m *Model) Electrodes() int {
	r, _ := m.F.Dims()
	return r
}

// Voxels returns the number of columns of F.
func (m *Model) Voxels() int {
	_, c := m.F.Dims()
	return c
}

// Row returns a copy of the sensitivities of electrode e.
func (m *Model) Row(e int) []float64 {
	return gonumExtensions.Row(m.F, e)
}

// Predict returns F x for an (n_voxels x n_t) source.
func (m *Model) Predict(source mat.Matrix) (*mat.Dense, error) {
	r, _ := source.Dims()
	if r != m.Voxels() {
		return nil, fmt.Errorf("%w: %d rows, %d voxels", ErrDimension, r, m.Voxels())
	}
	var res mat.Dense
	res.Mul(m.F, source)
	return &res, nil
}

// Duplicate returns [F, F], the operator acting on a stacked (pos; -neg) split source.
func (m *Model) Duplicate() *mat.Dense {
	return gonumExtensions.RepeatHorizontal(m.F, 2)
}

// Physical maps a solution in weighted coordinates back to physical amplitude,
// diag(w) x. Unweighted models return a copy.
func (m *Model) Physical(source mat.Matrix) *mat.Dense {
	res := mat.DenseCopyOf(source)
	if m.Weights == nil {
		return res
	}
	r, c := res.Dims()
	for v := 0; v < r; v++ {
		for t := 0; t < c; t++ {
			res.Set(v, t, res.At(v, t)*m.Weights[v])
		}
	}
	return res
}
