package gradient

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/expr"
	"github.com/uranc/slmea/monitoring"
	"github.com/uranc/slmea/voxel"
)

func cube(t *testing.T, n int, h float64) *voxel.Grid {
	t.Helper()
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = float64(i) * h
	}
	g, err := voxel.NewGrid(axis, axis, axis)
	require.NoError(t, err)
	return g
}

func interior(g *voxel.Grid, v int) bool {
	i, j, k := g.Coord(v)
	ni, nj, nk := g.Shape()
	in := func(c, n int) bool { return c >= 2 && c <= n-3 }
	return in(i, ni) && in(j, nj) && in(k, nk)
}

func TestCentralLinearFieldIsExactInInterior(t *testing.T) {
	g := cube(t, 6, 0.5)
	alpha, beta, gamma := 1.5, -2.0, 0.25
	field := make([]float64, g.Len())
	for v := range field {
		p := g.Position(v)
		field[v] = alpha*p[0] + beta*p[1] + gamma*p[2]
	}
	d, err := CmpGradient(g, field)
	require.NoError(t, err)
	for v := 0; v < g.Len(); v++ {
		if !interior(g, v) {
			continue
		}
		assert.InDelta(t, alpha, d.At(0, v), 1e-9, "voxel %d", v)
		assert.InDelta(t, beta, d.At(1, v), 1e-9, "voxel %d", v)
		assert.InDelta(t, gamma, d.At(2, v), 1e-9, "voxel %d", v)
	}
}

func TestCentralTranslationInvariance(t *testing.T) {
	g := cube(t, 5, 1)
	field := make([]float64, g.Len())
	shifted := make([]float64, g.Len())
	for v := range field {
		i, j, k := g.Coord(v)
		field[v] = math.Sin(float64(i)) + float64(j*k)
		shifted[v] = field[v] + 42
	}
	d0, err := CmpGradient(g, field)
	require.NoError(t, err)
	d1, err := CmpGradient(g, shifted)
	require.NoError(t, err)
	for v := 0; v < g.Len(); v++ {
		if !interior(g, v) {
			continue
		}
		for a := 0; a < 3; a++ {
			assert.InDelta(t, d0.At(a, v), d1.At(a, v), 1e-9)
		}
	}

	constant := make([]float64, g.Len())
	for v := range constant {
		constant[v] = 3
	}
	dc, err := CmpGradient(g, constant)
	require.NoError(t, err)
	for v := 0; v < g.Len(); v++ {
		for a := 0; a < 3; a++ {
			assert.InDelta(t, 0, dc.At(a, v), 1e-12)
		}
	}
}

func TestCentralBoundaryIsZero(t *testing.T) {
	g := cube(t, 5, 1)
	field := make([]float64, g.Len())
	for v := range field {
		field[v] = float64(v * v)
	}
	d, err := CmpGradient(g, field)
	require.NoError(t, err)
	for v := 0; v < g.Len(); v++ {
		for _, a := range voxel.Axes {
			c := g.AxisIndex(v, a)
			if c == 0 || c == g.Extent(a)-1 {
				assert.Equal(t, 0.0, d.At(int(a), v))
			}
		}
	}
}

func TestCentralMirroredStencil(t *testing.T) {
	g, err := voxel.NewGrid([]float64{0, 1, 2, 3, 4, 5}, []float64{0}, []float64{0})
	require.NoError(t, err)
	x := []float64{0, 1, 4, 9, 16, 25}
	d, err := CmpGradient(g, x)
	require.NoError(t, err)
	// i=1: (8(x2-x0) - (x3-x1)) / 12
	assert.InDelta(t, (8*(4-0)-(9-1))/12.0, d.At(0, 1), 1e-12)
	// i=4: (8(x5-x3) - (x4-x2)) / 12
	assert.InDelta(t, (8*(25-9)-(16-4))/12.0, d.At(0, 4), 1e-12)
	// i=2: full stencil
	assert.InDelta(t, (8*(9-1)-(16-0))/12.0, d.At(0, 2), 1e-12)
}

func TestCentralDegenerateAxisWarns(t *testing.T) {
	orig := monitoring.Logf
	defer func() { monitoring.Logf = orig }()
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	g, err := voxel.NewGrid([]float64{0, 1, 2}, []float64{0, 1, 2, 3, 4}, []float64{0, 1})
	require.NoError(t, err)
	op := New(g, Central)
	assert.True(t, op.Degenerate(voxel.AxisX))
	assert.False(t, op.Degenerate(voxel.AxisY))
	assert.False(t, op.Degenerate(voxel.AxisZ))
	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0], "axis x"))

	field := make([]float64, g.Len())
	for v := range field {
		i, _, _ := g.Coord(v)
		field[v] = 2 * float64(i)
	}
	d, err := op.Apply(field)
	require.NoError(t, err)
	// 8(x[2]-x[0]) / 2h on the only non-boundary x index.
	assert.InDelta(t, 8*(4.0-0.0)/2, d.At(0, g.Index(1, 2, 0)), 1e-12)
}

func TestForwardNeverUndefined(t *testing.T) {
	g, err := voxel.NewGrid([]float64{0, 2, 4}, []float64{0}, []float64{0, 1})
	require.NoError(t, err)
	field := make([]float64, g.Len())
	for v := range field {
		i, _, k := g.Coord(v)
		field[v] = float64(i*i) + 10*float64(k)
	}
	d, err := CmpFwdDiff(g, field)
	require.NoError(t, err)
	for v := 0; v < g.Len(); v++ {
		for a := 0; a < 3; a++ {
			assert.False(t, math.IsNaN(d.At(a, v)))
		}
	}
	// Terminal x voxel mirrors onto its backward neighbor: (4 - 1) / 2.
	assert.InDelta(t, 1.5, d.At(0, g.Index(2, 0, 0)), 1e-12)
	// Non-terminal: (1 - 0) / 2.
	assert.InDelta(t, 0.5, d.At(0, g.Index(0, 0, 0)), 1e-12)
	// Single-voxel axis has no neighbor and differences to 0.
	assert.Equal(t, 0.0, d.At(1, 0))
	// z: (10 - 0) / 1 both forward and mirrored.
	assert.InDelta(t, 10, d.At(2, g.Index(1, 0, 0)), 1e-12)
	assert.InDelta(t, 10, d.At(2, g.Index(1, 0, 1)), 1e-12)
}

func TestAverage(t *testing.T) {
	g, err := voxel.NewGrid([]float64{0, 1, 2}, []float64{0}, []float64{0})
	require.NoError(t, err)
	avg, err := CmpAverage(g, []float64{1, 3, 7})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5, 5}, []float64{avg.At(0, 0), avg.At(0, 1), avg.At(0, 2)})
	assert.Equal(t, []float64{1, 3, 7}, []float64{avg.At(1, 0), avg.At(1, 1), avg.At(1, 2)})
}

func TestOutputOrderRowMajor(t *testing.T) {
	g, err := voxel.NewGrid([]float64{0, 1}, []float64{0, 1}, []float64{0, 1})
	require.NoError(t, err)
	field := make([]float64, g.Len())
	for v := range field {
		i, _, _ := g.Coord(v)
		field[v] = 100 * float64(i)
	}
	d, err := CmpFwdDiff(g, field)
	require.NoError(t, err)
	r, c := d.Dims()
	require.Equal(t, [2]int{3, 8}, [2]int{r, c})
	// 5th column is voxel (1,0,0), the terminal x voxel, mirrored to (0,0,0).
	i, j, k := g.Coord(4)
	assert.Equal(t, [3]int{1, 0, 0}, [3]int{i, j, k})
	assert.InDelta(t, 100, d.At(0, 4), 1e-12)
}

func TestMultipleTimeSamples(t *testing.T) {
	g, err := voxel.NewGrid([]float64{0, 1, 2}, []float64{0}, []float64{0})
	require.NoError(t, err)
	// voxel-major packing: (v0,t0) (v0,t1) (v1,t0) ...
	field := []float64{0, 0, 1, 10, 2, 20}
	d, err := CmpFwdDiff(g, field)
	require.NoError(t, err)
	_, c := d.Dims()
	require.Equal(t, 6, c)
	assert.InDelta(t, 1, d.At(0, 0), 1e-12)
	assert.InDelta(t, 10, d.At(0, 1), 1e-12)

	_, err = CmpFwdDiff(g, field[:5])
	require.ErrorIs(t, err, errs.ErrStructuralPrecondition)
}

func TestApplyPolyMatchesNumeric(t *testing.T) {
	g := cube(t, 5, 0.5)
	field := make([]float64, g.Len())
	vars := make([]expr.Poly, g.Len())
	for v := range field {
		field[v] = math.Cos(float64(v))
		vars[v] = expr.Var(v)
	}
	for _, mode := range []Mode{Central, Forward, Average} {
		op := New(g, mode)
		num, err := op.Apply(field)
		require.NoError(t, err)
		sym, err := op.ApplyPoly(vars)
		require.NoError(t, err)
		for a := 0; a < 3; a++ {
			for v := 0; v < g.Len(); v++ {
				assert.InDelta(t, num.At(a, v), sym[a][v].Eval(field), 1e-9, "mode %s", mode)
			}
		}
	}
}
