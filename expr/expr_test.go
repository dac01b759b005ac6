package expr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// numericGradient is a central-difference reference for AddGradient.
func numericGradient(e Expr, x []float64) []float64 {
	const h = 1e-6
	g := make([]float64, len(x))
	for i := range x {
		xp := append([]float64(nil), x...)
		xm := append([]float64(nil), x...)
		xp[i] += h
		xm[i] -= h
		g[i] = (e.Eval(xp) - e.Eval(xm)) / (2 * h)
	}
	return g
}

func TestPolyArithmetic(t *testing.T) {
	x0, x1 := Var(0), Var(1)
	// (x0 + 2)(x1 - 3) = x0*x1 - 3x0 + 2x1 - 6
	p := x0.AddConst(2).Mul(x1.AddConst(-3))
	x := []float64{1.5, -2}
	assert.InDelta(t, (1.5+2)*(-2-3), p.Eval(x), 1e-12)
	assert.Equal(t, 2, p.Degree())
	assert.Equal(t, []int{0, 1}, p.Vars())

	zero := p.Sub(p)
	assert.Empty(t, zero.Terms)
	assert.Equal(t, 0.0, zero.Const)
}

func TestCompactMergesLikeTerms(t *testing.T) {
	p := Sum(Term(2, 1, 0), Term(3, 0, 1), Var(2), Var(2).Scale(-1))
	require.Len(t, p.Terms, 1)
	assert.Equal(t, 5.0, p.Terms[0].Coef)
	assert.Equal(t, []int{0, 1}, p.Terms[0].Vars)
}

func TestPolyGradient(t *testing.T) {
	a, m := Var(0), Var(1)
	// a^2 (1 - m), the background suppression shape
	p := a.Square().Mul(Const(1).Sub(m))
	x := []float64{0.7, 0.3}
	g := make([]float64, 2)
	p.AddGradient(x, 1, g)
	if diff := cmp.Diff(numericGradient(p, x), g, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("gradient mismatch (-want +got):\n%s", diff)
	}
}

func TestBilinearMaskRelaxation(t *testing.T) {
	m := Var(0)
	p := m.Mul(Const(1).Sub(m))
	assert.Equal(t, 0.0, p.Eval([]float64{0}))
	assert.Equal(t, 0.0, p.Eval([]float64{1}))
	for _, v := range []float64{0.01, 0.25, 0.5, 0.99} {
		// m(1-m) is strictly positive on the open interval, so the equality
		// m(1-m) == 0 rejects every fractional mask.
		assert.Greater(t, p.Eval([]float64{v}), 0.0)
	}
}

func TestDot(t *testing.T) {
	ps := []Poly{Var(0), Var(1), Var(2)}
	p := Dot([]float64{1, 0, -2}, ps)
	assert.InDelta(t, 3-2*5, p.Eval([]float64{3, 4, 5}), 1e-12)
	assert.Equal(t, []int{0, 2}, p.Vars())
	assert.Panics(t, func() { Dot([]float64{1}, ps) })
}

func TestNorm(t *testing.T) {
	n := NormOf(Var(0), Var(1).Scale(2), Const(0))
	x := []float64{3, 2}
	assert.InDelta(t, 5, n.Eval(x), 1e-12)
	assert.Equal(t, -1, n.Degree())
	assert.Equal(t, []int{0, 1}, n.Vars())

	g := make([]float64, 2)
	n.AddGradient(x, 1, g)
	if diff := cmp.Diff(numericGradient(n, x), g, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("gradient mismatch (-want +got):\n%s", diff)
	}

	g = make([]float64, 2)
	n.AddGradient([]float64{0, 0}, 1, g)
	assert.Equal(t, []float64{0, 0}, g)
}
