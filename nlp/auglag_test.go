package nlp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/expr"
	"github.com/uranc/slmea/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func free(n int) (lo, hi []float64) {
	lo, hi = make([]float64, n), make([]float64, n)
	for i := range lo {
		lo[i], hi[i] = math.Inf(-1), math.Inf(1)
	}
	return lo, hi
}

func TestUnconstrainedQuadratic(t *testing.T) {
	lo, hi := free(2)
	p := &Problem{
		Objective: expr.Sum(expr.Var(0).AddConst(-1).Square(), expr.Var(1).AddConst(-2).Square()),
		VarLower:  lo,
		VarUpper:  hi,
		X0:        []float64{0, 0},
	}
	res, err := AugmentedLagrangian{}.Solve(context.Background(), p, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Success, res.Status)
	assert.InDelta(t, 1, res.X[0], 1e-5)
	assert.InDelta(t, 2, res.X[1], 1e-5)
	assert.InDelta(t, 0, res.Objective, 1e-8)
}

func TestEqualityOnCircle(t *testing.T) {
	lo, hi := free(2)
	circle := expr.Sum(expr.Var(0).Square(), expr.Var(1).Square())
	p := &Problem{
		Objective:   expr.Sum(expr.Var(0), expr.Var(1)),
		Constraints: []expr.Expr{circle},
		Lower:       []float64{1},
		Upper:       []float64{1},
		VarLower:    lo,
		VarUpper:    hi,
		X0:          []float64{0, 0},
	}
	for _, h := range []string{"limited-memory", "bfgs"} {
		res, err := AugmentedLagrangian{}.Solve(context.Background(), p, Options{HessianApproximation: h, MaxIter: 100}, nil)
		require.NoError(t, err, h)
		assert.Equal(t, Success, res.Status, h)
		assert.InDelta(t, -1/math.Sqrt2, res.X[0], 1e-4, h)
		assert.InDelta(t, -1/math.Sqrt2, res.X[1], 1e-4, h)
		assert.LessOrEqual(t, res.MaxViolation, 1e-6, h)
	}
}

func TestVariableBoundsAreEnforced(t *testing.T) {
	p := &Problem{
		Objective: expr.Var(0).Square(),
		VarLower:  []float64{1},
		VarUpper:  []float64{math.Inf(1)},
		X0:        []float64{3},
	}
	res, err := AugmentedLagrangian{}.Solve(context.Background(), p, Options{MaxIter: 100}, nil)
	require.NoError(t, err)
	assert.Equal(t, Success, res.Status)
	assert.InDelta(t, 1, res.X[0], 1e-4)
}

func TestNonconvergenceIsAStatus(t *testing.T) {
	lo, hi := free(2)
	// The origin is a stationary point of every augmented Lagrangian of this
	// problem, so the solver cannot leave it.
	p := &Problem{
		Objective:   expr.Sum(expr.Var(0).Square(), expr.Var(1).Square()),
		Constraints: []expr.Expr{expr.Term(1, 0, 1)},
		Lower:       []float64{1},
		Upper:       []float64{1},
		VarLower:    lo,
		VarUpper:    hi,
		X0:          []float64{0, 0},
	}
	res, err := AugmentedLagrangian{}.Solve(context.Background(), p, Options{MaxIter: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.InDelta(t, 1, res.MaxViolation, 1e-12)
}

func TestCallbackCadence(t *testing.T) {
	lo, hi := free(2)
	p := &Problem{
		Objective:   expr.Sum(expr.Var(0).Square(), expr.Var(1).Square()),
		Constraints: []expr.Expr{expr.Term(1, 0, 1)},
		Lower:       []float64{1},
		Upper:       []float64{1},
		VarLower:    lo,
		VarUpper:    hi,
		X0:          []float64{0, 0},
	}
	var iters []int
	cb := func(iter int, x []float64) error {
		iters = append(iters, iter)
		assert.Len(t, x, 2)
		return nil
	}
	_, err := AugmentedLagrangian{}.Solve(context.Background(), p, Options{MaxIter: 6, CallbackEvery: 2}, cb)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, iters)

	boom := errors.New("disk full")
	_, err = AugmentedLagrangian{}.Solve(context.Background(), p, Options{MaxIter: 6}, func(int, []float64) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestCancelledContext(t *testing.T) {
	lo, hi := free(1)
	p := &Problem{Objective: expr.Var(0).Square(), VarLower: lo, VarUpper: hi, X0: []float64{1}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AugmentedLagrangian{}.Solve(ctx, p, Options{}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSolveRejectsMalformed(t *testing.T) {
	lo, hi := free(1)
	p := &Problem{
		Objective:   expr.Var(0),
		Constraints: []expr.Expr{expr.Var(0)},
		Lower:       []float64{0},
		Upper:       nil,
		VarLower:    lo,
		VarUpper:    hi,
		X0:          []float64{0},
	}
	_, err := AugmentedLagrangian{}.Solve(context.Background(), p, Options{}, nil)
	require.ErrorIs(t, err, errs.ErrStructuralPrecondition)

	p.Upper = []float64{0}
	p.Constraints = []expr.Expr{expr.Var(4)}
	require.ErrorIs(t, p.Validate(), ErrMalformed)

	p.Constraints = []expr.Expr{expr.Var(0)}
	_, err = AugmentedLagrangian{}.Solve(context.Background(), p, Options{HessianApproximation: "newton"}, nil)
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestMaxViolation(t *testing.T) {
	p := &Problem{
		Constraints: []expr.Expr{expr.Var(0), expr.Var(1)},
		Lower:       []float64{0, math.Inf(-1)},
		Upper:       []float64{1, 2},
		VarLower:    []float64{-1, -1},
		VarUpper:    []float64{1, 10},
	}
	assert.Equal(t, 0., p.MaxViolation([]float64{0.5, 1}))
	assert.Equal(t, 3., p.MaxViolation([]float64{0.5, 5}))
	assert.Equal(t, 1.5, p.MaxViolation([]float64{-1.5, 0}))
}

func TestBilinearStartOnBound(t *testing.T) {
	// min a^2 s.t. a*m == 5, 0 <= m <= 1. From a = m = 0 the constraint
	// gradient vanishes unless m starts inside its bounds.
	p := &Problem{
		Objective:   expr.Var(0).Square(),
		Constraints: []expr.Expr{expr.Term(1, 0, 1)},
		Lower:       []float64{5},
		Upper:       []float64{5},
		VarLower:    []float64{math.Inf(-1), 0},
		VarUpper:    []float64{math.Inf(1), 1},
		X0:          []float64{0, 0},
	}
	res, err := AugmentedLagrangian{}.Solve(context.Background(), p, Options{MaxIter: 100}, nil)
	require.NoError(t, err)
	assert.Equal(t, Success, res.Status, res.Message)
	assert.InDelta(t, 5, res.X[0], 1e-3)
	assert.InDelta(t, 1, res.X[1], 1e-4)
	assert.LessOrEqual(t, res.X[1], 1.)
}

func TestInfeasibleProblemStaysFinite(t *testing.T) {
	lo, hi := free(1)
	p := &Problem{
		Objective:   expr.Const(0),
		Constraints: []expr.Expr{expr.Var(0), expr.Var(0)},
		Lower:       []float64{0, 1},
		Upper:       []float64{0, 1},
		VarLower:    lo,
		VarUpper:    hi,
		X0:          []float64{0},
	}
	res, err := AugmentedLagrangian{}.Solve(context.Background(), p, Options{MaxIter: 400}, nil)
	require.NoError(t, err)
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, 400, res.Iterations)
	require.True(t, allFinite(res.X))
	assert.InDelta(t, 0.5, res.X[0], 1e-6)
	assert.InDelta(t, 0.5, res.MaxViolation, 1e-6)
}

func TestPushInside(t *testing.T) {
	inf := math.Inf(1)
	lo := []float64{0, 0, -inf, 2, 3, -inf, 0}
	hi := []float64{1, 1, 0, 2, inf, inf, 0.01}
	x := []float64{0, 0.5, 0, 7, -4, 9, 0}
	got := pushInside(x, lo, hi, 1e-2)
	assert.InDeltaSlice(t, []float64{0.01, 0.5, -0.01, 2, 3.03, 9, 0.005}, got, 1e-12)
	assert.Equal(t, 0., x[0], "input must not change")
}

func TestProject(t *testing.T) {
	x := []float64{-1, 0.5, 3}
	project(x, []float64{0, 0, 0}, []float64{1, 1, 2})
	assert.Equal(t, []float64{0, 0.5, 2}, x)
}
