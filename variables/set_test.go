package variables

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uranc/slmea/errs"
	"gonum.org/v1/gonum/mat"
)

func thesisLayout(t *testing.T) *Set {
	t.Helper()
	s := New()
	for _, d := range []struct {
		name  string
		shape []int
	}{
		{"a", []int{8, 2}},
		{"m", []int{8}},
		{"ys", []int{3, 2}},
		{"sigma", nil},
	} {
		_, err := s.Declare(d.name, d.shape...)
		require.NoError(t, err)
	}
	return s
}

func TestLenIsSumOfEntries(t *testing.T) {
	s := thesisLayout(t)
	assert.Equal(t, 16+8+6+1, s.Len())
	assert.Equal(t, []string{"a", "m", "ys", "sigma"}, s.Names())
	e, err := s.Entry("ys")
	require.NoError(t, err)
	assert.Equal(t, 24, e.Offset)
	assert.Equal(t, 3, e.Rows())
	assert.Equal(t, 2, e.Cols())
}

func TestZeroUnpacksToZero(t *testing.T) {
	s := thesisLayout(t)
	all, err := s.UnpackAll(s.Zero())
	require.NoError(t, err)
	require.Len(t, all, 4)
	for name, m := range all {
		r, c := m.Dims()
		assert.True(t, mat.Equal(mat.NewDense(r, c, nil), m), name)
	}
}

func TestIndexRowMajor(t *testing.T) {
	s := thesisLayout(t)
	i, err := s.Index("a", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, i)
	i, err = s.Index("sigma")
	require.NoError(t, err)
	assert.Equal(t, 30, i)

	_, err = s.Index("a", 8, 0)
	require.ErrorIs(t, err, ErrShape)
	require.ErrorIs(t, err, errs.ErrStructuralPrecondition)
	_, err = s.Index("a", 1)
	require.ErrorIs(t, err, ErrShape)
	_, err = s.Index("b")
	require.ErrorIs(t, err, ErrUnknown)
	assert.Panics(t, func() { s.MustIndex("m", 9) })
}

func TestDeclareErrors(t *testing.T) {
	s := New()
	_, err := s.Declare("x", 2)
	require.NoError(t, err)
	_, err = s.Declare("x", 2)
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = s.Declare("y", 0)
	require.ErrorIs(t, err, ErrShape)
}

func TestBounds(t *testing.T) {
	s := thesisLayout(t)
	lo, hi := s.Bounds()
	require.Len(t, lo, s.Len())
	for i := range lo {
		assert.True(t, math.IsInf(lo[i], -1))
		assert.True(t, math.IsInf(hi[i], 1))
	}

	require.NoError(t, s.SetBounds("m", 0, 1))
	require.NoError(t, s.SetBoundsAt(4.5, 5.5, "ys", 0, 1))
	require.ErrorIs(t, s.SetBounds("m", 1, 0), ErrBounds)

	lo, hi = s.Bounds()
	assert.Equal(t, 0., lo[s.MustIndex("m", 7)])
	assert.Equal(t, 1., hi[s.MustIndex("m", 0)])
	assert.Equal(t, 4.5, lo[s.MustIndex("ys", 0, 1)])
	assert.True(t, math.IsInf(lo[s.MustIndex("ys", 0, 0)], -1))
}

func TestPackFillUnpack(t *testing.T) {
	s := thesisLayout(t)
	x := s.Zero()
	require.NoError(t, s.Fill(x, "sigma", 0.1))
	ys := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, s.Pack(x, "ys", ys))

	got, err := s.Unpack(x, "ys")
	require.NoError(t, err)
	assert.True(t, mat.Equal(ys, got))
	assert.Equal(t, 0.1, x[s.MustIndex("sigma")])
	assert.Equal(t, 4., s.Var("ys", 1, 1).Eval(x))

	require.ErrorIs(t, s.Pack(x, "ys", mat.NewDense(2, 3, nil)), ErrShape)
	_, err = s.Unpack(x[:3], "ys")
	require.ErrorIs(t, err, ErrLength)
}
