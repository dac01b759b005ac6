package report

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uranc/slmea/checkpoint"
	"github.com/uranc/slmea/expr"
	"github.com/uranc/slmea/fsutil"
	"github.com/uranc/slmea/nlp"
)

// circle minimizes x0 + x1 on x0^2 + x1^2 == 1.
func circle() *nlp.Problem {
	return &nlp.Problem{
		Objective:   expr.Var(0).Add(expr.Var(1)),
		Constraints: []expr.Expr{expr.Var(0).Square().Add(expr.Var(1).Square())},
		Lower:       []float64{1},
		Upper:       []float64{1},
		VarLower:    []float64{-10, -10},
		VarUpper:    []float64{10, 10},
		X0:          []float64{0, 0},
	}
}

func iterates() []checkpoint.Iterate {
	return []checkpoint.Iterate{
		{Iter: 1, X: []float64{0, 0}},
		{Iter: 2, X: []float64{-0.5, -0.5}},
		{Iter: 3, X: []float64{-0.6, -0.8}},
	}
}

func TestNewTrace(t *testing.T) {
	tr, err := NewTrace("circle", circle(), iterates())
	require.NoError(t, err)
	require.Len(t, tr.Points, 3)

	assert.Equal(t, Point{Iter: 1, Objective: 0, MaxViolation: 1}, tr.Points[0])
	assert.InDelta(t, -1, tr.Points[1].Objective, 1e-12)
	assert.InDelta(t, 0.5, tr.Points[1].MaxViolation, 1e-12)
	assert.InDelta(t, 0, tr.Last().MaxViolation, 1e-12)
	assert.Equal(t, 3, tr.Last().Iter)

	_, err = NewTrace("circle", circle(), nil)
	require.ErrorIs(t, err, ErrEmptyTrace)
	_, err = NewTrace("circle", circle(), []checkpoint.Iterate{{Iter: 1, X: []float64{1}}})
	require.ErrorIs(t, err, ErrIterateLength)
}

func TestSaveTracePNG(t *testing.T) {
	tr, err := NewTrace("circle", circle(), iterates())
	require.NoError(t, err)
	mem := fsutil.NewMemoryFileSystem()
	require.NoError(t, SaveTracePNG(mem, tr, "trace.png"))

	blob, err := mem.ReadFile("trace.png")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dy(), img.Bounds().Dx()/2)

	require.ErrorIs(t, SaveTracePNG(mem, &Trace{}, "empty.png"), ErrEmptyTrace)
	assert.False(t, mem.Exists("empty.png"))
}

func TestRenderTraceHTML(t *testing.T) {
	tr, err := NewTrace("circle", circle(), iterates())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, RenderTraceHTML(&buf, tr))

	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"), "rendered page is not HTML")
	assert.Contains(t, html, "objective")
	assert.Contains(t, html, "max violation")

	require.ErrorIs(t, RenderTraceHTML(&buf, &Trace{}), ErrEmptyTrace)
}
