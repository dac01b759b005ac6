// Package gradient computes first-order spatial finite differences of fields
// defined on a voxel.Grid.
//
// Stencils are expressed as sparse taps over voxel indices, so the same
// operator differentiates numeric fields and symbolic ones (expr.Poly) without
// duplicating the boundary logic.
package gradient

import (
	"fmt"

	"github.com/uranc/slmea/monitoring"
	"github.com/uranc/slmea/voxel"
)

// Mode selects the stencil family.
type Mode int

const (
	// Central is the fourth-order central difference with mirrored stencils one
	// cell from a boundary and a zero derivative on the boundary itself.
	Central Mode = iota
	// Forward is the forward difference (x[i+1]-x[i])/h, falling back to the
	// backward neighbor on the terminal voxel of an axis.
	Forward
	// Average is the forward average (x[i+1]+x[i])/2 with the same terminal fallback.
	Average
)

func (m Mode) String() string {
	switch m {
	case Central:
		return "central"
	case Forward:
		return "forward"
	case Average:
		return "average"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// minCentralExtent is the smallest extent on which the 4-point stencil is reachable.
const minCentralExtent = 5

// Tap is one weighted voxel in a stencil.
type Tap struct {
	Index  int
	Weight float64
}

// Stencil is the list of taps whose weighted sum gives the derivative (or
// average) at one voxel along one axis. An empty stencil evaluates to 0.
type Stencil []Tap

// Operator builds stencils for every voxel of a grid in one mode.
type Operator struct {
	grid       *voxel.Grid
	mode       Mode
	h          [3]float64
	degenerate [3]bool
}

// New returns an operator over grid. In Central mode every axis too short for
// the 4-point stencil is reported once as a precision warning.
func New(grid *voxel.Grid, mode Mode) *Operator {
	op := &Operator{grid: grid, mode: mode}
	for _, a := range voxel.Axes {
		op.h[a] = grid.Spacing(a)
		n := grid.Extent(a)
		// Extents 1 and 2 only have boundary voxels, which never use the fallback.
		if mode == Central && n > 2 && n < minCentralExtent {
			op.degenerate[a] = true
			monitoring.Logf("[gradient] warning: axis %s has extent %d < %d; using first-order central difference", a, n, minCentralExtent)
		}
	}
	return op
}

// Grid returns the grid the operator was built for.
func (op *Operator) Grid() *voxel.Grid {
	return op.grid
}

// Mode returns the operator's stencil family.
func (op *Operator) Mode() Mode {
	return op.mode
}

// Degenerate reports whether axis uses the reduced-accuracy central fallback.
func (op *Operator) Degenerate(axis voxel.Axis) bool {
	return op.degenerate[axis]
}

// Stencil returns the taps for voxel v along axis.
func (op *Operator) Stencil(v int, axis voxel.Axis) Stencil {
	switch op.mode {
	case Forward:
		return op.forward(v, axis, 1/op.h[axis], -1/op.h[axis])
	case Average:
		return op.forward(v, axis, 0.5, 0.5)
	default:
		return op.central(v, axis)
	}
}

// tap returns the tap delta cells from v along axis. The caller guarantees the
// neighbor exists.
func (op *Operator) tap(v int, axis voxel.Axis, delta int, w float64) Tap {
	n, ok := op.grid.Step(v, axis, delta)
	if !ok {
		panic(fmt.Sprintf("gradient: voxel %d has no neighbor %+d along %s", v, delta, axis))
	}
	return Tap{Index: n, Weight: w}
}

func (op *Operator) central(v int, axis voxel.Axis) Stencil {
	n := op.grid.Extent(axis)
	i := op.grid.AxisIndex(v, axis)
	h := op.h[axis]
	if i == 0 || i == n-1 {
		return nil
	}
	if op.degenerate[axis] {
		w := 8 / (2 * h)
		return Stencil{op.tap(v, axis, 1, w), op.tap(v, axis, -1, -w)}
	}
	w8, w1 := 8/(12*h), 1/(12*h)
	s := Stencil{op.tap(v, axis, 1, w8), op.tap(v, axis, -1, -w8)}
	switch i {
	case 1:
		// x[i-2] is missing; the center stands in for it.
		return append(s, op.tap(v, axis, 2, -w1), Tap{Index: v, Weight: w1})
	case n - 2:
		// x[i+2] is missing; the center stands in for it.
		return append(s, Tap{Index: v, Weight: -w1}, op.tap(v, axis, -2, w1))
	}
	return append(s, op.tap(v, axis, 2, -w1), op.tap(v, axis, -2, w1))
}

// forward builds next*x[i+1] + self*x[i], mirrored onto x[i-1] at the end of the axis.
func (op *Operator) forward(v int, axis voxel.Axis, next, self float64) Stencil {
	n := op.grid.Extent(axis)
	i := op.grid.AxisIndex(v, axis)
	switch {
	case n == 1:
		if op.mode == Average {
			return Stencil{{Index: v, Weight: 1}}
		}
		return nil
	case i == n-1:
		return Stencil{{Index: v, Weight: next}, op.tap(v, axis, -1, self)}
	}
	return Stencil{op.tap(v, axis, 1, next), {Index: v, Weight: self}}
}

// Eval applies the stencil to time sample t of a field packing nt samples per voxel.
func (s Stencil) Eval(field []float64, t, nt int) float64 {
	var res float64
	for _, tp := range s {
		res += tp.Weight * field[voxel.FieldIndex(tp.Index, t, nt)]
	}
	return res
}
