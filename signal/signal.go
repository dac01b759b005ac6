// Package signal describes source activity as time courses attached to
// spatial patterns over the voxel grid.
package signal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Signal holds the signal interface
type Signal interface {
	Value(float64) mat.Vector
}

// VectorFunction separates a source into a scalar time course U(t) and a
// spatial pattern B over the voxels, so that Value(t) = U(t) B.
type VectorFunction struct {
	U func(float64) float64
	B mat.Vector
}

// Value returns the vectorial function value
func (vf VectorFunction) Value(t float64) mat.Vector {
	var res mat.VecDense
	res.CloneFromVec(vf.B)
	res.ScaleVec(vf.U(t), &res)
	return &res
}

// NewInput returns a new VectorFunction initialised with u(t) and B
func NewInput(u func(float64) float64, B mat.Vector) VectorFunction {
	return VectorFunction{u, B}
}

// Point returns a unit pattern on voxel v of an n-voxel grid.
func Point(n, v int) *mat.VecDense {
	b := mat.NewVecDense(n, nil)
	b.SetVec(v, 1)
	return b
}

// Sine is amplitude * sin(2 pi freq t + phase).
func Sine(amplitude, freq, phase float64) func(float64) float64 {
	return func(t float64) float64 {
		return amplitude * math.Sin(2*math.Pi*freq*t+phase)
	}
}

// Pulse is a Gaussian bump of the given amplitude centred on center.
func Pulse(amplitude, center, width float64) func(float64) float64 {
	return func(t float64) float64 {
		d := (t - center) / width
		return amplitude * math.Exp(-d*d/2)
	}
}

// Sample evaluates the superposition of signals at every time stamp and
// returns an (n x len(times)) matrix, one column per sample.
func Sample(signals []Signal, n int, times []float64) *mat.Dense {
	res := mat.NewDense(n, len(times), nil)
	for col, t := range times {
		for _, s := range signals {
			v := s.Value(t)
			for row := 0; row < n; row++ {
				res.Set(row, col, res.At(row, col)+v.AtVec(row))
			}
		}
	}
	return res
}
