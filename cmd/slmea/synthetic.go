package main

import (
	"github.com/uranc/slmea"
	"github.com/uranc/slmea/config"
	"github.com/uranc/slmea/signal"
	"github.com/uranc/slmea/voxel"
	"gonum.org/v1/gonum/mat"
)

const (
	syntheticRate    = 1000
	syntheticPitch   = 50e-6
	syntheticSide    = 4
	syntheticPadding = 10
)

// syntheticSession records two point sources, a sinusoid and a pulse, on a
// planar square array and returns a session on the same grid.
func syntheticSession(cfg *config.RunConfig) (*slmea.Session, error) {
	electrodes := mat.NewDense(syntheticSide*syntheticSide, 3, nil)
	for i := 0; i < syntheticSide; i++ {
		for j := 0; j < syntheticSide; j++ {
			electrodes.SetRow(i*syntheticSide+j, []float64{float64(i) * syntheticPitch, float64(j) * syntheticPitch, 0})
		}
	}
	lo, hi, err := voxel.BoundsOf(electrodes)
	if err != nil {
		return nil, err
	}
	grid, err := voxel.NewGridFromBounds(lo, hi, cfg.GetVoxelResolution())
	if err != nil {
		return nil, err
	}
	ni, nj, nk := grid.Shape()
	n := cfg.GetTimeIndex() + cfg.GetTimeWindow() + syntheticPadding
	center := float64(cfg.GetTimeIndex()) / syntheticRate
	sources := []signal.Signal{
		signal.NewInput(signal.Sine(1, 50, 0), signal.Point(grid.Len(), grid.Index(ni/4, nj/4, nk/2))),
		signal.NewInput(signal.Pulse(-2, center, 3.0/syntheticRate), signal.Point(grid.Len(), grid.Index(3*ni/4, 3*nj/4, nk/2))),
	}
	rec, err := slmea.SyntheticRecording(grid, electrodes, sources, syntheticRate, n)
	if err != nil {
		return nil, err
	}
	return slmea.NewSessionOnGrid(rec, grid, cfg)
}
