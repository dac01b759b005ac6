package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uranc/slmea"
	"github.com/uranc/slmea/config"
	"github.com/uranc/slmea/fsutil"
	"github.com/uranc/slmea/monitoring"
	"github.com/uranc/slmea/signal"
	"github.com/uranc/slmea/voxel"
	"gonum.org/v1/gonum/mat"
)

func init() {
	monitoring.SetLogger(nil)
}

func ptr[T any](v T) *T { return &v }

func smallSession(t *testing.T, cfg *config.RunConfig) *slmea.Session {
	t.Helper()
	grid, err := voxel.NewGrid([]float64{0, 1}, []float64{0, 1}, []float64{-1})
	require.NoError(t, err)
	electrodes := mat.NewDense(4, 3, []float64{0, 0, 0, 0, 1, 0, 1, 0, 0, 1, 1, 0})
	sources := []signal.Signal{signal.NewInput(signal.Sine(1, 10, 0), signal.Point(grid.Len(), 0))}
	rec, err := slmea.SyntheticRecording(grid, electrodes, sources, 1000, 3)
	require.NoError(t, err)
	s, err := slmea.NewSessionOnGrid(rec, grid, cfg)
	require.NoError(t, err)
	return s
}

func TestWriteReportsUsesFileSystem(t *testing.T) {
	cfg := &config.RunConfig{
		Strategy:   ptr("slack_l1"),
		TimeIndex:  ptr(1),
		Solver:     &config.SolverConfig{MaxIter: ptr(10)},
		Checkpoint: &config.CheckpointConfig{Dir: ptr("ckpt")},
	}
	s := smallSession(t, cfg)
	mem := fsutil.NewMemoryFileSystem()
	closer, err := s.UseCheckpoints(mem)
	require.NoError(t, err)
	defer closer.Close()

	res, err := s.Reconstruct(context.Background())
	require.NoError(t, err)
	require.NoError(t, writeReports(s, res, mem, "out/report"))

	png, err := mem.ReadFile("out/report/trace.png")
	require.NoError(t, err)
	assert.NotEmpty(t, png)
	html, err := mem.ReadFile("out/report/trace.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "<html")
}

func TestWriteReportsNeedsCheckpoints(t *testing.T) {
	cfg := &config.RunConfig{
		Strategy:   ptr("slack_l1"),
		TimeIndex:  ptr(1),
		Solver:     &config.SolverConfig{MaxIter: ptr(5)},
		Checkpoint: &config.CheckpointConfig{Disabled: ptr(true)},
	}
	s := smallSession(t, cfg)
	mem := fsutil.NewMemoryFileSystem()
	_, err := s.UseCheckpoints(mem)
	require.NoError(t, err)
	res, err := s.Reconstruct(context.Background())
	require.NoError(t, err)

	require.Error(t, writeReports(s, res, mem, "out"))
	assert.False(t, mem.Exists("out"))
}

func TestRunReturnsSetupErrors(t *testing.T) {
	// Neither -recording nor -synthetic is set.
	err := run(fsutil.NewMemoryFileSystem())
	require.ErrorContains(t, err, "-recording or -synthetic")
}
