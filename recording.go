// Package slmea reconstructs current sources on a voxel grid from
// multi-electrode array recordings.
package slmea

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/forward"
	"github.com/uranc/slmea/fsutil"
	"github.com/uranc/slmea/signal"
	"github.com/uranc/slmea/voxel"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrRecording indicates inconsistent recording arrays.
	ErrRecording = fmt.Errorf("slmea: malformed recording: %w", errs.ErrStructuralPrecondition)
	// ErrWindow indicates a time window outside the recording.
	ErrWindow = fmt.Errorf("slmea: time window out of range: %w", errs.ErrStructuralPrecondition)
)

// Recording is one multi-electrode recording, optionally with the simulated
// cells that produced it.
type Recording struct {
	// Cell segment start, mid and end points, (n_cells x 3). Nil for raw data.
	CellStart, CellMid, CellEnd *mat.Dense
	// CSD is the (n_cells x n_samples) cell current source density.
	CSD *mat.Dense
	// Electrodes is the (n_electrodes x 3) electrode position matrix.
	Electrodes *mat.Dense
	// Data is the (n_electrodes x n_samples) recorded potential.
	Data *mat.Dense
	// Sources is the (n_voxels x n_samples) ground truth of synthetic recordings.
	Sources    *mat.Dense
	SampleRate float64
}

// recordingFile is the on-disk layout. Every cell row packs
// start(3) mid(3) end(3) followed by its CSD samples; every electrode row
// packs position(3) followed by its recorded samples.
type recordingFile struct {
	Cell      [][]float64 `json:"cell,omitempty"`
	Electrode [][]float64 `json:"electrode"`
	SRate     float64     `json:"srate"`
}

// LoadRecording reads a JSON recording from disk.
func LoadRecording(path string) (*Recording, error) {
	return ReadRecording(fsutil.OSFileSystem{}, path)
}

// ReadRecording reads a JSON recording through fsys.
func ReadRecording(fsys fsutil.FileSystem, path string) (*Recording, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	var f recordingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse recording JSON: %w", err)
	}
	rec := &Recording{SampleRate: f.SRate}
	if rec.Electrodes, rec.Data, err = unpackRows(f.Electrode, 3); err != nil {
		return nil, fmt.Errorf("electrode: %w", err)
	}
	if len(f.Cell) > 0 {
		pos, csd, err := unpackRows(f.Cell, 9)
		if err != nil {
			return nil, fmt.Errorf("cell: %w", err)
		}
		n, _ := pos.Dims()
		rec.CellStart = mat.DenseCopyOf(pos.Slice(0, n, 0, 3))
		rec.CellMid = mat.DenseCopyOf(pos.Slice(0, n, 3, 6))
		rec.CellEnd = mat.DenseCopyOf(pos.Slice(0, n, 6, 9))
		rec.CSD = csd
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// unpackRows splits equal-length rows into their first lead columns and the rest.
func unpackRows(rows [][]float64, lead int) (head, tail *mat.Dense, err error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no rows", ErrRecording)
	}
	width := len(rows[0])
	if width <= lead {
		return nil, nil, fmt.Errorf("%w: rows need more than %d columns, got %d", ErrRecording, lead, width)
	}
	head = mat.NewDense(len(rows), lead, nil)
	tail = mat.NewDense(len(rows), width-lead, nil)
	for i, row := range rows {
		if len(row) != width {
			return nil, nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrRecording, i, len(row), width)
		}
		head.SetRow(i, row[:lead])
		tail.SetRow(i, row[lead:])
	}
	return head, tail, nil
}

// Validate checks that the arrays agree on electrode, cell and sample counts.
func (r *Recording) Validate() error {
	if r.Electrodes == nil || r.Data == nil {
		return fmt.Errorf("%w: missing electrodes or data", ErrRecording)
	}
	ne, c := r.Electrodes.Dims()
	if c != 3 {
		return fmt.Errorf("%w: electrode positions have %d columns", ErrRecording, c)
	}
	rows, nt := r.Data.Dims()
	if rows != ne {
		return fmt.Errorf("%w: %d electrodes, %d data rows", ErrRecording, ne, rows)
	}
	if !(r.SampleRate > 0) || math.IsInf(r.SampleRate, 1) {
		return fmt.Errorf("%w: sample rate %g", ErrRecording, r.SampleRate)
	}
	if r.CSD != nil {
		nc, ct := r.CSD.Dims()
		if ct != nt {
			return fmt.Errorf("%w: %d cell samples, %d electrode samples", ErrRecording, ct, nt)
		}
		for _, p := range []*mat.Dense{r.CellStart, r.CellMid, r.CellEnd} {
			if p == nil {
				return fmt.Errorf("%w: missing cell positions", ErrRecording)
			}
			if pr, pc := p.Dims(); pr != nc || pc != 3 {
				return fmt.Errorf("%w: cell positions are %d x %d, want %d x 3", ErrRecording, pr, pc, nc)
			}
		}
	}
	if r.Sources != nil {
		if _, st := r.Sources.Dims(); st != nt {
			return fmt.Errorf("%w: %d source samples, %d electrode samples", ErrRecording, st, nt)
		}
	}
	return nil
}

// System returns the timing of the recording.
func (r *Recording) System() System {
	ne, nt := r.Data.Dims()
	sys, _ := NewSystem(r.SampleRate, nt)
	sys.NumberOfElectrodes = ne
	if r.CSD != nil {
		sys.NumberOfCells, _ = r.CSD.Dims()
	}
	return sys
}

// TimeStamps returns the time of every sample.
func (r *Recording) TimeStamps() []float64 {
	return r.System().TimeStamps()
}

// Window returns a copy of the (n_electrodes x tInterval) data starting at
// sample tIndex.
func (r *Recording) Window(tIndex, tInterval int) (*mat.Dense, error) {
	ne, nt := r.Data.Dims()
	if tIndex < 0 || tInterval < 1 || tIndex+tInterval > nt {
		return nil, fmt.Errorf("%w: [%d, %d) of %d samples", ErrWindow, tIndex, tIndex+tInterval, nt)
	}
	return mat.DenseCopyOf(r.Data.Slice(0, ne, tIndex, tIndex+tInterval)), nil
}

// SyntheticRecording samples the superposition of sources over n samples at
// srate Hz and projects it onto the electrodes through the physical forward
// model of grid. The sampled sources are kept as ground truth.
func SyntheticRecording(grid *voxel.Grid, electrodes mat.Matrix, sources []signal.Signal, srate float64, n int) (*Recording, error) {
	sys, err := NewSystem(srate, n)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: %d samples", ErrRecording, n)
	}
	model, err := forward.Build(electrodes, grid, forward.Options{})
	if err != nil {
		return nil, err
	}
	truth := signal.Sample(sources, grid.Len(), sys.TimeStamps())
	data, err := model.Predict(truth)
	if err != nil {
		return nil, err
	}
	rec := &Recording{
		Electrodes: mat.DenseCopyOf(electrodes),
		Data:       data,
		Sources:    truth,
		SampleRate: srate,
	}
	return rec, rec.Validate()
}
