// Package reconstruct drives one formulation through an NLP backend and maps
// the solution back onto the voxel grid.
package reconstruct

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uranc/slmea/checkpoint"
	"github.com/uranc/slmea/formulation"
	"github.com/uranc/slmea/monitoring"
	"github.com/uranc/slmea/nlp"
	"github.com/uranc/slmea/voxel"
	"gonum.org/v1/gonum/mat"
)

// Reconstruction is anything that can produce a reconstructed source.
type Reconstruction interface {
	// Reconstruct runs the solve and returns the result
	Reconstruct(ctx context.Context) (*Result, error)
}

// Result is a finished solve mapped onto the grid.
type Result struct {
	SessionID string
	// RunID identifies this solve among the runs of its session.
	RunID        string
	Strategy     string
	Status       nlp.Status
	Objective    float64
	Iterations   int
	MaxViolation float64
	Message      string
	// X is the full solution vector.
	X []float64
	// Source is the (n_voxels x t_int) source amplitude.
	Source *mat.Dense
	// Volume is Source reshaped onto the grid.
	Volume *voxel.Volume
	// Mask is the per-voxel mask of mask formulations, nil otherwise.
	Mask    *voxel.Volume
	Problem *formulation.Problem
}

// Orchestrator runs formulations. Sink and Results are optional.
type Orchestrator struct {
	Solver  nlp.Solver
	Options nlp.Options
	// Sink receives checkpoint batches every FlushEvery callback invocations.
	Sink       checkpoint.Sink
	FlushEvery int
	// Results persists the final result when set.
	Results   *checkpoint.ResultStore
	SessionID string
}

// Run formulates c if it is not yet assembled, solves it and reshapes the
// solution. Non-convergence is reported through Result.Status. Checkpoint
// and result persistence failures abort the run. Every call gets a fresh,
// time-ordered run id, so repeated runs of one session keep their checkpoints
// apart.
func (o *Orchestrator) Run(ctx context.Context, c *formulation.Context) (*Result, error) {
	if c.Stage() < formulation.Assembled {
		if _, err := c.Formulate(); err != nil {
			return nil, err
		}
	}
	solver := o.Solver
	if solver == nil {
		solver = nlp.AugmentedLagrangian{}
	}
	run, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("reconstruct: run id: %w", err)
	}
	runID := run.String()

	var cb nlp.Callback
	var rec *checkpoint.Recorder
	if o.Sink != nil {
		rec = checkpoint.NewRecorder(o.Sink, o.FlushEvery, o.SessionID, runID)
		cb = rec.Callback
	}
	sol, err := c.Minimize(ctx, solver, o.Options, cb)
	if rec != nil {
		if cerr := rec.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	if err != nil {
		return nil, err
	}

	res, err := Extract(c, sol)
	if err != nil {
		return nil, err
	}
	res.SessionID = o.SessionID
	res.RunID = runID
	monitoring.Logf("[reconstruct] run %s: %s %s, objective %g after %d iterations", runID, res.Strategy, res.Status, res.Objective, res.Iterations)

	if o.Results != nil {
		err := o.Results.Save(checkpoint.Record{
			SessionID:  o.SessionID,
			RunID:      runID,
			Strategy:   res.Strategy,
			Status:     res.Status.String(),
			Objective:  res.Objective,
			Iterations: res.Iterations,
			X:          res.X,
		})
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Extract maps a solver result for c back onto the grid.
func Extract(c *formulation.Context, sol *nlp.Result) (*Result, error) {
	p := c.Problem()
	if p == nil {
		return nil, fmt.Errorf("%w: extract before assemble", formulation.ErrStage)
	}
	src, err := c.Strategy().Source(c, sol.X)
	if err != nil {
		return nil, err
	}
	vol, err := reshape(c.Data.Grid, src)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Strategy:     p.Strategy,
		Status:       sol.Status,
		Objective:    sol.Objective,
		Iterations:   sol.Iterations,
		MaxViolation: sol.MaxViolation,
		Message:      sol.Message,
		X:            sol.X,
		Source:       src,
		Volume:       vol,
		Problem:      p,
	}
	if p.Strategy == formulation.NameThesis {
		m, err := formulation.Mask(c, sol.X)
		if err != nil {
			return nil, err
		}
		if res.Mask, err = reshape(c.Data.Grid, m); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func reshape(g *voxel.Grid, m mat.Matrix) (*voxel.Volume, error) {
	field, err := g.FieldFromMatrix(m)
	if err != nil {
		return nil, err
	}
	return g.Reshape(field)
}
