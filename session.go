package slmea

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/uranc/slmea/checkpoint"
	"github.com/uranc/slmea/config"
	"github.com/uranc/slmea/formulation"
	"github.com/uranc/slmea/forward"
	"github.com/uranc/slmea/fsutil"
	"github.com/uranc/slmea/monitoring"
	"github.com/uranc/slmea/reconstruct"
	"github.com/uranc/slmea/voxel"
	"gonum.org/v1/gonum/mat"
)

// Session ties a recording to a grid, its forward model and one configured
// reconstruction over a time window.
type Session struct {
	ID        uuid.UUID
	Grid      *voxel.Grid
	Model     *forward.Model
	Recording *Recording
	Config    *config.RunConfig
	Strategy  formulation.Strategy
	// Orchestrator runs the solve. Its solver options and session id come from
	// Config; attach sinks with UseCheckpoints.
	Orchestrator reconstruct.Orchestrator

	db *checkpoint.DB
}

var _ reconstruct.Reconstruction = (*Session)(nil)

// NewSession spans a grid of cfg's voxel resolution over the electrode
// bounding box. A nil cfg selects the defaults.
func NewSession(rec *Recording, cfg *config.RunConfig) (*Session, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: no recording", ErrRecording)
	}
	if cfg == nil {
		cfg = config.Empty()
	}
	lo, hi, err := voxel.BoundsOf(rec.Electrodes)
	if err != nil {
		return nil, err
	}
	grid, err := voxel.NewGridFromBounds(lo, hi, cfg.GetVoxelResolution())
	if err != nil {
		return nil, err
	}
	return NewSessionOnGrid(rec, grid, cfg)
}

// NewSessionOnGrid reconstructs onto a given grid.
func NewSessionOnGrid(rec *Recording, grid *voxel.Grid, cfg *config.RunConfig) (*Session, error) {
	if cfg == nil {
		cfg = config.Empty()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	strategy, err := formulation.Lookup(cfg.GetStrategy())
	if err != nil {
		return nil, err
	}
	model, err := forward.Build(rec.Electrodes, grid, cfg.ForwardOptions())
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	s := &Session{
		ID:        id,
		Grid:      grid,
		Model:     model,
		Recording: rec,
		Config:    cfg,
		Strategy:  strategy,
		Orchestrator: reconstruct.Orchestrator{
			Options:    cfg.SolverOptions(),
			FlushEvery: cfg.GetFlushEvery(),
			SessionID:  id.String(),
		},
	}
	ni, nj, nk := grid.Shape()
	monitoring.Logf("[session] %s: %d electrodes, grid %dx%dx%d, strategy %s", id, model.Electrodes(), ni, nj, nk, strategy.Name())
	return s, nil
}

// UseCheckpoints attaches the checkpoint sink and result store selected by
// the configuration. Files go through fsys; a configured database replaces
// them. The returned closer releases the database and is never nil.
func (s *Session) UseCheckpoints(fsys fsutil.FileSystem) (io.Closer, error) {
	if s.Config.GetCheckpointDisabled() {
		return io.NopCloser(nil), nil
	}
	if path := s.Config.GetCheckpointDatabase(); path != "" {
		db, err := checkpoint.OpenDB(path)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.Orchestrator.Sink = checkpoint.NewSQLiteSink(db)
		s.Orchestrator.Results = checkpoint.NewResultStore(db)
		return db, nil
	}
	sink, err := checkpoint.NewFileSink(fsys, s.Config.GetCheckpointDir(), s.checkpointPrefix())
	if err != nil {
		return nil, err
	}
	s.Orchestrator.Sink = sink
	return io.NopCloser(nil), nil
}

// checkpointPrefix keys file batches by session so runs sharing a directory
// do not collide.
func (s *Session) checkpointPrefix() string {
	return s.Config.GetCheckpointPrefix() + "_" + s.ID.String()
}

// LoadCheckpoints reads back the iterates run runID of this session wrote
// through fsys or its database. An empty runID selects the latest run.
func (s *Session) LoadCheckpoints(fsys fsutil.FileSystem, runID string) ([]checkpoint.Iterate, error) {
	var (
		batches []checkpoint.Batch
		err     error
	)
	if s.db != nil {
		batches, err = s.db.LoadBatches(s.ID.String())
	} else {
		batches, err = checkpoint.LoadBatches(fsys, s.Config.GetCheckpointDir(), s.checkpointPrefix())
	}
	if err != nil {
		return nil, err
	}
	return checkpoint.Iterates(checkpoint.SelectRun(batches, runID)), nil
}

// Window returns the configured measurement window.
func (s *Session) Window() (*mat.Dense, error) {
	return s.Recording.Window(s.Config.GetTimeIndex(), s.Config.GetTimeWindow())
}

// TimeStamps returns the sample times of the configured window.
func (s *Session) TimeStamps() []float64 {
	all := s.Recording.TimeStamps()
	lo := min(s.Config.GetTimeIndex(), len(all))
	hi := min(lo+s.Config.GetTimeWindow(), len(all))
	return all[lo:hi]
}

// Context returns a fresh formulation context over the configured window.
func (s *Session) Context() (*formulation.Context, error) {
	y, err := s.Window()
	if err != nil {
		return nil, err
	}
	data := formulation.Data{Grid: s.Grid, Forward: s.Model.F, Measurements: y}
	return formulation.NewContext(data, s.Config.FormulationParams(), s.Strategy)
}

// Reconstruct formulates and solves the configured window. With depth
// weighting the returned source is mapped back to physical amplitude.
func (s *Session) Reconstruct(ctx context.Context) (*reconstruct.Result, error) {
	c, err := s.Context()
	if err != nil {
		return nil, err
	}
	res, err := s.Orchestrator.Run(ctx, c)
	if err != nil {
		return nil, err
	}
	if s.Model.Weights != nil {
		res.Source = s.Model.Physical(res.Source)
		field, err := s.Grid.FieldFromMatrix(res.Source)
		if err != nil {
			return nil, err
		}
		if res.Volume, err = s.Grid.Reshape(field); err != nil {
			return nil, err
		}
	}
	return res, nil
}
