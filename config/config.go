// Package config loads the JSON run configuration.
//
// Every field is a pointer so omitted keys fall back to the defaults returned
// by the Get* accessors; partial files are safe.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/uranc/slmea/formulation"
	"github.com/uranc/slmea/forward"
	"github.com/uranc/slmea/nlp"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid configuration")

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults.
const (
	DefaultStrategy        = formulation.NameSlackL1
	DefaultTimeIndex       = 30
	DefaultTimeWindow      = 1
	DefaultSigma           = 1.0
	DefaultDepthExponent   = 1.0
	DefaultVoxelResolution = 20
	DefaultFlushEvery      = 10
	DefaultCheckpointDir   = "checkpoints"
	DefaultCheckpointPfx   = "slmea"
	DefaultLinearSolver    = "mumps"
)

// RunConfig is the root configuration of one reconstruction run.
type RunConfig struct {
	Strategy        *string  `json:"strategy,omitempty"`
	TimeIndex       *int     `json:"time_index,omitempty"`
	TimeWindow      *int     `json:"time_window,omitempty"`
	Sigma           *float64 `json:"sigma,omitempty"`
	DepthWeighting  *bool    `json:"depth_weighting,omitempty"`
	DepthExponent   *float64 `json:"depth_exponent,omitempty"`
	LiftedMask      *bool    `json:"lifted_mask,omitempty"`
	Orientation     *bool    `json:"orientation,omitempty"`
	TVBound         *float64 `json:"tv_bound,omitempty"`
	DataTolerance   *float64 `json:"data_tolerance,omitempty"`
	VoxelResolution *int     `json:"voxel_resolution,omitempty"`
	Conductivity    *float64 `json:"conductivity,omitempty"`
	InitialJitter   *float64 `json:"initial_jitter,omitempty"`
	Seed            *uint64  `json:"seed,omitempty"`

	Solver     *SolverConfig     `json:"solver,omitempty"`
	Checkpoint *CheckpointConfig `json:"checkpoint,omitempty"`
}

// SolverConfig is passed through to the NLP backend.
type SolverConfig struct {
	MaxIter              *int              `json:"max_iter,omitempty"`
	HessianApproximation *string           `json:"hessian_approximation,omitempty"`
	LinearSolver         *string           `json:"linear_solver,omitempty"`
	CallbackEvery        *int              `json:"callback_every,omitempty"`
	Tolerance            *float64          `json:"tolerance,omitempty"`
	Extra                map[string]string `json:"extra,omitempty"`
}

// CheckpointConfig controls iterate and result persistence.
type CheckpointConfig struct {
	Dir        *string `json:"dir,omitempty"`
	Prefix     *string `json:"prefix,omitempty"`
	FlushEvery *int    `json:"flush_every,omitempty"`
	// Database, when set, stores batches and results in SQLite instead of files.
	Database *string `json:"database,omitempty"`
	Disabled *bool   `json:"disabled,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a RunConfig with every field unset.
func Empty() *RunConfig {
	return &RunConfig{}
}

// Load reads a RunConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func Load(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the set fields.
func (c *RunConfig) Validate() error {
	if _, err := formulation.Lookup(c.GetStrategy()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.GetTimeIndex() < 0 {
		return fmt.Errorf("%w: time_index must be non-negative, got %d", ErrInvalid, c.GetTimeIndex())
	}
	if c.GetTimeWindow() < 1 {
		return fmt.Errorf("%w: time_window must be positive, got %d", ErrInvalid, c.GetTimeWindow())
	}
	if c.GetSigma() < 0 {
		return fmt.Errorf("%w: sigma must be non-negative, got %g", ErrInvalid, c.GetSigma())
	}
	if c.GetVoxelResolution() < 1 {
		return fmt.Errorf("%w: voxel_resolution must be positive, got %d", ErrInvalid, c.GetVoxelResolution())
	}
	if c.GetDataTolerance() < 0 {
		return fmt.Errorf("%w: data_tolerance must be non-negative, got %g", ErrInvalid, c.GetDataTolerance())
	}
	if c.GetTVBound() <= 0 {
		return fmt.Errorf("%w: tv_bound must be positive, got %g", ErrInvalid, c.GetTVBound())
	}
	if c.GetConductivity() <= 0 {
		return fmt.Errorf("%w: conductivity must be positive, got %g", ErrInvalid, c.GetConductivity())
	}
	if c.Solver != nil && c.Solver.CallbackEvery != nil && *c.Solver.CallbackEvery < 1 {
		return fmt.Errorf("%w: solver.callback_every must be at least 1, got %d", ErrInvalid, *c.Solver.CallbackEvery)
	}
	if c.Solver != nil && c.Solver.MaxIter != nil && *c.Solver.MaxIter < 1 {
		return fmt.Errorf("%w: solver.max_iter must be at least 1, got %d", ErrInvalid, *c.Solver.MaxIter)
	}
	if c.GetFlushEvery() < 1 {
		return fmt.Errorf("%w: checkpoint.flush_every must be at least 1, got %d", ErrInvalid, c.GetFlushEvery())
	}
	return nil
}

func (c *RunConfig) GetStrategy() string {
	if c.Strategy == nil {
		return DefaultStrategy
	}
	return *c.Strategy
}

func (c *RunConfig) GetTimeIndex() int {
	if c.TimeIndex == nil {
		return DefaultTimeIndex
	}
	return *c.TimeIndex
}

func (c *RunConfig) GetTimeWindow() int {
	if c.TimeWindow == nil {
		return DefaultTimeWindow
	}
	return *c.TimeWindow
}

func (c *RunConfig) GetSigma() float64 {
	if c.Sigma == nil {
		return DefaultSigma
	}
	return *c.Sigma
}

func (c *RunConfig) GetDepthWeighting() bool {
	return c.DepthWeighting != nil && *c.DepthWeighting
}

func (c *RunConfig) GetDepthExponent() float64 {
	if c.DepthExponent == nil {
		return DefaultDepthExponent
	}
	return *c.DepthExponent
}

func (c *RunConfig) GetLiftedMask() bool {
	return c.LiftedMask != nil && *c.LiftedMask
}

func (c *RunConfig) GetOrientation() bool {
	return c.Orientation != nil && *c.Orientation
}

func (c *RunConfig) GetTVBound() float64 {
	if c.TVBound == nil {
		return formulation.DefaultTVBound
	}
	return *c.TVBound
}

func (c *RunConfig) GetDataTolerance() float64 {
	if c.DataTolerance == nil {
		return 0
	}
	return *c.DataTolerance
}

func (c *RunConfig) GetVoxelResolution() int {
	if c.VoxelResolution == nil {
		return DefaultVoxelResolution
	}
	return *c.VoxelResolution
}

func (c *RunConfig) GetConductivity() float64 {
	if c.Conductivity == nil {
		return forward.DefaultConductivity
	}
	return *c.Conductivity
}

func (c *RunConfig) GetInitialJitter() float64 {
	if c.InitialJitter == nil {
		return 0
	}
	return *c.InitialJitter
}

func (c *RunConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

func (c *RunConfig) GetFlushEvery() int {
	if c.Checkpoint == nil || c.Checkpoint.FlushEvery == nil {
		return DefaultFlushEvery
	}
	return *c.Checkpoint.FlushEvery
}

func (c *RunConfig) GetCheckpointDir() string {
	if c.Checkpoint == nil || c.Checkpoint.Dir == nil {
		return DefaultCheckpointDir
	}
	return *c.Checkpoint.Dir
}

func (c *RunConfig) GetCheckpointPrefix() string {
	if c.Checkpoint == nil || c.Checkpoint.Prefix == nil {
		return DefaultCheckpointPfx
	}
	return *c.Checkpoint.Prefix
}

func (c *RunConfig) GetCheckpointDatabase() string {
	if c.Checkpoint == nil || c.Checkpoint.Database == nil {
		return ""
	}
	return *c.Checkpoint.Database
}

func (c *RunConfig) GetCheckpointDisabled() bool {
	return c.Checkpoint != nil && c.Checkpoint.Disabled != nil && *c.Checkpoint.Disabled
}

// ForwardOptions returns the forward model options.
func (c *RunConfig) ForwardOptions() forward.Options {
	return forward.Options{
		Conductivity:   c.GetConductivity(),
		DepthWeighting: c.GetDepthWeighting(),
		DepthExponent:  c.GetDepthExponent(),
	}
}

// FormulationParams returns the formulation parameters.
func (c *RunConfig) FormulationParams() formulation.Params {
	return formulation.Params{
		Sigma:         c.GetSigma(),
		DataTolerance: c.GetDataTolerance(),
		LiftedMask:    c.GetLiftedMask(),
		TVBound:       c.GetTVBound(),
		Orientation:   c.GetOrientation(),
		InitialJitter: c.GetInitialJitter(),
		Seed:          c.GetSeed(),
	}
}

// SolverOptions returns the NLP options.
func (c *RunConfig) SolverOptions() nlp.Options {
	opts := nlp.Options{
		MaxIter:              nlp.DefaultMaxIter,
		HessianApproximation: nlp.DefaultHessianApproximation,
		LinearSolver:         DefaultLinearSolver,
		CallbackEvery:        1,
		Tolerance:            nlp.DefaultTolerance,
	}
	s := c.Solver
	if s == nil {
		return opts
	}
	if s.MaxIter != nil {
		opts.MaxIter = *s.MaxIter
	}
	if s.HessianApproximation != nil {
		opts.HessianApproximation = *s.HessianApproximation
	}
	if s.LinearSolver != nil {
		opts.LinearSolver = *s.LinearSolver
	}
	if s.CallbackEvery != nil {
		opts.CallbackEvery = *s.CallbackEvery
	}
	if s.Tolerance != nil {
		opts.Tolerance = *s.Tolerance
	}
	opts.Extra = s.Extra
	return opts
}
