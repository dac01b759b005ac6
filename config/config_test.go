package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uranc/slmea/formulation"
	"github.com/uranc/slmea/nlp"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Empty()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, formulation.NameSlackL1, cfg.GetStrategy())
	assert.Equal(t, 30, cfg.GetTimeIndex())
	assert.Equal(t, 1, cfg.GetTimeWindow())
	assert.Equal(t, 20, cfg.GetVoxelResolution())
	assert.Equal(t, float64(formulation.DefaultTVBound), cfg.GetTVBound())
	assert.False(t, cfg.GetLiftedMask())
	assert.Equal(t, "checkpoints", cfg.GetCheckpointDir())

	opts := cfg.SolverOptions()
	assert.Equal(t, nlp.DefaultMaxIter, opts.MaxIter)
	assert.Equal(t, "limited-memory", opts.HessianApproximation)
	assert.Equal(t, "mumps", opts.LinearSolver)
}

func TestLoadPartial(t *testing.T) {
	path := writeConfig(t, "run.json", `{
		"strategy": "thesis",
		"sigma": 0.1,
		"lifted_mask": true,
		"solver": {"max_iter": 200, "hessian_approximation": "bfgs", "extra": {"inner_max_iter": "50"}},
		"checkpoint": {"flush_every": 5, "database": "ck.db"}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, formulation.NameThesis, cfg.GetStrategy())
	assert.Equal(t, 30, cfg.GetTimeIndex())

	p := cfg.FormulationParams()
	assert.Equal(t, 0.1, p.Sigma)
	assert.True(t, p.LiftedMask)
	assert.Equal(t, float64(formulation.DefaultTVBound), p.TVBound)

	opts := cfg.SolverOptions()
	assert.Equal(t, 200, opts.MaxIter)
	assert.Equal(t, "bfgs", opts.HessianApproximation)
	assert.Equal(t, "50", opts.Extra["inner_max_iter"])
	assert.Equal(t, 1, opts.CallbackEvery)

	assert.Equal(t, 5, cfg.GetFlushEvery())
	assert.Equal(t, "ck.db", cfg.GetCheckpointDatabase())
	assert.Equal(t, "slmea", cfg.GetCheckpointPrefix())
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(writeConfig(t, "run.yaml", `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json")

	_, err = Load(writeConfig(t, "big.json", `{"strategy": "`+strings.Repeat("x", maxFileSize)+`"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	_, err = Load(writeConfig(t, "bad.json", `{"sigma": "high"}`))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]*RunConfig{
		"strategy":     {Strategy: ptrString("l0")},
		"window":       {TimeWindow: ptrInt(0)},
		"sigma":        {Sigma: ptrFloat64(-1)},
		"resolution":   {VoxelResolution: ptrInt(0)},
		"tolerance":    {DataTolerance: ptrFloat64(-0.1)},
		"tv":           {TVBound: ptrFloat64(0)},
		"conductivity": {Conductivity: ptrFloat64(0)},
		"callback":     {Solver: &SolverConfig{CallbackEvery: ptrInt(0)}},
		"max_iter":     {Solver: &SolverConfig{MaxIter: ptrInt(0)}},
		"flush":        {Checkpoint: &CheckpointConfig{FlushEvery: ptrInt(0)}},
		"time_index":   {TimeIndex: ptrInt(-1)},
	}
	for name, cfg := range cases {
		require.ErrorIs(t, cfg.Validate(), ErrInvalid, name)
	}
	ok := &RunConfig{DepthWeighting: ptrBool(true), Checkpoint: &CheckpointConfig{Disabled: ptrBool(true)}}
	require.NoError(t, ok.Validate())
	assert.True(t, ok.ForwardOptions().DepthWeighting)
	assert.True(t, ok.GetCheckpointDisabled())
}
