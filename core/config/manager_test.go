package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/starnest/core/sampler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "starnest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestManagerLoadMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"), testLogger())
	require.NoError(t, m.Load())
	assert.Equal(t, Default(), m.Get())
}

func TestManagerLoadOverlay(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
sampler:
  n_initial: 800
  n_min: 200
  seed: 99
reducer:
  kind: feroz
  tolerance: 0.02
output:
  prefix: out/test_
`)

	m := NewManager(path, testLogger())
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, 800, cfg.Sampler.NInitial)
	assert.Equal(t, 200, cfg.Sampler.NMin)
	assert.Equal(t, int64(99), cfg.Sampler.Seed)
	assert.Equal(t, "feroz", cfg.Reducer.Kind)
	assert.Equal(t, "out/test_", cfg.Output.Prefix)

	// Untouched keys keep their defaults.
	assert.Equal(t, 2.5, cfg.Sampler.InitialEnlargement)
	assert.Equal(t, 6, cfg.Clustering.MaxClusters)
	assert.Equal(t, 68.27, cfg.Output.CredibleLevel)
}

func TestManagerLoadInvalid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
sampler:
  termination_factor: 5
`)

	m := NewManager(path, testLogger())
	err := m.Load()
	assert.ErrorIs(t, err, ErrInvalid)

	// The live config is untouched by a failed reload.
	assert.Equal(t, Default(), m.Get())
}

func TestManagerEnvOverride(t *testing.T) {
	t.Setenv("STARNEST_WORKERS", "8")
	t.Setenv("STARNEST_OUTPUT_PREFIX", "env/run_")
	t.Setenv("STARNEST_TERMINATION_FACTOR", "0.5")

	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"), testLogger())
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, 8, cfg.Sampler.Workers)
	assert.Equal(t, "env/run_", cfg.Output.Prefix)
	assert.Equal(t, 0.5, cfg.Sampler.TerminationFactor)
}

func TestManagerOnChange(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"), testLogger())

	var seen *Config
	m.OnChange(func(cfg *Config) { seen = cfg })

	require.NoError(t, m.Load())
	require.NotNil(t, seen)
	assert.Equal(t, m.Get(), seen)
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "sampler:\n  n_initial: 500\n")

	m := NewManager(path, testLogger())
	require.NoError(t, m.Load())
	require.Equal(t, 500, m.Get().Sampler.NInitial)

	changed := make(chan *Config, 4)
	m.OnChange(func(cfg *Config) { changed <- cfg })

	require.NoError(t, m.Watch())
	defer m.Close()

	require.NoError(t, os.WriteFile(path, []byte("sampler:\n  n_initial: 900\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Sampler.NInitial == 900 {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}

func TestBuildReducer(t *testing.T) {
	cfg := Default()
	r, err := cfg.BuildReducer()
	require.NoError(t, err)
	assert.IsType(t, sampler.ConstantReducer{}, r)

	cfg.Reducer = ReducerConfig{Kind: "feroz", Tolerance: 0.01}
	cfg.Sampler.NMin = 100
	r, err = cfg.BuildReducer()
	require.NoError(t, err)
	assert.IsType(t, &sampler.FerozReducer{}, r)

	cfg.Reducer = ReducerConfig{Kind: "exponential", Rate: 0.005}
	r, err = cfg.BuildReducer()
	require.NoError(t, err)
	assert.IsType(t, &sampler.ExponentialReducer{}, r)

	cfg.Reducer = ReducerConfig{Kind: "quadratic"}
	_, err = cfg.BuildReducer()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateRejections(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Sampler.NInitial = 1 },
		func(c *Config) { c.Sampler.NMin = 0 },
		func(c *Config) { c.Sampler.NMin = c.Sampler.NInitial + 1 },
		func(c *Config) { c.Sampler.InitialEnlargement = 0.5 },
		func(c *Config) { c.Sampler.ShrinkingRate = 2 },
		func(c *Config) { c.Sampler.MaxDrawAttempts = 0 },
		func(c *Config) { c.Sampler.ReclusterPeriod = 0 },
		func(c *Config) { c.Sampler.TerminationFactor = 0 },
		func(c *Config) { c.Clustering.MinClusters = 0 },
		func(c *Config) { c.Clustering.MaxClusters = 0 },
		func(c *Config) { c.Clustering.Trials = 0 },
		func(c *Config) { c.Reducer.Kind = "bogus" },
		func(c *Config) { c.Output.CredibleLevel = 0 },
		func(c *Config) { c.Output.Prefix = "" },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalid, "case %d", i)
	}
}

func TestConfigAdapters(t *testing.T) {
	cfg := Default()
	cfg.Sampler.Seed = 17
	cfg.Sampler.Workers = 3

	sc := cfg.SamplerConfig()
	assert.Equal(t, 400, sc.NInitial)
	assert.Equal(t, int64(17), sc.Seed)
	assert.Equal(t, 3, sc.Workers)

	rp := cfg.RunParams()
	assert.Equal(t, 50000, rp.MaxDrawAttempts)
	assert.Equal(t, 100, rp.NInitNoClustering)
	assert.Equal(t, 10, rp.ReclusterPeriod)
	assert.Equal(t, 0.01, rp.TerminationFactor)

	kc := cfg.ClusterConfig()
	assert.Equal(t, 1, kc.MinClusters)
	assert.Equal(t, 6, kc.MaxClusters)
	assert.Equal(t, 10, kc.Trials)
}
