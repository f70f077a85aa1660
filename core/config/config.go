package config

import (
	"errors"
	"fmt"

	"github.com/adalundhe/starnest/core/clustering"
	"github.com/adalundhe/starnest/core/sampler"
)

// ErrInvalid reports a configuration value that fails validation.
var ErrInvalid = errors.New("config: invalid value")

// Config is the full run configuration as loaded from YAML.
type Config struct {
	Sampler    SamplerConfig    `yaml:"sampler"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Reducer    ReducerConfig    `yaml:"reducer"`
	Output     OutputConfig     `yaml:"output"`
}

// SamplerConfig collects the population and loop controls.
type SamplerConfig struct {
	NInitial           int     `yaml:"n_initial"`
	NMin               int     `yaml:"n_min"`
	InitialEnlargement float64 `yaml:"initial_enlargement"`
	ShrinkingRate      float64 `yaml:"shrinking_rate"`
	MaxDrawAttempts    int     `yaml:"max_draw_attempts"`
	NInitNoClustering  int     `yaml:"n_init_no_clustering"`
	ReclusterPeriod    int     `yaml:"recluster_period"`
	TerminationFactor  float64 `yaml:"termination_factor"`
	MaxIterations      int     `yaml:"max_iterations"`
	Seed               int64   `yaml:"seed"`
	Workers            int     `yaml:"workers"`
	LogInterval        int     `yaml:"log_interval"`
}

// ClusteringConfig collects the live-point clusterer controls.
type ClusteringConfig struct {
	MinClusters   int     `yaml:"min_clusters"`
	MaxClusters   int     `yaml:"max_clusters"`
	Trials        int     `yaml:"trials"`
	RelTol        float64 `yaml:"rel_tol"`
	MaxIterations int     `yaml:"max_iterations"`
}

// ReducerConfig selects the live-point reduction schedule. Kind is one of
// "constant", "feroz" or "exponential"; an empty kind means constant.
type ReducerConfig struct {
	Kind      string  `yaml:"kind"`
	Tolerance float64 `yaml:"tolerance"`
	Rate      float64 `yaml:"rate"`
}

// OutputConfig controls the result file set.
type OutputConfig struct {
	Prefix        string  `yaml:"prefix"`
	CredibleLevel float64 `yaml:"credible_level"`
	Marginals     bool    `yaml:"marginals"`
}

// Default returns the configuration used by the bundled demo drivers.
func Default() *Config {
	return &Config{
		Sampler: SamplerConfig{
			NInitial:           400,
			NMin:               400,
			InitialEnlargement: 2.5,
			ShrinkingRate:      0.6,
			MaxDrawAttempts:    50000,
			NInitNoClustering:  100,
			ReclusterPeriod:    10,
			TerminationFactor:  0.01,
			Workers:            1,
			LogInterval:        500,
		},
		Clustering: ClusteringConfig{
			MinClusters:   1,
			MaxClusters:   6,
			Trials:        10,
			RelTol:        0.01,
			MaxIterations: 50,
		},
		Reducer: ReducerConfig{
			Kind: "constant",
		},
		Output: OutputConfig{
			Prefix:        "results/run_",
			CredibleLevel: 68.27,
			Marginals:     true,
		},
	}
}

// Validate checks every field range. Construction-time validation in the
// sampler packages repeats the critical checks; failing here gives the
// operator a config-shaped error before any work starts.
func (c *Config) Validate() error {
	s := c.Sampler
	if s.NInitial < 2 {
		return fmt.Errorf("%w: sampler.n_initial %d", ErrInvalid, s.NInitial)
	}
	if s.NMin < 1 || s.NMin > s.NInitial {
		return fmt.Errorf("%w: sampler.n_min %d", ErrInvalid, s.NMin)
	}
	if s.InitialEnlargement < 1 {
		return fmt.Errorf("%w: sampler.initial_enlargement %g", ErrInvalid, s.InitialEnlargement)
	}
	if s.ShrinkingRate < 0 || s.ShrinkingRate > 1 {
		return fmt.Errorf("%w: sampler.shrinking_rate %g", ErrInvalid, s.ShrinkingRate)
	}
	if s.MaxDrawAttempts < 1 {
		return fmt.Errorf("%w: sampler.max_draw_attempts %d", ErrInvalid, s.MaxDrawAttempts)
	}
	if s.NInitNoClustering < 0 {
		return fmt.Errorf("%w: sampler.n_init_no_clustering %d", ErrInvalid, s.NInitNoClustering)
	}
	if s.ReclusterPeriod < 1 {
		return fmt.Errorf("%w: sampler.recluster_period %d", ErrInvalid, s.ReclusterPeriod)
	}
	if s.TerminationFactor <= 0 || s.TerminationFactor > 1 {
		return fmt.Errorf("%w: sampler.termination_factor %g", ErrInvalid, s.TerminationFactor)
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("%w: sampler.max_iterations %d", ErrInvalid, s.MaxIterations)
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: sampler.workers %d", ErrInvalid, s.Workers)
	}

	k := c.Clustering
	if k.MinClusters < 1 || k.MaxClusters < k.MinClusters {
		return fmt.Errorf("%w: clustering bounds [%d, %d]", ErrInvalid, k.MinClusters, k.MaxClusters)
	}
	if k.Trials < 1 {
		return fmt.Errorf("%w: clustering.trials %d", ErrInvalid, k.Trials)
	}
	if k.RelTol <= 0 {
		return fmt.Errorf("%w: clustering.rel_tol %g", ErrInvalid, k.RelTol)
	}

	switch c.Reducer.Kind {
	case "", "constant":
	case "feroz":
		if c.Reducer.Tolerance < 0 {
			return fmt.Errorf("%w: reducer.tolerance %g", ErrInvalid, c.Reducer.Tolerance)
		}
	case "exponential":
		if c.Reducer.Rate < 0 {
			return fmt.Errorf("%w: reducer.rate %g", ErrInvalid, c.Reducer.Rate)
		}
	default:
		return fmt.Errorf("%w: reducer.kind %q", ErrInvalid, c.Reducer.Kind)
	}

	if c.Output.CredibleLevel <= 0 || c.Output.CredibleLevel > 100 {
		return fmt.Errorf("%w: output.credible_level %g", ErrInvalid, c.Output.CredibleLevel)
	}
	if c.Output.Prefix == "" {
		return fmt.Errorf("%w: output.prefix empty", ErrInvalid)
	}
	return nil
}

// SamplerConfig maps onto the sampler's construction parameters.
func (c *Config) SamplerConfig() sampler.Config {
	return sampler.Config{
		NInitial:           c.Sampler.NInitial,
		NMin:               c.Sampler.NMin,
		InitialEnlargement: c.Sampler.InitialEnlargement,
		ShrinkingRate:      c.Sampler.ShrinkingRate,
		Seed:               c.Sampler.Seed,
		Workers:            c.Sampler.Workers,
	}
}

// RunParams maps onto the sampler's per-run loop controls.
func (c *Config) RunParams() sampler.RunParams {
	return sampler.RunParams{
		NInitNoClustering: c.Sampler.NInitNoClustering,
		ReclusterPeriod:   c.Sampler.ReclusterPeriod,
		MaxDrawAttempts:   c.Sampler.MaxDrawAttempts,
		TerminationFactor: c.Sampler.TerminationFactor,
		MaxIterations:     c.Sampler.MaxIterations,
		LogInterval:       c.Sampler.LogInterval,
	}
}

// ClusterConfig maps onto the clusterer's parameters.
func (c *Config) ClusterConfig() clustering.Config {
	return clustering.Config{
		MinClusters:   c.Clustering.MinClusters,
		MaxClusters:   c.Clustering.MaxClusters,
		Trials:        c.Clustering.Trials,
		RelTol:        c.Clustering.RelTol,
		MaxIterations: c.Clustering.MaxIterations,
	}
}

// BuildReducer constructs the configured reduction schedule.
func (c *Config) BuildReducer() (sampler.Reducer, error) {
	switch c.Reducer.Kind {
	case "", "constant":
		return sampler.ConstantReducer{}, nil
	case "feroz":
		return sampler.NewFerozReducer(c.Sampler.NInitial, c.Sampler.NMin, c.Reducer.Tolerance)
	case "exponential":
		return sampler.NewExponentialReducer(c.Sampler.NInitial, c.Sampler.NMin, c.Reducer.Rate)
	}
	return nil, fmt.Errorf("%w: reducer.kind %q", ErrInvalid, c.Reducer.Kind)
}
