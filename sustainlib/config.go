package sustainlib

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by all configuration validation errors.
var ErrInvalidConfig = errors.New("sustainlib: invalid config")

// Config holds the driver settings consumed by the fitting engine.
type Config struct {

	// Dataset names the cohort in checkpoint keys.
	Dataset string `json:"dataset" yaml:"dataset"`

	// NStartpoints is the number of random restarts per optimization.
	NStartpoints int `json:"n_startpoints" yaml:"n_startpoints"`

	// NSMax is the largest number of subtypes to fit.
	NSMax int `json:"n_s_max" yaml:"n_s_max"`

	// NIterMCMC is the length of the production Markov chain.
	NIterMCMC int `json:"n_iterations_mcmc" yaml:"n_iterations_mcmc"`

	// NIterTune is the length of each proposal tuning chain.
	NIterTune int `json:"n_iterations_tune" yaml:"n_iterations_tune"`

	// NTunePasses is the number of proposal tuning passes.
	NTunePasses int `json:"n_tune_passes" yaml:"n_tune_passes"`

	// NSamplesAssign is the number of thinned draws used to assign subjects.
	NSamplesAssign int `json:"n_samples_assign" yaml:"n_samples_assign"`

	// MaxIterEM bounds the number of EM steps.
	MaxIterEM int `json:"max_iter_em" yaml:"max_iter_em"`

	// TolEM is the relative log-likelihood change at which EM stops.
	TolEM float64 `json:"tol_em" yaml:"tol_em"`

	// Seed drives every random choice made by the engine.
	Seed int64 `json:"seed" yaml:"seed"`

	// Workers bounds the number of concurrently evaluated start points,
	// split candidates and folds.  Zero means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// Progress shows a progress bar for production chains.
	Progress bool `json:"progress" yaml:"progress"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Dataset:        "sustain",
		NStartpoints:   25,
		NSMax:          3,
		NIterMCMC:      100000,
		NIterTune:      10000,
		NTunePasses:    3,
		NSamplesAssign: 1000,
		MaxIterEM:      100,
		TolEM:          1e-6,
		Seed:           1,
	}
}

// LoadConfig reads a YAML configuration file over the defaults.  A missing
// file yields the defaults.
func LoadConfig(path string) (Config, error) {

	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks that all counts are usable.
func (c Config) Validate() error {

	switch {
	case c.NStartpoints < 1:
		return fmt.Errorf("%w: n_startpoints must be positive, got %d", ErrInvalidConfig, c.NStartpoints)
	case c.NSMax < 1:
		return fmt.Errorf("%w: n_s_max must be positive, got %d", ErrInvalidConfig, c.NSMax)
	case c.NIterMCMC < 1:
		return fmt.Errorf("%w: n_iterations_mcmc must be positive, got %d", ErrInvalidConfig, c.NIterMCMC)
	case c.NIterTune < 2:
		return fmt.Errorf("%w: n_iterations_tune must be at least 2, got %d", ErrInvalidConfig, c.NIterTune)
	case c.NTunePasses < 0:
		return fmt.Errorf("%w: n_tune_passes must not be negative, got %d", ErrInvalidConfig, c.NTunePasses)
	case c.NSamplesAssign < 1:
		return fmt.Errorf("%w: n_samples_assign must be positive, got %d", ErrInvalidConfig, c.NSamplesAssign)
	case c.MaxIterEM < 1:
		return fmt.Errorf("%w: max_iter_em must be positive, got %d", ErrInvalidConfig, c.MaxIterEM)
	case c.TolEM <= 0:
		return fmt.Errorf("%w: tol_em must be positive, got %g", ErrInvalidConfig, c.TolEM)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}

	return nil
}
