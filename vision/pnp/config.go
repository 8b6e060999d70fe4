package pnp

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// Config holds the parameters of the RANSAC pose estimator.
type Config struct {
	// MaxIteration is the initial trial budget.
	MaxIteration int `json:"max_iteration" yaml:"max_iteration"`
	// ReprojectionError is the inlier threshold in pixels. A correspondence is an inlier when its error is
	// strictly below it.
	ReprojectionError float64 `json:"reprojection_error" yaml:"reprojection_error"`
	// Confidence is the probability of drawing at least one outlier free sample used to shrink the budget.
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// Seed makes sampling reproducible. A nil seed is taken from the clock on every call.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	// RefineFinal enables nonlinear refinement of the pose fitted to the consensus set.
	RefineFinal bool `json:"refine_final" yaml:"refine_final"`
}

// NewDefaultConfig returns the default estimator configuration.
func NewDefaultConfig() *Config {
	return &Config{
		MaxIteration:      500,
		ReprojectionError: 2.0,
		Confidence:        0.99,
	}
}

// Validate returns every out of range field, wrapped in ErrInvalidConfig.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}
	var err error
	if cfg.MaxIteration <= 0 {
		err = multierr.Append(err, errors.Errorf("max_iteration must be positive, got %d", cfg.MaxIteration))
	}
	if !(cfg.ReprojectionError > 0) {
		err = multierr.Append(err, errors.Errorf("reprojection_error must be positive, got %v", cfg.ReprojectionError))
	}
	if !(cfg.Confidence >= 0 && cfg.Confidence <= 1) {
		err = multierr.Append(err, errors.Errorf("confidence must be in [0, 1], got %v", cfg.Confidence))
	}
	if err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// LoadConfig loads an estimator configuration from a json file. Fields missing from the file keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	//nolint:gosec
	configFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening config file")
	}
	defer utils.UncheckedErrorFunc(configFile.Close)

	cfg := NewDefaultConfig()
	if err := json.NewDecoder(configFile).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "error parsing config file %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
