package pnp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	test.That(t, NewDefaultConfig().Validate(), test.ShouldBeNil)

	var nilConfig *Config
	test.That(t, errors.Is(nilConfig.Validate(), ErrInvalidConfig), test.ShouldBeTrue)

	for _, cfg := range []Config{
		{MaxIteration: -1, ReprojectionError: 1, Confidence: 0.9},
		{MaxIteration: 10, ReprojectionError: 0, Confidence: 0.9},
		{MaxIteration: 10, ReprojectionError: 1, Confidence: -0.1},
		{MaxIteration: 10, ReprojectionError: 1, Confidence: 1.01},
	} {
		err := cfg.Validate()
		test.That(t, errors.Is(err, ErrInvalidConfig), test.ShouldBeTrue)
	}
	// closed interval
	test.That(t, (&Config{MaxIteration: 1, ReprojectionError: 0.1, Confidence: 0}).Validate(), test.ShouldBeNil)
	test.That(t, (&Config{MaxIteration: 1, ReprojectionError: 0.1, Confidence: 1}).Validate(), test.ShouldBeNil)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "estimator.json")
	test.That(t, os.WriteFile(path, []byte(`{"reprojection_error": 3.5, "seed": 12, "refine_final": true}`), 0o600),
		test.ShouldBeNil)

	cfg, err := LoadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MaxIteration, test.ShouldEqual, NewDefaultConfig().MaxIteration)
	test.That(t, cfg.Confidence, test.ShouldEqual, NewDefaultConfig().Confidence)
	test.That(t, cfg.ReprojectionError, test.ShouldEqual, 3.5)
	test.That(t, *cfg.Seed, test.ShouldEqual, uint64(12))
	test.That(t, cfg.RefineFinal, test.ShouldBeTrue)

	test.That(t, os.WriteFile(path, []byte(`{"max_iteration": 0}`), 0o600), test.ShouldBeNil)
	_, err = LoadConfig(path)
	test.That(t, errors.Is(err, ErrInvalidConfig), test.ShouldBeTrue)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	test.That(t, err.Error(), test.ShouldContainSubstring, "error opening config file")
}
