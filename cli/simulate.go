package cli

import (
	"math/rand/v2"

	"github.com/urfave/cli/v2"

	"go.viam.com/posest/vision/pnp"
)

// SimulateAction writes a synthetic dataset whose ground truth pose is stored alongside the correspondences.
func SimulateAction(c *cli.Context) error {
	logger, closeLogger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer closeLogger()

	cfg := pnp.NewDefaultSyntheticConfig(c.Int(flagPoints), c.Int(flagOutliers))
	cfg.NoiseSigma = c.Float64(flagNoise)
	cfg.Planar = c.Bool(flagPlanar)

	var src rand.Source
	if c.IsSet(flagSeed) {
		seed := c.Uint64(flagSeed)
		src = rand.NewPCG(seed, seed)
	}
	data, err := pnp.GenerateSynthetic(cfg, src)
	if err != nil {
		return err
	}
	path := c.Path(flagOutput)
	if err := data.Dataset.Save(path); err != nil {
		return err
	}
	logger.Infow("wrote synthetic dataset",
		"path", path, "points", cfg.Points, "outliers", cfg.Outliers, "planar", cfg.Planar)
	printf(c.App.Writer, "wrote %d correspondences (%d outliers) to %s", cfg.Points, cfg.Outliers, path)
	return nil
}
