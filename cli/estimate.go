package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/posest/rimage/transform"
	"go.viam.com/posest/spatialmath"
	"go.viam.com/posest/vision/pnp"
)

// EstimateOutput is the JSON document written by the estimate command.
type EstimateOutput struct {
	Pose        *pnp.PoseRecord     `json:"pose"`
	AxisAngle   *spatialmath.R4AA   `json:"axis_angle"`
	Outliers    []int               `json:"outliers"`
	InlierCount int                 `json:"inlier_count"`
	Iterations  int                 `json:"iterations"`
	Budget      int                 `json:"budget"`
	Residual    float64             `json:"residual"`
	Refined     bool                `json:"refined"`
	Stats       pnp.ResidualStats   `json:"stats"`
	GroundTruth *GroundTruthSummary `json:"ground_truth,omitempty"`
}

// GroundTruthSummary compares an estimate against the pose stored with the dataset.
type GroundTruthSummary struct {
	RotationError    float64 `json:"rotation_error_rad"`
	TranslationError float64 `json:"translation_error"`
}

// EstimateAction runs the robust estimator over a dataset and prints the result.
func EstimateAction(c *cli.Context) error {
	logger, closeLogger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer closeLogger()

	cfg, err := estimatorConfig(c)
	if err != nil {
		return err
	}
	ds, err := pnp.LoadDataset(c.Path(flagInput))
	if err != nil {
		return err
	}
	cam, err := ds.Camera()
	if err != nil {
		return err
	}
	logger.Debugw("loaded dataset", "path", c.Path(flagInput), "correspondences", len(ds.Correspondences))

	estimator, err := pnp.NewEstimator(*cfg, logger.Sublogger("ransac"))
	if err != nil {
		return err
	}
	store := ds.PointSet()
	res, err := estimator.Calculate(c.Context, cam, store)
	if err != nil {
		return errors.Wrapf(err, "could not estimate pose from %q", c.Path(flagInput))
	}

	out := newEstimateOutput(res, ds)
	printf(c.App.Writer, "%s", renderEstimate(out, len(ds.Correspondences)))

	if path := c.Path(flagOutput); path != "" {
		if err := writeJSON(path, out); err != nil {
			return err
		}
		logger.Infow("wrote result", "path", path)
	}
	if path := c.Path(flagPlot); path != "" {
		if err := plotResiduals(path, res.Residuals, res.Outliers); err != nil {
			return err
		}
		logger.Infow("wrote residual plot", "path", path)
	}
	return nil
}

func estimatorConfig(c *cli.Context) (*pnp.Config, error) {
	cfg := pnp.NewDefaultConfig()
	if path := c.Path(flagConfig); path != "" {
		var err error
		if cfg, err = pnp.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagMaxIteration) {
		cfg.MaxIteration = c.Int(flagMaxIteration)
	}
	if c.IsSet(flagReprojectionError) {
		cfg.ReprojectionError = c.Float64(flagReprojectionError)
	}
	if c.IsSet(flagConfidence) {
		cfg.Confidence = c.Float64(flagConfidence)
	}
	if c.IsSet(flagSeed) {
		seed := c.Uint64(flagSeed)
		cfg.Seed = &seed
	}
	if c.IsSet(flagRefine) {
		cfg.RefineFinal = c.Bool(flagRefine)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEstimateOutput(res *pnp.Result, ds *pnp.Dataset) *EstimateOutput {
	out := &EstimateOutput{
		Pose:        pnp.NewPoseRecord(res.Pose),
		AxisAngle:   spatialmath.RotationMatrixToR4AA(res.Pose.Rotation),
		Outliers:    []int{},
		InlierCount: res.InlierCount,
		Iterations:  res.Iterations,
		Budget:      res.Budget,
		Residual:    res.Residual,
		Refined:     res.Refined,
		Stats:       res.Stats,
	}
	for i, outlier := range res.Outliers {
		if outlier {
			out.Outliers = append(out.Outliers, i)
		}
	}
	if ds.GroundTruth != nil {
		truth := ds.GroundTruth.CamPose()
		out.GroundTruth = &GroundTruthSummary{
			RotationError:    transform.RotationAngleBetween(res.Pose, truth),
			TranslationError: transform.TranslationDistance(res.Pose, truth),
		}
	}
	return out
}

func renderEstimate(out *EstimateOutput, total int) string {
	t := table.NewWriter()
	t.SetTitle("Estimated pose")
	t.AppendHeader(table.Row{"Quantity", "Value"})
	aa := out.AxisAngle
	t.AppendRow([]interface{}{"Rotation (rad)", fmt.Sprintf("%.6f", aa.Theta)})
	t.AppendRow([]interface{}{"Rotation axis", fmt.Sprintf("(%.4f, %.4f, %.4f)", aa.RX, aa.RY, aa.RZ)})
	tr := out.Pose.Translation
	t.AppendRow([]interface{}{"Translation", fmt.Sprintf("(%.4f, %.4f, %.4f)", tr[0], tr[1], tr[2])})
	t.AppendSeparator()
	t.AppendRow([]interface{}{"Inliers", fmt.Sprintf("%d/%d", out.InlierCount, total)})
	t.AppendRow([]interface{}{"Iterations", fmt.Sprintf("%d (budget %d)", out.Iterations, out.Budget)})
	t.AppendRow([]interface{}{"Refined", out.Refined})
	t.AppendSeparator()
	t.AppendRow([]interface{}{"Residual mean (px)", fmt.Sprintf("%.4f", out.Stats.Mean)})
	t.AppendRow([]interface{}{"Residual median (px)", fmt.Sprintf("%.4f", out.Stats.Median)})
	t.AppendRow([]interface{}{"Residual stddev (px)", fmt.Sprintf("%.4f", out.Stats.StdDev)})
	t.AppendRow([]interface{}{"Residual max (px)", fmt.Sprintf("%.4f", out.Stats.Max)})
	if gt := out.GroundTruth; gt != nil {
		t.AppendSeparator()
		t.AppendRow([]interface{}{"Rotation error (rad)", fmt.Sprintf("%.6f", gt.RotationError)})
		t.AppendRow([]interface{}{"Translation error", fmt.Sprintf("%.6f", gt.TranslationError)})
	}
	return t.Render()
}

func writeJSON(path string, v interface{}) (err error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error encoding result")
	}
	//nolint:gosec
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "error writing %q", path)
}
