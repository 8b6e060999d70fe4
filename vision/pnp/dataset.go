package pnp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"go.viam.com/posest/rimage/transform"
)

// Dataset is a camera description and a list of correspondences, stored as JSON or YAML.
type Dataset struct {
	Intrinsics      *transform.PinholeCameraIntrinsics `json:"intrinsics" yaml:"intrinsics"`
	Distortion      *DistortionConfig                  `json:"distortion,omitempty" yaml:"distortion,omitempty"`
	Correspondences []CorrespondenceRecord             `json:"correspondences" yaml:"correspondences"`
	// GroundTruth is the pose the correspondences were generated from, when known.
	GroundTruth *PoseRecord `json:"ground_truth,omitempty" yaml:"ground_truth,omitempty"`
}

// DistortionConfig names a distortion model and its parameters.
type DistortionConfig struct {
	Model      transform.DistortionType `json:"model" yaml:"model"`
	Parameters []float64                `json:"parameters" yaml:"parameters,flow"`
}

// CorrespondenceRecord is the serialized form of a Correspondence.
type CorrespondenceRecord struct {
	Reference [3]float64 `json:"reference" yaml:"reference,flow"`
	Scene     [2]float64 `json:"scene" yaml:"scene,flow"`
}

// PoseRecord is the serialized form of a world to camera pose. Rotation is row major.
type PoseRecord struct {
	Rotation    [9]float64 `json:"rotation" yaml:"rotation,flow"`
	Translation [3]float64 `json:"translation" yaml:"translation,flow"`
}

// NewDataset builds a dataset from a camera description and correspondences. distortion may be nil.
func NewDataset(intrinsics *transform.PinholeCameraIntrinsics, distortion transform.Distorter,
	corrs []Correspondence,
) *Dataset {
	params := *intrinsics
	ds := &Dataset{
		Intrinsics:      &params,
		Correspondences: make([]CorrespondenceRecord, len(corrs)),
	}
	if distortion != nil {
		ds.Distortion = &DistortionConfig{Model: distortion.ModelType(), Parameters: distortion.Parameters()}
	}
	for i, c := range corrs {
		ds.Correspondences[i] = CorrespondenceRecord{
			Reference: [3]float64{c.Reference.X, c.Reference.Y, c.Reference.Z},
			Scene:     [2]float64{c.Scene.X, c.Scene.Y},
		}
	}
	return ds
}

// NewPoseRecord serializes a pose.
func NewPoseRecord(pose *transform.CamPose) *PoseRecord {
	var rec PoseRecord
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			rec.Rotation[3*y+x] = pose.Rotation.At(y, x)
		}
		rec.Translation[y] = pose.Translation.At(y, 0)
	}
	return &rec
}

// CamPose deserializes the pose.
func (pr *PoseRecord) CamPose() *transform.CamPose {
	return transform.NewCamPoseFromRotationTranslation(
		mat.NewDense(3, 3, pr.Rotation[:]),
		mat.NewDense(3, 1, pr.Translation[:]),
	)
}

// LoadDataset reads a dataset from a .json, .yaml or .yml file.
func LoadDataset(path string) (*Dataset, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading dataset")
	}
	var ds Dataset
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &ds)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &ds)
	default:
		return nil, errors.Errorf("unsupported dataset extension %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing dataset %q", path)
	}
	if err := ds.Intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Save writes the dataset to path, as YAML for .yaml and .yml files and as JSON otherwise.
func (ds *Dataset) Save(path string) (err error) {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(ds)
	default:
		data, err = json.MarshalIndent(ds, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "error encoding dataset")
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "error creating dataset file")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "error writing dataset")
	}
	return f.Sync()
}

// Camera returns a camera with the dataset intrinsics and distortion and an identity extrinsic pose.
func (ds *Dataset) Camera() (*transform.Camera, error) {
	var distortion transform.Distorter
	if ds.Distortion != nil {
		d, err := transform.NewDistorter(ds.Distortion.Model, ds.Distortion.Parameters)
		if err != nil {
			return nil, err
		}
		distortion = d
	}
	return transform.NewCamera(ds.Intrinsics, distortion)
}

// Points returns the reference and scene points of the dataset as aligned slices.
func (ds *Dataset) Points() ([]r3.Vector, []r2.Point) {
	refs := make([]r3.Vector, len(ds.Correspondences))
	scene := make([]r2.Point, len(ds.Correspondences))
	for i, c := range ds.Correspondences {
		refs[i] = r3.Vector{X: c.Reference[0], Y: c.Reference[1], Z: c.Reference[2]}
		scene[i] = r2.Point{X: c.Scene[0], Y: c.Scene[1]}
	}
	return refs, scene
}

// PointSet returns a fresh correspondence store over the dataset points.
func (ds *Dataset) PointSet() *PointSet {
	return NewPointSet(ds.Points())
}
