package pnp

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Correspondence pairs a 3D reference point in world coordinates with its observed 2D image point.
type Correspondence struct {
	Reference r3.Vector `json:"reference"`
	Scene     r2.Point  `json:"scene"`
}

// ReferencePoint is a 3D world point with an outlier flag.
type ReferencePoint struct {
	Point   r3.Vector
	outlier bool
}

// NewReferencePoint returns a reference point that is not flagged as an outlier.
func NewReferencePoint(pt r3.Vector) *ReferencePoint {
	return &ReferencePoint{Point: pt}
}

// Outlier reports whether the point was classified as an outlier by the last successful estimation.
func (rp *ReferencePoint) Outlier() bool { return rp.outlier }

// SetOutlier sets the outlier flag.
func (rp *ReferencePoint) SetOutlier(outlier bool) { rp.outlier = outlier }

// ScenePoint is an observed 2D image point with an outlier flag.
type ScenePoint struct {
	Point   r2.Point
	outlier bool
}

// NewScenePoint returns a scene point that is not flagged as an outlier.
func NewScenePoint(pt r2.Point) *ScenePoint {
	return &ScenePoint{Point: pt}
}

// Outlier reports whether the point was classified as an outlier by the last successful estimation.
func (sp *ScenePoint) Outlier() bool { return sp.outlier }

// SetOutlier sets the outlier flag.
func (sp *ScenePoint) SetOutlier(outlier bool) { sp.outlier = outlier }

// CorrespondenceStore gives indexed access to two aligned sequences of reference and scene points and
// lets an estimator write the outlier classification back. Entries are never added or removed.
type CorrespondenceStore interface {
	NumReferences() int
	NumScenes() int
	Reference(i int) r3.Vector
	Scene(i int) r2.Point
	SetOutlier(i int, outlier bool)
}

// PointSet is a CorrespondenceStore over caller owned reference and scene point slices.
type PointSet struct {
	References []*ReferencePoint
	Scenes     []*ScenePoint
}

// NewPointSet builds a PointSet from raw points. The two slices may differ in length; estimators
// reject such sets.
func NewPointSet(refs []r3.Vector, scene []r2.Point) *PointSet {
	ps := &PointSet{
		References: make([]*ReferencePoint, len(refs)),
		Scenes:     make([]*ScenePoint, len(scene)),
	}
	for i, pt := range refs {
		ps.References[i] = NewReferencePoint(pt)
	}
	for i, pt := range scene {
		ps.Scenes[i] = NewScenePoint(pt)
	}
	return ps
}

// NewPointSetFromCorrespondences builds a PointSet from correspondences.
func NewPointSetFromCorrespondences(corrs []Correspondence) *PointSet {
	refs, scene := splitCorrespondences(corrs)
	return NewPointSet(refs, scene)
}

// NumReferences returns the number of reference points.
func (ps *PointSet) NumReferences() int { return len(ps.References) }

// NumScenes returns the number of scene points.
func (ps *PointSet) NumScenes() int { return len(ps.Scenes) }

// Reference returns the i-th reference point.
func (ps *PointSet) Reference(i int) r3.Vector { return ps.References[i].Point }

// Scene returns the i-th scene point.
func (ps *PointSet) Scene(i int) r2.Point { return ps.Scenes[i].Point }

// SetOutlier flags both halves of the i-th correspondence.
func (ps *PointSet) SetOutlier(i int, outlier bool) {
	ps.References[i].SetOutlier(outlier)
	ps.Scenes[i].SetOutlier(outlier)
}

// Outliers returns the current outlier flags of the reference points.
func (ps *PointSet) Outliers() []bool {
	flags := make([]bool, len(ps.References))
	for i, rp := range ps.References {
		flags[i] = rp.Outlier()
	}
	return flags
}

func splitCorrespondences(corrs []Correspondence) ([]r3.Vector, []r2.Point) {
	refs := make([]r3.Vector, len(corrs))
	scene := make([]r2.Point, len(corrs))
	for i, c := range corrs {
		refs[i] = c.Reference
		scene[i] = c.Scene
	}
	return refs, scene
}
