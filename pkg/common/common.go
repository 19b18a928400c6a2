package common

import "math"

// HitRecord is one row of the raw hits table of an event. Positions are
// given in detector coordinates. VolumeID and ModuleID are zero for
// detectors that do not expose that level of the hierarchy.
type HitRecord struct {
	HitID    int64
	X        float64
	Y        float64
	Z        float64
	VolumeID int64
	LayerID  int64
	ModuleID int64
	SectorID int64
}

// TubeRecord carries the per-hit straw tube readout joined onto a hit.
type TubeRecord struct {
	HitID     int64
	Isochrone float64
	Skewed    int64
	SectorID  int64
}

// ParticleRecord describes one simulated particle and its production vertex.
// NHits is recomputed during hit assembly and is informational on input.
type ParticleRecord struct {
	ParticleID int64
	VX         float64
	VY         float64
	VZ         float64
	PDGCode    int64
	NHits      int64
}

// TruthRecord links a hit to the particle that produced it together with the
// true momentum at the hit. TT is the true arrival time and is NaN when the
// source does not provide it.
type TruthRecord struct {
	HitID    int64
	Particle ParticleRef
	TPX      float64
	TPY      float64
	TPZ      float64
	TT       float64
}

// RawEvent bundles the four raw tables of an event as returned by an event
// source. A nil slice means the table was not read at all, an empty non-nil
// slice means the table was read and had no rows.
type RawEvent struct {
	EventID   int64
	Hits      []HitRecord
	Tubes     []TubeRecord
	Particles []ParticleRecord
	Truth     []TruthRecord
}

// ParticleRef identifies the particle owning a hit.
//
// Valid is false when the truth record carried no particle identifier at
// all. An identifier of zero is valid and marks a noise hit.
type ParticleRef struct {
	ID    int64
	Valid bool
}

// Particle returns a valid reference to id.
func Particle(id int64) ParticleRef {
	return ParticleRef{ID: id, Valid: true}
}

// Signal reports whether the reference points at a real particle.
func (p ParticleRef) Signal() bool {
	return p.Valid && p.ID != 0
}

// HitTable is the assembled, column oriented hit table of one event. All
// columns have the same length and row i of every column describes the same
// hit. Rows are in the order of the raw hits table.
type HitTable struct {
	EventID int64

	HitID    []int64
	X        []float64
	Y        []float64
	Z        []float64
	VolumeID []int64
	LayerID  []int64
	ModuleID []int64
	SectorID []int64

	Isochrone []float64
	Skewed    []int64

	R     []float64
	Phi   []float64
	Theta []float64
	Eta   []float64

	Particle []ParticleRef
	VX       []float64
	VY       []float64
	VZ       []float64
	PDGCode  []int64

	TPX    []float64
	TPY    []float64
	TPZ    []float64
	TT     []float64
	PT     []float64
	PTheta []float64
	PEta   []float64
	PPhi   []float64
}

// Len returns the number of rows.
func (t *HitTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.HitID)
}

// VertexDistance returns the euclidean distance between hit i and the
// production vertex of its particle. It is NaN when the vertex is unknown.
func (t *HitTable) VertexDistance(i int) float64 {
	dx := t.X[i] - t.VX[i]
	dy := t.Y[i] - t.VY[i]
	dz := t.Z[i] - t.VZ[i]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Permute returns a new table whose row i is row perm[i] of t.
func (t *HitTable) Permute(perm []int) *HitTable {
	out := &HitTable{EventID: t.EventID}
	out.HitID = gather(t.HitID, perm)
	out.X = gather(t.X, perm)
	out.Y = gather(t.Y, perm)
	out.Z = gather(t.Z, perm)
	out.VolumeID = gather(t.VolumeID, perm)
	out.LayerID = gather(t.LayerID, perm)
	out.ModuleID = gather(t.ModuleID, perm)
	out.SectorID = gather(t.SectorID, perm)
	out.Isochrone = gather(t.Isochrone, perm)
	out.Skewed = gather(t.Skewed, perm)
	out.R = gather(t.R, perm)
	out.Phi = gather(t.Phi, perm)
	out.Theta = gather(t.Theta, perm)
	out.Eta = gather(t.Eta, perm)
	out.Particle = gather(t.Particle, perm)
	out.VX = gather(t.VX, perm)
	out.VY = gather(t.VY, perm)
	out.VZ = gather(t.VZ, perm)
	out.PDGCode = gather(t.PDGCode, perm)
	out.TPX = gather(t.TPX, perm)
	out.TPY = gather(t.TPY, perm)
	out.TPZ = gather(t.TPZ, perm)
	out.TT = gather(t.TT, perm)
	out.PT = gather(t.PT, perm)
	out.PTheta = gather(t.PTheta, perm)
	out.PEta = gather(t.PEta, perm)
	out.PPhi = gather(t.PPhi, perm)
	return out
}

func gather[T any](col []T, perm []int) []T {
	if col == nil {
		return nil
	}
	out := make([]T, len(perm))
	for i, p := range perm {
		out[i] = col[p]
	}
	return out
}
