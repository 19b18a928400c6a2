// Package hits assembles the per-event hit table from the raw detector,
// tube, particle and truth tables and derives the geometric and kinematic
// quantities used downstream.
package hits

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
)

// ErrMissingTable is returned when one of the raw tables needed for a join
// was not provided by the event source.
var ErrMissingTable = errors.New("raw table missing")

// Options controls hit selection.
//
// Noise keeps hits whose particle is unknown to the particle table (left
// join) instead of dropping them (inner join). Skewed keeps hits read out by
// skewed tubes. SelectPDG, when not empty, restricts the particle table to
// the given pdg codes before the truth join.
type Options struct {
	EventID   int64
	Noise     bool
	Skewed    bool
	SelectPDG []int64
}

type particleInfo struct {
	vx, vy, vz float64
	pdg        int64
}

// truthRow is a truth record joined with its particle and the derived
// momentum quantities.
type truthRow struct {
	rec      common.TruthRecord
	particle particleInfo
	pt       float64
	ptheta   float64
	peta     float64
	pphi     float64
}

// hitRow is a raw hit joined with its tube readout. order is the position of
// the hit in the raw table and is used to restore the original ordering once
// all joins are done.
type hitRow struct {
	order int
	hit   common.HitRecord
	tube  common.TubeRecord
}

// Assemble joins the raw tables of an event into a HitTable.
//
// The row order of the result is the row order of raw.Hits, independent of
// how the joins shuffle rows internally. Numeric singularities (zero
// transverse momentum, hits at the detector origin) are propagated as NaN.
func Assemble(raw *common.RawEvent, opts Options) (*common.HitTable, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: no event", ErrMissingTable)
	}
	switch {
	case raw.Hits == nil:
		return nil, fmt.Errorf("%w: hits", ErrMissingTable)
	case raw.Tubes == nil:
		return nil, fmt.Errorf("%w: tubes", ErrMissingTable)
	case raw.Particles == nil:
		return nil, fmt.Errorf("%w: particles", ErrMissingTable)
	case raw.Truth == nil:
		return nil, fmt.Errorf("%w: truth", ErrMissingTable)
	}

	particles := selectParticles(countParticleHits(raw.Particles), opts.SelectPDG)
	truth := joinTruth(raw.Truth, particles, opts.Noise)

	rows := joinTubes(raw.Hits, raw.Tubes)
	if !opts.Skewed {
		rows = slices.DeleteFunc(rows, func(r hitRow) bool { return r.tube.Skewed != 0 })
	}

	table, order := joinHitsTruth(rows, truth)
	table.EventID = opts.EventID

	return restoreOrder(table, order), nil
}

// countParticleHits sets NHits to the number of rows sharing a particle
// identifier and drops the duplicate rows, keeping the first one.
func countParticleHits(particles []common.ParticleRecord) []common.ParticleRecord {
	counts := make(map[int64]int64, len(particles))
	for _, p := range particles {
		counts[p.ParticleID]++
	}

	out := make([]common.ParticleRecord, 0, len(counts))
	seen := make(map[int64]struct{}, len(counts))
	for _, p := range particles {
		if _, ok := seen[p.ParticleID]; ok {
			continue
		}
		seen[p.ParticleID] = struct{}{}
		p.NHits = counts[p.ParticleID]
		out = append(out, p)
	}
	return out
}

func selectParticles(particles []common.ParticleRecord, pdg []int64) []common.ParticleRecord {
	if len(pdg) == 0 {
		return particles
	}
	return slices.DeleteFunc(particles, func(p common.ParticleRecord) bool {
		return !slices.Contains(pdg, p.PDGCode)
	})
}

func joinTruth(truth []common.TruthRecord, particles []common.ParticleRecord, keepNoise bool) map[int64][]truthRow {
	byID := make(map[int64]particleInfo, len(particles))
	for _, p := range particles {
		byID[p.ParticleID] = particleInfo{vx: p.VX, vy: p.VY, vz: p.VZ, pdg: p.PDGCode}
	}
	unknown := particleInfo{vx: math.NaN(), vy: math.NaN(), vz: math.NaN()}

	out := make(map[int64][]truthRow, len(truth))
	for _, t := range truth {
		info, ok := particleInfo{}, false
		if t.Particle.Valid {
			info, ok = byID[t.Particle.ID]
		}
		if !ok {
			if !keepNoise {
				continue
			}
			info = unknown
		}

		pt := math.Hypot(t.TPX, t.TPY)
		ptheta := math.Atan2(pt, t.TPZ)
		out[t.HitID] = append(out[t.HitID], truthRow{
			rec:      t,
			particle: info,
			pt:       pt,
			ptheta:   ptheta,
			peta:     pseudorapidity(ptheta),
			pphi:     math.Atan2(t.TPY, t.TPX),
		})
	}
	return out
}

func joinTubes(hits []common.HitRecord, tubes []common.TubeRecord) []hitRow {
	byHit := make(map[int64][]common.TubeRecord, len(tubes))
	for _, t := range tubes {
		byHit[t.HitID] = append(byHit[t.HitID], t)
	}

	rows := make([]hitRow, 0, len(hits))
	for i, h := range hits {
		for _, t := range byHit[h.HitID] {
			rows = append(rows, hitRow{order: i, hit: h, tube: t})
		}
	}
	return rows
}

func joinHitsTruth(rows []hitRow, truth map[int64][]truthRow) (*common.HitTable, []int) {
	table := &common.HitTable{}
	order := make([]int, 0, len(rows))

	for _, r := range rows {
		matches := truth[r.hit.HitID]
		if len(matches) == 0 {
			continue
		}

		h := r.hit
		rho := math.Hypot(h.X, h.Y)
		r3 := math.Sqrt(h.X*h.X + h.Y*h.Y + h.Z*h.Z)
		theta := math.Acos(h.Z / r3)
		phi := math.Atan2(h.Y, h.X)
		eta := pseudorapidity(theta)

		for _, t := range matches {
			order = append(order, r.order)

			table.HitID = append(table.HitID, h.HitID)
			table.X = append(table.X, h.X)
			table.Y = append(table.Y, h.Y)
			table.Z = append(table.Z, h.Z)
			table.VolumeID = append(table.VolumeID, h.VolumeID)
			table.LayerID = append(table.LayerID, h.LayerID)
			table.ModuleID = append(table.ModuleID, h.ModuleID)
			table.SectorID = append(table.SectorID, r.tube.SectorID)
			table.Isochrone = append(table.Isochrone, r.tube.Isochrone)
			table.Skewed = append(table.Skewed, r.tube.Skewed)

			table.R = append(table.R, rho)
			table.Phi = append(table.Phi, phi)
			table.Theta = append(table.Theta, theta)
			table.Eta = append(table.Eta, eta)

			table.Particle = append(table.Particle, t.rec.Particle)
			table.VX = append(table.VX, t.particle.vx)
			table.VY = append(table.VY, t.particle.vy)
			table.VZ = append(table.VZ, t.particle.vz)
			table.PDGCode = append(table.PDGCode, t.particle.pdg)

			table.TPX = append(table.TPX, t.rec.TPX)
			table.TPY = append(table.TPY, t.rec.TPY)
			table.TPZ = append(table.TPZ, t.rec.TPZ)
			table.TT = append(table.TT, t.rec.TT)
			table.PT = append(table.PT, t.pt)
			table.PTheta = append(table.PTheta, t.ptheta)
			table.PEta = append(table.PEta, t.peta)
			table.PPhi = append(table.PPhi, t.pphi)
		}
	}
	return table, order
}

// restoreOrder stably sorts the table rows by their raw position.
func restoreOrder(table *common.HitTable, order []int) *common.HitTable {
	perm := make([]int, len(order))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return order[perm[a]] < order[perm[b]]
	})
	if sort.IntsAreSorted(perm) {
		return table
	}
	return table.Permute(perm)
}

func pseudorapidity(theta float64) float64 {
	return -math.Log(math.Tan(theta / 2))
}
