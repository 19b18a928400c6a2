// Package edges builds the edge lists of an event graph: ground truth edges
// following simulated particle trajectories, candidate input edges for the
// edge classifier, and the labels that reconcile the two.
package edges

import (
	"math"
	"slices"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
)

// TruthBuilder builds a true edge list for a hit table.
type TruthBuilder func(t *common.HitTable) common.EdgeList

var truthBuilders = map[common.TruthStrategy]TruthBuilder{
	common.TruthLayerwise:   Layerwise,
	common.TruthModulewise:  Modulewise,
	common.TruthOrderwise:   Orderwise,
	common.TruthTimeOrdered: TimeOrdered,
}

// TruthBuilderFor returns the builder registered for strategy.
func TruthBuilderFor(strategy common.TruthStrategy) (TruthBuilder, bool) {
	b, ok := truthBuilders[strategy]
	return b, ok
}

// TimeOrdered chains the hits of every particle by true arrival time and
// returns the chain in both directions: all forward edges first, then the
// reversed copy.
//
// Hits are grouped by their raw particle identifier, so noise hits (id 0)
// form a chain of their own. Hits without any identifier are skipped.
func TimeOrdered(t *common.HitTable) common.EdgeList {
	groups := groupRows(identity(t.Len()), func(i int) (int64, bool) {
		p := t.Particle[i]
		return p.ID, p.Valid
	})

	forward := common.NewEdgeList(t.Len())
	for _, g := range groups {
		sortByValue(g.rows, func(i int) float64 { return t.TT[i] })
	}
	chain(groups, &forward)

	return forward.Concat(forward.Reversed())
}

type layerKey struct {
	particle int64
	layer    int64
}

// Layerwise connects, for every particle, each hit in one layer to each hit
// in the next layer the particle crossed. Layers are visited in order of
// increasing distance from the production vertex.
func Layerwise(t *common.HitTable) common.EdgeList {
	perm := identity(t.Len())
	sortByValue(perm, t.VertexDistance)

	layers := groupRows(identity(len(perm)), func(pos int) (layerKey, bool) {
		i := perm[pos]
		p := t.Particle[i]
		return layerKey{particle: p.ID, layer: t.LayerID[i]}, p.Signal()
	})

	byParticle := make(map[int64][][]int)
	var particles []int64
	for _, l := range layers {
		if _, ok := byParticle[l.key.particle]; !ok {
			particles = append(particles, l.key.particle)
		}
		byParticle[l.key.particle] = append(byParticle[l.key.particle], l.rows)
	}
	slices.Sort(particles)

	edges := common.NewEdgeList(t.Len())
	for _, pid := range particles {
		crossConsecutive(byParticle[pid], &edges)
	}
	return edges.Remap(perm)
}

// Modulewise chains the signal hits of every particle by distance from the
// production vertex, using at most one hit per module.
func Modulewise(t *common.HitTable) common.EdgeList {
	perm := signalRows(t)
	sortByValue(perm, t.VertexDistance)
	return chainParticles(t, perm)
}

// Orderwise chains the signal hits of every particle in table order, using
// at most one hit per module.
func Orderwise(t *common.HitTable) common.EdgeList {
	return chainParticles(t, signalRows(t))
}

// chainParticles chains the rows listed in perm per particle, in the order
// of perm, and maps the result back to table rows.
func chainParticles(t *common.HitTable, perm []int) common.EdgeList {
	groups := groupRows(identity(len(perm)), func(pos int) (int64, bool) {
		p := t.Particle[perm[pos]]
		return p.ID, p.Signal()
	})

	edges := common.NewEdgeList(len(perm))
	chain(groups, &edges)
	return edges.Remap(perm)
}

type moduleKey struct {
	particle int64
	volume   int64
	layer    int64
	module   int64
}

// signalRows returns the table rows that belong to a known particle with a
// known vertex, keeping only the first hit per particle and module.
func signalRows(t *common.HitTable) []int {
	seen := make(map[moduleKey]struct{})
	rows := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		p := t.Particle[i]
		if !p.Signal() || math.IsNaN(t.VX[i]) {
			continue
		}
		k := moduleKey{particle: p.ID, volume: t.VolumeID[i], layer: t.LayerID[i], module: t.ModuleID[i]}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, i)
	}
	return rows
}
