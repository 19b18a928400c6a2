package edges

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
)

// ErrUnknownStrategy is returned for an input edge strategy that has no
// builder.
var ErrUnknownStrategy = errors.New("unknown input edge strategy")

// Input edge strategies.
const (
	// InputAll connects every pair of hits.
	InputAll = "all"
	// InputOldLayerwise connects hits in neighbouring layers.
	InputOldLayerwise = "oldLayerwise"
	// InputNewLayerwise connects hits in neighbouring layers and hits
	// sharing a layer.
	InputNewLayerwise = "newLayerwise"
)

// InputParams tunes candidate generation. With Filtering set, a pair is only
// proposed when the azimuth difference of its hits is at most MaxDeltaPhi.
type InputParams struct {
	Filtering   bool
	MaxDeltaPhi float64
}

type inputBuilder func(t *common.HitTable, keep func(i, j int) bool) common.EdgeList

var inputBuilders = map[string]inputBuilder{
	InputAll: allPairs,
	InputOldLayerwise: func(t *common.HitTable, keep func(i, j int) bool) common.EdgeList {
		return layerPairs(t, false, keep)
	},
	InputNewLayerwise: func(t *common.HitTable, keep func(i, j int) bool) common.EdgeList {
		return layerPairs(t, true, keep)
	},
}

// ValidateInputStrategy reports ErrUnknownStrategy for unsupported names.
func ValidateInputStrategy(strategy string) error {
	if _, ok := inputBuilders[strategy]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	return nil
}

// BuildInput builds the candidate edges of an event. The result only
// depends on the table and the parameters.
func BuildInput(t *common.HitTable, strategy string, params InputParams) (common.EdgeList, error) {
	build, ok := inputBuilders[strategy]
	if !ok {
		return common.EdgeList{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	keep := func(i, j int) bool { return true }
	if params.Filtering {
		keep = func(i, j int) bool {
			return deltaPhi(t.Phi[i], t.Phi[j]) <= params.MaxDeltaPhi
		}
	}
	return build(t, keep), nil
}

func allPairs(t *common.HitTable, keep func(i, j int) bool) common.EdgeList {
	n := t.Len()
	edges := common.NewEdgeList(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if keep(i, j) {
				edges.Append(i, j)
			}
		}
	}
	return edges
}

// layerPairs proposes edges from every layer to the next populated layer,
// inner to outer, and optionally between hits of the same layer.
func layerPairs(t *common.HitTable, sameLayer bool, keep func(i, j int) bool) common.EdgeList {
	byLayer := make(map[int64][]int)
	for i := 0; i < t.Len(); i++ {
		byLayer[t.LayerID[i]] = append(byLayer[t.LayerID[i]], i)
	}
	layers := make([]int64, 0, len(byLayer))
	for l := range byLayer {
		layers = append(layers, l)
	}
	slices.Sort(layers)

	edges := common.NewEdgeList(t.Len())
	for k, l := range layers {
		inner := byLayer[l]
		if sameLayer {
			for a := 0; a < len(inner); a++ {
				for b := a + 1; b < len(inner); b++ {
					if keep(inner[a], inner[b]) {
						edges.Append(inner[a], inner[b])
					}
				}
			}
		}
		if k+1 == len(layers) {
			continue
		}
		for _, i := range inner {
			for _, j := range byLayer[layers[k+1]] {
				if keep(i, j) {
					edges.Append(i, j)
				}
			}
		}
	}
	return edges
}

// deltaPhi is the absolute azimuth difference wrapped into [0, pi].
func deltaPhi(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}
