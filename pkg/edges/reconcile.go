package edges

import "github.com/OFFIS-RIT/trackgraph/pkg/common"

type pairKey [2]int64

func unordered(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Reconcile labels every input edge against the true edges. Matching ignores
// direction. The returned edge list is input itself, neither reordered nor
// filtered, and labels[i] belongs to input edge i. Duplicate input edges are
// labeled independently.
func Reconcile(input, truth common.EdgeList) (common.EdgeList, []int8) {
	known := make(map[pairKey]struct{}, truth.Len())
	for i := range truth.From {
		known[unordered(truth.From[i], truth.To[i])] = struct{}{}
	}

	labels := make([]int8, input.Len())
	for i := range input.From {
		if _, ok := known[unordered(input.From[i], input.To[i])]; ok {
			labels[i] = 1
		}
	}
	return input, labels
}
