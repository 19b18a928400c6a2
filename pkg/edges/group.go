package edges

import (
	"cmp"
	"math"
	"slices"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
)

// group is one partition produced by groupRows. rows keeps the order in
// which members were encountered.
type group[K comparable] struct {
	key  K
	rows []int
}

// groupRows partitions rows by key. Groups are returned in order of first
// appearance and members keep their relative order. Rows for which key
// reports false belong to no group and are dropped.
func groupRows[K comparable](rows []int, key func(row int) (K, bool)) []group[K] {
	index := make(map[K]int)
	var groups []group[K]
	for _, r := range rows {
		k, ok := key(r)
		if !ok {
			continue
		}
		gi, seen := index[k]
		if !seen {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, group[K]{key: k})
		}
		groups[gi].rows = append(groups[gi].rows, r)
	}
	return groups
}

// chain connects every member of a group to its successor.
func chain[K comparable](groups []group[K], out *common.EdgeList) {
	for _, g := range groups {
		for i := 1; i < len(g.rows); i++ {
			out.Append(g.rows[i-1], g.rows[i])
		}
	}
}

// crossConsecutive connects every member of a group to every member of the
// group that follows it.
func crossConsecutive(groups [][]int, out *common.EdgeList) {
	for k := 1; k < len(groups); k++ {
		for _, i := range groups[k-1] {
			for _, j := range groups[k] {
				out.Append(i, j)
			}
		}
	}
}

func identity(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// sortByValue stably sorts rows by value ascending, NaN values last.
func sortByValue(rows []int, value func(row int) float64) {
	slices.SortStableFunc(rows, func(a, b int) int {
		return compareNaNLast(value(a), value(b))
	})
}

func compareNaNLast(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	return cmp.Compare(a, b)
}
