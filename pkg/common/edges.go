package common

// EdgeList is a directed edge list in row-index space, the [2, M] layout
// expected by graph consumers. From[i] -> To[i] is edge i. Indices always
// refer to rows of the final HitTable of the event.
type EdgeList struct {
	From []int64
	To   []int64
}

// NewEdgeList returns an empty edge list with room for n edges.
func NewEdgeList(n int) EdgeList {
	return EdgeList{
		From: make([]int64, 0, n),
		To:   make([]int64, 0, n),
	}
}

// Len returns the number of edges.
func (e EdgeList) Len() int {
	return len(e.From)
}

// Append adds the edge from -> to.
func (e *EdgeList) Append(from, to int) {
	e.From = append(e.From, int64(from))
	e.To = append(e.To, int64(to))
}

// Reversed returns a copy of e with every edge pointing the other way.
func (e EdgeList) Reversed() EdgeList {
	out := EdgeList{
		From: make([]int64, len(e.To)),
		To:   make([]int64, len(e.From)),
	}
	copy(out.From, e.To)
	copy(out.To, e.From)
	return out
}

// Concat returns e followed by other.
func (e EdgeList) Concat(other EdgeList) EdgeList {
	out := NewEdgeList(e.Len() + other.Len())
	out.From = append(append(out.From, e.From...), other.From...)
	out.To = append(append(out.To, e.To...), other.To...)
	return out
}

// Remap replaces every index k by perm[k]. It is used to translate edges
// built on a reordered view of a table back to the table's own rows.
func (e EdgeList) Remap(perm []int) EdgeList {
	out := EdgeList{
		From: make([]int64, len(e.From)),
		To:   make([]int64, len(e.To)),
	}
	for i := range e.From {
		out.From[i] = int64(perm[e.From[i]])
		out.To[i] = int64(perm[e.To[i]])
	}
	return out
}

// MaxIndex returns the largest index referenced by e, or -1 when e is empty.
func (e EdgeList) MaxIndex() int64 {
	m := int64(-1)
	for i := range e.From {
		m = max(m, e.From[i], e.To[i])
	}
	return m
}

// Pairs returns the edges as [from, to] pairs.
func (e EdgeList) Pairs() [][2]int64 {
	out := make([][2]int64, e.Len())
	for i := range e.From {
		out[i] = [2]int64{e.From[i], e.To[i]}
	}
	return out
}
