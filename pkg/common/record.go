package common

// TruthStrategy names one way of building ground-truth edges.
type TruthStrategy string

const (
	TruthLayerwise   TruthStrategy = "layerwise"
	TruthModulewise  TruthStrategy = "modulewise"
	TruthOrderwise   TruthStrategy = "orderwise"
	TruthTimeOrdered TruthStrategy = "time_ordered"
)

// TruthPrecedence is the order in which true edge sets are considered when
// one of them has to label the input edges. The first built set wins.
var TruthPrecedence = []TruthStrategy{
	TruthLayerwise,
	TruthModulewise,
	TruthOrderwise,
	TruthTimeOrdered,
}

// LabeledGraph is the persisted training record of one event.
//
// Node level slices all have one entry per hit, in HitTable row order.
// TrueEdges only holds the strategies that were actually built, a strategy
// that was not requested has no key. EdgeIndex is nil when no input edges
// were requested; otherwise YPID[i] is 1 if EdgeIndex edge i is a true edge
// of the TruthStrategy set, in either direction.
//
// PID holds 0 both for noise and for hits whose truth record carried no
// particle identifier; PIDValid is false only for the latter.
type LabeledGraph struct {
	EventID int64

	X        [][3]float32
	PID      []int64
	PIDValid []bool
	Layers   []int64
	HitID    []int64
	PT       []float64
	Vertex   [][3]float64
	PDGCode  []int64
	PTheta   []float64
	PEta     []float64
	PPhi     []float64

	TrueEdges     map[TruthStrategy]EdgeList
	TruthStrategy TruthStrategy
	EdgeIndex     *EdgeList
	YPID          []int8
}

// NumNodes returns the number of hits in the record.
func (g *LabeledGraph) NumNodes() int {
	return len(g.HitID)
}
