// Package knngraph defines the k-NN graph interface this module
// consumes. The HNSW index and k-NN graph container themselves live
// elsewhere; only their read surface is needed here. The package also
// holds DataId, OutEdge, and a minimal in-memory implementation
// (SliceGraph) used by tests.
package knngraph

import "errors"

// DataId is an opaque, caller-supplied point identifier. It is carried
// through the graph and restored in the final embedding; it is never
// used for arithmetic.
type DataId int

// OutEdge is a directed edge to Node carrying a Weight. In the kernel
// stage Weight is a distance; after kernel construction it is a
// transition-probability-like weight.
type OutEdge struct {
	Node   int
	Weight float32
}

// Graph is the k-NN graph interface consumed by kernel construction and
// the embedding driver. Implementations guarantee Neighbours()[i] is
// sorted ascending by distance.
type Graph interface {
	// NbNodes returns the number of nodes N.
	NbNodes() int
	// MaxNbng returns k, the number of neighbours per node.
	MaxNbng() int
	// Neighbours returns, for each node, its out-edges sorted ascending
	// by distance. len(Neighbours()) == NbNodes().
	Neighbours() [][]OutEdge
	// IndexSet returns the row -> DataId bijection.
	IndexSet() *IndexSet
}

// IndexSet is an insertion-ordered bijection between dense row indices
// 0..N and caller-supplied DataId values, kept so identifiers survive
// after the graph is dropped.
type IndexSet struct {
	ids     []DataId
	indexOf map[DataId]int
}

// NewIndexSet builds an IndexSet from ids in row order: ids[i] is the
// DataId of row i.
func NewIndexSet(ids []DataId) *IndexSet {
	indexOf := make(map[DataId]int, len(ids))
	for i, id := range ids {
		indexOf[id] = i
	}
	return &IndexSet{ids: append([]DataId(nil), ids...), indexOf: indexOf}
}

// Len returns the number of entries.
func (s *IndexSet) Len() int { return len(s.ids) }

// At returns the DataId stored at row index i.
func (s *IndexSet) At(i int) DataId { return s.ids[i] }

// IndexOf returns the row index of id and whether it was found.
func (s *IndexSet) IndexOf(id DataId) (int, bool) {
	i, ok := s.indexOf[id]
	return i, ok
}

// Clone returns a deep copy, so a driver can keep its own index set
// alive after the graph that produced it is dropped.
func (s *IndexSet) Clone() *IndexSet {
	return NewIndexSet(s.ids)
}

// Hnsw is the one-shot surface of an HNSW index: the maximum number of
// connections per layer (the k of the extracted graph) and an operation
// materialising the full k-NN graph. The index implementation lives
// elsewhere; the driver only ever reduces it to a Graph and drops it.
type Hnsw interface {
	// MaxNbConnection returns the index's max_nb_connection parameter.
	MaxNbConnection() int
	// ToKNNGraph extracts the complete k-NN graph from the index.
	ToKNNGraph() (Graph, error)
}

// ErrInconsistentGraph is returned by SliceGraph validation when
// neighbour lists or index set sizes don't line up with NbNodes.
var ErrInconsistentGraph = errors.New("knngraph: inconsistent graph")

// SliceGraph is a minimal in-memory Graph backed by plain slices. It is
// test/example scaffolding, not a production k-NN index — the real index
// (HNSW or otherwise) is out of scope for this module.
type SliceGraph struct {
	neighbours [][]OutEdge
	maxNbng    int
	index      *IndexSet
}

// NewSliceGraph builds a SliceGraph from a neighbour list and an
// optional set of DataIds (nil means row i gets DataId(i)).
func NewSliceGraph(neighbours [][]OutEdge, ids []DataId) (*SliceGraph, error) {
	n := len(neighbours)
	if ids == nil {
		ids = make([]DataId, n)
		for i := range ids {
			ids[i] = DataId(i)
		}
	}
	if len(ids) != n {
		return nil, ErrInconsistentGraph
	}
	maxNbng := 0
	for _, edges := range neighbours {
		if len(edges) > maxNbng {
			maxNbng = len(edges)
		}
	}
	return &SliceGraph{neighbours: neighbours, maxNbng: maxNbng, index: NewIndexSet(ids)}, nil
}

func (g *SliceGraph) NbNodes() int            { return len(g.neighbours) }
func (g *SliceGraph) MaxNbng() int            { return g.maxNbng }
func (g *SliceGraph) Neighbours() [][]OutEdge { return g.neighbours }
func (g *SliceGraph) IndexSet() *IndexSet     { return g.index }
