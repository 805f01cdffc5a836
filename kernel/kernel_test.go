package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianshu93/annembed/knngraph"
)

func starGraph(k int) *knngraph.SliceGraph {
	// Node 0 is the hub with k neighbours at distances 1..k; each
	// neighbour's own nearest neighbour is node 0 at distance 1.
	neighbours := make([][]knngraph.OutEdge, k+1)
	hub := make([]knngraph.OutEdge, k)
	for i := 1; i <= k; i++ {
		hub[i-1] = knngraph.OutEdge{Node: i, Weight: float32(i)}
		neighbours[i] = []knngraph.OutEdge{{Node: 0, Weight: 1}}
	}
	neighbours[0] = hub
	g, err := knngraph.NewSliceGraph(neighbours, nil)
	if err != nil {
		panic(err)
	}
	return g
}

func TestBuildProducesKPlusOneEdgesPerNode(t *testing.T) {
	g := starGraph(4)
	np, _ := Build(g, Params{})

	require.Equal(t, g.NbNodes(), np.NbNodes())
	for i := 0; i < np.NbNodes(); i++ {
		np := np.Get(i)
		assert.Len(t, np.Edges, len(g.Neighbours()[i])+1)
		assert.Greater(t, np.Scale, float32(0))
		for _, e := range np.Edges {
			assert.Greater(t, e.Weight, float32(0))
			assert.False(t, isNaNOrInf(e.Weight))
		}
	}
}

func TestBuildSelfEdgeAtPositionZero(t *testing.T) {
	g := starGraph(3)
	np, _ := Build(g, Params{})

	for i := 0; i < np.NbNodes(); i++ {
		n := np.Get(i)
		assert.Equal(t, i, n.Edges[0].Node, "self edge must be at position 0")
	}
}

func TestBuildDegenerateNeighbourhoodUsesUniformWeights(t *testing.T) {
	// All 3 neighbours at distance 0: classic degenerate case.
	neighbours := [][]knngraph.OutEdge{
		{{Node: 1, Weight: 0}, {Node: 2, Weight: 0}, {Node: 3, Weight: 0}},
		{{Node: 0, Weight: 0}},
		{{Node: 0, Weight: 0}},
		{{Node: 0, Weight: 0}},
	}
	g, err := knngraph.NewSliceGraph(neighbours, nil)
	require.NoError(t, err)

	np, _ := Build(g, Params{})
	node0 := np.Get(0)
	require.Len(t, node0.Edges, 4)
	for _, e := range node0.Edges {
		assert.InDelta(t, 0.25, float64(e.Weight), 1e-9)
	}
}

func TestBuildNonDegenerateForcesUnitSelfWeight(t *testing.T) {
	g := starGraph(5)
	np, _ := Build(g, Params{})
	node0 := np.Get(0)
	assert.Equal(t, float32(1.0), node0.Edges[0].Weight)
}

func TestBuildZeroNearestDistanceStaysFinite(t *testing.T) {
	// Node 0 sits on a duplicate of node 1 (distance 0) but has a
	// farther neighbour, so the neighbourhood is not degenerate; all
	// weights must still come out finite and positive.
	neighbours := [][]knngraph.OutEdge{
		{{Node: 1, Weight: 0}, {Node: 2, Weight: 2}},
		{{Node: 0, Weight: 0}, {Node: 2, Weight: 2}},
		{{Node: 0, Weight: 2}, {Node: 1, Weight: 2}},
	}
	g, err := knngraph.NewSliceGraph(neighbours, nil)
	require.NoError(t, err)

	np, _ := Build(g, Params{})
	for i := 0; i < np.NbNodes(); i++ {
		for _, e := range np.Get(i).Edges {
			assert.Greater(t, e.Weight, float32(0))
			assert.False(t, isNaNOrInf(e.Weight))
		}
	}
}

func isNaNOrInf(f float32) bool {
	return f != f || f > 1e30 || f < -1e30
}
