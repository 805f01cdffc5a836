package graphlaplacian

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianshu93/annembed/kernel"
	"github.com/jianshu93/annembed/knngraph"
	"github.com/jianshu93/annembed/matrepr"
)

func ringNodeParams(n int) *kernel.NodeParams {
	neighbours := make([][]knngraph.OutEdge, n)
	for i := 0; i < n; i++ {
		left := (i - 1 + n) % n
		right := (i + 1) % n
		neighbours[i] = []knngraph.OutEdge{{Node: left, Weight: 1}, {Node: right, Weight: 1}}
	}
	g, err := knngraph.NewSliceGraph(neighbours, nil)
	if err != nil {
		panic(err)
	}
	np, _ := kernel.Build(g, kernel.Params{})
	return np
}

func TestAssembleDenseIsSymmetric(t *testing.T) {
	np := ringNodeParams(8)
	gl := Assemble(np, Params{Alpha: 0, RescaleByLocalScale: false})

	dense, ok := gl.SymLaplacian.Dense()
	require.True(t, ok)
	r, c := dense.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.InDelta(t, dense.At(i, j), dense.At(j, i), 1e-9)
		}
	}
}

func TestAssembleDenseDegreesPositive(t *testing.T) {
	np := ringNodeParams(10)
	gl := Assemble(np, Params{Alpha: 1, RescaleByLocalScale: true})

	for i, d := range gl.Degrees {
		assert.Greater(t, d, 0.0, "degree at %d must be positive", i)
		assert.False(t, math.IsNaN(d))
	}
}

func TestAssembleSparseMatchesDenseShape(t *testing.T) {
	np := ringNodeParams(6)
	gl := Assemble(np, Params{Alpha: 0.5})

	dense, ok := gl.SymLaplacian.Dense()
	require.True(t, ok)
	rows, cols := dense.Dims()
	assert.Equal(t, np.NbNodes(), rows)
	assert.Equal(t, np.NbNodes(), cols)

	sparse := assembleSparse(np, Params{Alpha: 0.5})
	sRows, sCols := sparse.SymLaplacian.Shape()
	assert.Equal(t, rows, sRows)
	assert.Equal(t, cols, sCols)
}

// Exceeding FullMatRepr to route Assemble through the sparse path would
// be too slow here, so assembleSparse is exercised directly.
func TestAssembleSparseSymmetricKeepsDiagonal(t *testing.T) {
	np := ringNodeParams(6)
	gl := assembleSparse(np, Params{Alpha: 0})

	csr, ok := gl.SymLaplacian.Sparse()
	require.True(t, ok)

	vals := make(map[[2]int]float64)
	for i := 0; i < 6; i++ {
		for k := csr.Indptr[i]; k < csr.Indptr[i+1]; k++ {
			vals[[2]int{i, csr.Indices[k]}] = csr.Values[k]
		}
	}

	// The kernel's self-edge must survive symmetrisation, as it does in
	// the dense path.
	for i := 0; i < 6; i++ {
		_, ok := vals[[2]int{i, i}]
		assert.True(t, ok, "row %d lost its self-loop", i)
	}

	for key, v := range vals {
		mirror, ok := vals[[2]int{key[1], key[0]}]
		require.True(t, ok, "entry (%d,%d) has no mirror", key[0], key[1])
		assert.InDelta(t, v, mirror, 1e-12)
	}

	for i, d := range gl.Degrees {
		assert.Greater(t, d, 0.0, "degree at %d", i)
	}
}

func TestAssembleRespectsFullMatReprThreshold(t *testing.T) {
	assert.Equal(t, matrepr.FullMatRepr, FullMatRepr)
	assert.False(t, Assemble(ringNodeParams(6), Params{}).SymLaplacian.IsCSR(),
		"a graph at or below FullMatRepr nodes must get a dense Laplacian")
}
