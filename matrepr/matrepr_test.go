package matrepr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDenseMatVec(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	m := NewDense(d)

	r, c := m.Shape()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.False(t, m.IsCSR())

	got := m.MatVec([]float64{1, 1})
	assert.InDeltaSlice(t, []float64{3, 7}, got, 1e-12)
}

func TestCSRMatVec(t *testing.T) {
	// [[1,0,2],[0,0,3],[4,5,0]]
	csr, err := NewCSR(3, 3,
		[]int{0, 2, 3, 5},
		[]int{0, 2, 2, 0, 1},
		[]float64{1, 2, 3, 4, 5},
	)
	require.NoError(t, err)

	m := NewSparse(csr)
	assert.True(t, m.IsCSR())
	r, c := m.Shape()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)

	got := m.MatVec([]float64{1, 2, 3})
	assert.InDeltaSlice(t, []float64{7, 9, 14}, got, 1e-12)
}

func TestNewCSRRejectsBadShape(t *testing.T) {
	_, err := NewCSR(0, 3, []int{0}, nil, nil)
	require.Error(t, err)
}

func TestNewCSRRejectsIndptrMismatch(t *testing.T) {
	_, err := NewCSR(2, 2, []int{0, 1}, []int{0}, []float64{1})
	require.Error(t, err)
}

func TestCSRBuilderBuildSortsColumns(t *testing.T) {
	b := NewCSRBuilder(2, 3)
	b.Set(0, 2, 5)
	b.Set(0, 0, 1)
	b.Set(1, 1, 3)

	csr := b.Build()
	assert.Equal(t, []int{0, 2, 3}, csr.Indptr)
	assert.Equal(t, []int{0, 2, 1}, csr.Indices)
	assert.Equal(t, []float64{1, 5, 3}, csr.Values)
}

func TestCSRBuilderGetSet(t *testing.T) {
	b := NewCSRBuilder(2, 2)
	_, ok := b.Get(0, 1)
	assert.False(t, ok)
	b.Set(0, 1, 9)
	v, ok := b.Get(0, 1)
	assert.True(t, ok)
	assert.Equal(t, 9.0, v)
}
