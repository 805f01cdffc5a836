package matrepr

import "errors"

// ErrBadShape is returned when a CSR is constructed with an invalid shape.
var ErrBadShape = errors.New("matrepr: invalid shape")

// ErrIndptrMismatch is returned when indptr's length does not match rows+1.
var ErrIndptrMismatch = errors.New("matrepr: indptr length does not match rows+1")

// CSR is a compressed-sparse-row matrix: three parallel arrays, classic
// (indptr, indices, values) layout. Row i's entries live in
// Indices[Indptr[i]:Indptr[i+1]] / Values[Indptr[i]:Indptr[i+1]].
type CSR struct {
	rows, cols int
	Indptr     []int
	Indices    []int
	Values     []float64
}

// NewCSR validates and wraps the three CSR arrays.
func NewCSR(rows, cols int, indptr, indices []int, values []float64) (*CSR, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrBadShape
	}
	if len(indptr) != rows+1 {
		return nil, ErrIndptrMismatch
	}
	if len(indices) != len(values) {
		return nil, errors.New("matrepr: indices/values length mismatch")
	}
	return &CSR{rows: rows, cols: cols, Indptr: indptr, Indices: indices, Values: values}, nil
}

// Shape returns (rows, cols).
func (c *CSR) Shape() (int, int) {
	return c.rows, c.cols
}

// NNZ returns the number of stored (explicit) entries.
func (c *CSR) NNZ() int {
	return len(c.Values)
}

// MatVec computes M*v. Caller guarantees len(v) == cols.
func (c *CSR) MatVec(v []float64) []float64 {
	if len(v) != c.cols {
		panic("matrepr: CSR MatVec dimension mismatch")
	}
	out := make([]float64, c.rows)
	for i := 0; i < c.rows; i++ {
		var sum float64
		for k := c.Indptr[i]; k < c.Indptr[i+1]; k++ {
			sum += c.Values[k] * v[c.Indices[k]]
		}
		out[i] = sum
	}
	return out
}

// CSRBuilder accumulates (row, col, value) triplets in a map keyed by
// (i,j) before finalising them into a sorted CSR. Assembly is
// sequential; only the finished CSR is shared.
type CSRBuilder struct {
	rows, cols int
	entries    map[[2]int]float64
}

// NewCSRBuilder creates a builder for an rows x cols matrix.
func NewCSRBuilder(rows, cols int) *CSRBuilder {
	return &CSRBuilder{rows: rows, cols: cols, entries: make(map[[2]int]float64)}
}

// Set stores (or overwrites) the value at (row, col).
func (b *CSRBuilder) Set(row, col int, value float64) {
	b.entries[[2]int{row, col}] = value
}

// Get returns the value at (row, col) and whether it is present.
func (b *CSRBuilder) Get(row, col int) (float64, bool) {
	v, ok := b.entries[[2]int{row, col}]
	return v, ok
}

// Entries returns every stored (row, col, value) triplet, in no
// particular order; Build sorts them before materialising Indptr.
func (b *CSRBuilder) Entries() [][3]float64 {
	out := make([][3]float64, 0, len(b.entries))
	for k, v := range b.entries {
		out = append(out, [3]float64{float64(k[0]), float64(k[1]), v})
	}
	return out
}

// Build finalises the accumulated triplets into a row-major sorted CSR.
func (b *CSRBuilder) Build() *CSR {
	rowBuckets := make([][][2]float64, b.rows) // [col, value] pairs per row
	for k, v := range b.entries {
		rowBuckets[k[0]] = append(rowBuckets[k[0]], [2]float64{float64(k[1]), v})
	}

	indptr := make([]int, b.rows+1)
	var indices []int
	var values []float64
	for i := 0; i < b.rows; i++ {
		bucket := rowBuckets[i]
		// simple insertion sort by column: neighbourhoods are small (k+1),
		// avoids pulling in sort for a handful of elements per row.
		for a := 1; a < len(bucket); a++ {
			for c := a; c > 0 && bucket[c-1][0] > bucket[c][0]; c-- {
				bucket[c-1], bucket[c] = bucket[c], bucket[c-1]
			}
		}
		for _, pair := range bucket {
			indices = append(indices, int(pair[0]))
			values = append(values, pair[1])
		}
		indptr[i+1] = len(indices)
	}
	return &CSR{rows: b.rows, cols: b.cols, Indptr: indptr, Indices: indices, Values: values}
}
