// Package matrepr provides a uniform view over dense and sparse
// (compressed-sparse-row) matrices, exposing exactly the contract the
// randomised range finder needs: shape and mat-vec.
//
// It is a closed sum type (Dense | CSR) rather than an interface with
// open-ended implementations, because the two representations carry
// different numerical conventions further up the pipeline (see
// graphlaplacian's dense-vs-sparse symmetrisation) and callers need to
// branch on which one they hold.
package matrepr

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FullMatRepr is the node-count threshold at or below which the Laplacian
// assembler chooses a Dense representation over CSR.
const FullMatRepr = 5000

// MatRepr is a sparse-or-dense matrix. Exactly one of Dense or Sparse is
// non-nil; NewDense and NewSparse construct valid values.
type MatRepr struct {
	dense  *mat.Dense
	sparse *CSR
}

// NewDense wraps a dense gonum matrix.
func NewDense(d *mat.Dense) MatRepr {
	return MatRepr{dense: d}
}

// NewSparse wraps a CSR matrix.
func NewSparse(c *CSR) MatRepr {
	return MatRepr{sparse: c}
}

// IsCSR reports whether the representation is sparse.
func (m MatRepr) IsCSR() bool {
	return m.sparse != nil
}

// Dense returns the underlying dense matrix and true, or (nil, false) if
// this MatRepr holds a sparse matrix.
func (m MatRepr) Dense() (*mat.Dense, bool) {
	if m.dense == nil {
		return nil, false
	}
	return m.dense, true
}

// Sparse returns the underlying CSR matrix and true, or (nil, false) if
// this MatRepr holds a dense matrix.
func (m MatRepr) Sparse() (*CSR, bool) {
	if m.sparse == nil {
		return nil, false
	}
	return m.sparse, true
}

// Shape returns (rows, cols).
func (m MatRepr) Shape() (int, int) {
	if m.dense != nil {
		r, c := m.dense.Dims()
		return r, c
	}
	return m.sparse.Shape()
}

// MatVec computes M*v. The caller guarantees len(v) == cols.
func (m MatRepr) MatVec(v []float64) []float64 {
	if m.dense != nil {
		_, c := m.dense.Dims()
		if len(v) != c {
			panic(fmt.Sprintf("matrepr: MatVec dimension mismatch, have %d want %d", len(v), c))
		}
		x := mat.NewVecDense(c, v)
		var y mat.VecDense
		y.MulVec(m.dense, x)
		return y.RawVector().Data
	}
	return m.sparse.MatVec(v)
}
