// Package rsvd computes a truncated singular value decomposition,
// either directly via LAPACK divide-and-conquer (small dense inputs) or
// via a randomised range finder followed by a small dense SVD on the
// projected matrix (large or sparse inputs).
package rsvd

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/jianshu93/annembed/matrepr"
	"github.com/jianshu93/annembed/rangefinder"
)

// FullSVDSizeLimit is the row-count threshold at or below which a dense input
// is factorised directly instead of through the randomised range finder.
const FullSVDSizeLimit = 5000

// rankOversample is added to the requested rank before calling the range
// finder (the RANK-mode rank, or the EPSIL-mode column cap), to absorb the slow spectral decay typical of
// graph Laplacians (Halko-Martinsson-Tropp recommend oversampling).
const rankOversample = 20

// subspaceIterations is the number of power-iteration refinements used
// by the range finder in the randomised (non-direct) path.
const subspaceIterations = 5

// ErrLapackFailure is returned when the underlying LAPACK SVD driver
// fails to converge.
var ErrLapackFailure = errors.New("rsvd: LAPACK SVD driver failed")

// ErrNonContiguous is returned when the input cannot be made contiguous
// in row-major layout for the LAPACK call.
var ErrNonContiguous = errors.New("rsvd: matrix is not contiguous row-major")

// Result holds a truncated singular triple, singular values sorted
// non-increasing.
type Result struct {
	S  []float64
	U  *mat.Dense
	VT *mat.Dense // nil unless WithVT was requested
}

// Options configures a Truncated call.
type Options struct {
	// WithVT requests the right singular vectors as well; omit when only
	// U and S are needed (the driver only needs U and S).
	WithVT bool
	// Seed, if non-zero, overrides the range finder's default PRNG seed.
	Seed uint64
}

// Truncated computes the top k singular triples of a.
func Truncated(a matrepr.MatRepr, k int, opts Options) (*Result, error) {
	rows, _ := a.Shape()
	if dense, ok := a.Dense(); ok && rows <= FullSVDSizeLimit {
		return direct(dense, k, opts)
	}
	return approximate(a, k, opts)
}

// direct calls gonum's LAPACK-backed divide-and-conquer SVD on the full
// matrix, skipping the range finder, and truncates the result to k
// singular triples.
func direct(a *mat.Dense, k int, opts Options) (*Result, error) {
	kind := mat.SVDThin
	var svd mat.SVD
	ok := svd.Factorize(a, kind)
	if !ok {
		return nil, fmt.Errorf("%w", ErrLapackFailure)
	}

	values := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)

	var vt *mat.Dense
	if opts.WithVT {
		var v mat.Dense
		svd.VTo(&v)
		vtFull := v.T()
		vtd := mat.DenseCopyOf(vtFull)
		vt = truncateRows(vtd, k)
	}

	return &Result{
		S:  truncateValues(values, k),
		U:  truncateCols(&u, k),
		VT: vt,
	}, nil
}

// approximate runs the range finder with oversampling (RANK mode for a
// dense A, EPSIL mode for a CSR A), forms the small projected matrix
// B = Qᵀ*A, and computes its dense SVD.
func approximate(a matrepr.MatRepr, k int, opts Options) (*Result, error) {
	l := k + rankOversample

	// RANK mode needs a dense A for its QR refactorisation passes. A
	// sparse input runs the adaptive finder instead, carrying the same
	// rank budget over as a cap on the basis size, with a residual target
	// of 1/l. The adaptive stop can still end with fewer columns than the
	// cap (for example on a matrix of lower rank than l).
	var q *mat.Dense
	var err error
	if _, isDense := a.Dense(); isDense {
		q, err = rangefinder.FindRange(a, rangefinder.Params{
			Mode:    rangefinder.RANK,
			Rank:    l,
			NumIter: subspaceIterations,
			Seed:    opts.Seed,
		})
	} else {
		q, err = rangefinder.FindRange(a, rangefinder.Params{
			Mode:      rangefinder.EPSIL,
			Epsilon:   1.0 / float64(l),
			BatchSize: subspaceIterations,
			MaxRank:   l,
			Seed:      opts.Seed,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("rsvd: range finder: %w", err)
	}

	b := projectTranspose(q, a)

	var svd mat.SVD
	if !svd.Factorize(b, mat.SVDThin) {
		return nil, fmt.Errorf("%w", ErrLapackFailure)
	}
	values := svd.Values(nil)

	var uTilde mat.Dense
	svd.UTo(&uTilde)

	var u mat.Dense
	u.Mul(q, &uTilde)

	var vt *mat.Dense
	if opts.WithVT {
		var v mat.Dense
		svd.VTo(&v)
		vtd := mat.DenseCopyOf(v.T())
		vt = truncateRows(vtd, k)
	}

	return &Result{
		S:  truncateValues(values, k),
		U:  truncateCols(&u, k),
		VT: vt,
	}, nil
}

// projectTranspose computes B = Qᵀ*A as a dense (ℓ x n) matrix, handling
// both the dense and CSR representations of A.
func projectTranspose(q *mat.Dense, a matrepr.MatRepr) *mat.Dense {
	_, l := q.Dims()
	_, n := a.Shape()

	if dense, ok := a.Dense(); ok {
		var b mat.Dense
		b.Mul(q.T(), dense)
		return &b
	}

	sparse, _ := a.Sparse()
	m, _ := sparse.Shape()
	b := mat.NewDense(l, n, nil)
	for i := 0; i < m; i++ {
		for idx := sparse.Indptr[i]; idx < sparse.Indptr[i+1]; idx++ {
			j := sparse.Indices[idx]
			val := sparse.Values[idx]
			for k := 0; k < l; k++ {
				b.Set(k, j, b.At(k, j)+q.At(i, k)*val)
			}
		}
	}
	return b
}

// CheckMonotoneDescending returns an error if s is not sorted
// non-increasing. Callers run it after every SVD: a violation indicates
// numerical breakdown upstream.
func CheckMonotoneDescending(s []float64) error {
	for i := 1; i < len(s); i++ {
		if s[i] > s[i-1] {
			return fmt.Errorf("rsvd: singular values not non-increasing at index %d: %g > %g", i, s[i], s[i-1])
		}
	}
	return nil
}

func truncateValues(s []float64, k int) []float64 {
	if k < len(s) {
		return append([]float64(nil), s[:k]...)
	}
	return append([]float64(nil), s...)
}

func truncateCols(m *mat.Dense, k int) *mat.Dense {
	r, c := m.Dims()
	if k > c {
		k = c
	}
	out := mat.NewDense(r, k, nil)
	out.Copy(m.Slice(0, r, 0, k))
	return out
}

func truncateRows(m *mat.Dense, k int) *mat.Dense {
	r, c := m.Dims()
	if k > r {
		k = r
	}
	out := mat.NewDense(k, c, nil)
	out.Copy(m.Slice(0, k, 0, c))
	return out
}
