// Package rangefinder finds an orthonormal basis Q spanning the
// approximate range of a matrix A, i.e. ||A - Q*Qᵀ*A|| is small. This is
// the randomised linear-algebra workhorse behind the truncated SVD: once
// Q is known, the SVD of A can be approximated from the small matrix
// Qᵀ*A instead of A itself.
//
// Two modes are implemented, both from Halko, Martinsson & Tropp,
// "Finding Structure with Randomness" (2011):
//
//   - EPSIL: the adaptive range finder (Algorithm 4.2), which grows Q
//     until a residual-norm stopping criterion is met. Works for dense
//     and sparse A.
//   - RANK: the fixed-rank subspace-iteration range finder (Algorithm
//     4.4), which targets a specific rank with extra power iterations.
//     Dense only (it relies on a QR refactorisation of A*Omega at every
//     step, for which we use gonum's dense Householder QR).
package rangefinder

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jianshu93/annembed/internal/prng"
	"github.com/jianshu93/annembed/matrepr"
)

// Mode selects which Halko-Martinsson-Tropp algorithm to run.
type Mode int

const (
	// EPSIL is the adaptive range finder (HMT Algorithm 4.2).
	EPSIL Mode = iota
	// RANK is the fixed-rank subspace iteration (HMT Algorithm 4.4).
	RANK
)

// DefaultConvergenceConstant is HMT Theorem 4.2's constant
// 10*sqrt(2/pi), used to translate a target residual epsilon into a
// per-vector norm stopping threshold at failure probability 1e-10.
// Overridable through Params.ConvergenceConstant for other failure
// probabilities.
const DefaultConvergenceConstant = 10 * 0.7978845608028654 // 10*sqrt(2/pi)

// Params configures a range-finder run.
type Params struct {
	Mode Mode

	// EPSIL mode.
	Epsilon             float64 // target Frobenius residual
	BatchSize           int     // sliding window size r, typically 5-10
	ConvergenceConstant float64 // zero means DefaultConvergenceConstant
	MaxRank             int     // cap on basis columns; zero means min(m,n)

	// RANK mode.
	Rank    int // target rank l (before any caller-side oversampling)
	NumIter int // number of power-iteration refinements q

	// Seed seeds the PRNG; zero means prng.DefaultSeed.
	Seed uint64
}

func (p Params) convergenceConstant() float64 {
	if p.ConvergenceConstant > 0 {
		return p.ConvergenceConstant
	}
	return DefaultConvergenceConstant
}

func (p Params) seed() uint64 {
	if p.Seed != 0 {
		return p.Seed
	}
	return prng.DefaultSeed
}

// ErrNotDense is returned when RANK mode is requested on a sparse A.
var ErrNotDense = errors.New("rangefinder: RANK mode requires a dense matrix")

// FindRange computes an orthonormal basis Q (m x l, columns orthonormal)
// approximating the range of A (m x n).
func FindRange(a matrepr.MatRepr, p Params) (*mat.Dense, error) {
	switch p.Mode {
	case EPSIL:
		return findRangeEpsil(a, p)
	case RANK:
		return findRangeRank(a, p)
	default:
		return nil, errors.New("rangefinder: unknown mode")
	}
}

// findRangeEpsil implements HMT Algorithm 4.2: grow Q one column at a
// time from a sliding window of r candidate vectors, each re-orthogonalised
// against Q and against each other, until every candidate's residual norm
// drops below the convergence threshold.
func findRangeEpsil(a matrepr.MatRepr, p Params) (*mat.Dense, error) {
	m, n := a.Shape()
	r := p.BatchSize
	if r <= 0 {
		r = 8
	}
	threshold := p.Epsilon / p.convergenceConstant()
	maxIter := m
	if n < maxIter {
		maxIter = n
	}

	gauss := prng.NewNormal(p.seed())

	qCols := make([][]float64, 0, maxIter)

	// y[j] holds a candidate vector already orthogonalised against qCols.
	y := make([][]float64, r)
	drawAndOrthogonalize := func(j int) {
		omega := make([]float64, n)
		gauss.Vector(omega)
		v := a.MatVec(omega)
		orthogonalizeAgainst(v, qCols)
		y[j] = v
	}
	for j := 0; j < r; j++ {
		drawAndOrthogonalize(j)
	}

	j := 0
	for iter := 0; iter < maxIter; iter++ {
		// Re-orthogonalise y[j] against Q for numerical stability (it may
		// have drifted since it was last refreshed).
		orthogonalizeAgainst(y[j], qCols)

		norm := l2Norm(y[j])
		if norm < machineEpsilon(m) {
			break
		}

		qNew := make([]float64, m)
		scale := 1.0 / norm
		for i := range qNew {
			qNew[i] = y[j][i] * scale
		}
		qCols = append(qCols, qNew)
		if p.MaxRank > 0 && len(qCols) >= p.MaxRank {
			break
		}

		// Refresh slot j with a new draw (orthogonalised against all of Q,
		// including qNew) and project the other candidates off qNew, so the
		// termination test below sees a full window of r live candidates.
		drawAndOrthogonalize(j)
		for k := 0; k < r; k++ {
			if k == j {
				continue
			}
			proj := dot(qNew, y[k])
			for i := range y[k] {
				y[k][i] -= proj * qNew[i]
			}
		}

		maxResidual := 0.0
		for k := 0; k < r; k++ {
			if nrm := l2Norm(y[k]); nrm > maxResidual {
				maxResidual = nrm
			}
		}
		if maxResidual <= threshold {
			break
		}

		j = (j + 1) % r
	}

	return denseFromColumns(m, qCols), nil
}

// findRangeRank implements HMT Algorithm 4.4: draw a Gaussian Omega of
// width Rank, form Y = A*Omega, then alternate A*(Aᵀ*Y) with a
// Householder QR re-orthogonalisation at each half-step for NumIter
// power iterations. The final Q is the Q-factor of the last QR.
func findRangeRank(a matrepr.MatRepr, p Params) (*mat.Dense, error) {
	dense, ok := a.Dense()
	if !ok {
		return nil, ErrNotDense
	}
	m, n := dense.Dims()
	l := p.Rank
	if l <= 0 {
		l = 1
	}
	if l > m {
		l = m
	}

	gauss := prng.NewNormal(p.seed())
	omega := mat.NewDense(n, l, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < l; j++ {
			omega.Set(i, j, gauss.Next())
		}
	}

	var y mat.Dense
	y.Mul(dense, omega)

	q := qrQFactor(&y, m, l)

	for iter := 0; iter < p.NumIter; iter++ {
		var aty mat.Dense
		aty.Mul(dense.T(), q)
		qTmp := qrQFactor(&aty, n, l)

		var ay mat.Dense
		ay.Mul(dense, qTmp)
		q = qrQFactor(&ay, m, l)
	}

	return q, nil
}

// qrQFactor returns the first cols columns of the Q-factor of a's
// Householder QR factorisation via gonum's LAPACK-backed QR.
func qrQFactor(a *mat.Dense, rows, cols int) *mat.Dense {
	var qr mat.QR
	qr.Factorize(a)
	var q mat.Dense
	qr.QTo(&q)
	if qc := q.RawMatrix().Cols; qc == cols {
		return &q
	}
	thin := mat.NewDense(rows, cols, nil)
	thin.Copy(q.Slice(0, rows, 0, cols))
	return thin
}

func orthogonalizeAgainst(v []float64, basis [][]float64) {
	for _, q := range basis {
		proj := dot(q, v)
		for i := range v {
			v[i] -= proj * q[i]
		}
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func l2Norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}

func machineEpsilon(m int) float64 {
	return float64(m) * 2.220446049250313e-16
}

func denseFromColumns(m int, cols [][]float64) *mat.Dense {
	l := len(cols)
	out := mat.NewDense(m, l, nil)
	for j, col := range cols {
		out.SetCol(j, col)
	}
	return out
}
