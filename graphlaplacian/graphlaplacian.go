// Package graphlaplacian assembles the normalised symmetric graph
// Laplacian from kernel-constructed NodeParams, choosing a dense or CSR
// representation by node count.
//
// The dense and sparse paths use different symmetrisation conventions:
// dense averages (T+Tᵀ)/2, sparse takes max(T,Tᵀ). The two therefore
// produce different Laplacians for the same input near the size
// threshold; callers comparing across the boundary must account for it.
package graphlaplacian

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jianshu93/annembed/kernel"
	"github.com/jianshu93/annembed/matrepr"
)

// FullMatRepr is the node-count threshold at or below which a dense
// representation is used instead of CSR.
const FullMatRepr = matrepr.FullMatRepr

// Params configures Laplacian assembly.
type Params struct {
	// Alpha is the Coifman-Lafon density-reweighting exponent, in [0,1].
	Alpha float64
	// RescaleByLocalScale enables the dense-only division by
	// scale(i)*scale(j) after D-normalisation. Introduces a known bias;
	// flip off for a bias-free Laplacian.
	// TODO: check if useful.
	RescaleByLocalScale bool
	Logf                func(format string, args ...any)
}

func (p Params) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
	}
}

// GraphLaplacian is the normalised symmetric Laplacian plus the degree
// vector needed to recover random-walk left eigenvectors later.
type GraphLaplacian struct {
	SymLaplacian matrepr.MatRepr
	// Degrees[i] is the row-sum of the alpha-reweighted kernel, before
	// the D^-1/2 normalisation.
	Degrees []float64
}

// Assemble builds a GraphLaplacian from np.
func Assemble(np *kernel.NodeParams, params Params) *GraphLaplacian {
	n := np.NbNodes()
	if n <= FullMatRepr {
		params.logf("graphlaplacian: assembling dense (%d nodes)", n)
		return assembleDense(np, params)
	}
	params.logf("graphlaplacian: assembling CSR (%d nodes)", n)
	return assembleSparse(np, params)
}

func assembleDense(np *kernel.NodeParams, params Params) *GraphLaplacian {
	n := np.NbNodes()

	transition := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for _, e := range np.Get(i).Edges {
			transition.Set(i, e.Node, float64(e.Weight))
		}
	}

	// local scales normalised by their mean, used only by the optional
	// rescale step below.
	localScale := make([]float64, n)
	var meanScale float64
	for i := 0; i < n; i++ {
		localScale[i] = float64(np.Get(i).Scale)
		meanScale += localScale[i]
	}
	meanScale /= float64(n)
	if meanScale != 0 {
		for i := range localScale {
			localScale[i] /= meanScale
		}
	}

	sym := mat.NewDense(n, n, nil)
	sym.Add(transition, transition.T())
	sym.Scale(0.5, sym)

	q := make([]float64, n)
	for i := 0; i < n; i++ {
		q[i] = floats.Sum(sym.RawRowView(i))
	}

	alpha := params.Alpha
	degrees := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := sym.At(i, j)
			if v == 0 {
				continue
			}
			sym.Set(i, j, v/math.Pow(q[i]*q[j], alpha))
		}
		degrees[i] = floats.Sum(sym.RawRowView(i))
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := sym.At(i, j)
			if v == 0 {
				continue
			}
			sym.Set(i, j, v/math.Sqrt(degrees[i]*degrees[j]))
		}
	}

	if params.RescaleByLocalScale {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := sym.At(i, j)
				denom := localScale[i] * localScale[j]
				if v == 0 || denom <= 0 {
					continue
				}
				sym.Set(i, j, v/denom)
			}
		}
	}

	return &GraphLaplacian{SymLaplacian: matrepr.NewDense(sym), Degrees: degrees}
}

type triplet struct {
	row, col int
	value    float64
}

func assembleSparse(np *kernel.NodeParams, params Params) *GraphLaplacian {
	n := np.NbNodes()

	directed := make(map[[2]int]float64, n*np.MaxNbng)
	for i := 0; i < n; i++ {
		for _, e := range np.Get(i).Edges {
			directed[[2]int{i, e.Node}] = float64(e.Weight)
		}
	}

	triplets := make([]triplet, 0, len(directed)*2)
	diagonal := make([]float64, n)
	seen := make(map[[2]int]bool, len(directed)*2)

	for key, val := range directed {
		i, j := key[0], key[1]
		if seen[key] {
			continue
		}
		if i == j {
			// A self-loop is its own transpose: it survives symmetrisation
			// unchanged, exactly as under the dense (T+Tᵀ)/2 average.
			triplets = append(triplets, triplet{i, i, val})
			diagonal[i] += val
			seen[key] = true
			continue
		}
		symVal := val
		if rev, ok := directed[[2]int{j, i}]; ok {
			symVal = math.Max(val, rev)
		}
		triplets = append(triplets, triplet{i, j, symVal})
		triplets = append(triplets, triplet{j, i, symVal})
		diagonal[i] += symVal
		diagonal[j] += symVal
		seen[key] = true
		seen[[2]int{j, i}] = true
	}

	alpha := params.Alpha
	for k := range triplets {
		t := &triplets[k]
		t.value /= math.Pow(diagonal[t.row]*diagonal[t.col], alpha)
	}

	for i := range diagonal {
		diagonal[i] = 0
	}
	for _, t := range triplets {
		diagonal[t.row] += t.value
	}

	for k := range triplets {
		t := &triplets[k]
		t.value /= math.Sqrt(diagonal[t.row] * diagonal[t.col])
	}

	builder := matrepr.NewCSRBuilder(n, n)
	for _, t := range triplets {
		builder.Set(t.row, t.col, t.value)
	}
	csr := builder.Build()

	return &GraphLaplacian{SymLaplacian: matrepr.NewSparse(csr), Degrees: diagonal}
}
