// Package diffmap is the embedding driver: it wires kernel construction,
// Laplacian assembly and truncated randomised SVD together into a
// diffusion-maps embedding of a k-NN graph.
package diffmap

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jianshu93/annembed/graphlaplacian"
	"github.com/jianshu93/annembed/kernel"
	"github.com/jianshu93/annembed/knngraph"
	"github.com/jianshu93/annembed/rsvd"
)

// svdOversample is added to the caller's requested dimension before
// calling the truncated SVD, absorbing the discarded trivial component
// plus some slack for the diffusion-time heuristic's eigenvalue ratio.
const svdOversample = 25

// clipBound is the symmetric bound the embedding coordinates are
// clamped to, guarding against blow-ups on near-zero weights.
const clipBound = 5.0

// maxDiffusionTime upper-bounds the automatically chosen diffusion time.
const maxDiffusionTime = 5.0

// ErrSpectrumTooSmall is returned when fewer than two singular values
// survive truncation, leaving no non-trivial component to embed with.
var ErrSpectrumTooSmall = errors.New("diffmap: spectrum too small to embed")

// Params configures a Driver. AskedDim and Alpha are read by the
// driver; Alpha is only settable through SetAlpha so out-of-range
// values are always rejected, matching params.set_alpha's contract.
type Params struct {
	AskedDim int

	alpha float64
	t     float64
	hasT  bool

	// RescaleByLocalScale is forwarded to graphlaplacian.Assemble.
	RescaleByLocalScale bool
	// Logf receives diagnostic progress lines; nil disables logging.
	Logf func(format string, args ...any)
}

// NewParams builds Params for the given asked dimension and alpha,
// silently clamping an out-of-range alpha to 0.
func NewParams(askedDim int, alpha float64) *Params {
	p := &Params{AskedDim: askedDim, RescaleByLocalScale: true}
	p.SetAlpha(alpha)
	return p
}

// SetAlpha sets alpha if it lies in [0,1], otherwise leaves the prior
// value untouched.
func (p *Params) SetAlpha(a float64) {
	if a < 0 || a > 1 {
		return
	}
	p.alpha = a
}

// Alpha returns the current alpha.
func (p *Params) Alpha() float64 { return p.alpha }

// SetT fixes the diffusion time explicitly, overriding the automatic
// eigenvalue-ratio heuristic.
func (p *Params) SetT(t float64) { p.t = t; p.hasT = true }

// T returns the caller-supplied diffusion time, if any.
func (p *Params) T() (float64, bool) { return p.t, p.hasT }

func (p *Params) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
	}
}

// Driver embeds k-NN graphs under a fixed Params configuration and
// retains the last SVD result for post-hoc inspection.
type Driver struct {
	params    *Params
	svdResult *rsvd.Result
}

// New builds a Driver.
func New(params *Params) *Driver {
	return &Driver{params: params}
}

// SVDResult returns the singular triple computed by the most recent
// EmbedFromKNNGraph call, if any.
func (d *Driver) SVDResult() (*rsvd.Result, bool) {
	return d.svdResult, d.svdResult != nil
}

// EmbedFromKNNGraph builds the diffusion-maps embedding of g, returning
// an N x d' dense matrix with rows reindexed into g's DataId order.
func (d *Driver) EmbedFromKNNGraph(g knngraph.Graph) (*mat.Dense, error) {
	p := d.params

	nodeParams, _ := kernel.Build(g, kernel.Params{Logf: p.Logf})

	gl := graphlaplacian.Assemble(nodeParams, graphlaplacian.Params{
		Alpha:               p.Alpha(),
		RescaleByLocalScale: p.RescaleByLocalScale,
		Logf:                p.Logf,
	})

	k := p.AskedDim + svdOversample
	result, err := rsvd.Truncated(gl.SymLaplacian, k, rsvd.Options{})
	if err != nil {
		return nil, fmt.Errorf("diffmap: svd: %w", err)
	}
	d.svdResult = result

	if err := rsvd.CheckMonotoneDescending(result.S); err != nil {
		return nil, fmt.Errorf("diffmap: %w", err)
	}

	uRows, uCols := result.U.Dims()
	if len(result.S) < 2 || uCols < 2 {
		return nil, ErrSpectrumTooSmall
	}

	nFirst := len(result.S)
	if nFirst > 5 {
		nFirst = 5
	}
	p.logf("diffmap: first eigenvalues %v, last computed eigenvalue %g",
		result.S[:nFirst], result.S[len(result.S)-1])

	lambdaTilde := make([]float64, len(result.S))
	lambda0 := result.S[0]
	if lambda0 == 0 {
		lambda0 = 1
	}
	for i, lambda := range result.S {
		lambdaTilde[i] = lambda / lambda0
	}

	t := diffusionTime(p, lambdaTilde)

	dPrime := p.AskedDim
	if dPrime > uCols-1 {
		p.logf("diffmap: dimension shortfall, asked %d got %d", p.AskedDim, uCols-1)
		dPrime = uCols - 1
	}
	if dPrime < 0 {
		dPrime = 0
	}

	sumD := floats.Sum(gl.Degrees)

	embedding := mat.NewDense(uRows, dPrime, nil)
	for i := 0; i < uRows; i++ {
		w := math.Sqrt(gl.Degrees[i] / sumD)
		for j := 0; j < dPrime; j++ {
			v := math.Pow(lambdaTilde[j+1], t) * result.U.At(i, j+1) / w
			embedding.Set(i, j, clip(v, clipBound))
		}
	}

	return reindex(g, embedding), nil
}

// EmbedFromHNSW reduces an HNSW index to its full k-NN graph and embeds
// that. The index is not touched again after extraction.
func (d *Driver) EmbedFromHNSW(h knngraph.Hnsw) (*mat.Dense, error) {
	g, err := h.ToKNNGraph()
	if err != nil {
		return nil, fmt.Errorf("diffmap: k-NN graph extraction: %w", err)
	}
	return d.EmbedFromKNNGraph(g)
}

// diffusionTime returns the caller-supplied diffusion time or, absent
// one, the automatic heuristic t = min(5, ln(0.9)/ln(λ̃2/λ̃1)).
func diffusionTime(p *Params, lambdaTilde []float64) float64 {
	if t, ok := p.T(); ok {
		return t
	}
	if len(lambdaTilde) < 3 || lambdaTilde[1] == 0 || lambdaTilde[2] == lambdaTilde[1] {
		return maxDiffusionTime
	}
	ratio := lambdaTilde[2] / lambdaTilde[1]
	if ratio <= 0 || ratio == 1 {
		return maxDiffusionTime
	}
	t := math.Log(0.9) / math.Log(ratio)
	if t > maxDiffusionTime || t < 0 {
		return maxDiffusionTime
	}
	return t
}

func clip(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// reindex writes every graph row i of e into output row DataId(i),
// restoring the caller's original identifier order.
func reindex(g knngraph.Graph, e *mat.Dense) *mat.Dense {
	n := g.NbNodes()
	_, cols := e.Dims()
	out := mat.NewDense(n, cols, nil)
	idx := g.IndexSet()
	for i := 0; i < n; i++ {
		id := idx.At(i)
		out.SetRow(int(id), e.RawRowView(i))
	}
	return out
}
