// Package kernel turns a k-NN graph into NodeParams: per-node local
// scale plus Gaussian-remapped, self-looped transition weights, the
// "alpha family" kernel construction of Coifman & Lafon (2006).
package kernel

import (
	"fmt"
	"io"
	"math"

	"github.com/beorn7/perks/quantile"

	"github.com/jianshu93/annembed/internal/xpool"
	"github.com/jianshu93/annembed/knngraph"
)

// ProbaMin is the small positive floor preventing exact-zero edge
// weights from the Gaussian remap.
const ProbaMin = 1e-5

// epsil is the Gaussian bandwidth multiplier, sqrt(5), chosen so weight
// is put on at least ~5 neighbours when there is no shift.
var epsil = float32(math.Sqrt(5))

// OutEdge is re-exported for convenience; kernel weights travel in the
// same type as k-NN distances.
type OutEdge = knngraph.OutEdge

// NodeParam holds one node's local scale and its k+1 outgoing edges
// (self-edge at position 0, then its k nearest neighbours).
type NodeParam struct {
	Scale float32
	Edges []OutEdge
}

// NodeParams is the kernel construction's output.
type NodeParams struct {
	Params  []NodeParam
	MaxNbng int
}

// NbNodes returns the node count.
func (p *NodeParams) NbNodes() int { return len(p.Params) }

// Get returns the NodeParam for row i.
func (p *NodeParams) Get(i int) NodeParam { return p.Params[i] }

// Quantiles holds the 0.05/0.5/0.95/0.99 quantiles of a CKMS sketch.
type Quantiles struct {
	P05, P50, P95, P99 float64
}

// Diagnostics carries the scale and density quantile sketches computed
// during kernel construction, for a caller to print or assert on.
type Diagnostics struct {
	ScaleQuantiles   Quantiles
	DensityQuantiles Quantiles
}

// Params configures Build.
type Params struct {
	// Pool, if non-nil, is used for the parallel local-scale pass.
	// If nil, Build creates and closes a pool sized to GOMAXPROCS.
	Pool *xpool.Pool
	// Logf receives diagnostic progress lines; nil disables logging.
	Logf func(format string, args ...any)
}

func (p Params) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
	}
}

// diagnosticTargets is the CKMS target map (quantile -> epsilon) used for
// both the local-scale and density diagnostic sketches: epsilon=0.001 at
// each queried quantile.
func diagnosticTargets() map[float64]float64 {
	return map[float64]float64{
		0.05: 0.001,
		0.5:  0.001,
		0.95: 0.001,
		0.99: 0.001,
	}
}

// Build computes NodeParams and diagnostics for graph g.
func Build(g knngraph.Graph, params Params) (*NodeParams, Diagnostics) {
	n := g.NbNodes()
	neighbours := g.Neighbours()

	pool := params.Pool
	ownsPool := false
	if pool == nil {
		pool = xpool.New(0)
		ownsPool = true
	}
	if ownsPool {
		defer pool.Close()
	}

	localScale := make([]float32, n)
	pool.ForEach(n, func(i int) {
		localScale[i] = distAroundNode(neighbours, i)
	})

	scaleQ := quantile.NewTargeted(diagnosticTargets())
	for _, s := range localScale {
		scaleQ.Insert(float64(s))
	}
	scaleQuantiles := Quantiles{
		P05: scaleQ.Query(0.05), P50: scaleQ.Query(0.5),
		P95: scaleQ.Query(0.95), P99: scaleQ.Query(0.99),
	}
	params.logf("kernel: scale quantiles 0.05=%.3e 0.5=%.3e 0.95=%.3e 0.99=%.3e",
		scaleQuantiles.P05, scaleQuantiles.P50, scaleQuantiles.P95, scaleQuantiles.P99)

	nodeParams := make([]NodeParam, n)
	densityQ := quantile.NewTargeted(diagnosticTargets())

	for i := 0; i < n; i++ {
		edges := neighbours[i]
		nodeParams[i] = buildNodeParam(i, edges, localScale)
		var density float64
		for _, e := range nodeParams[i].Edges {
			density += float64(e.Weight)
		}
		densityQ.Insert(density)
	}

	densityQuantiles := Quantiles{
		P05: densityQ.Query(0.05), P50: densityQ.Query(0.5),
		P95: densityQ.Query(0.95), P99: densityQ.Query(0.99),
	}
	params.logf("kernel: density quantiles 0.05=%.3e 0.5=%.3e 0.95=%.3e 0.99=%.3e",
		densityQuantiles.P05, densityQuantiles.P50, densityQuantiles.P95, densityQuantiles.P99)

	return &NodeParams{Params: nodeParams, MaxNbng: g.MaxNbng()},
		Diagnostics{ScaleQuantiles: scaleQuantiles, DensityQuantiles: densityQuantiles}
}

// distAroundNode is the local scale of node i: the nearest-neighbour
// distances of i and of each of its k neighbours, summed and divided by k.
func distAroundNode(neighbours [][]OutEdge, i int) float32 {
	edges := neighbours[i]
	rhoX := edges[0].Weight
	var sum float32 = rhoX
	for _, e := range edges {
		sum += neighbours[e.Node][0].Weight
	}
	return sum / float32(len(edges))
}

// buildNodeParam computes the remapped, self-looped edge weights for
// one node, handling the degenerate (all-equal-distance) neighbourhood
// case by falling back to uniform weights.
func buildNodeParam(i int, edges []OutEdge, localScale []float32) NodeParam {
	degenerate := isDegenerate(edges)

	nbEdges := 1 + len(edges)
	out := make([]OutEdge, 0, nbEdges)

	if degenerate {
		proba := float32(1.0) / float32(nbEdges)
		out = append(out, OutEdge{Node: i, Weight: proba})
		for _, e := range edges {
			out = append(out, OutEdge{Node: e.Node, Weight: proba})
		}
		return NodeParam{Scale: localScale[i], Edges: out}
	}

	out = append(out, OutEdge{Node: i, Weight: 1.0})
	fromScale := localScale[i]
	for _, e := range edges {
		toScale := localScale[e.Node]
		sij := float32(math.Sqrt(float64(fromScale) * float64(toScale)))
		w := remapWeight(e.Weight, 0, sij)
		out = append(out, OutEdge{Node: e.Node, Weight: w})
	}
	return NodeParam{Scale: localScale[i], Edges: out}
}

// isDegenerate reports whether the neighbourhood should fall back to
// uniform weights: the farthest neighbour's distance is <= the nearest
// neighbour's distance, including the all-zero case.
func isDegenerate(edges []OutEdge) bool {
	if len(edges) == 0 {
		return true
	}
	var lastPositive *OutEdge
	for i := len(edges) - 1; i >= 0; i-- {
		if edges[i].Weight > 0 {
			lastPositive = &edges[i]
			break
		}
	}
	if lastPositive == nil {
		return true
	}
	return lastPositive.Weight <= edges[0].Weight
}

// remapWeight applies the Gaussian-like remap w(i->j) = max(exp(-((d -
// shift)/(epsil*scale))^2), ProbaMin). A non-positive shifted distance
// gets full weight and a vanishing scale the floor, keeping weights
// finite when duplicate points drive distances or scales to zero.
func remapWeight(d, shift, scale float32) float32 {
	if d <= shift {
		return 1.0
	}
	if scale <= 0 {
		return ProbaMin
	}
	arg := (d - shift) / (epsil * scale)
	w := float32(math.Exp(-float64(arg * arg)))
	if w < ProbaMin {
		return ProbaMin
	}
	return w
}

// DescribeQuantiles formats q as a one-line diagnostic.
func DescribeQuantiles(w io.Writer, label string, q Quantiles) {
	fmt.Fprintf(w, "%s quantiles at 0.05 : %.2e , 0.5 : %.2e, 0.95 : %.2e, 0.99 : %.2e\n",
		label, q.P05, q.P50, q.P95, q.P99)
}
