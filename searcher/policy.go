package searcher

import (
	"math"

	"golang.org/x/exp/rand"
)

const (
	Win  = 1.0
	Loss = -Win

	// DefaultCpuct scales the exploration term of the selection score.
	DefaultCpuct = 1.5

	// DefaultRaveEquiv is the visit count at which the all-moves-as-first
	// estimate and the tree estimate carry equal weight.
	DefaultRaveEquiv = 3500
)

// raveBeta is the weight of the all-moves-as-first estimate for a move
// with the given tree and RAVE visit counts. It starts at 1 when the
// move has never been tried from this node and decays toward 0 as real
// visits accumulate.
func raveBeta(visits, raveVisits, raveEquiv float64) float64 {
	if raveVisits == 0 {
		return 0
	}
	return raveVisits / (raveVisits + visits + visits*raveVisits/raveEquiv)
}

func blend(q, raveQ, beta float64) float64 {
	return (1-beta)*q + beta*raveQ
}

// exploration is the prior-weighted PUCT bonus for an edge: high for
// moves the net likes, shrinking as the edge is visited.
func exploration(cpuct, prior, sqrtParent, visits float64) float64 {
	return cpuct * prior * sqrtParent / (1 + visits)
}

// dirichlet draws a symmetric Dirichlet sample by normalizing gamma
// variates.
func dirichlet(rng *rand.Rand, n int, alpha float64) []float64 {
	out := make([]float64, n)
	var sum float64
	for i := range out {
		out[i] = gammaVariate(rng, alpha)
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1 / float64(n)
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// gammaVariate samples Gamma(alpha, 1) with Marsaglia-Tsang squeezing,
// boosting shape parameters below one.
func gammaVariate(rng *rand.Rand, alpha float64) float64 {
	if alpha < 1 {
		return gammaVariate(rng, alpha+1) * math.Pow(rng.Float64(), 1/alpha)
	}
	d := alpha - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
