package searcher

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestRaveBeta(t *testing.T) {
	t.Run("no rave statistics means no rave weight", func(t *testing.T) {
		require.Zero(t, raveBeta(10, 0, DefaultRaveEquiv))
	})

	t.Run("unvisited move leans fully on rave", func(t *testing.T) {
		require.Equal(t, 1.0, raveBeta(0, 50, DefaultRaveEquiv))
	})

	t.Run("weight decays as real visits accumulate", func(t *testing.T) {
		prev := 1.0
		for _, visits := range []float64{1, 10, 100, 1000, 10000} {
			beta := raveBeta(visits, 500, DefaultRaveEquiv)
			require.Less(t, beta, prev, "beta should shrink at %v visits", visits)
			require.Greater(t, beta, 0.0)
			prev = beta
		}
	})

	t.Run("blend interpolates between the estimates", func(t *testing.T) {
		require.Equal(t, 0.5, blend(0.5, -0.5, 0))
		require.Equal(t, -0.5, blend(0.5, -0.5, 1))
		require.InDelta(t, 0.0, blend(0.5, -0.5, 0.5), 1e-12)
	})
}

func TestExploration(t *testing.T) {
	t.Run("shrinks with visits and grows with the prior", func(t *testing.T) {
		fresh := exploration(DefaultCpuct, 0.5, 10, 0)
		visited := exploration(DefaultCpuct, 0.5, 10, 20)
		require.Greater(t, fresh, visited)

		likely := exploration(DefaultCpuct, 0.9, 10, 5)
		unlikely := exploration(DefaultCpuct, 0.1, 10, 5)
		require.Greater(t, likely, unlikely)
	})

	t.Run("zero at an unvisited root", func(t *testing.T) {
		require.Zero(t, exploration(DefaultCpuct, 0.5, 0, 0))
	})
}

func TestDirichlet(t *testing.T) {
	t.Run("samples form a distribution", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		sample := dirichlet(rng, 20, 0.03)

		var sum float64
		for _, v := range sample {
			require.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		require.InDelta(t, 1.0, sum, 1e-9)
	})

	t.Run("same seed draws the same noise", func(t *testing.T) {
		a := dirichlet(rand.New(rand.NewSource(7)), 10, 0.5)
		b := dirichlet(rand.New(rand.NewSource(7)), 10, 0.5)
		require.Equal(t, a, b)
	})
}
