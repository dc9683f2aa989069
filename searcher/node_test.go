package searcher

import (
	"sync"
	"testing"

	"tengen/game"
	"tengen/nn"

	"github.com/stretchr/testify/require"
)

func TestArena(t *testing.T) {
	t.Run("pointers stay valid across block growth", func(t *testing.T) {
		a := newArena()
		first, n := a.alloc()
		n.move = game.Vertex(42)

		for i := 0; i < 3*blockSize; i++ {
			a.alloc()
		}

		require.Equal(t, game.Vertex(42), a.at(first).move)
		require.EqualValues(t, 3*blockSize+1, a.size())
	})

	t.Run("concurrent allocation hands out distinct slots", func(t *testing.T) {
		a := newArena()
		const workers, each = 8, 500

		var wg sync.WaitGroup
		ids := make([][]nodeID, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < each; i++ {
					id, _ := a.alloc()
					ids[w] = append(ids[w], id)
				}
			}(w)
		}
		wg.Wait()

		seen := make(map[nodeID]bool)
		for _, worker := range ids {
			for _, id := range worker {
				require.False(t, seen[id], "slot %d handed out twice", id)
				seen[id] = true
			}
		}
		require.Len(t, seen, workers*each)
	})
}

func TestNodeInit(t *testing.T) {
	t.Run("finished positions become terminal nodes", func(t *testing.T) {
		pos := game.NewPosition(5, 7.5)
		pos, err := pos.Apply(game.Pass)
		require.NoError(t, err)
		pos, err = pos.Apply(game.Pass)
		require.NoError(t, err)

		var n node
		n.init(game.Pass, pos, nil)

		require.True(t, n.terminal)
		require.Equal(t, Loss, n.value, "black to move has lost an empty board by komi")
		require.Empty(t, n.moves)
	})

	t.Run("priors renormalize over the legal moves", func(t *testing.T) {
		pos := game.NewPosition(3, 7.5)
		out, err := nn.Uniform{}.Evaluate(pos)
		require.NoError(t, err)

		var n node
		n.init(game.NoVertex, pos, out)

		require.Len(t, n.prior, 10, "9 vertices plus pass")
		var sum float32
		for _, p := range n.prior {
			sum += p
		}
		require.InDelta(t, 1, sum, 1e-5)
	})

	t.Run("zero policy mass falls back to uniform", func(t *testing.T) {
		pos := game.NewPosition(3, 7.5)
		out := &nn.Output{Policy: make([]float32, 10)}

		var n node
		n.init(game.NoVertex, pos, out)

		for _, p := range n.prior {
			require.InDelta(t, 0.1, p, 1e-6)
		}
	})
}

func TestTerminalValue(t *testing.T) {
	pos := game.NewPosition(5, 7.5)
	q, err := pos.WithToMove(game.White).Apply(game.VertexAt(2, 2, 5))
	require.NoError(t, err) // lone white stone owns the board
	q, err = q.Apply(game.Pass)
	require.NoError(t, err)
	q, err = q.Apply(game.Pass)
	require.NoError(t, err)
	require.True(t, q.Finished())

	require.Equal(t, Loss, terminalValue(q.WithToMove(game.Black)))
	require.Equal(t, Win, terminalValue(q.WithToMove(game.White)))
}

func TestAtomicFloat64(t *testing.T) {
	var f atomicFloat64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				f.Add(0.5)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 4000.0, f.Load(), "no increments lost under contention")
}
