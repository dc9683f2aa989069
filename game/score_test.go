package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	t.Run("empty board scores minus komi", func(t *testing.T) {
		p := NewPosition(9, 7.5)
		require.Equal(t, -7.5, p.Score(), "empty regions touch no color and count for nobody")
	})

	t.Run("whole board controlled by one color", func(t *testing.T) {
		p := NewPosition(5, 7.5)
		p = place(t, p, Black, 2, 2)

		require.Equal(t, 25-7.5, p.Score(), "a lone black stone owns every empty region")
	})

	t.Run("divided board", func(t *testing.T) {
		// A black wall on column 1 and a white wall on column 3 split
		// the 5x5 board: black owns columns 0-1, white owns 3-4 and the
		// middle column touches both.
		p := NewPosition(5, 7.5)
		for y := 0; y < 5; y++ {
			p = place(t, p, Black, 1, y)
			p = place(t, p, White, 3, y)
		}

		require.Equal(t, float64(10-10)-7.5, p.Score())
		require.Equal(t, "W+7.5", p.Result())
	})

	t.Run("captures shift territory", func(t *testing.T) {
		p := NewPosition(5, 0)
		for y := 0; y < 5; y++ {
			p = place(t, p, Black, 1, y)
			p = place(t, p, White, 3, y)
		}
		// Black pokes a living stone into white's area; with komi 0 the
		// middle column is still neutral.
		p = place(t, p, Black, 4, 2)

		// White's side no longer counts as territory: the right region
		// touches both colors now.
		require.Greater(t, p.Score(), 0.0)
		require.Contains(t, p.Result(), "B+")
	})

	t.Run("draw formats as zero", func(t *testing.T) {
		p := NewPosition(5, 0)
		for y := 0; y < 5; y++ {
			p = place(t, p, Black, 1, y)
			p = place(t, p, White, 3, y)
		}
		require.Equal(t, "0", p.Result())
	})
}
