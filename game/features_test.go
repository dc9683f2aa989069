package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatures(t *testing.T) {
	plane := func(f []float32, i, area int) []float32 {
		return f[i*area : (i+1)*area]
	}

	t.Run("encoding stones from the mover's perspective", func(t *testing.T) {
		p := NewPosition(5, 7.5)
		p = place(t, p, Black, 2, 2)
		p = place(t, p, White, 3, 3)
		require.Equal(t, Black, p.ToMove())

		f := p.Features()
		require.Len(t, f, NumPlanes*25)

		require.Equal(t, float32(1), plane(f, 1, 25)[VertexAt(2, 2, 5)], "own stone")
		require.Equal(t, float32(0), plane(f, 1, 25)[VertexAt(3, 3, 5)])
		require.Equal(t, float32(1), plane(f, 2, 25)[VertexAt(3, 3, 5)], "opponent stone")

		// The same position seen by white swaps the stone planes.
		g := p.WithToMove(White).Features()
		require.Equal(t, float32(1), plane(g, 1, 25)[VertexAt(3, 3, 5)])
		require.Equal(t, float32(1), plane(g, 2, 25)[VertexAt(2, 2, 5)])
	})

	t.Run("ones and side-to-move planes", func(t *testing.T) {
		p := NewPosition(3, 7.5)
		f := p.Features()

		for i := 0; i < 9; i++ {
			require.Equal(t, float32(1), plane(f, 0, 9)[i], "plane 0 is all ones")
			require.Equal(t, float32(1), plane(f, 16, 9)[i], "black to move")
		}

		g := p.WithToMove(White).Features()
		for i := 0; i < 9; i++ {
			require.Equal(t, float32(0), plane(g, 16, 9)[i], "white to move")
		}
	})

	t.Run("recent move planes", func(t *testing.T) {
		p := NewPosition(5, 7.5)
		p = place(t, p, Black, 1, 1)
		p = place(t, p, White, 3, 3)

		f := p.Features()
		require.Equal(t, float32(1), plane(f, 3, 25)[VertexAt(3, 3, 5)], "newest move first")
		require.Equal(t, float32(1), plane(f, 4, 25)[VertexAt(1, 1, 5)])
	})

	t.Run("liberty planes cap at three", func(t *testing.T) {
		p := NewPosition(5, 7.5)
		p = place(t, p, Black, 2, 2) // four liberties

		f := p.Features()
		v := VertexAt(2, 2, 5)
		require.Equal(t, float32(1), plane(f, 9, 25)[v])
		require.Equal(t, float32(1), plane(f, 10, 25)[v])
		require.Equal(t, float32(1), plane(f, 11, 25)[v])

		// A corner stone with a single liberty lights only the first
		// opponent liberty plane for the other side.
		p = place(t, p, White, 0, 0)
		p = place(t, p, Black, 1, 0)
		p = p.WithToMove(Black)
		f = p.Features()
		w := VertexAt(0, 0, 5)
		require.Equal(t, float32(1), plane(f, 12, 25)[w])
		require.Equal(t, float32(0), plane(f, 13, 25)[w])
	})

	t.Run("forbidden vertices plane marks suicide points", func(t *testing.T) {
		p := NewPosition(5, 7.5)
		p = place(t, p, Black, 1, 0)
		p = place(t, p, Black, 0, 1)
		p = place(t, p, Black, 1, 1)
		p = p.WithToMove(White)

		f := p.Features()
		require.Equal(t, float32(1), plane(f, 15, 25)[VertexAt(0, 0, 5)], "corner is suicide for white")
		require.Equal(t, float32(0), plane(f, 15, 25)[VertexAt(4, 4, 5)])
	})

	t.Run("identical positions encode identically", func(t *testing.T) {
		p := NewPosition(5, 7.5)
		p = place(t, p, Black, 2, 2)
		p = place(t, p, White, 1, 1)

		require.Equal(t, p.Features(), p.Features())
	})
}
