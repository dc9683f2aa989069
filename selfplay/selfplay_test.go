package selfplay

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tengen/game"
	"tengen/nn"

	"github.com/stretchr/testify/require"
)

func TestSGF(t *testing.T) {
	t.Run("rendering a short game", func(t *testing.T) {
		moves := []play{
			{color: game.Black, move: game.VertexAt(2, 2, 5)},
			{color: game.White, move: game.VertexAt(0, 4, 5)},
			{color: game.Black, move: game.Pass},
		}

		sgf := sgfDocument(5, 7.5, moves, "B+10.5")

		require.Equal(t,
			"(;GM[1]FF[4]CA[UTF-8]SZ[5]KM[7.5]RE[B+10.5]PB[tengen]PW[tengen];B[cc];W[aa];B[])\n",
			sgf)
	})

	t.Run("point encoding flips the row", func(t *testing.T) {
		require.Equal(t, "as", sgfPoint(game.VertexAt(0, 0, 19), 19), "bottom left corner")
		require.Equal(t, "aa", sgfPoint(game.VertexAt(0, 18, 19), 19), "top left corner")
		require.Equal(t, "", sgfPoint(game.Pass, 19))
	})
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	d := New(nn.Uniform{}, Config{
		Games:    2,
		Size:     5,
		Komi:     7.5,
		Playouts: 4,
		MaxMoves: 12,
		Seed:     1,
		Dir:      dir,
	})

	require.NoError(t, d.Run())

	f, err := os.Open(filepath.Join(dir, "summary.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per game")
	require.Equal(t, []string{"id", "result", "moves", "playouts", "duration", "sgf"}, rows[0])

	for _, row := range rows[1:] {
		require.NotEmpty(t, row[0], "game id")
		require.True(t,
			strings.HasPrefix(row[1], "B+") || strings.HasPrefix(row[1], "W+") || row[1] == "0",
			"result %q", row[1])

		sgf, err := os.ReadFile(row[5])
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(sgf), "(;GM[1]FF[4]"))
		require.Contains(t, string(sgf), "SZ[5]")
	}
}
