package gtp

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"tengen/game"
	"tengen/nn"
	"tengen/searcher"

	"github.com/stretchr/testify/require"
)

// scriptedSearcher answers every Search with a fixed result.
type scriptedSearcher struct {
	result   searcher.Result
	err      error
	resets   int
	advances []game.Vertex
}

func (s *scriptedSearcher) Search(*game.Position) (searcher.Result, error) {
	return s.result, s.err
}

func (s *scriptedSearcher) Advance(mv game.Vertex, _ *game.Position) {
	s.advances = append(s.advances, mv)
}

func (s *scriptedSearcher) Reset() { s.resets++ }

// run feeds the commands to a handler and returns its response blocks.
func run(t *testing.T, h *Handler, commands ...string) []string {
	t.Helper()
	var out bytes.Buffer
	err := h.Run(strings.NewReader(strings.Join(commands, "\n")+"\n"), &out)
	require.NoError(t, err)

	blocks := strings.Split(out.String(), "\n\n")
	require.Equal(t, "", blocks[len(blocks)-1], "responses end with a blank line")
	return blocks[:len(blocks)-1]
}

func TestRun(t *testing.T) {
	t.Run("administrative commands", func(t *testing.T) {
		h := New("tengen", "0.1", &scriptedSearcher{})
		blocks := run(t, h,
			"protocol_version",
			"1 name",
			"version",
			"known_command play",
			"known_command frobnicate",
			"telepathy",
			"# just a comment",
			"",
		)

		require.Equal(t, []string{
			"= 2",
			"=1 tengen",
			"= 0.1",
			"= true",
			"= false",
			"? unknown command",
		}, blocks)
	})

	t.Run("list_commands names every command", func(t *testing.T) {
		h := New("tengen", "0.1", &scriptedSearcher{})
		blocks := run(t, h, "list_commands")

		for _, name := range []string{"quit", "genmove", "boardsize", "final_score"} {
			require.Contains(t, blocks[0], name)
		}
	})

	t.Run("board commands require boardsize first", func(t *testing.T) {
		h := New("tengen", "0.1", &scriptedSearcher{})
		blocks := run(t, h, "genmove b", "showboard", "boardsize 5", "showboard")

		require.Equal(t, "? board not initialized", blocks[0])
		require.Equal(t, "? board not initialized", blocks[1])
		require.Equal(t, "=", blocks[2])
		require.True(t, strings.HasPrefix(blocks[3], "= "), "showboard works once sized")
	})

	t.Run("rejecting bad sizes", func(t *testing.T) {
		h := New("tengen", "0.1", &scriptedSearcher{})
		blocks := run(t, h, "boardsize 1", "boardsize 20", "boardsize many")

		for _, b := range blocks {
			require.Equal(t, "? unacceptable size", b)
		}
	})

	t.Run("playing and scoring a tiny game", func(t *testing.T) {
		s := &scriptedSearcher{}
		h := New("tengen", "0.1", s)
		blocks := run(t, h,
			"boardsize 5",
			"komi 7.5",
			"play b C3",
			"play w pass",
			"play b pass",
			"final_score",
		)

		require.Equal(t, []string{"=", "=", "=", "=", "=", "= B+17.5"}, blocks,
			"a lone black stone owns the 25 points minus komi")
		require.Equal(t, []game.Vertex{game.VertexAt(2, 2, 5), game.Pass, game.Pass}, s.advances)
	})

	t.Run("illegal play keeps the board", func(t *testing.T) {
		h := New("tengen", "0.1", &scriptedSearcher{})
		blocks := run(t, h,
			"boardsize 5",
			"play b C3",
			"play w C3",
			"undo",
			"undo",
		)

		require.Equal(t, "? illegal move", blocks[2])
		require.Equal(t, "=", blocks[3], "one move to undo")
		require.Equal(t, "? cannot undo", blocks[4])
	})

	t.Run("undo keeps the current komi", func(t *testing.T) {
		h := New("tengen", "0.1", &scriptedSearcher{})
		blocks := run(t, h,
			"boardsize 5",
			"play b C3",
			"komi 0.5",
			"undo",
			"final_score",
		)

		require.Equal(t, "= W+0.5", blocks[4],
			"the restored empty board scores with the komi set after the move")
	})

	t.Run("set_position replaces the board atomically", func(t *testing.T) {
		h := New("tengen", "0.1", &scriptedSearcher{})
		blocks := run(t, h,
			"boardsize 5",
			"play b A1",
			"set_position b C3 w D4",
			"set_position b C3 b C3",
			"final_score",
		)

		require.Equal(t, "=", blocks[2])
		require.Equal(t, "? illegal move b C3", blocks[3])
		// The failed set_position left the C3/D4 arrangement in place:
		// one stone each, neutral territory, so komi decides.
		require.Equal(t, "= W+7.5", blocks[4])
	})

	t.Run("genmove plays the searched move", func(t *testing.T) {
		s := &scriptedSearcher{result: searcher.Result{Move: game.VertexAt(3, 3, 5)}}
		h := New("tengen", "0.1", s)
		blocks := run(t, h, "boardsize 5", "genmove b", "genmove b")

		require.Equal(t, "= D4", blocks[1])
		require.Contains(t, blocks[2], "?", "D4 is occupied the second time")
		require.Equal(t, []game.Vertex{game.VertexAt(3, 3, 5)}, s.advances)
	})

	t.Run("reg_genmove leaves the board untouched", func(t *testing.T) {
		s := &scriptedSearcher{result: searcher.Result{Move: game.VertexAt(3, 3, 5)}}
		h := New("tengen", "0.1", s)
		blocks := run(t, h, "boardsize 5", "reg_genmove b", "reg_genmove b")

		require.Equal(t, "= D4", blocks[1])
		require.Equal(t, "= D4", blocks[2], "the move was never played")
		require.Empty(t, s.advances)
	})

	t.Run("resignation is reported, not played", func(t *testing.T) {
		s := &scriptedSearcher{result: searcher.Result{Move: game.Pass, Resign: true}}
		h := New("tengen", "0.1", s)
		blocks := run(t, h, "boardsize 5", "genmove b", "showboard")

		require.Equal(t, "= resign", blocks[1])
		require.Empty(t, s.advances)
	})

	t.Run("genmove after the game ended passes", func(t *testing.T) {
		s := &scriptedSearcher{result: searcher.Result{Move: game.VertexAt(0, 0, 5)}}
		h := New("tengen", "0.1", s)
		blocks := run(t, h,
			"boardsize 5",
			"play b pass",
			"play w pass",
			"genmove b",
		)

		require.Equal(t, "= pass", blocks[3])
	})

	t.Run("quit ends the loop cleanly", func(t *testing.T) {
		h := New("tengen", "0.1", &scriptedSearcher{})
		var out bytes.Buffer
		err := h.Run(strings.NewReader("quit\nname\n"), &out)

		require.NoError(t, err)
		require.Equal(t, "=\n\n", out.String(), "nothing after quit is answered")
	})

	t.Run("evaluator failure aborts the loop", func(t *testing.T) {
		s := &scriptedSearcher{err: fmt.Errorf("search: %w", nn.ErrEvaluatorFailed)}
		h := New("tengen", "0.1", s)
		var out bytes.Buffer
		err := h.Run(strings.NewReader("boardsize 5\ngenmove b\nname\n"), &out)

		require.ErrorIs(t, err, nn.ErrEvaluatorFailed)
		require.NotContains(t, out.String(), "tengen", "loop stopped before the next command")
	})
}

func TestRunWithEngine(t *testing.T) {
	t.Run("full exchange against a real searcher", func(t *testing.T) {
		m := searcher.NewMCTS(nn.Uniform{}, searcher.WithPlayouts(20))
		h := New("tengen", "0.1", m)
		blocks := run(t, h,
			"boardsize 5",
			"komi 7.5",
			"genmove b",
			"genmove w",
			"undo",
			"showboard",
		)

		for i, b := range blocks {
			require.True(t, strings.HasPrefix(b, "="), "command %d failed: %s", i, b)
		}

		mv, err := game.ParseVertex(strings.TrimPrefix(blocks[2], "= "), 5)
		require.NoError(t, err)
		require.NotEqual(t, game.NoVertex, mv)
	})
}
