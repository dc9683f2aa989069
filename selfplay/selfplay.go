// Package selfplay runs engine-vs-engine games and writes the results
// as SGF files plus a CSV summary, one line per game.
package selfplay

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tengen/game"
	"tengen/nn"
	"tengen/searcher"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config tunes one self-play run. Zero fields fall back to the
// defaults below.
type Config struct {
	Games      int
	Size       int
	Komi       float64
	Playouts   int
	Goroutines int
	MaxMoves   int // safety cutoff per game
	Resign     float64
	Seed       uint64
	Dir        string
}

type Driver struct {
	config    Config
	evaluator nn.Evaluator
}

func New(evaluator nn.Evaluator, config Config) *Driver {
	if config.Games <= 0 {
		config.Games = 1
	}
	if config.Size <= 0 {
		config.Size = 19
	}
	if config.Komi == 0 {
		config.Komi = 7.5
	}
	if config.Playouts <= 0 {
		config.Playouts = 400
	}
	if config.Goroutines <= 0 {
		config.Goroutines = 1
	}
	if config.MaxMoves <= 0 {
		config.MaxMoves = 2 * config.Size * config.Size
	}
	if config.Dir == "" {
		config.Dir = "selfplay"
	}
	return &Driver{config: config, evaluator: evaluator}
}

// play is one move of a finished game.
type play struct {
	color game.Color
	move  game.Vertex
}

// record summarizes one finished game for the CSV output.
type record struct {
	ID       string
	Result   string
	Moves    int
	Playouts int64
	Duration time.Duration
	File     string
}

// Run plays the configured number of games sharing one evaluator and
// writes every game record under the output directory. The first
// fatal error (a failed evaluator) stops the run.
func (d *Driver) Run() error {
	if err := os.MkdirAll(d.config.Dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	records := make([]record, 0, d.config.Games)
	for i := 0; i < d.config.Games; i++ {
		rec, err := d.playGame(i)
		if err != nil {
			return fmt.Errorf("game %d: %w", i, err)
		}
		log.Info().
			Str("game", rec.ID).
			Str("result", rec.Result).
			Int("moves", rec.Moves).
			Int64("playouts", rec.Playouts).
			Dur("elapsed", rec.Duration).
			Msg("game finished")
		records = append(records, rec)
	}

	return writeSummary(filepath.Join(d.config.Dir, "summary.csv"), records)
}

func (d *Driver) playGame(index int) (record, error) {
	start := time.Now()
	id := uuid.NewString()

	// Both sides get their own tree but share the evaluator. Root
	// noise keeps the games from repeating under a fixed seed.
	options := func(seed uint64) []searcher.Option {
		return []searcher.Option{
			searcher.WithPlayouts(d.config.Playouts),
			searcher.WithGoroutines(d.config.Goroutines),
			searcher.WithResignThreshold(d.config.Resign),
			searcher.WithRootNoise(0.25, 0.03),
			searcher.WithSeed(seed),
			searcher.WithMetrics(),
		}
	}
	seed := d.config.Seed + uint64(index)*2
	engines := map[game.Color]*searcher.MCTS{
		game.Black: searcher.NewMCTS(d.evaluator, options(seed+1)...),
		game.White: searcher.NewMCTS(d.evaluator, options(seed+2)...),
	}

	pos := game.NewPosition(d.config.Size, d.config.Komi)
	var moves []play
	var playouts int64
	var result string

	for !pos.Finished() && len(moves) < d.config.MaxMoves {
		mover := pos.ToMove()
		searched, err := engines[mover].Search(pos)
		if err != nil {
			return record{}, err
		}
		playouts += searched.Metrics.Playouts

		if searched.Resign {
			if mover == game.Black {
				result = "W+Resign"
			} else {
				result = "B+Resign"
			}
			break
		}

		next, err := pos.Apply(searched.Move)
		if err != nil {
			return record{}, fmt.Errorf("engine played an illegal move: %w", err)
		}
		moves = append(moves, play{color: mover, move: searched.Move})
		engines[game.Black].Advance(searched.Move, next)
		engines[game.White].Advance(searched.Move, next)
		pos = next
	}

	if result == "" {
		result = pos.Result()
	}

	file := filepath.Join(d.config.Dir, id+".sgf")
	sgf := sgfDocument(d.config.Size, d.config.Komi, moves, result)
	if err := os.WriteFile(file, []byte(sgf), 0644); err != nil {
		return record{}, fmt.Errorf("writing sgf: %w", err)
	}

	return record{
		ID:       id,
		Result:   result,
		Moves:    len(moves),
		Playouts: playouts,
		Duration: time.Since(start),
		File:     file,
	}, nil
}
