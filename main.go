package main

import (
	"flag"
	"os"
	"time"

	"tengen/gtp"
	"tengen/nn"
	"tengen/searcher"
	"tengen/selfplay"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	engineName    = "tengen"
	engineVersion = "0.1.0"
)

func main() {
	mode := flag.String("mode", "gtp", "Run mode: gtp or selfplay")
	model := flag.String("model", "", "Path to .onnx weights; empty plays with a uniform policy")
	ortlib := flag.String("ortlib", "", "Path to the onnxruntime shared library")
	size := flag.Int("size", 19, "Board size the model was trained for")
	komi := flag.Float64("komi", 7.5, "Komi for selfplay games")
	playouts := flag.Int("playouts", 1600, "Playouts per move; 0 searches by time instead")
	searchTime := flag.Duration("time", 0, "Search time per move when playouts is 0")
	goroutines := flag.Int("goroutines", 4, "Concurrent search goroutines")
	batch := flag.Int("batch", 16, "Evaluation batch size")
	cache := flag.Int("cache", 100000, "Evaluation cache entries; 0 disables the cache")
	resign := flag.Float64("resign", -0.95, "Resign threshold in (-1, 0); 0 disables resignation")
	games := flag.Int("games", 1, "Number of selfplay games")
	dir := flag.String("dir", "selfplay", "Selfplay output directory")
	seed := flag.Uint64("seed", 1, "Search RNG seed")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	// stdout belongs to the GTP protocol; every log line goes to stderr.
	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).Level(level)

	if *playouts <= 0 && *searchTime <= 0 {
		log.Error().Msg("need a search budget: -playouts or -time")
		os.Exit(2)
	}

	evaluator, cleanup, err := buildEvaluator(*model, *ortlib, *size, *batch, *cache)
	if err != nil {
		log.Error().Err(err).Msg("evaluator setup failed")
		os.Exit(1)
	}
	defer cleanup()

	switch *mode {
	case "gtp":
		options := []searcher.Option{
			searcher.WithGoroutines(*goroutines),
			searcher.WithResignThreshold(*resign),
			searcher.WithSeed(*seed),
			searcher.WithMetrics(),
		}
		if *playouts > 0 {
			options = append(options, searcher.WithPlayouts(*playouts))
		} else {
			options = append(options, searcher.WithDuration(*searchTime))
		}
		m := searcher.NewMCTS(evaluator, options...)

		handler := gtp.New(engineName, engineVersion, m)
		if err := handler.Run(os.Stdin, os.Stdout); err != nil {
			log.Error().Err(err).Msg("gtp loop failed")
			os.Exit(1)
		}

	case "selfplay":
		driver := selfplay.New(evaluator, selfplay.Config{
			Games:      *games,
			Size:       *size,
			Komi:       *komi,
			Playouts:   *playouts,
			Goroutines: *goroutines,
			Resign:     *resign,
			Seed:       *seed,
			Dir:        *dir,
		})
		if err := driver.Run(); err != nil {
			log.Error().Err(err).Msg("selfplay failed")
			os.Exit(1)
		}

	default:
		log.Error().Str("mode", *mode).Msg("unknown mode")
		os.Exit(2)
	}
}

// buildEvaluator wires the evaluation stack: the onnxruntime backend
// behind a batching, caching front, or the uniform stub when no
// weights were given.
func buildEvaluator(model, ortlib string, size, batch, cacheSize int) (nn.Evaluator, func(), error) {
	if model == "" {
		log.Warn().Msg("no weights given; playing with a uniform policy")
		return nn.Uniform{}, func() {}, nil
	}

	backend, err := nn.NewORTBackend(model, ortlib, size, batch)
	if err != nil {
		return nil, nil, err
	}

	var cache *nn.Cache
	if cacheSize > 0 {
		cache = nn.NewCache(cacheSize)
	}
	batcher := nn.NewBatcher(backend, size, cache)
	return batcher, batcher.Close, nil
}
