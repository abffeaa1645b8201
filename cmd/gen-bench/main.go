package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/encrustant/datatools/internal/bench"
	"github.com/encrustant/datatools/internal/dataset"
	"github.com/encrustant/datatools/internal/engine"
	"github.com/encrustant/datatools/internal/logx"
)

func main() {
	var (
		filePath   string
		count      int
		low        int
		high       int
		seed       int64
		enginePath string
	)
	flag.StringVar(&filePath, "file", "", "Path to dataset (supports .zst)")
	flag.StringVar(&filePath, "f", "", "Path to dataset (shorthand)")
	flag.IntVar(&count, "count", 0, "Number of positions to take")
	flag.IntVar(&count, "c", 0, "Number of positions to take (shorthand)")
	flag.IntVar(&low, "low", 0, "Minimum depth, inclusive")
	flag.IntVar(&high, "high", 0, "Maximum depth, inclusive")
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 = time-derived)")
	flag.StringVar(&enginePath, "engine", "", "Run the suite through this UCI engine instead of printing it")
	flag.Parse()

	if filePath == "" || count <= 0 || low <= 0 || high <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: gen-bench --file <dataset[.zst]> --count <n> -low <d> -high <d> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger(os.Stderr)

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))

	lines, err := dataset.Load(filePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load dataset")
	}

	entries, err := bench.Generate(lines, count, low, high, rnd)
	if err != nil {
		logger.Fatal().Err(err).Msg("sample dataset")
	}

	if enginePath == "" {
		if err := bench.Write(os.Stdout, entries); err != nil {
			logger.Fatal().Err(err).Msg("write bench list")
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Fatal exits skip defers, so the engine session is closed inside
	// runBench before the failure is reported.
	if err := runBench(ctx, logger, enginePath, entries); err != nil {
		logger.Fatal().Err(err).Msg("bench failed")
	}
}

func runBench(ctx context.Context, logger zerolog.Logger, enginePath string, entries []bench.Entry) error {
	eng, err := engine.New(enginePath)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Close()

	logger.Info().
		Str("engine", enginePath).
		Int("positions", len(entries)).
		Msg("bench started")

	stats, err := bench.Run(ctx, eng, entries)
	if err != nil {
		return err
	}

	fmt.Println("Time", stats.Elapsed)
	fmt.Println("Nodes", stats.Nodes)
	fmt.Println("kNPS", stats.KNPS())
	return nil
}
