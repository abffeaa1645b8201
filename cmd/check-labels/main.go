package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/encrustant/datatools/internal/check"
	"github.com/encrustant/datatools/internal/logx"
)

func main() {
	var (
		enginePath = flag.String("engine", "./stockfish", "Path to UCI engine binary")
		samples    = flag.Int("samples", check.DefaultSamples, "Positions to evaluate per dataset")
		nodes      = flag.Int("nodes", check.DefaultNodes, "Search-node budget per position")
		hashMB     = flag.Int("hash", check.DefaultHashMB, "Engine hash table size (MB)")
		threads    = flag.Int("threads", check.DefaultThreads, "Engine threads")
		seed       = flag.Int64("seed", 0, "Random seed (0 = time-derived)")
	)
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: check-labels [options] <dataset[.zst]> [dataset ...]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger(os.Stderr)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := check.Config{
		EnginePath: *enginePath,
		Samples:    *samples,
		Nodes:      *nodes,
		HashMB:     *hashMB,
		Threads:    *threads,
		Seed:       *seed,
		Logger:     logger,
	}

	results := check.Run(ctx, cfg, paths)

	failed := false
	for _, r := range results {
		if r.Err != nil {
			failed = true
			logger.Error().Err(r.Err).Str("dataset", r.Path).Msg("check failed")
			continue
		}
		fmt.Printf("Error in %s: %v\n", r.Path, r.MSE)
	}
	if failed {
		os.Exit(1)
	}
}
