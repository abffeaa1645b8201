// Package check scores stored dataset labels against an engine's judgment.
//
// For each dataset file it shuffles the lines, searches a prefix of them to
// a fixed node budget, converts every evaluation to a white-perspective
// win/draw/loss probability, and reports the mean squared error against the
// stored labels.
package check

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/encrustant/datatools/internal/dataset"
	"github.com/encrustant/datatools/internal/engine"
)

const (
	// DefaultSamples is the per-file evaluation budget.
	DefaultSamples = 500
	// DefaultNodes is the fixed search-node budget per position. The
	// reported error is only comparable across runs when this matches.
	DefaultNodes = 150_000
	// DefaultHashMB and DefaultThreads are per-session engine tuning.
	DefaultHashMB  = 3000
	DefaultThreads = 4

	// probScale converts centipawns to an expected score. Fixed.
	probScale = 400.0
)

// Session is the slice of an engine session the checker needs. The real
// implementation is *engine.Engine; tests substitute a scripted one.
type Session interface {
	Configure(engine.Options) error
	SearchNodes(ctx context.Context, fen string, nodes int) (engine.Result, error)
	Close() error
}

// Config configures a checker run.
type Config struct {
	EnginePath string
	Samples    int
	Nodes      int
	HashMB     int
	Threads    int
	Seed       int64
	Logger     zerolog.Logger
	// Progress receives one running-MSE line per evaluated position.
	// Defaults to os.Stdout.
	Progress io.Writer
	// StartSession starts one engine session; defaults to launching the
	// EnginePath binary.
	StartSession func(path string) (Session, error)
}

func (c *Config) applyDefaults() {
	if c.Samples <= 0 {
		c.Samples = DefaultSamples
	}
	if c.Nodes <= 0 {
		c.Nodes = DefaultNodes
	}
	if c.HashMB <= 0 {
		c.HashMB = DefaultHashMB
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.Progress == nil {
		c.Progress = os.Stdout
	}
	if c.StartSession == nil {
		c.StartSession = func(path string) (Session, error) {
			return engine.New(path)
		}
	}
}

// Result is the outcome of one file's task.
type Result struct {
	Path    string
	Samples int
	MSE     float64
	Err     error
}

// Run launches one independent task per dataset file and waits for all of
// them. Tasks share no state; a failing file does not cancel its siblings.
func Run(ctx context.Context, cfg Config, paths []string) []Result {
	cfg.applyDefaults()

	results := make([]Result, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		i, path := i, path
		// Independent generator per task; rand.Rand is not safe for
		// concurrent use.
		rnd := rand.New(rand.NewSource(cfg.Seed + int64(i)))
		g.Go(func() error {
			res, err := checkFile(ctx, cfg, path, rnd)
			res.Path = path
			res.Err = err
			results[i] = res
			return err
		})
	}
	_ = g.Wait()
	return results
}

// checkFile runs the whole per-file procedure: one engine session, full
// shuffle, prefix evaluation, running aggregate.
func checkFile(ctx context.Context, cfg Config, path string, rnd *rand.Rand) (Result, error) {
	log := cfg.Logger.With().Str("dataset", path).Logger()

	eng, err := cfg.StartSession(cfg.EnginePath)
	if err != nil {
		return Result{}, fmt.Errorf("start engine: %w", err)
	}
	defer eng.Close()

	if err := eng.Configure(engine.Options{HashMB: cfg.HashMB, Threads: cfg.Threads}); err != nil {
		return Result{}, fmt.Errorf("configure engine: %w", err)
	}

	lines, err := dataset.Load(path)
	if err != nil {
		return Result{}, err
	}
	if len(lines) == 0 {
		return Result{}, fmt.Errorf("dataset %s is empty", path)
	}
	dataset.Shuffle(lines, rnd)
	n := cfg.Samples
	if n > len(lines) {
		n = len(lines)
	}
	log.Info().Int("lines", len(lines)).Int("samples", n).Msg("checking labels")

	var sumSq float64
	count := 0
	for _, line := range lines[:n] {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		entry, err := dataset.ParseLine(line)
		if err != nil {
			return Result{}, err
		}
		fenOpt, err := chess.FEN(entry.FEN)
		if err != nil {
			return Result{}, fmt.Errorf("parse position %q: %w", entry.FEN, err)
		}
		game := chess.NewGame(fenOpt)

		res, err := eng.SearchNodes(ctx, entry.FEN, cfg.Nodes)
		if err != nil {
			return Result{}, err
		}

		// Engine scores are from the side to move; the stored label is
		// always from the white-piece perspective.
		score := res.Score
		if game.Position().Turn() == chess.Black {
			score.CP = -score.CP
			score.Mate = -score.Mate
		}

		p := Probability(score)
		d := entry.Label - p
		sumSq += d * d
		count++
		fmt.Fprintf(cfg.Progress, "%s Mean Squared Error: %.5f\n", path, sumSq/float64(count))
	}

	return Result{Samples: count, MSE: sumSq / float64(count)}, nil
}

// Probability converts a white-perspective evaluation to an expected score
// for white. Forced mates get no partial credit for distance.
func Probability(s engine.Score) float64 {
	if s.IsMate {
		if s.Mate > 0 {
			return 1.0
		}
		return 0.0
	}
	return 1.0 / (1.0 + math.Exp(-float64(s.CP)/probScale))
}
