// Package bench builds engine benchmark suites from a labeled dataset.
package bench

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/encrustant/datatools/internal/dataset"
	"github.com/encrustant/datatools/internal/engine"
)

// Entry pairs a position with the depth it should be searched to.
type Entry struct {
	FEN   string
	Depth int
}

// String renders the entry as one benchmark-list literal.
func (e Entry) String() string {
	return fmt.Sprintf(`("%s", %d),`, e.FEN, e.Depth)
}

// Generate samples count distinct dataset lines without replacement and
// pairs each position with an independent uniform depth in [low, high].
// It fails before producing anything if the file has too few lines.
func Generate(lines []string, count, low, high int, rnd *rand.Rand) ([]Entry, error) {
	if low > high {
		return nil, fmt.Errorf("bench: depth range [%d, %d] is empty", low, high)
	}
	picked, err := dataset.Sample(lines, count, rnd)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(picked))
	for _, line := range picked {
		fen, err := dataset.Position(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			FEN:   fen,
			Depth: low + rnd.Intn(high-low+1),
		})
	}
	return entries, nil
}

// Write emits one literal per entry, ready for inclusion in a bench list.
func Write(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			return err
		}
	}
	return nil
}

// Searcher is the slice of an engine session the runner needs.
type Searcher interface {
	SearchDepth(ctx context.Context, fen string, depth int) (engine.Result, error)
}

// Stats summarizes one suite run.
type Stats struct {
	Positions int
	Nodes     int64
	Elapsed   time.Duration
}

// KNPS is the search speed in kilonodes per second.
func (s Stats) KNPS() int64 {
	ms := s.Elapsed.Milliseconds()
	if ms == 0 {
		return 0
	}
	return s.Nodes / ms
}

// Run searches every entry to its depth through eng and totals the work.
func Run(ctx context.Context, eng Searcher, entries []Entry) (Stats, error) {
	start := time.Now()
	var stats Stats
	for _, e := range entries {
		res, err := eng.SearchDepth(ctx, e.FEN, e.Depth)
		if err != nil {
			return Stats{}, fmt.Errorf("bench %q depth %d: %w", e.FEN, e.Depth, err)
		}
		stats.Positions++
		stats.Nodes += res.Nodes
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}
