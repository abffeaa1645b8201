// Package dataset reads labeled chess position files.
//
// Each line holds a FEN followed by a bracketed win/draw/loss label for the
// side with the white pieces: "rnbq... w KQkq - 0 1 [0.5]". The trailing
// six characters are reserved for the label suffix; everything before them
// is the position description.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// suffixLen is the length of the reserved label suffix " [x.x]" once the
// trailing newline has been stripped.
const suffixLen = 6

// labelLen is the width of the decimal label inside the suffix.
const labelLen = 3

// ErrInsufficientData is returned when a sample is requested that is larger
// than the file it is drawn from.
var ErrInsufficientData = errors.New("dataset: fewer lines than requested")

// Entry is one parsed dataset record.
type Entry struct {
	// FEN describes the position, side to move included.
	FEN string
	// Label is the stored win/draw/loss probability in [0, 1], always from
	// the white-piece perspective.
	Label float64
}

// ParseLine splits a raw dataset line into its position and label.
// Malformed lines (too short, unparseable label, label outside [0, 1])
// return an error rather than an out-of-range slice.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r")
	if len(line) <= suffixLen {
		return Entry{}, fmt.Errorf("dataset: line too short (%d chars): %q", len(line), line)
	}
	label := line[len(line)-labelLen-1 : len(line)-1]
	v, err := strconv.ParseFloat(label, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("dataset: bad label %q: %w", label, err)
	}
	if v < 0 || v > 1 {
		return Entry{}, fmt.Errorf("dataset: label %v outside [0, 1]", v)
	}
	return Entry{
		FEN:   line[:len(line)-suffixLen],
		Label: v,
	}, nil
}

// Position returns only the position description of a raw dataset line.
func Position(line string) (string, error) {
	entry, err := ParseLine(line)
	if err != nil {
		return "", err
	}
	return entry.FEN, nil
}

// Load reads every line of a dataset file into memory. Files ending in
// .zst are decompressed transparently.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return lines, nil
}

// Sample returns n distinct lines chosen uniformly without replacement.
func Sample(lines []string, n int, rnd *rand.Rand) ([]string, error) {
	if n > len(lines) {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientData, len(lines), n)
	}
	perm := rnd.Perm(len(lines))
	picked := make([]string, n)
	for i := 0; i < n; i++ {
		picked[i] = lines[perm[i]]
	}
	return picked, nil
}

// Shuffle permutes lines in place.
func Shuffle(lines []string, rnd *rand.Rand) {
	rnd.Shuffle(len(lines), func(i, j int) {
		lines[i], lines[j] = lines[j], lines[i]
	})
}
