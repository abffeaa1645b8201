// Package engine drives one external UCI engine process over stdin/stdout.
// The engine stays an out-of-process collaborator: this package only frames
// position/search requests and scrapes the reported score.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Options are process-wide engine tuning parameters, set once after startup.
type Options struct {
	HashMB  int // transposition table size in MB
	Threads int // search threads
}

// Score is an engine evaluation from the side-to-move perspective.
// When IsMate is set, Mate holds a signed forced-mate distance and CP is
// meaningless; otherwise CP holds a centipawn value.
type Score struct {
	CP     int
	Mate   int
	IsMate bool
}

// Result is the outcome of one search.
type Result struct {
	Score    Score
	BestMove string
	Nodes    int64 // nodes reported on the last info line that carried them
	Depth    int   // depth reached on the last scored info line
}

// Engine is one long-lived UCI session. Methods are serialized; a session
// supports one search at a time.
type Engine struct {
	cmd   *exec.Cmd
	in    *bufio.Writer
	out   *bufio.Scanner
	mu    sync.Mutex
	ready bool
}

// New starts the engine binary at path and performs the UCI handshake.
func New(path string) (*Engine, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}

	e := &Engine{
		cmd: cmd,
		in:  bufio.NewWriter(stdin),
		out: bufio.NewScanner(stdout),
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", path, err)
	}

	// Handshake: "uci" -> "uciok", then "isready" -> "readyok".
	if err := e.handshake(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	e.ready = true
	return e, nil
}

func (e *Engine) handshake() error {
	if err := e.send("uci"); err != nil {
		return err
	}
	if err := e.waitFor("uciok"); err != nil {
		return err
	}
	return e.sync()
}

// Configure applies resource options and waits for the engine to settle.
func (e *Engine) Configure(opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return errors.New("engine not ready")
	}
	if opts.HashMB > 0 {
		if err := e.send(fmt.Sprintf("setoption name Hash value %d", opts.HashMB)); err != nil {
			return err
		}
	}
	if opts.Threads > 0 {
		if err := e.send(fmt.Sprintf("setoption name Threads value %d", opts.Threads)); err != nil {
			return err
		}
	}
	return e.sync()
}

// SearchNodes analyses fen with a fixed search-node budget.
func (e *Engine) SearchNodes(ctx context.Context, fen string, nodes int) (Result, error) {
	return e.search(ctx, fen, fmt.Sprintf("go nodes %d", nodes))
}

// SearchDepth analyses fen to a fixed depth.
func (e *Engine) SearchDepth(ctx context.Context, fen string, depth int) (Result, error) {
	return e.search(ctx, fen, fmt.Sprintf("go depth %d", depth))
}

func (e *Engine) search(ctx context.Context, fen, goCmd string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return Result{}, errors.New("engine not ready")
	}
	if err := e.send(fmt.Sprintf("position fen %s", fen)); err != nil {
		return Result{}, err
	}
	if err := e.send(goCmd); err != nil {
		return Result{}, err
	}

	var res Result
	scored := false

	// Read info lines until "bestmove ..." or the context cancels.
	readDone := make(chan error, 1)
	go func() {
		for e.out.Scan() {
			line := e.out.Text()
			switch {
			case strings.HasPrefix(line, "info "):
				if cp, mate, isMate, ok := parseScore(line); ok {
					res.Score = Score{CP: cp, Mate: mate, IsMate: isMate}
					scored = true
					if d, ok := parseIntField(line, "depth"); ok {
						res.Depth = d
					}
				}
				if n, ok := parseIntField(line, "nodes"); ok {
					res.Nodes = int64(n)
				}
			case strings.HasPrefix(line, "bestmove "):
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					res.BestMove = fields[1]
				}
				readDone <- e.out.Err()
				return
			}
		}
		if err := e.out.Err(); err != nil {
			readDone <- err
			return
		}
		readDone <- errors.New("engine closed its output stream")
	}()

	var err error
	select {
	case <-ctx.Done():
		_ = e.send("stop")
		select {
		case err = <-readDone:
		case <-time.After(500 * time.Millisecond):
			// The abandoned reader still owns the scanner; the session
			// cannot serve another search.
			e.ready = false
			err = ctx.Err()
		}
	case err = <-readDone:
	}
	if err != nil {
		return Result{}, fmt.Errorf("search %q: %w", goCmd, err)
	}
	if !scored {
		return Result{}, fmt.Errorf("search %q: no evaluation reported", goCmd)
	}
	return res, nil
}

// Close asks the engine to quit and waits for the process to exit.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.send("quit")
	if e.cmd == nil {
		return nil
	}
	return e.cmd.Wait()
}

func (e *Engine) send(cmd string) error {
	if _, err := fmt.Fprintln(e.in, cmd); err != nil {
		return err
	}
	return e.in.Flush()
}

// sync performs an "isready" -> "readyok" round trip.
func (e *Engine) sync() error {
	if err := e.send("isready"); err != nil {
		return err
	}
	return e.waitFor("readyok")
}

func (e *Engine) waitFor(token string) error {
	for e.out.Scan() {
		if e.out.Text() == token {
			return nil
		}
	}
	if err := e.out.Err(); err != nil {
		return err
	}
	return fmt.Errorf("engine exited before sending %q", token)
}

// parseScore extracts "score cp N" or "score mate N" from an info line.
func parseScore(line string) (cp, mate int, isMate, ok bool) {
	i := strings.Index(line, " score ")
	if i < 0 {
		return 0, 0, false, false
	}
	rest := line[i+1:]
	if strings.HasPrefix(rest, "score cp ") {
		var v int
		if _, err := fmt.Sscanf(rest, "score cp %d", &v); err == nil {
			return v, 0, false, true
		}
	} else if strings.HasPrefix(rest, "score mate ") {
		var v int
		if _, err := fmt.Sscanf(rest, "score mate %d", &v); err == nil {
			return 0, v, true, true
		}
	}
	return 0, 0, false, false
}

// parseIntField extracts a named integer field ("depth 18", "nodes 150000")
// from an info line.
func parseIntField(line, name string) (int, bool) {
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == name {
			var v int
			if _, err := fmt.Sscanf(fields[i+1], "%d", &v); err == nil {
				return v, true
			}
			return 0, false
		}
	}
	return 0, false
}
