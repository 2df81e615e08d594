// Package bookgen builds opening books by solving every position up to a
// given number of moves.
package bookgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/connect4/book"
	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/solver"
	"github.com/domino14/connect4/stats"
)

const insertBatchSize = 256

var ErrBadRoot = errors.New("invalid root sequence")

type Options struct {
	// Depth is the largest number of moves of a book position.
	Depth int
	// Root is the move sequence the enumeration starts from.
	Root string
	// StagingDB is the sqlite file for intermediate results; empty means
	// in memory.
	StagingDB string
	Threads   int
}

// Report summarizes a generation run.
type Report struct {
	Header     book.Header
	Enumerated int
	Reused     int
	Solved     int
	Written    int
	Nodes      stats.Statistic
}

type result struct {
	key3  uint64
	moves int
	score int
	nodes uint64
}

// OptionsFromConfig fills the staging path and thread count from cfg.
func OptionsFromConfig(cfg *config.Config, depth int, root string) Options {
	return Options{
		Depth:     depth,
		Root:      root,
		StagingDB: cfg.GetString(config.ConfigStagingDB),
		Threads:   max(cfg.GetInt(config.ConfigThreads), 1),
	}
}

// enumerate returns one position per Key3 reachable from root with at most
// depth moves. Finished games and positions with an immediate win are left
// out since the solver never consults the book for them.
func enumerate(root *position.Position, depth int) []position.Position {
	seen := map[uint64]bool{}
	var out []position.Position
	var walk func(p *position.Position)
	walk = func(p *position.Position) {
		if p.CanWinNext() {
			return
		}
		k := p.Key3()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, *p)
		if p.NbMoves() >= depth {
			return
		}
		for col := 0; col < position.Width; col++ {
			if !p.CanPlay(col) {
				continue
			}
			child := *p
			child.PlayCol(col)
			walk(&child)
		}
	}
	walk(root)
	return out
}

// Generate solves every position within opts.Depth moves of the root and
// writes the book to w.
func Generate(ctx context.Context, cfg *config.Config, opts Options, w io.Writer) (*Report, error) {
	if opts.Depth < 0 || opts.Depth > book.MaxDepth {
		return nil, fmt.Errorf("depth %d out of range 0-%d", opts.Depth, book.MaxDepth)
	}
	root := position.New()
	if root.PlaySequence(opts.Root) != len(opts.Root) {
		return nil, fmt.Errorf("%w: %q", ErrBadRoot, opts.Root)
	}
	if root.NbMoves() > opts.Depth {
		return nil, fmt.Errorf("%w: root has more than %d moves", ErrBadRoot, opts.Depth)
	}

	store, err := openStaging(ctx, opts.StagingDB)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	report := &Report{}
	positions := enumerate(root, opts.Depth)
	report.Enumerated = len(positions)
	done, err := store.solvedKeys(ctx)
	if err != nil {
		return nil, err
	}
	todo := slices.DeleteFunc(positions, func(p position.Position) bool {
		return done[p.Key3()]
	})
	report.Reused = report.Enumerated - len(todo)
	// deepest first: they are the cheapest and an interrupted run keeps
	// the most results.
	slices.SortStableFunc(todo, func(a, b position.Position) int {
		return b.NbMoves() - a.NbMoves()
	})
	log.Info().Int("enumerated", report.Enumerated).Int("reused", report.Reused).
		Int("to-solve", len(todo)).Int("depth", opts.Depth).Msg("book-generation-start")

	if err := solveAll(ctx, cfg, opts.Threads, todo, store, report); err != nil {
		return report, err
	}

	entries, err := store.entries(ctx, opts.Depth)
	if err != nil {
		return report, err
	}
	h, written, err := book.Write(w, opts.Depth, entries)
	if err != nil {
		return report, err
	}
	report.Header = h
	report.Written = written
	log.Info().Int("entries", written).Int("log-size", h.LogSize).
		Int("partial-key-bytes", h.PartialKeyBytes).Msg("book-written")
	return report, nil
}

func solveAll(ctx context.Context, cfg *config.Config, threads int,
	todo []position.Position, store *stagingStore, report *Report) error {

	threads = max(threads, 1)
	solvers := make(chan *solver.Solver, threads)
	for i := 0; i < threads; i++ {
		s, err := solver.NewFromConfig(cfg)
		if err != nil {
			return err
		}
		// a book being built must not consult an older one.
		s.SetBook(nil)
		s.SetNodeLimit(0)
		s.SetTimeout(0)
		solvers <- s
	}

	results := make(chan result, insertBatchSize)
	g, gctx := errgroup.WithContext(ctx)

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- writeResults(ctx, store, results, report)
	}()

	g.SetLimit(threads)
	for i := range todo {
		p := &todo[i]
		g.Go(func() error {
			s := <-solvers
			defer func() { solvers <- s }()
			before := s.NodeCount()
			score, err := s.SolveContext(gctx, p, false)
			if err != nil {
				return err
			}
			nodes := s.NodeCount() - before
			select {
			case results <- result{key3: p.Key3(), moves: p.NbMoves(), score: score, nodes: nodes}:
			case <-gctx.Done():
				return gctx.Err()
			}
			log.Debug().Int("moves", p.NbMoves()).Int("score", score).
				Uint64("nodes", nodes).Msg("solved-book-position")
			return nil
		})
	}
	solveErr := g.Wait()
	close(results)
	if err := <-writerDone; err != nil {
		return err
	}
	return solveErr
}

// writeResults drains results into the store in batches.
func writeResults(ctx context.Context, store *stagingStore, results <-chan result, report *Report) error {
	batch := make([]result, 0, insertBatchSize)
	lastLog := time.Now()
	var err error
	flush := func() {
		if err != nil || len(batch) == 0 {
			return
		}
		err = store.insert(ctx, batch)
		batch = batch[:0]
	}
	for r := range results {
		batch = append(batch, r)
		report.Solved++
		report.Nodes.Push(float64(r.nodes))
		if len(batch) == insertBatchSize {
			flush()
		}
		if time.Since(lastLog) > 10*time.Second {
			log.Info().Int("solved", report.Solved).Int("moves", r.moves).Msg("book-generation-progress")
			lastLog = time.Now()
		}
	}
	flush()
	return err
}
