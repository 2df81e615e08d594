package solver

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/ttable"
)

// shardsPerThread keeps lock contention low on a shared table.
const shardsPerThread = 4

// Pool analyzes the root moves of a position on several goroutines. Each
// goroutine borrows a Solver of its own; the solvers either have private
// tables or share one sharded table.
type Pool struct {
	solvers []*Solver
	free    chan *Solver
	shared  *ttable.Sharded
}

// NewPool creates a pool of cfg's thread count, sized and configured like
// NewFromConfig.
func NewPool(cfg *config.Config) (*Pool, error) {
	threads := max(cfg.GetInt(config.ConfigThreads), 1)
	logSize := tableLogSize(cfg)

	var shared *ttable.Sharded
	solvers := make([]*Solver, threads)
	if cfg.GetBool(config.ConfigSharedTT) && threads > 1 {
		nshards := threads * shardsPerThread
		// spread roughly the same number of slots over the shards.
		shardLog := max(logSize-2, ttable.MinLogSize)
		var err error
		shared, err = ttable.NewSharded(nshards, shardLog)
		if err != nil {
			return nil, err
		}
		for i := range solvers {
			solvers[i] = New(shared)
			solvers[i].configure(cfg)
		}
	} else {
		for i := range solvers {
			s, err := NewFromConfig(cfg)
			if err != nil {
				return nil, err
			}
			solvers[i] = s
		}
	}
	log.Debug().Int("threads", threads).Bool("shared-tt", shared != nil).Msg("created-solver-pool")
	return NewPoolFromSolvers(solvers...), nil
}

// NewPoolFromSolvers wraps existing solvers. They must not be used
// elsewhere while the pool is analyzing.
func NewPoolFromSolvers(solvers ...*Solver) *Pool {
	pl := &Pool{
		solvers: solvers,
		free:    make(chan *Solver, len(solvers)),
	}
	for _, s := range solvers {
		if sh, ok := s.ttable.(*ttable.Sharded); ok {
			pl.shared = sh
		}
		pl.free <- s
	}
	return pl
}

func (pl *Pool) Size() int {
	return len(pl.solvers)
}

// Solver returns the pool's first solver, for single-threaded calls made
// while no parallel analysis is running.
func (pl *Pool) Solver() *Solver {
	return pl.solvers[0]
}

// NodeCount sums the node counts of all solvers.
func (pl *Pool) NodeCount() uint64 {
	var n uint64
	for _, s := range pl.solvers {
		n += s.NodeCount()
	}
	return n
}

func (pl *Pool) ResetNodeCount() {
	for _, s := range pl.solvers {
		s.ResetNodeCount()
	}
}

// Reset clears every table once and all node counts.
func (pl *Pool) Reset() {
	if pl.shared != nil {
		pl.shared.Reset()
	}
	for _, s := range pl.solvers {
		if s.ttable != ttable.Cache(pl.shared) {
			s.ttable.Reset()
		}
		s.nodes = 0
	}
}

// AnalyzeParallel returns the same scores as Solver.Analyze, evaluating the
// legal columns concurrently. The first error abandons the remaining
// columns, which are left as InvalidMove.
func (pl *Pool) AnalyzeParallel(ctx context.Context, p *position.Position, weak bool) ([]int, error) {
	scores := make([]int, position.Width)
	for col := range scores {
		scores[col] = InvalidMove
	}
	if p.IsEnd() != position.Ongoing {
		return scores, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(pl.solvers))
	for _, col := range MoveOrder(p) {
		col := col
		g.Go(func() error {
			s := <-pl.free
			defer func() { pl.free <- s }()
			cancel := s.begin(gctx)
			defer cancel()
			score, ok, err := s.scoreColumn(p, col, weak)
			if err != nil {
				return err
			}
			if ok {
				scores[col] = score
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return scores, err
	}
	// moves that lose at once are not in the move order and are cheap to
	// score here.
	s := pl.Solver()
	cancel := s.begin(ctx)
	defer cancel()
	for col := range scores {
		if scores[col] != InvalidMove || !p.CanPlay(col) {
			continue
		}
		score, ok, err := s.scoreColumn(p, col, weak)
		if err != nil {
			return scores, err
		}
		if ok {
			scores[col] = score
		}
	}
	return scores, nil
}
