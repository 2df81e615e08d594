package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/connect4/book"
	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/ttable"
)

// InvalidMove is the Analyze score of a column that cannot be played.
const InvalidMove = -1000

var (
	ErrSearchIncomplete = errors.New("search incomplete")

	errNodeLimit = errors.New("node limit reached")
)

// Solver computes exact scores with negamax, alpha-beta pruning and
// null-window iterative deepening. It is not safe for concurrent use; see
// Pool for parallel analysis.
type Solver struct {
	ttable ttable.Cache
	book   *book.Book

	nodes     uint64
	nodeLimit uint64
	timeout   time.Duration

	// per-search state
	ctx         context.Context
	searchStart uint64
	aborted     bool
	abortCause  error
}

// New creates a solver using tt as its transposition table.
func New(tt ttable.Cache) *Solver {
	return &Solver{ttable: tt}
}

// NewTable allocates the solver's default table type.
func NewTable(logSize int) (*ttable.Table[uint32], error) {
	return ttable.New[uint32](logSize)
}

func tableLogSize(cfg *config.Config) int {
	if f := cfg.GetFloat64(config.ConfigTTMemoryFraction); f > 0 {
		return ttable.LogSizeForMemory(f)
	}
	return cfg.GetInt(config.ConfigTTLogSize)
}

// NewFromConfig creates a solver with a private table sized from cfg, the
// configured search limits and the configured opening book, if it loads.
func NewFromConfig(cfg *config.Config) (*Solver, error) {
	tt, err := NewTable(tableLogSize(cfg))
	if err != nil {
		return nil, err
	}
	s := New(tt)
	s.configure(cfg)
	return s, nil
}

func (s *Solver) configure(cfg *config.Config) {
	s.SetNodeLimit(cfg.GetUint64(config.ConfigNodeLimit))
	s.SetTimeout(cfg.GetDuration(config.ConfigSearchTimeout))
	if path := cfg.GetString(config.ConfigBookPath); path != "" {
		b, err := book.LoadCached(cfg, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("opening-book-unavailable")
			return
		}
		s.book = b
	}
}

// LoadBook replaces the opening book with the one at path. On failure the
// solver keeps working without a book and LoadBook returns false.
func (s *Solver) LoadBook(path string) bool {
	b, err := book.Load(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("opening-book-unavailable")
		s.book = nil
		return false
	}
	s.book = b
	return true
}

func (s *Solver) SetBook(b *book.Book) {
	s.book = b
}

func (s *Solver) Book() *book.Book {
	return s.book
}

// SetNodeLimit bounds the nodes explored per Solve or Analyze call. Zero
// means no limit.
func (s *Solver) SetNodeLimit(n uint64) {
	s.nodeLimit = n
}

// SetTimeout bounds the wall-clock time of each Solve or Analyze call. Zero
// means no limit.
func (s *Solver) SetTimeout(d time.Duration) {
	s.timeout = d
}

// NodeCount is the number of nodes explored since the last ResetNodeCount.
func (s *Solver) NodeCount() uint64 {
	return s.nodes
}

func (s *Solver) ResetNodeCount() {
	s.nodes = 0
}

// Reset clears the transposition table and the node count.
func (s *Solver) Reset() {
	s.ttable.Reset()
	s.nodes = 0
}

// TableStats returns the table counters when the table keeps them.
func (s *Solver) TableStats() (ttable.Stats, bool) {
	st, ok := s.ttable.(interface{ Stats() ttable.Stats })
	if !ok {
		return ttable.Stats{}, false
	}
	return st.Stats(), true
}

// Solve returns the score of p for the player to move. In weak mode only
// the sign is meaningful (-1, 0 or 1 unless the position is decided
// immediately). A Solve without limits never fails; with a node limit or
// timeout an abandoned search returns 0.
func (s *Solver) Solve(p *position.Position, weak bool) int {
	score, err := s.SolveContext(context.Background(), p, weak)
	if err != nil {
		log.Debug().Err(err).Msg("solve-abandoned")
	}
	return score
}

// SolveContext is Solve that gives up with ErrSearchIncomplete when ctx is
// done or a configured limit is exceeded.
func (s *Solver) SolveContext(ctx context.Context, p *position.Position, weak bool) (int, error) {
	cancel := s.begin(ctx)
	defer cancel()
	return s.solve(p, weak)
}

func (s *Solver) begin(ctx context.Context) context.CancelFunc {
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	s.ctx = ctx
	s.searchStart = s.nodes
	s.aborted = false
	s.abortCause = nil
	return cancel
}

func (s *Solver) abortErr() error {
	if s.abortCause == nil {
		return ErrSearchIncomplete
	}
	return fmt.Errorf("%w: %w", ErrSearchIncomplete, s.abortCause)
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func (s *Solver) solve(p *position.Position, weak bool) (int, error) {
	switch p.IsEnd() {
	case position.Draw:
		return 0, nil
	case position.FirstPlayerWins, position.SecondPlayerWins:
		return p.LossScore(), nil
	}
	if p.CanWinNext() {
		return p.WinScore(), nil
	}
	if score, ok := s.book.Lookup(p); ok {
		if weak {
			return sign(score), nil
		}
		return score, nil
	}

	min := -(position.Size - p.NbMoves()) / 2
	max := (position.Size + 1 - p.NbMoves()) / 2
	if weak {
		min = -1
		max = 1
	}
	// narrow [min, max] with null-window probes until it is a single value.
	for min < max {
		med := min + (max-min)/2
		if med <= 0 && min/2 < med {
			med = min / 2
		} else if med >= 0 && max/2 > med {
			med = max / 2
		}
		r := s.negamax(p, med, med+1)
		if s.aborted {
			return 0, s.abortErr()
		}
		if r <= med {
			max = r
		} else {
			min = r
		}
		log.Debug().Int("probe", med).Int("result", r).Int("min", min).Int("max", max).
			Uint64("nodes", s.nodes-s.searchStart).Msg("null-window-probe")
	}
	return min, nil
}

// Analyze scores every column of p from the point of view of the player to
// move: the win score for an immediate win, -Solve of the resulting
// position otherwise, and InvalidMove for full columns. All columns are
// InvalidMove if the game is already over.
func (s *Solver) Analyze(p *position.Position, weak bool) []int {
	scores, err := s.AnalyzeContext(context.Background(), p, weak)
	if err != nil {
		log.Debug().Err(err).Msg("analyze-abandoned")
	}
	return scores
}

// AnalyzeContext is Analyze with cancellation. Columns not reached before
// the search is abandoned are left as InvalidMove.
func (s *Solver) AnalyzeContext(ctx context.Context, p *position.Position, weak bool) ([]int, error) {
	scores := make([]int, position.Width)
	for col := range scores {
		scores[col] = InvalidMove
	}
	if p.IsEnd() != position.Ongoing {
		return scores, nil
	}
	cancel := s.begin(ctx)
	defer cancel()
	for col := range scores {
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

func (s *Solver) scoreColumn(p *position.Position, col int, weak bool) (int, bool, error) {
	if !p.CanPlay(col) {
		return 0, false, nil
	}
	if p.IsWinningMove(col) {
		return p.WinScore(), true, nil
	}
	child := *p
	child.PlayCol(col)
	score, err := s.solve(&child, weak)
	if err != nil {
		return 0, false, err
	}
	return -score, true, nil
}
