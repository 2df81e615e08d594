package solver

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
	"lukechampine.com/frand"

	"github.com/domino14/connect4/book"
	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/ttable"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

const testLogSize = 20

func newTestSolver(t *testing.T) *Solver {
	t.Helper()
	tt, err := NewTable(testLogSize)
	if err != nil {
		t.Fatal(err)
	}
	return New(tt)
}

// randomPosition plays random moves that never win on the spot until the
// board holds nmoves stones, and keeps only positions where the player to
// move has no immediate win, so that solving them needs a search.
func randomPosition(nmoves int) *position.Position {
	for {
		p := position.New()
		for p.NbMoves() < nmoves {
			var cols []int
			for col := 0; col < position.Width; col++ {
				if p.CanPlay(col) && !p.IsWinningMove(col) {
					cols = append(cols, col)
				}
			}
			if len(cols) == 0 {
				break
			}
			p.PlayCol(cols[frand.Intn(len(cols))])
		}
		if p.NbMoves() == nmoves && !p.CanWinNext() {
			return p
		}
	}
}

// bruteForce is an unpruned negamax over the full remaining tree, memoized
// on the position key.
type bruteForce map[uint64]int

func (bf bruteForce) score(p *position.Position) int {
	if p.NbMoves() == position.Size {
		return 0
	}
	for col := 0; col < position.Width; col++ {
		if p.CanPlay(col) && p.IsWinningMove(col) {
			return p.WinScore()
		}
	}
	if v, ok := bf[p.Key()]; ok {
		return v
	}
	best := -position.Size
	for col := 0; col < position.Width; col++ {
		if !p.CanPlay(col) {
			continue
		}
		child := *p
		child.PlayCol(col)
		best = max(best, -bf.score(&child))
	}
	bf[p.Key()] = best
	return best
}

func TestImmediateWin(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	p, _ := position.FromSequence("112233")
	is.Equal(s.Solve(p, false), position.MaxScore)
	is.Equal(s.Solve(p, true), position.MaxScore)
	is.Equal(s.NodeCount(), uint64(0))
}

func TestFullBoardIsDraw(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	p, n := position.FromSequence(strings.Repeat("1324576", position.Height))
	is.Equal(n, position.Size)
	is.Equal(s.Solve(p, false), 0)
	is.Equal(s.Analyze(p, false), []int{
		InvalidMove, InvalidMove, InvalidMove, InvalidMove, InvalidMove, InvalidMove, InvalidMove})
}

func TestTerminalLoss(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	p, _ := position.FromSequence("112233")
	p.PlayCol(3)
	is.Equal(p.IsEnd(), position.FirstPlayerWins)
	is.Equal(s.Solve(p, false), -position.MaxScore)
}

func TestSolveMatchesBruteForce(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	for i := 0; i < 12; i++ {
		p := randomPosition(24)
		is.Equal(s.Solve(p, false), bruteForce{}.score(p))
	}
	is.True(s.NodeCount() > 0)
}

// Tiny tables force unrelated positions into the same slots.
func TestSmallTablesMatchBruteForce(t *testing.T) {
	is := is.New(t)
	minimal, err := NewTable(ttable.MinLogSize)
	is.NoErr(err)
	tiny, err := ttable.New[uint64](8)
	is.NoErr(err)

	for _, tt := range []ttable.Cache{minimal, tiny} {
		s := New(tt)
		for i := 0; i < 8; i++ {
			p := randomPosition(24)
			want := bruteForce{}.score(p)
			is.Equal(s.Solve(p, false), want)
			is.Equal(s.Solve(p.Mirror(), false), want)
			is.Equal(sign(s.Solve(p, true)), sign(want))
		}
	}
	is.True(tiny.Stats().Collisions > 0)
}

func TestMirrorSymmetry(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	for i := 0; i < 20; i++ {
		p := randomPosition(28)
		is.Equal(s.Solve(p, false), s.Solve(p.Mirror(), false))
	}
}

func TestAnalyzeMatchesSolve(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	ref := newTestSolver(t)
	for i := 0; i < 10; i++ {
		p := randomPosition(30)
		scores := s.Analyze(p, false)
		is.Equal(len(scores), position.Width)
		for col, score := range scores {
			switch {
			case !p.CanPlay(col):
				is.Equal(score, InvalidMove)
			case p.IsWinningMove(col):
				is.Equal(score, p.WinScore())
			default:
				child := *p
				child.PlayCol(col)
				is.Equal(score, -ref.Solve(&child, false))
			}
		}
	}
}

func TestWarmAndColdAgree(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	for i := 0; i < 10; i++ {
		p := randomPosition(28)
		cold := s.Solve(p, false)
		is.Equal(s.Solve(p, false), cold)
		s.Reset()
		is.Equal(s.NodeCount(), uint64(0))
		is.Equal(s.Solve(p, false), cold)
	}
}

func TestWeakAgreesWithStrong(t *testing.T) {
	is := is.New(t)
	strong := newTestSolver(t)
	weak := newTestSolver(t)
	for i := 0; i < 20; i++ {
		p := randomPosition(28)
		is.Equal(sign(weak.Solve(p, true)), sign(strong.Solve(p, false)))
	}
}

func TestEmptyBoardFromBook(t *testing.T) {
	is := is.New(t)
	var buf bytes.Buffer
	_, _, err := book.Write(&buf, 0, []book.Entry{{Key3: position.New().Key3(), Score: 1}})
	is.NoErr(err)
	b, err := book.Read(&buf)
	is.NoErr(err)

	s := newTestSolver(t)
	s.SetBook(b)
	is.Equal(s.Solve(position.New(), false), 1)
	is.Equal(s.Solve(position.New(), true), 1)
}

func TestEmptyBoardWithRealBook(t *testing.T) {
	path := os.Getenv("C4_BOOK")
	if path == "" || testing.Short() {
		t.Skip("set C4_BOOK to an opening book to run")
	}
	is := is.New(t)
	s := newTestSolver(t)
	is.True(s.LoadBook(path))
	is.Equal(s.Solve(position.New(), false), 1)
	is.Equal(s.Analyze(position.New(), false), []int{-2, -1, 0, 1, 0, -1, -2})
}

func TestLoadMissingBook(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	is.True(!s.LoadBook("/nonexistent/7x6.book"))
	is.Equal(s.Book(), nil)

	// still solves without a book.
	p, _ := position.FromSequence("112233")
	is.Equal(s.Solve(p, false), position.MaxScore)
}

func TestNodeLimit(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	s.SetNodeLimit(1000)
	p, _ := position.FromSequence("4444")
	_, err := s.SolveContext(context.Background(), p, false)
	is.True(errors.Is(err, ErrSearchIncomplete))
	is.True(errors.Is(err, errNodeLimit))
	is.True(s.NodeCount() > 1000)

	// the abandoned search leaves the table usable.
	s.SetNodeLimit(0)
	bf := bruteForce{}
	before := s.NodeCount()
	for i := 0; i < 10; i++ {
		q := randomPosition(30)
		is.Equal(s.Solve(q, false), bf.score(q))
	}
	is.True(s.NodeCount() > before)
}

func TestCancelledContext(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, _ := position.FromSequence("4444")
	score, err := s.SolveContext(ctx, p, false)
	is.True(errors.Is(err, ErrSearchIncomplete))
	is.True(errors.Is(err, context.Canceled))
	is.Equal(score, 0)

	scores, err := s.AnalyzeContext(ctx, p, false)
	is.True(errors.Is(err, context.Canceled))
	is.Equal(len(scores), position.Width)
}

func TestTimeout(t *testing.T) {
	is := is.New(t)
	s := newTestSolver(t)
	s.SetTimeout(5 * time.Millisecond)
	p, _ := position.FromSequence("44")
	_, err := s.SolveContext(context.Background(), p, false)
	is.True(errors.Is(err, context.DeadlineExceeded))
}

func TestNewFromConfig(t *testing.T) {
	is := is.New(t)
	cfg := config.DefaultConfig()
	cfg.Set(config.ConfigTTLogSize, 18)
	cfg.Set(config.ConfigBookPath, "/nonexistent/7x6.book")
	cfg.Set(config.ConfigNodeLimit, uint64(5000))
	s, err := NewFromConfig(cfg)
	is.NoErr(err)
	is.Equal(s.Book(), nil)
	is.Equal(s.nodeLimit, uint64(5000))

	stats, ok := s.TableStats()
	is.True(ok)
	is.Equal(stats.Lookups, uint64(0))
}
