package position

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

// drawnGame fills the board without ever making four in a row.
var drawnGame = strings.Repeat("1324576", Height)

func TestPlaySequence(t *testing.T) {
	is := is.New(t)
	type tc struct {
		seq      string
		consumed int
	}
	cases := []tc{
		{"", 0},
		{"4444", 4},
		{"881", 0},
		{"0", 0},
		{"12a4", 2},
		{"1111111", 6}, // column 1 is full after six stones
		{"1122334", 6}, // the seventh move would win
		{"4455667", 6},
		{drawnGame, Size},
	}
	for _, c := range cases {
		p := New()
		is.Equal(p.PlaySequence(c.seq), c.consumed)
		is.Equal(p.NbMoves(), c.consumed)
	}
}

func TestIsWinningMove(t *testing.T) {
	is := is.New(t)
	p, n := FromSequence("112233")
	is.Equal(n, 6)
	is.True(p.IsWinningMove(3))
	is.True(p.CanWinNext())
	for _, col := range []int{0, 1, 2, 4, 5, 6} {
		is.True(!p.IsWinningMove(col))
	}

	// vertical
	p, _ = FromSequence("121212")
	is.True(p.IsWinningMove(0))
	is.True(!p.IsWinningMove(1))

	// diagonal: X on a1 b2 c3 needs d4.
	p, n = FromSequence("1223433446")
	is.Equal(n, 10)
	is.True(p.IsWinningMove(3))
}

func TestIsEnd(t *testing.T) {
	is := is.New(t)
	p := New()
	is.Equal(p.IsEnd(), Ongoing)

	p, _ = FromSequence("112233")
	p.PlayCol(3)
	is.Equal(p.IsEnd(), FirstPlayerWins)
	is.Equal(p.IsEnd().String(), "first-player-wins")

	p, _ = FromSequence("7121212")
	p.PlayCol(0)
	is.Equal(p.IsEnd(), SecondPlayerWins)

	p, n := FromSequence(drawnGame)
	is.Equal(n, Size)
	is.Equal(p.IsEnd(), Draw)
	for col := 0; col < Width; col++ {
		is.True(!p.CanPlay(col))
	}
}

func TestKeyInvariants(t *testing.T) {
	is := is.New(t)
	p, _ := FromSequence("4453")
	is.True(p.current&^p.mask == 0)
	is.Equal(p.moves, 4)

	// different move orders reaching the same board share a key.
	q, _ := FromSequence("5344")
	is.Equal(p.Key(), q.Key())

	// same stones, different side to move must differ.
	r, _ := FromSequence("445")
	is.True(r.Key() != p.Key())
}

func TestKey3Symmetric(t *testing.T) {
	is := is.New(t)
	p, _ := FromSequence("1123")
	m, _ := FromSequence("7765")
	is.Equal(p.Key3(), m.Key3())
	is.Equal(p.Key3(), p.Mirror().Key3())
	is.Equal(p.Mirror().Key(), m.Key())

	q, _ := FromSequence("1124")
	is.True(q.Key3() != p.Key3())
	is.Equal(New().Key3(), New().Mirror().Key3())
}

func TestPossibleNonLosingMoves(t *testing.T) {
	is := is.New(t)

	// X has 2,3,4 on the bottom row: two threats, O (to move) is lost.
	v, n := FromSequence("27374")
	is.Equal(n, 5)
	is.True(!v.CanWinNext())
	is.Equal(v.PossibleNonLosingMoves(), uint64(0))

	// X has 1,2,3 on the bottom row: O must block column 4.
	w, n := FromSequence("17273")
	is.Equal(n, 5)
	is.Equal(w.PossibleNonLosingMoves(), ColumnMask(3)&w.Possible())

	// O has 5,6,7 on the second row, so X must not fill the bottom of
	// column 4.
	x, n := FromSequence("57651627")
	is.Equal(n, 8)
	is.True(!x.CanWinNext())
	moves := x.PossibleNonLosingMoves()
	is.Equal(moves&ColumnMask(3), uint64(0))
	is.True(moves&ColumnMask(2) != 0)
	is.True(moves&ColumnMask(0) != 0)
}

func TestMirror(t *testing.T) {
	is := is.New(t)
	p, _ := FromSequence("1233347")
	m, _ := FromSequence("7655541")
	is.Equal(p.Mirror().Key(), m.Key())
	is.Equal(p.Mirror().Mirror().Key(), p.Key())
	is.Equal(p.Mirror().NbMoves(), p.NbMoves())
}

func TestMoveScore(t *testing.T) {
	is := is.New(t)
	p, _ := FromSequence("1122")
	// X on 1 and 2 bottom; playing 3 creates winning cells at 4 (bottom).
	move := (p.mask + bottomMaskCols[2]) & ColumnMask(2)
	is.True(p.MoveScore(move) >= 1)
	far := (p.mask + bottomMaskCols[6]) & ColumnMask(6)
	is.Equal(p.MoveScore(far), 0)
}

func TestString(t *testing.T) {
	is := is.New(t)
	p, _ := FromSequence("44")
	out := p.String()
	lines := strings.Split(out, "\n")
	is.Equal(lines[Height-1], "| . . . X . . . |")
	is.Equal(lines[Height-2], "| . . . O . . . |")
	is.Equal(lines[Height+1], "  1 2 3 4 5 6 7")
}
