package position

import (
	"math/bits"
	"strings"
)

// A Connect Four position is stored as two bitboards. Cells are numbered
// column-major, with one extra guard bit on top of every column:
//
//	 6 13 20 27 34 41 48
//	---------------------
//	 5 12 19 26 33 40 47
//	 4 11 18 25 32 39 46
//	 3 10 17 24 31 38 45
//	 2  9 16 23 30 37 44
//	 1  8 15 22 29 36 43
//	 0  7 14 21 28 35 42
//
// mask has a bit set for every stone on the board, current for every stone
// of the player to move. The guard row keeps shifted patterns from wrapping
// into the next column.

const (
	Width  = 7
	Height = 6
	Size   = Width * Height

	MinScore = -Size/2 + 3
	MaxScore = (Size+1)/2 - 3

	// KeyBits is the number of significant bits in Key().
	KeyBits = Width * (Height + 1)
)

// Compile-time check that the board fits in a uint64.
var _ = [64 - KeyBits]struct{}{}

var (
	bottomMask uint64
	boardMask  uint64

	bottomMaskCols [Width]uint64
	topMaskCols    [Width]uint64
	columnMasks    [Width]uint64
)

func init() {
	for col := 0; col < Width; col++ {
		bottomMaskCols[col] = 1 << (col * (Height + 1))
		topMaskCols[col] = 1 << (Height - 1 + col*(Height+1))
		columnMasks[col] = ((1 << Height) - 1) << (col * (Height + 1))
		bottomMask |= bottomMaskCols[col]
	}
	boardMask = bottomMask * ((1 << Height) - 1)
}

// Outcome classifies a position as finished or not.
type Outcome int

const (
	Ongoing Outcome = iota
	FirstPlayerWins
	SecondPlayerWins
	Draw
)

func (o Outcome) String() string {
	switch o {
	case Ongoing:
		return "ongoing"
	case FirstPlayerWins:
		return "first-player-wins"
	case SecondPlayerWins:
		return "second-player-wins"
	case Draw:
		return "draw"
	}
	return "unknown"
}

type Position struct {
	current uint64
	mask    uint64
	moves   int
}

// New returns the empty position.
func New() *Position {
	return &Position{}
}

// FromSequence builds a position from a move string. It returns the
// position and the number of characters that were played; if that count is
// smaller than len(seq), the sequence is invalid at that index.
func FromSequence(seq string) (*Position, int) {
	p := New()
	n := p.PlaySequence(seq)
	return p, n
}

// ColumnMask returns the cells of column col.
func ColumnMask(col int) uint64 {
	return columnMasks[col]
}

func (p *Position) NbMoves() int {
	return p.moves
}

// Key uniquely identifies the position (side to move included).
func (p *Position) Key() uint64 {
	return p.current + p.mask
}

// Key3 is a base-3 encoding of the board that is identical for a position
// and its horizontal mirror. The opening book is keyed on it.
func (p *Position) Key3() uint64 {
	var forward, reverse uint64
	for col := 0; col < Width; col++ {
		forward = p.partialKey3(forward, col)
	}
	for col := Width - 1; col >= 0; col-- {
		reverse = p.partialKey3(reverse, col)
	}
	if forward < reverse {
		return forward / 3
	}
	return reverse / 3
}

func (p *Position) partialKey3(key uint64, col int) uint64 {
	for pos := bottomMaskCols[col]; pos&p.mask != 0; pos <<= 1 {
		key *= 3
		if pos&p.current != 0 {
			key++
		} else {
			key += 2
		}
	}
	return key * 3
}

func (p *Position) CanPlay(col int) bool {
	return p.mask&topMaskCols[col] == 0
}

// Play plays a move given as a single-bit mask of the cell to fill.
func (p *Position) Play(move uint64) {
	p.current ^= p.mask
	p.mask |= move
	p.moves++
}

// PlayCol drops a stone for the player to move into col. The column must
// not be full.
func (p *Position) PlayCol(col int) {
	if !p.CanPlay(col) {
		panic("position: column is full")
	}
	p.Play((p.mask + bottomMaskCols[col]) & columnMasks[col])
}

// PlaySequence plays the columns named by seq ('1' is the leftmost). It
// stops at the first character that is out of range, names a full column
// or would end the game with a win, and returns how many characters were
// played.
func (p *Position) PlaySequence(seq string) int {
	for i := 0; i < len(seq); i++ {
		col := int(seq[i]) - '1'
		if col < 0 || col >= Width || !p.CanPlay(col) || p.IsWinningMove(col) {
			return i
		}
		p.PlayCol(col)
	}
	return len(seq)
}

// IsWinningMove reports whether playing col makes four in a row for the
// player to move.
func (p *Position) IsWinningMove(col int) bool {
	return p.winningPosition()&p.Possible()&columnMasks[col] != 0
}

// CanWinNext reports whether the player to move has an immediate win.
func (p *Position) CanWinNext() bool {
	return p.winningPosition()&p.Possible() != 0
}

// Possible returns the playable cells, one per non-full column.
func (p *Position) Possible() uint64 {
	return (p.mask + bottomMask) & boardMask
}

// PossibleNonLosingMoves returns the playable cells that do not give the
// opponent an immediate win. It returns 0 if every move loses, and a single
// cell when the opponent threatens exactly one win that must be blocked.
// Only meaningful when the player to move cannot win immediately.
func (p *Position) PossibleNonLosingMoves() uint64 {
	possible := p.Possible()
	opponentWin := p.opponentWinningPosition()
	forced := possible & opponentWin
	if forced != 0 {
		if forced&(forced-1) != 0 {
			// two threats at once.
			return 0
		}
		possible = forced
	}
	// never play directly under an opponent winning cell.
	return possible &^ (opponentWin >> 1)
}

// MoveScore counts the winning cells the player to move would have after
// playing move.
func (p *Position) MoveScore(move uint64) int {
	return bits.OnesCount64(computeWinningPosition(p.current|move, p.mask))
}

// IsEnd classifies the position. Only the player who just moved can have
// four in a row, so only the opponent stones are checked.
func (p *Position) IsEnd() Outcome {
	if alignment(p.current ^ p.mask) {
		if p.moves%2 == 1 {
			return FirstPlayerWins
		}
		return SecondPlayerWins
	}
	if p.moves == Size {
		return Draw
	}
	return Ongoing
}

// Mirror returns the position reflected left to right.
func (p *Position) Mirror() *Position {
	m := &Position{moves: p.moves}
	for col := 0; col < Width; col++ {
		shift := (Width - 1 - 2*col) * (Height + 1)
		cur := p.current & columnMasks[col]
		msk := p.mask & columnMasks[col]
		if shift >= 0 {
			m.current |= cur << shift
			m.mask |= msk << shift
		} else {
			m.current |= cur >> -shift
			m.mask |= msk >> -shift
		}
	}
	return m
}

// WinScore is the score for the player to move winning with the next stone.
func (p *Position) WinScore() int {
	return (Size + 1 - p.moves) / 2
}

// LossScore is the score of a position whose previous mover just won.
func (p *Position) LossScore() int {
	return -(Size + 2 - p.moves) / 2
}

func (p *Position) winningPosition() uint64 {
	return computeWinningPosition(p.current, p.mask)
}

func (p *Position) opponentWinningPosition() uint64 {
	return computeWinningPosition(p.current^p.mask, p.mask)
}

// computeWinningPosition returns the empty cells that would complete an
// alignment of four for the stones in position.
func computeWinningPosition(position, mask uint64) uint64 {
	const h = Height
	// vertical
	r := (position << 1) & (position << 2) & (position << 3)

	// horizontal
	q := (position << (h + 1)) & (position << (2 * (h + 1)))
	r |= q & (position << (3 * (h + 1)))
	r |= q & (position >> (h + 1))
	q = (position >> (h + 1)) & (position >> (2 * (h + 1)))
	r |= q & (position << (h + 1))
	r |= q & (position >> (3 * (h + 1)))

	// diagonal 1
	q = (position << h) & (position << (2 * h))
	r |= q & (position << (3 * h))
	r |= q & (position >> h)
	q = (position >> h) & (position >> (2 * h))
	r |= q & (position << h)
	r |= q & (position >> (3 * h))

	// diagonal 2
	q = (position << (h + 2)) & (position << (2 * (h + 2)))
	r |= q & (position << (3 * (h + 2)))
	r |= q & (position >> (h + 2))
	q = (position >> (h + 2)) & (position >> (2 * (h + 2)))
	r |= q & (position << (h + 2))
	r |= q & (position >> (3 * (h + 2)))

	return r & (boardMask ^ mask)
}

// alignment reports whether the stones in pos contain four in a row.
func alignment(pos uint64) bool {
	const h = Height
	// horizontal
	m := pos & (pos >> (h + 1))
	if m&(m>>(2*(h+1))) != 0 {
		return true
	}
	// diagonal 1
	m = pos & (pos >> h)
	if m&(m>>(2*h)) != 0 {
		return true
	}
	// diagonal 2
	m = pos & (pos >> (h + 2))
	if m&(m>>(2*(h+2))) != 0 {
		return true
	}
	// vertical
	m = pos & (pos >> 1)
	return m&(m>>2) != 0
}

// String renders the board top row first. X is the first player.
func (p *Position) String() string {
	first := p.current
	if p.moves%2 == 1 {
		first = p.current ^ p.mask
	}
	var sb strings.Builder
	for row := Height - 1; row >= 0; row-- {
		sb.WriteString("|")
		for col := 0; col < Width; col++ {
			cell := uint64(1) << (row + col*(Height+1))
			switch {
			case p.mask&cell == 0:
				sb.WriteString(" .")
			case first&cell != 0:
				sb.WriteString(" X")
			default:
				sb.WriteString(" O")
			}
		}
		sb.WriteString(" |\n")
	}
	sb.WriteString("+")
	sb.WriteString(strings.Repeat("--", Width))
	sb.WriteString("-+\n ")
	for col := 1; col <= Width; col++ {
		sb.WriteString(" ")
		sb.WriteByte(byte('0' + col))
	}
	sb.WriteString("\n")
	return sb.String()
}
