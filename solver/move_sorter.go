package solver

import "github.com/domino14/connect4/position"

// columnOrder explores the center columns first: 3, 2, 4, 1, 5, 0, 6.
var columnOrder [position.Width]int

func init() {
	for i := range columnOrder {
		columnOrder[i] = position.Width/2 + (1-2*(i%2))*(i+1)/2
	}
}

type moveEntry struct {
	move  uint64
	score int
}

// moveSorter is a fixed-size insertion sort. Moves come out highest score
// first; among equal scores the one added last comes out first.
type moveSorter struct {
	size    int
	entries [position.Width]moveEntry
}

func (m *moveSorter) add(move uint64, score int) {
	pos := m.size
	m.size++
	for ; pos > 0 && m.entries[pos-1].score > score; pos-- {
		m.entries[pos] = m.entries[pos-1]
	}
	m.entries[pos] = moveEntry{move: move, score: score}
}

// next returns the best remaining move, or 0 when there is none.
func (m *moveSorter) next() uint64 {
	if m.size == 0 {
		return 0
	}
	m.size--
	return m.entries[m.size].move
}

// orderMoves fills a sorter with the moves in next. Adding in reverse
// column order makes ties resolve to the center-out order.
func orderMoves(p *position.Position, next uint64) moveSorter {
	var moves moveSorter
	for i := position.Width - 1; i >= 0; i-- {
		if move := next & position.ColumnMask(columnOrder[i]); move != 0 {
			moves.add(move, p.MoveScore(move))
		}
	}
	return moves
}

// MoveOrder returns the columns the search would try from p, best first.
// Moves that hand the opponent an immediate win are left out.
func MoveOrder(p *position.Position) []int {
	moves := orderMoves(p, p.PossibleNonLosingMoves())
	var cols []int
	for move := moves.next(); move != 0; move = moves.next() {
		for col := 0; col < position.Width; col++ {
			if move&position.ColumnMask(col) != 0 {
				cols = append(cols, col)
				break
			}
		}
	}
	return cols
}
