package solver

import (
	"github.com/domino14/connect4/position"
)

// Transposition table values. Zero is "empty", upper bounds take the low
// range and lower bounds the range above maxUpperValue.
const (
	upperBoundOffset = 1 - position.MinScore
	lowerBoundOffset = position.MaxScore - 2*position.MinScore + 2
	maxUpperValue    = position.MaxScore - position.MinScore + 1
)

// check the context only every so many nodes.
const abortCheckMask = 1<<12 - 1

// negamax returns the exact score of p if it lies strictly inside
// (alpha, beta). Otherwise it returns an upper bound <= alpha or a lower
// bound >= beta. p must not have an immediate win for the player to move.
func (s *Solver) negamax(p *position.Position, alpha, beta int) int {
	s.nodes++
	if s.shouldAbort() {
		return 0
	}

	next := p.PossibleNonLosingMoves()
	if next == 0 {
		// every move lets the opponent win on the next stone.
		return -(position.Size - p.NbMoves()) / 2
	}
	if p.NbMoves() >= position.Size-2 {
		return 0
	}

	// we cannot lose with the opponent's next stone.
	min := -(position.Size - 2 - p.NbMoves()) / 2
	if alpha < min {
		alpha = min
		if alpha >= beta {
			return alpha
		}
	}

	// we cannot win with our next stone either.
	max := (position.Size - 1 - p.NbMoves()) / 2

	key := p.Key()
	if val := int(s.ttable.Get(key)); val != 0 {
		if val > maxUpperValue {
			min = val - lowerBoundOffset
			if alpha < min {
				alpha = min
				if alpha >= beta {
					return alpha
				}
			}
		} else {
			max = val - upperBoundOffset
		}
	}
	if beta > max {
		beta = max
		if alpha >= beta {
			return beta
		}
	}

	if score, ok := s.book.Lookup(p); ok {
		return score
	}

	moves := orderMoves(p, next)
	for move := moves.next(); move != 0; move = moves.next() {
		child := *p
		child.Play(move)
		score := -s.negamax(&child, -beta, -alpha)
		if s.aborted {
			return 0
		}
		if score >= beta {
			s.ttable.Put(key, uint8(score+lowerBoundOffset))
			return score
		}
		if score > alpha {
			alpha = score
		}
	}
	s.ttable.Put(key, uint8(alpha+upperBoundOffset))
	return alpha
}

func (s *Solver) shouldAbort() bool {
	if s.aborted {
		return true
	}
	if s.nodeLimit > 0 && s.nodes-s.searchStart > s.nodeLimit {
		s.aborted = true
		s.abortCause = errNodeLimit
	} else if s.nodes&abortCheckMask == 0 && s.ctx != nil && s.ctx.Err() != nil {
		s.aborted = true
		s.abortCause = s.ctx.Err()
	}
	return s.aborted
}
