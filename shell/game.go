package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"lukechampine.com/frand"

	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/solver"
)

var errGameOver = errors.New("game is over; start a new one with `new`")

func playerName(p *position.Position) string {
	if p.NbMoves()%2 == 0 {
		return "X"
	}
	return "O"
}

// status is the board followed by the result, or by whose turn it is.
func (sc *ShellController) status() string {
	var sb strings.Builder
	sb.WriteString(sc.pos.String())
	sb.WriteString("\n")
	switch sc.pos.IsEnd() {
	case position.Draw:
		sb.WriteString("Stalemate")
	case position.FirstPlayerWins:
		sb.WriteString("Winner: X")
	case position.SecondPlayerWins:
		sb.WriteString("Winner: O")
	default:
		fmt.Fprintf(&sb, "%s to move (move %d)", playerName(sc.pos), sc.pos.NbMoves()+1)
	}
	return sb.String()
}

func (sc *ShellController) gameOver() bool {
	return sc.pos.IsEnd() != position.Ongoing
}

func (sc *ShellController) newGame() (*Response, error) {
	sc.pos = position.New()
	sc.history = sc.history[:0]
	return Msg(sc.status()), nil
}

func (sc *ShellController) show() (*Response, error) {
	return Msg(sc.status()), nil
}

func (sc *ShellController) load(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("load <moves>, for example: load 4453")
	}
	seq := cmd.args[0]
	// a sequence stops at a move that would win the game.
	p, n := position.FromSequence(seq)
	if n != len(seq) {
		return nil, fmt.Errorf("invalid move %d in %q", n+1, seq)
	}
	history := make([]int, n)
	for i := range history {
		history[i] = int(seq[i] - '1')
	}
	sc.pos = p
	sc.history = history
	return Msg(sc.status()), nil
}

func (sc *ShellController) play(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("play <column 1-7>")
	}
	col, err := strconv.Atoi(cmd.args[0])
	if err != nil {
		return nil, err
	}
	col--
	if sc.gameOver() {
		return nil, errGameOver
	}
	if col < 0 || col >= position.Width {
		return nil, fmt.Errorf("invalid column %d", col+1)
	}
	if !sc.pos.CanPlay(col) {
		return nil, fmt.Errorf("column %d is full", col+1)
	}
	sc.playCol(col)
	if sc.auto && !sc.gameOver() {
		return sc.solve()
	}
	return Msg(sc.status()), nil
}

func (sc *ShellController) playCol(col int) {
	sc.pos.PlayCol(col)
	sc.history = append(sc.history, col)
}

func (sc *ShellController) undo() (*Response, error) {
	if len(sc.history) == 0 {
		return nil, errors.New("nothing to undo")
	}
	sc.history = sc.history[:len(sc.history)-1]
	p := position.New()
	for _, col := range sc.history {
		p.PlayCol(col)
	}
	sc.pos = p
	return Msg(sc.status()), nil
}

func (sc *ShellController) toggle(cmd *shellcmd, setting *bool) (*Response, error) {
	if len(cmd.args) != 1 {
		return Msg(fmt.Sprintf("%s: %v", cmd.cmd, *setting)), nil
	}
	switch cmd.args[0] {
	case "on", "true", "1":
		*setting = true
	case "off", "false", "0":
		*setting = false
	default:
		return nil, fmt.Errorf("%s on|off", cmd.cmd)
	}
	return Msg(fmt.Sprintf("%s: %v", cmd.cmd, *setting)), nil
}

func (sc *ShellController) analyzeScores() ([]int, error) {
	ctx, done := sc.startSearch()
	defer done()
	sc.pool.ResetNodeCount()
	scores, err := sc.pool.AnalyzeParallel(ctx, sc.pos, sc.weak)
	log.Debug().Uint64("nodes", sc.pool.NodeCount()).Ints("scores", scores).Msg("analyzed")
	return scores, err
}

func formatScores(scores []int) string {
	lines := lo.Map(scores, func(score int, col int) string {
		if score == solver.InvalidMove {
			return fmt.Sprintf("col %d: -", col+1)
		}
		return fmt.Sprintf("col %d: %d", col+1, score)
	})
	return strings.Join(lines, "\n")
}

// bestColumn picks a column with the highest score, at random among ties.
func bestColumn(scores []int) int {
	legal := lo.Filter(lo.Range(len(scores)), func(col int, _ int) bool {
		return scores[col] != solver.InvalidMove
	})
	if len(legal) == 0 {
		return -1
	}
	best := lo.Max(lo.Map(legal, func(col int, _ int) int { return scores[col] }))
	candidates := lo.Filter(legal, func(col int, _ int) bool {
		return scores[col] == best
	})
	return candidates[frand.Intn(len(candidates))]
}

func (sc *ShellController) analyze() (*Response, error) {
	if sc.gameOver() {
		return nil, errGameOver
	}
	scores, err := sc.analyzeScores()
	if err != nil {
		return nil, err
	}
	return Msg("Scores:\n" + formatScores(scores)), nil
}

// solve lets the solver choose and play a move for the side to move.
func (sc *ShellController) solve() (*Response, error) {
	if sc.gameOver() {
		return nil, errGameOver
	}
	scores, err := sc.analyzeScores()
	if err != nil {
		return nil, err
	}
	col := bestColumn(scores)
	if col < 0 {
		return nil, errors.New("no legal move")
	}
	sc.playCol(col)
	return Msg(fmt.Sprintf("Scores:\n%s\nPlaying column %d\n%s",
		formatScores(scores), col+1, sc.status())), nil
}

func describeScore(p *position.Position, score int) string {
	mover := playerName(p)
	switch {
	case score > 0:
		return fmt.Sprintf("%s wins with its %s stone", mover, ordinal((position.Size+1)/2-score+1))
	case score < 0:
		other := "X"
		if mover == "X" {
			other = "O"
		}
		return fmt.Sprintf("%s wins with its %s stone", other, ordinal(position.Size/2+score+1))
	}
	return "draw"
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}

func (sc *ShellController) score() (*Response, error) {
	if sc.gameOver() {
		return Msg(sc.status()), nil
	}
	ctx, done := sc.startSearch()
	defer done()
	s := sc.pool.Solver()
	s.ResetNodeCount()
	score, err := s.SolveContext(ctx, sc.pos, sc.weak)
	if err != nil {
		return nil, err
	}
	if sc.weak {
		return Msg(fmt.Sprintf("score: %d (weak) nodes: %d", score, s.NodeCount())), nil
	}
	return Msg(fmt.Sprintf("score: %d (%s) nodes: %d",
		score, describeScore(sc.pos, score), s.NodeCount())), nil
}
