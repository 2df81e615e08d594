package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/solver"
	"github.com/domino14/connect4/stats"
)

// RunBatch reads one move sequence per line from r and writes one result
// line per input line to w. A valid line gives the line followed by its
// score, or by the seven column scores in analyze mode. An invalid line
// gives an empty line on w and a message on errw.
func RunBatch(ctx context.Context, cfg *config.Config, pool *solver.Pool,
	r io.Reader, w, errw io.Writer) error {

	analyze := cfg.GetBool(config.ConfigAnalyze)
	weak := cfg.GetBool(config.ConfigWeak)
	verbose := cfg.GetBool(config.ConfigVerbose)
	var summary stats.Summary

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	scanner := bufio.NewScanner(r)
	for l := 1; scanner.Scan(); l++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		p := position.New()
		if p.PlaySequence(line) != len(line) {
			fmt.Fprintf(errw, "Line %d: Invalid move %d \"%s\"\n", l, p.NbMoves()+1, line)
			fmt.Fprintln(bw)
			summary.AddInvalid()
			continue
		}

		pool.ResetNodeCount()
		start := time.Now()
		var scores []int
		var err error
		if analyze {
			scores, err = pool.AnalyzeParallel(ctx, p, weak)
		} else {
			var score int
			score, err = pool.Solver().SolveContext(ctx, p, weak)
			scores = []int{score}
		}
		elapsed := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, solver.ErrSearchIncomplete) {
				fmt.Fprintf(errw, "Line %d: %v \"%s\"\n", l, err, line)
				fmt.Fprintln(bw)
				continue
			}
			return err
		}

		fields := append([]string{line}, lo.Map(scores, func(s int, _ int) string {
			return strconv.Itoa(s)
		})...)
		nodes := pool.NodeCount()
		micros := float64(elapsed.Microseconds())
		if verbose {
			fields = append(fields, strconv.FormatUint(nodes, 10), strconv.FormatInt(elapsed.Microseconds(), 10))
		}
		fmt.Fprintln(bw, strings.Join(fields, " "))
		// in analyze mode the position is worth its best column.
		if best := lo.Max(scores); best != solver.InvalidMove {
			summary.Add(best, nodes, micros)
		}
		ev := log.Debug().Int("line", l).Uint64("nodes", nodes).Dur("elapsed", elapsed)
		if st, ok := pool.Solver().TableStats(); ok {
			ev = ev.Uint64("tt-lookups", st.Lookups).Uint64("tt-hits", st.Hits).
				Uint64("tt-collisions", st.Collisions)
		}
		ev.Msg("solved-position")
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if cfg.GetBool(config.ConfigSummary) {
		bw.Flush()
		return summary.Fprint(errw)
	}
	return nil
}
