package stats

import (
	"fmt"
	"io"
	"slices"

	"github.com/aybabtme/uniplot/histogram"
	"gonum.org/v1/gonum/stat"
)

const (
	histogramBins  = 12
	histogramWidth = 50
)

// Summary collects per-position timings and scores of a batch run.
type Summary struct {
	Micros Statistic
	Nodes  Statistic

	scores  []float64
	invalid int
}

func (s *Summary) Add(score int, nodes uint64, micros float64) {
	s.scores = append(s.scores, float64(score))
	s.Nodes.Push(float64(nodes))
	s.Micros.Push(micros)
}

// AddInvalid counts a line that was not a legal move sequence.
func (s *Summary) AddInvalid() {
	s.invalid++
}

func (s *Summary) Positions() int {
	return len(s.scores)
}

// ScoreQuantile returns the p-quantile of the scores seen so far.
func (s *Summary) ScoreQuantile(p float64) float64 {
	if len(s.scores) == 0 {
		return 0
	}
	sorted := slices.Clone(s.scores)
	slices.Sort(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Fprint writes the summary and a score histogram to w.
func (s *Summary) Fprint(w io.Writer) error {
	fmt.Fprintf(w, "positions: %d  invalid: %d\n", len(s.scores), s.invalid)
	if len(s.scores) == 0 {
		return nil
	}
	mean, std := stat.MeanStdDev(s.scores, nil)
	fmt.Fprintf(w, "score: mean %.3f  stdev %.3f  median %.1f\n",
		mean, std, s.ScoreQuantile(0.5))
	fmt.Fprintf(w, "time (us): mean %.1f ± %.1f (95%%)  min %.0f  max %.0f\n",
		s.Micros.Mean(), s.Micros.ConfidenceInterval(95), s.Micros.Min(), s.Micros.Max())
	fmt.Fprintf(w, "nodes: mean %.1f ± %.1f (95%%)  max %.0f\n",
		s.Nodes.Mean(), s.Nodes.ConfidenceInterval(95), s.Nodes.Max())
	lo, hi := slices.Min(s.scores), slices.Max(s.scores)
	if lo == hi {
		fmt.Fprintf(w, "all scores %.0f\n", lo)
		return nil
	}
	fmt.Fprintln(w, "score histogram:")
	h := histogram.Hist(histogramBins, s.scores)
	return histogram.Fprint(w, h, histogram.Linear(histogramWidth))
}
