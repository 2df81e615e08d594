package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestRunningStat(t *testing.T) {
	is := is.New(t)
	type tc struct {
		scores []int
		mean   float64
		stdev  float64
		min    float64
		max    float64
	}
	cases := []tc{
		{[]int{10, 12, 23, 23, 16, 23, 21, 16}, 18, 5.2372293656638, 10, 23},
		{[]int{14, 35, 71, 124, 10, 24, 55, 33, 87, 19}, 47.2, 36.937785531891, 10, 124},
		{[]int{1}, 1, 0, 1, 1},
		{[]int{}, 0, 0, 0, 0},
		{[]int{1, 1}, 1, 0, 1, 1},
		{[]int{-3, 5}, 1, 5.656854249492, -3, 5},
	}
	for _, c := range cases {
		s := &Statistic{}
		for _, score := range c.scores {
			s.Push(float64(score))
		}
		is.True(FuzzyEqual(s.Mean(), c.mean))
		is.True(FuzzyEqual(s.Stdev(), c.stdev))
		is.Equal(s.Min(), c.min)
		is.Equal(s.Max(), c.max)
		is.Equal(s.Iterations(), len(c.scores))
	}
}

func TestZVal(t *testing.T) {
	is := is.New(t)
	is.True(FuzzyEqual(ZVal(50), 0.6744897501960817))
	is.True(ZVal(95) > 1.959 && ZVal(95) < 1.960)
	is.True(ZVal(99) > 2.575 && ZVal(99) < 2.576)
}

func TestConfidenceInterval(t *testing.T) {
	is := is.New(t)
	s := &Statistic{}
	is.Equal(s.ConfidenceInterval(95), 0.0)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Push(v)
	}
	// stdev 2.138..., standard error 0.7559...
	ci := s.ConfidenceInterval(95)
	is.True(ci > 1.48 && ci < 1.49)
}

func TestSummary(t *testing.T) {
	is := is.New(t)
	var sum Summary
	var buf bytes.Buffer
	is.NoErr(sum.Fprint(&buf))
	is.True(strings.HasPrefix(buf.String(), "positions: 0"))

	for i, score := range []int{-2, -1, 0, 0, 1, 3, 18} {
		sum.Add(score, uint64(100*(i+1)), float64(10*(i+1)))
	}
	sum.AddInvalid()
	is.Equal(sum.Positions(), 7)
	is.Equal(sum.ScoreQuantile(0.5), 0.0)
	is.Equal(sum.Micros.Max(), 70.0)

	buf.Reset()
	is.NoErr(sum.Fprint(&buf))
	out := buf.String()
	is.True(strings.Contains(out, "positions: 7  invalid: 1"))
	is.True(strings.Contains(out, "score histogram:"))
}

func TestSummarySingleScore(t *testing.T) {
	is := is.New(t)
	var sum Summary
	sum.Add(0, 10, 1)
	sum.Add(0, 20, 2)
	var buf bytes.Buffer
	is.NoErr(sum.Fprint(&buf))
	is.True(strings.Contains(buf.String(), "all scores 0"))
}

func TestZValOutOfRange(t *testing.T) {
	is := is.New(t)
	is.Equal(ZVal(0), 0.0)
	is.Equal(ZVal(100), 0.0)
}
