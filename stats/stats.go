package stats

import "math"

const (
	Epsilon = 1e-6
)

func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Statistic is a running mean and variance of the values pushed so far.
type Statistic struct {
	n    int
	last float64
	min  float64
	max  float64

	// Welford's algorithm
	mean float64
	m2   float64
}

func (s *Statistic) Push(val float64) {
	s.last = val
	s.n++
	if s.n == 1 {
		s.mean = val
		s.m2 = 0
		s.min = val
		s.max = val
		return
	}
	delta := val - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (val - s.mean)
	s.min = math.Min(s.min, val)
	s.max = math.Max(s.max, val)
}

func (s *Statistic) Mean() float64 {
	return s.mean
}

func (s *Statistic) Variance() float64 {
	if s.n <= 1 {
		return 0.0
	}
	return s.m2 / float64(s.n-1)
}

func (s *Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

func (s *Statistic) Last() float64 {
	return s.last
}

func (s *Statistic) Min() float64 {
	return s.min
}

func (s *Statistic) Max() float64 {
	return s.max
}

// StandardError returns the standard error of the mean.
func (s *Statistic) StandardError() float64 {
	if s.n == 0 {
		return 0.0
	}
	return math.Sqrt(s.Variance() / float64(s.n))
}

// ConfidenceInterval returns the half-width of the two-tailed interval
// around the mean at the given confidence, in percent.
func (s *Statistic) ConfidenceInterval(confidence float64) float64 {
	return ZVal(confidence) * s.StandardError()
}

func (s *Statistic) Iterations() int {
	return s.n
}
