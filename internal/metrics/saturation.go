package metrics

import (
	"math"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/nlp"
)

// Saturation is the fraction of control samples with at least one channel
// within tol of its bound. Minimum-time solutions are typically bang-bang,
// so values near 1 are expected.
type Saturation struct {
	name      string
	bounds    []nlp.Bound
	tol       float64
	saturated int
	samples   int
}

func NewSaturation(bounds []nlp.Bound, tol float64) *Saturation {
	return &Saturation{
		name:   "saturation",
		bounds: bounds,
		tol:    tol,
	}
}

func (s *Saturation) Name() string {
	return s.name
}

func (s *Saturation) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(u) == 0 {
		return
	}
	s.samples++
	for j, val := range u {
		if j >= len(s.bounds) {
			break
		}
		b := s.bounds[j]
		if math.Abs(val-b.Lower) <= s.tol || math.Abs(val-b.Upper) <= s.tol {
			s.saturated++
			break
		}
	}
}

func (s *Saturation) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.saturated) / float64(s.samples)
}

func (s *Saturation) Reset() {
	s.saturated = 0
	s.samples = 0
}
