// Package metrics summarises a planned or replayed trajectory.
package metrics

import (
	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/trajectory"
)

// Metric observes one sample per grid point. The terminal sample carries
// a nil control.
type Metric interface {
	Name() string
	Observe(x dynamo.State, u dynamo.Control, t float64)
	Value() float64
	Reset()
}

// Standard is the metric set reported for every solve.
func Standard(speed, steering nlp.Bound) []Metric {
	return []Metric{
		NewPathLength(),
		NewReversals(1e-3),
		NewTotalTurn(),
		NewControlEffort(),
		NewSaturation([]nlp.Bound{speed, steering}, 1e-4),
	}
}

// Evaluate resets each metric and feeds it the trajectory's samples.
func Evaluate(t *trajectory.Trajectory, ms ...Metric) map[string]float64 {
	for _, m := range ms {
		m.Reset()
	}
	for k := 0; k <= t.Steps; k++ {
		var u dynamo.Control
		if k < t.Steps {
			u = t.Control(k)
		}
		x := t.State(k)
		for _, m := range ms {
			m.Observe(x, u, t.Time[k])
		}
	}

	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
