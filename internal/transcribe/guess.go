package transcribe

import (
	"math"

	"github.com/san-kum/trajopt/internal/dynamo"
)

// Guess is an initial point for the solver. Nil sequences are filled with
// zeros; non-nil ones must cover every step.
type Guess struct {
	States   []dynamo.State
	Controls []dynamo.Control
	Horizon  float64
}

// DefaultGuess starts from rest at the origin with T = 1.
func DefaultGuess() Guess {
	return Guess{Horizon: 1}
}

// Vector lays the guess out as a decision vector.
func (g Guess) Vector(l Layout) ([]float64, error) {
	x := make([]float64, l.NumVars())

	if g.States != nil {
		if len(g.States) != l.Steps+1 {
			return nil, configErr("guess.states", "got %d states, want %d", len(g.States), l.Steps+1)
		}
		for k, s := range g.States {
			if len(s) != l.StateDim || !s.IsValid() {
				return nil, configErr("guess.states", "state %d is malformed", k)
			}
			for i, v := range s {
				x[l.State(k, i)] = v
			}
		}
	}

	if g.Controls != nil {
		if len(g.Controls) != l.Steps {
			return nil, configErr("guess.controls", "got %d controls, want %d", len(g.Controls), l.Steps)
		}
		for k, u := range g.Controls {
			if len(u) != l.ControlDim || !dynamo.State(u).IsValid() {
				return nil, configErr("guess.controls", "control %d is malformed", k)
			}
			for j, v := range u {
				x[l.Control(k, j)] = v
			}
		}
	}

	if math.IsNaN(g.Horizon) || math.IsInf(g.Horizon, 0) || g.Horizon < 0 {
		return nil, configErr("guess.horizon", "must be finite and non-negative, got %g", g.Horizon)
	}
	x[l.Time()] = g.Horizon

	return x, nil
}
