// Package trajectory turns a converged solution into named time series.
package trajectory

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/transcribe"
)

// ErrNotConverged is wrapped in an *nlp.StatusError when extraction is
// refused.
var ErrNotConverged = errors.New("trajectory: solution did not converge")

// Trajectory is the output record of a converged solve. States are sampled
// on the N+1 grid points and controls on the N intervals; control k acts
// on [Time[k], Time[k+1]).
type Trajectory struct {
	Status     nlp.Status `json:"status"`
	Steps      int        `json:"steps"`
	Horizon    float64    `json:"horizon"`
	Iterations int        `json:"iterations"`
	Violation  float64    `json:"violation"`

	Time    []float64 `json:"time"`
	X       []float64 `json:"x"`
	Y       []float64 `json:"y"`
	Heading []float64 `json:"heading"`

	Speed    []float64 `json:"speed"`
	Steering []float64 `json:"steering"`
}

// Extract reads sol back through the transcription's layout. Any status
// other than Converged is refused.
func Extract(tr *transcribe.Transcription, sol *nlp.Solution) (*Trajectory, error) {
	if sol == nil {
		return nil, fmt.Errorf("%w: no solution", ErrNotConverged)
	}
	if !sol.Converged() {
		return nil, &nlp.StatusError{Status: sol.Status, Wrapped: ErrNotConverged}
	}

	l := tr.Layout
	vars, err := l.View(sol.X)
	if err != nil {
		return nil, fmt.Errorf("trajectory: %w", err)
	}

	n := l.Steps
	t := &Trajectory{
		Status:     sol.Status,
		Steps:      n,
		Horizon:    vars.Horizon(),
		Iterations: sol.Iterations,
		Violation:  sol.Violation,
		X:          make([]float64, n+1),
		Y:          make([]float64, n+1),
		Heading:    make([]float64, n+1),
		Speed:      make([]float64, n),
		Steering:   make([]float64, n),
	}
	t.Time = TimeGrid(t.Horizon, n)

	for k := 0; k <= n; k++ {
		s := vars.State(k)
		t.X[k] = s[models.X]
		t.Y[k] = s[models.Y]
		t.Heading[k] = s[models.Heading]
	}
	for k := 0; k < n; k++ {
		u := vars.Control(k)
		t.Speed[k] = u[models.Speed]
		t.Steering[k] = u[models.Steering]
	}

	return t, nil
}

// TimeGrid is the uniform grid (horizon/steps)·k for k = 0..steps. The last
// point is the horizon itself, not an accumulated sum.
func TimeGrid(horizon float64, steps int) []float64 {
	grid := make([]float64, steps+1)
	h := horizon / float64(steps)
	for k := 0; k < steps; k++ {
		grid[k] = h * float64(k)
	}
	grid[steps] = horizon
	return grid
}

// AlignedControls returns the control series on the state grid. Index 0
// holds NaN ("no sample"); control k appears at grid point k+1.
func (t *Trajectory) AlignedControls() (speed, steering []float64) {
	speed = make([]float64, t.Steps+1)
	steering = make([]float64, t.Steps+1)
	speed[0] = math.NaN()
	steering[0] = math.NaN()
	copy(speed[1:], t.Speed)
	copy(steering[1:], t.Steering)
	return speed, steering
}

func (t *Trajectory) State(k int) dynamo.State {
	return dynamo.State{t.X[k], t.Y[k], t.Heading[k]}
}

func (t *Trajectory) Control(k int) dynamo.Control {
	return dynamo.Control{t.Speed[k], t.Steering[k]}
}

// Final is the state at grid point N.
func (t *Trajectory) Final() dynamo.State {
	return t.State(t.Steps)
}

// Guess converts the trajectory into a warm start for another solve over
// the same horizon step count.
func (t *Trajectory) Guess() *transcribe.Guess {
	g := &transcribe.Guess{
		States:   make([]dynamo.State, t.Steps+1),
		Controls: make([]dynamo.Control, t.Steps),
		Horizon:  t.Horizon,
	}
	for k := range g.States {
		g.States[k] = t.State(k)
	}
	for k := range g.Controls {
		g.Controls[k] = t.Control(k)
	}
	return g
}

// Vector lays the trajectory back out as a decision vector.
func (t *Trajectory) Vector(l transcribe.Layout) ([]float64, error) {
	if l.Steps != t.Steps {
		return nil, fmt.Errorf("%w: trajectory has %d steps, layout %d", dynamo.ErrDimensionMismatch, t.Steps, l.Steps)
	}
	return t.Guess().Vector(l)
}
