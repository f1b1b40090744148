// Package sim integrates a control sequence forward in time. It is used to
// replay a planned trajectory open loop and measure how far the
// continuous model drifts from the discrete plan.
package sim

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/dynamo"
)

type Controller interface {
	Compute(x dynamo.State, t float64) dynamo.Control
}

type Observer interface {
	OnStep(x dynamo.State, u dynamo.Control, t float64)
}

type Config struct {
	Dt    float64
	Steps int

	// ValidateState stops the run at the first NaN/Inf state.
	ValidateState bool
}

type Result struct {
	States     []dynamo.State
	Controls   []dynamo.Control
	Times      []float64
	Metrics    map[string]float64
	StepsTaken int
	Errors     []error
}

// Final is the last recorded state.
func (r *Result) Final() dynamo.State {
	return r.States[len(r.States)-1]
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("simulation error at t=%.4f (step %d): %s", e.Time, e.Step, e.Message)
}
