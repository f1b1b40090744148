package transcribe

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/dynamo"
)

// Layout maps (step, component) pairs onto the flat decision vector:
// states first, then controls, then the horizon T.
type Layout struct {
	Steps      int
	StateDim   int
	ControlDim int
}

func NewLayout(steps, stateDim, controlDim int) Layout {
	return Layout{Steps: steps, StateDim: stateDim, ControlDim: controlDim}
}

// NumVars is StateDim·(N+1) + ControlDim·N + 1.
func (l Layout) NumVars() int {
	return l.StateDim*(l.Steps+1) + l.ControlDim*l.Steps + 1
}

// State returns the index of component i of state k, k in [0, N].
func (l Layout) State(k, i int) int {
	if k < 0 || k > l.Steps || i < 0 || i >= l.StateDim {
		panic(fmt.Sprintf("transcribe: state index (%d,%d) outside [0,%d]x[0,%d)", k, i, l.Steps, l.StateDim))
	}
	return k*l.StateDim + i
}

// Control returns the index of component j of control k, k in [0, N-1].
func (l Layout) Control(k, j int) int {
	if k < 0 || k >= l.Steps || j < 0 || j >= l.ControlDim {
		panic(fmt.Sprintf("transcribe: control index (%d,%d) outside [0,%d)x[0,%d)", k, j, l.Steps, l.ControlDim))
	}
	return l.StateDim*(l.Steps+1) + k*l.ControlDim + j
}

// Time returns the index of the horizon T.
func (l Layout) Time() int {
	return l.StateDim*(l.Steps+1) + l.ControlDim*l.Steps
}

func (l Layout) stateVars(k int) []int {
	vars := make([]int, l.StateDim)
	for i := range vars {
		vars[i] = l.State(k, i)
	}
	return vars
}

func (l Layout) controlVars(k int) []int {
	vars := make([]int, l.ControlDim)
	for j := range vars {
		vars[j] = l.Control(k, j)
	}
	return vars
}

// Variables is a read-only view of a decision vector.
type Variables struct {
	layout Layout
	x      []float64
}

// View wraps x, which must have exactly NumVars entries.
func (l Layout) View(x []float64) (Variables, error) {
	if len(x) != l.NumVars() {
		return Variables{}, fmt.Errorf("%w: %d values for %d variables", dynamo.ErrDimensionMismatch, len(x), l.NumVars())
	}
	return Variables{layout: l, x: x}, nil
}

func (v Variables) State(k int) dynamo.State {
	s := make(dynamo.State, v.layout.StateDim)
	for i := range s {
		s[i] = v.x[v.layout.State(k, i)]
	}
	return s
}

func (v Variables) Control(k int) dynamo.Control {
	u := make(dynamo.Control, v.layout.ControlDim)
	for j := range u {
		u[j] = v.x[v.layout.Control(k, j)]
	}
	return u
}

func (v Variables) Horizon() float64 {
	return v.x[v.layout.Time()]
}
