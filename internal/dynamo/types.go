package dynamo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

type Control []float64

func (u Control) Clone() Control {
	c := make(Control, len(u))
	copy(c, u)
	return c
}

// System is a continuous-time model dX/dt = f(X, u, t). Implementations
// must be pure: the integrator samples Derive several times per step.
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Linearizer is implemented by systems with analytic Jacobians.
// A is StateDim×StateDim (df/dx), B is StateDim×ControlDim (df/du).
type Linearizer interface {
	Linearize(x State, u Control) (a, b *mat.Dense)
}

// Integrator advances x by dt with u held constant over the step.
type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// SensitiveIntegrator also returns the Jacobian of the step map with
// respect to (x, u, dt), laid out as StateDim rows by
// StateDim+ControlDim+1 columns. ok is false when dyn is not a Linearizer.
type SensitiveIntegrator interface {
	Integrator
	StepJacobian(dyn System, x State, u Control, dt float64) (next State, jac *mat.Dense, ok bool)
}
