package models

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/dynamo"
)

// State and control component indices of the kinematic car.
const (
	X = iota
	Y
	Heading
)

const (
	Speed = iota
	Steering
)

// Kinematic is the unit-wheelbase kinematic car:
//
//	x' = v·cos(θ)
//	y' = v·sin(θ)
//	θ' = v·φ
//
// with state (x, y, θ) and control (v, φ).
type Kinematic struct{}

func NewKinematic() *Kinematic {
	return &Kinematic{}
}

func (k *Kinematic) StateDim() int   { return 3 }
func (k *Kinematic) ControlDim() int { return 2 }

func (k *Kinematic) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	v, phi := u[Speed], u[Steering]
	sin, cos := math.Sincos(x[Heading])
	return dynamo.State{v * cos, v * sin, v * phi}
}

func (k *Kinematic) Linearize(x dynamo.State, u dynamo.Control) (a, b *mat.Dense) {
	v, phi := u[Speed], u[Steering]
	sin, cos := math.Sincos(x[Heading])

	a = mat.NewDense(3, 3, []float64{
		0, 0, -v * sin,
		0, 0, v * cos,
		0, 0, 0,
	})
	b = mat.NewDense(3, 2, []float64{
		cos, 0,
		sin, 0,
		phi, v,
	})
	return a, b
}
