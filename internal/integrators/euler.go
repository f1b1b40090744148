package integrators

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/dynamo"
)

// Euler is the explicit first-order scheme. It is only useful for coarse
// transcriptions that seed an RK4 solve.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}

// StepJacobian returns [I+dt·A  dt·B  f].
func (e *Euler) StepJacobian(dyn dynamo.System, x dynamo.State, u dynamo.Control, dt float64) (dynamo.State, *mat.Dense, bool) {
	next := e.Step(dyn, x, u, 0, dt)

	lin, ok := dyn.(dynamo.Linearizer)
	if !ok {
		return next, nil, false
	}

	n, m := len(x), len(u)
	f := dyn.Derive(x, u, 0)
	a, b := lin.Linearize(x, u)

	jac := mat.NewDense(n, n+m+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			jac.Set(i, j, dt*a.At(i, j))
		}
		jac.Set(i, i, jac.At(i, i)+1)
		for j := 0; j < m; j++ {
			jac.Set(i, n+j, dt*b.At(i, j))
		}
		jac.Set(i, n+m, f[i])
	}
	return next, jac, true
}
