package integrators

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/dynamo"
)

// RK4 is the classical four-stage Runge-Kutta scheme with the control held
// constant across the step. Scratch buffers make it unsafe for concurrent use.
type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	k1 := dyn.Derive(x, u, t)
	copy(r.k1, k1)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	k2 := dyn.Derive(r.scratch, u, t+dt*0.5)
	copy(r.k2, k2)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	k3 := dyn.Derive(r.scratch, u, t+dt*0.5)
	copy(r.k3, k3)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	k4 := dyn.Derive(r.scratch, u, t+dt)
	copy(r.k4, k4)

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}

	return result
}

// StepJacobian differentiates the RK4 map through its four stages. With
// S the sensitivity of a stage state and K = A·S + [0 B 0] that of its
// derivative sample:
//
//	S1 = [I 0 0]
//	S2 = S1 + dt/2·K1 + k1/2·e_dt
//	S3 = S1 + dt/2·K2 + k2/2·e_dt
//	S4 = S1 + dt·K3   + k3·e_dt
//	J  = S1 + dt/6·(K1+2K2+2K3+K4) + (k1+2k2+2k3+k4)/6·e_dt
func (r *RK4) StepJacobian(dyn dynamo.System, x dynamo.State, u dynamo.Control, dt float64) (dynamo.State, *mat.Dense, bool) {
	next := r.Step(dyn, x, u, 0, dt)

	lin, ok := dyn.(dynamo.Linearizer)
	if !ok {
		return next, nil, false
	}

	n, m := len(x), len(u)
	cols := n + m + 1
	identity := identityBlock(n, cols)

	s1 := x
	k1 := dyn.Derive(s1, u, 0)
	kk1 := stageSensitivity(lin, s1, u, identity, m)

	s2 := x.Add(k1.Scale(dt / 2))
	k2 := dyn.Derive(s2, u, dt/2)
	kk2 := stageSensitivity(lin, s2, u, advance(identity, kk1, dt/2, k1, 0.5), m)

	s3 := x.Add(k2.Scale(dt / 2))
	k3 := dyn.Derive(s3, u, dt/2)
	kk3 := stageSensitivity(lin, s3, u, advance(identity, kk2, dt/2, k2, 0.5), m)

	s4 := x.Add(k3.Scale(dt))
	k4 := dyn.Derive(s4, u, dt)
	kk4 := stageSensitivity(lin, s4, u, advance(identity, kk3, dt, k3, 1), m)

	var sum mat.Dense
	sum.Scale(2, kk2)
	sum.Add(&sum, kk1)
	var tmp mat.Dense
	tmp.Scale(2, kk3)
	sum.Add(&sum, &tmp)
	sum.Add(&sum, kk4)

	weighted := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		weighted[i] = k1[i] + 2*k2[i] + 2*k3[i] + k4[i]
	}

	return next, advance(identity, &sum, dt/6, weighted, 1.0/6), true
}

// identityBlock returns [I 0] with n rows and cols columns.
func identityBlock(n, cols int) *mat.Dense {
	d := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// advance returns base + h·k + c·f·e_dt, where e_dt selects the last column.
func advance(base, k mat.Matrix, h float64, f dynamo.State, c float64) *mat.Dense {
	rows, cols := base.Dims()
	var out mat.Dense
	out.Scale(h, k)
	out.Add(&out, base)
	for i := 0; i < rows; i++ {
		out.Set(i, cols-1, out.At(i, cols-1)+c*f[i])
	}
	return &out
}

// stageSensitivity returns A·S + [0 B 0] at stage state s.
func stageSensitivity(lin dynamo.Linearizer, s dynamo.State, u dynamo.Control, sens *mat.Dense, m int) *mat.Dense {
	a, b := lin.Linearize(s, u)
	n, _ := a.Dims()

	var out mat.Dense
	out.Mul(a, sens)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out.Set(i, n+j, out.At(i, n+j)+b.At(i, j))
		}
	}
	return &out
}
