package solver

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/nlp"
)

// lagrangian is the PHR augmented Lagrangian of one problem. Equality
// components carry lambda; each finite side of an inequality component or
// of a variable bound carries a non-negative mu.
type lagrangian struct {
	p   *nlp.Problem
	rho float64

	lambda  [][]float64
	muLower [][]float64
	muUpper [][]float64
	bLower  []float64
	bUpper  []float64

	// per-constraint scratch
	local [][]float64
	value [][]float64
	jac   []*mat.Dense
	wt    [][]float64

	objLocal []float64
	objGrad  []float64
}

func newLagrangian(p *nlp.Problem, rho float64) *lagrangian {
	l := &lagrangian{
		p:        p,
		rho:      rho,
		lambda:   make([][]float64, len(p.Constraints)),
		muLower:  make([][]float64, len(p.Constraints)),
		muUpper:  make([][]float64, len(p.Constraints)),
		bLower:   make([]float64, p.NumVars),
		bUpper:   make([]float64, p.NumVars),
		local:    make([][]float64, len(p.Constraints)),
		value:    make([][]float64, len(p.Constraints)),
		jac:      make([]*mat.Dense, len(p.Constraints)),
		wt:       make([][]float64, len(p.Constraints)),
		objLocal: make([]float64, len(p.Objective.Vars)),
		objGrad:  make([]float64, len(p.Objective.Vars)),
	}
	for i := range p.Constraints {
		c := &p.Constraints[i]
		switch c.Kind {
		case nlp.Equality:
			l.lambda[i] = make([]float64, c.Dim)
		case nlp.Inequality:
			l.muLower[i] = make([]float64, c.Dim)
			l.muUpper[i] = make([]float64, c.Dim)
		}
		l.local[i] = make([]float64, len(c.Vars))
		l.value[i] = make([]float64, c.Dim)
		l.jac[i] = mat.NewDense(c.Dim, len(c.Vars), nil)
		l.wt[i] = make([]float64, c.Dim)
	}
	return l
}

// objective evaluates f and, when grad is non-nil, adds df/dx into it.
func (l *lagrangian) objective(x, grad []float64) float64 {
	obj := &l.p.Objective
	for i, idx := range obj.Vars {
		l.objLocal[i] = x[idx]
	}
	f := obj.Eval(l.objLocal)
	if grad == nil {
		return f
	}
	if obj.Grad != nil {
		obj.Grad(l.objGrad, l.objLocal)
	} else {
		fd.Gradient(l.objGrad, obj.Eval, l.objLocal, &fd.Settings{Formula: fd.Central})
	}
	for i, idx := range obj.Vars {
		grad[idx] += l.objGrad[i]
	}
	return f
}

// phr is the one-sided term for h >= 0 with multiplier mu. It returns the
// penalty value and its derivative with respect to h.
func phr(h, mu, rho float64) (val, dh float64) {
	t := math.Max(0, mu-rho*h)
	return (t*t - mu*mu) / (2 * rho), -t
}

// eval returns the augmented Lagrangian at x. When grad is non-nil it is
// overwritten with the gradient.
func (l *lagrangian) eval(x, grad []float64) float64 {
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}
	total := l.objective(x, grad)
	rho := l.rho

	for ci := range l.p.Constraints {
		c := &l.p.Constraints[ci]
		z := c.Gather(l.local[ci], x)
		val := l.value[ci]
		c.Eval(val, z)

		w := l.wt[ci]
		active := false
		for i, v := range val {
			w[i] = 0
			switch c.Kind {
			case nlp.Equality:
				r := v - c.Target[i]
				lam := l.lambda[ci][i]
				total += lam*r + 0.5*rho*r*r
				w[i] = lam + rho*r
			case nlp.Inequality:
				if !math.IsInf(c.Lower[i], -1) {
					pv, d := phr(v-c.Lower[i], l.muLower[ci][i], rho)
					total += pv
					w[i] += d
				}
				if !math.IsInf(c.Upper[i], 1) {
					pv, d := phr(c.Upper[i]-v, l.muUpper[ci][i], rho)
					total += pv
					w[i] -= d
				}
			}
			if w[i] != 0 {
				active = true
			}
		}
		if grad == nil || !active {
			continue
		}

		j := l.jacobian(ci, z)
		for col, idx := range c.Vars {
			var g float64
			for row := range w {
				g += w[row] * j.At(row, col)
			}
			grad[idx] += g
		}
	}

	for i, b := range l.p.Bounds {
		if !math.IsInf(b.Lower, -1) {
			pv, d := phr(x[i]-b.Lower, l.bLower[i], rho)
			total += pv
			if grad != nil {
				grad[i] += d
			}
		}
		if !math.IsInf(b.Upper, 1) {
			pv, d := phr(b.Upper-x[i], l.bUpper[i], rho)
			total += pv
			if grad != nil {
				grad[i] -= d
			}
		}
	}
	return total
}

func (l *lagrangian) jacobian(ci int, z []float64) *mat.Dense {
	rowJacobian(l.jac[ci], &l.p.Constraints[ci], z)
	return l.jac[ci]
}

// rowJacobian fills dst with the Jacobian of c at its local point z, by
// central differences when c has no analytic form.
func rowJacobian(dst *mat.Dense, c *nlp.Constraint, z []float64) {
	dst.Zero()
	if c.Jacobian != nil {
		c.Jacobian(dst, z)
		return
	}
	fd.Jacobian(dst, func(y, x []float64) { c.Eval(y, x) }, z, &fd.JacobianSettings{Formula: fd.Central})
}

// update applies the first-order multiplier step at x.
func (l *lagrangian) update(x []float64) {
	rho := l.rho
	for ci := range l.p.Constraints {
		c := &l.p.Constraints[ci]
		val := l.value[ci]
		c.Eval(val, c.Gather(l.local[ci], x))
		for i, v := range val {
			switch c.Kind {
			case nlp.Equality:
				l.lambda[ci][i] += rho * (v - c.Target[i])
			case nlp.Inequality:
				if !math.IsInf(c.Lower[i], -1) {
					l.muLower[ci][i] = math.Max(0, l.muLower[ci][i]-rho*(v-c.Lower[i]))
				}
				if !math.IsInf(c.Upper[i], 1) {
					l.muUpper[ci][i] = math.Max(0, l.muUpper[ci][i]-rho*(c.Upper[i]-v))
				}
			}
		}
	}
	for i, b := range l.p.Bounds {
		if !math.IsInf(b.Lower, -1) {
			l.bLower[i] = math.Max(0, l.bLower[i]-rho*(x[i]-b.Lower))
		}
		if !math.IsInf(b.Upper, 1) {
			l.bUpper[i] = math.Max(0, l.bUpper[i]-rho*(b.Upper-x[i]))
		}
	}
}
