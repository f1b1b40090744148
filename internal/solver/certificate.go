package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/nlp"
)

const (
	// the violation gradient must be this small relative to the violation
	certificateTol = 1e-4
	// a variable this close to a bound counts as resting on it
	activeTol = 1e-4
)

// locallyInfeasible reports whether x is a stationary point of the squared
// constraint violation with the violation still above zero. Such an x
// cannot be improved by any small feasible-direction move, so no feasible
// point is nearby. Components that push a variable out through a bound it
// rests on are dropped before the test.
func locallyInfeasible(p *nlp.Problem, x []float64) bool {
	viol := p.MaxViolation(x)
	if !(viol > 0) || math.IsInf(viol, 0) {
		return false
	}

	grad := make([]float64, p.NumVars)
	for ci := range p.Constraints {
		c := &p.Constraints[ci]
		z := c.Gather(nil, x)
		val := make([]float64, c.Dim)
		c.Eval(val, z)

		excess := make([]float64, c.Dim)
		nonzero := false
		for i, v := range val {
			switch c.Kind {
			case nlp.Equality:
				excess[i] = v - c.Target[i]
			case nlp.Inequality:
				if v > c.Upper[i] {
					excess[i] = v - c.Upper[i]
				} else if v < c.Lower[i] {
					excess[i] = v - c.Lower[i]
				}
			}
			if excess[i] != 0 {
				nonzero = true
			}
		}
		if !nonzero {
			continue
		}

		j := mat.NewDense(c.Dim, len(c.Vars), nil)
		rowJacobian(j, c, z)
		for col, idx := range c.Vars {
			for row, e := range excess {
				grad[idx] += e * j.At(row, col)
			}
		}
	}

	for i, b := range p.Bounds {
		switch {
		case x[i] > b.Upper:
			grad[i] += x[i] - b.Upper
		case x[i] < b.Lower:
			grad[i] += x[i] - b.Lower
		}
		if grad[i] > 0 && x[i]-b.Lower <= activeTol*math.Max(1, math.Abs(b.Lower)) {
			grad[i] = 0
		}
		if grad[i] < 0 && b.Upper-x[i] <= activeTol*math.Max(1, math.Abs(b.Upper)) {
			grad[i] = 0
		}
	}
	return floats.Norm(grad, math.Inf(1)) <= certificateTol*viol
}

// stalled classifies a solve whose violation stopped decreasing at the
// maximum penalty.
func stalled(p *nlp.Problem, x []float64, obj float64, iter int) *nlp.Solution {
	viol := p.MaxViolation(x)
	sol := &nlp.Solution{
		Objective:  obj,
		Iterations: iter,
		Violation:  viol,
	}
	if locallyInfeasible(p, x) {
		sol.Status = nlp.Infeasible
		sol.Message = fmt.Sprintf("violation %.3g is stationary at maximum penalty", viol)
	} else {
		sol.Status = nlp.NumericalFailure
		sol.Message = fmt.Sprintf("violation %.3g not decreasing at maximum penalty", viol)
	}
	return sol
}
