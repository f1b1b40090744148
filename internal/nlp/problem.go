package nlp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidProblem is returned by Validate and by solvers handed a
// malformed Problem.
var ErrInvalidProblem = errors.New("nlp: invalid problem")

// Kind tags a constraint as an equality or a two-sided inequality.
type Kind int

const (
	Equality Kind = iota
	Inequality
)

func (k Kind) String() string {
	switch k {
	case Equality:
		return "equality"
	case Inequality:
		return "inequality"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Bound is a closed interval. Open sides use math.Inf sentinels.
type Bound struct {
	Lower float64
	Upper float64
}

// Free is the unbounded interval.
func Free() Bound {
	return Bound{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// AtLeast is the interval [lower, +Inf).
func AtLeast(lower float64) Bound {
	return Bound{Lower: lower, Upper: math.Inf(1)}
}

func (b Bound) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// Clamp projects v onto the interval.
func (b Bound) Clamp(v float64) float64 {
	return math.Min(math.Max(v, b.Lower), b.Upper)
}

func (b Bound) Validate() error {
	if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) {
		return fmt.Errorf("bound has NaN side")
	}
	if b.Lower > b.Upper {
		return fmt.Errorf("lower bound %g exceeds upper bound %g", b.Lower, b.Upper)
	}
	return nil
}

// Expr evaluates a vector expression into dst from the gathered values
// of the constraint's Vars, in Vars order.
type Expr func(dst, x []float64)

// JacobianFunc writes d(expr)/d(vars) into dst, sized Dim×len(Vars).
type JacobianFunc func(dst *mat.Dense, x []float64)

// Constraint is a tagged vector constraint over a subset of variables.
// Equality constraints require Eval == Target. Inequality constraints
// require Lower <= Eval <= Upper componentwise.
type Constraint struct {
	Name string
	Kind Kind
	Vars []int
	Dim  int
	Eval Expr

	// Jacobian is optional; solvers fall back to finite differences.
	Jacobian JacobianFunc

	Target []float64
	Lower  []float64
	Upper  []float64
}

// NewEquality builds the constraint eval(x[vars]) == target.
func NewEquality(name string, vars []int, target []float64, eval Expr, jac JacobianFunc) Constraint {
	return Constraint{
		Name:     name,
		Kind:     Equality,
		Vars:     vars,
		Dim:      len(target),
		Eval:     eval,
		Jacobian: jac,
		Target:   target,
	}
}

// NewInequality builds the constraint lower <= eval(x[vars]) <= upper.
func NewInequality(name string, vars []int, lower, upper []float64, eval Expr, jac JacobianFunc) Constraint {
	return Constraint{
		Name:     name,
		Kind:     Inequality,
		Vars:     vars,
		Dim:      len(lower),
		Eval:     eval,
		Jacobian: jac,
		Lower:    lower,
		Upper:    upper,
	}
}

// Gather copies the constraint's variables out of the full vector x.
func (c *Constraint) Gather(dst, x []float64) []float64 {
	if cap(dst) < len(c.Vars) {
		dst = make([]float64, len(c.Vars))
	}
	dst = dst[:len(c.Vars)]
	for i, idx := range c.Vars {
		dst[i] = x[idx]
	}
	return dst
}

// Violation returns the largest componentwise violation of the constraint
// at the full vector x.
func (c *Constraint) Violation(x []float64) float64 {
	val := make([]float64, c.Dim)
	c.Eval(val, c.Gather(nil, x))

	worst := 0.0
	for i, v := range val {
		var d float64
		switch c.Kind {
		case Equality:
			d = math.Abs(v - c.Target[i])
		case Inequality:
			d = math.Max(c.Lower[i]-v, v-c.Upper[i])
		}
		if math.IsNaN(d) {
			return math.Inf(1)
		}
		worst = math.Max(worst, d)
	}
	return worst
}

func (c *Constraint) validate(numVars int) error {
	if c.Eval == nil {
		return fmt.Errorf("constraint %q has no expression", c.Name)
	}
	if c.Dim <= 0 {
		return fmt.Errorf("constraint %q has dimension %d", c.Name, c.Dim)
	}
	if len(c.Vars) == 0 {
		return fmt.Errorf("constraint %q reads no variables", c.Name)
	}
	for _, idx := range c.Vars {
		if idx < 0 || idx >= numVars {
			return fmt.Errorf("constraint %q reads variable %d outside [0,%d)", c.Name, idx, numVars)
		}
	}

	switch c.Kind {
	case Equality:
		if len(c.Target) != c.Dim {
			return fmt.Errorf("constraint %q: %d targets for dimension %d", c.Name, len(c.Target), c.Dim)
		}
		for _, v := range c.Target {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("constraint %q has non-finite target", c.Name)
			}
		}
	case Inequality:
		if len(c.Lower) != c.Dim || len(c.Upper) != c.Dim {
			return fmt.Errorf("constraint %q: bounds do not match dimension %d", c.Name, c.Dim)
		}
		for i := range c.Lower {
			if err := (Bound{c.Lower[i], c.Upper[i]}).Validate(); err != nil {
				return fmt.Errorf("constraint %q component %d: %v", c.Name, i, err)
			}
		}
	default:
		return fmt.Errorf("constraint %q has unknown kind %v", c.Name, c.Kind)
	}
	return nil
}

// Objective is a scalar function of the variables listed in Vars.
type Objective struct {
	Vars []int
	Eval func(x []float64) float64

	// Grad is optional; solvers fall back to finite differences.
	Grad func(dst, x []float64)
}

// Problem is an assembled nonlinear program. It is not mutated by solvers.
type Problem struct {
	NumVars      int
	Objective    Objective
	Constraints  []Constraint
	Bounds       []Bound
	InitialGuess []float64
}

// Validate checks structural consistency. Errors wrap ErrInvalidProblem.
func (p *Problem) Validate() error {
	if p.NumVars <= 0 {
		return fmt.Errorf("%w: %d variables", ErrInvalidProblem, p.NumVars)
	}
	if p.Objective.Eval == nil {
		return fmt.Errorf("%w: objective has no expression", ErrInvalidProblem)
	}
	for _, idx := range p.Objective.Vars {
		if idx < 0 || idx >= p.NumVars {
			return fmt.Errorf("%w: objective reads variable %d outside [0,%d)", ErrInvalidProblem, idx, p.NumVars)
		}
	}
	if len(p.Bounds) != p.NumVars {
		return fmt.Errorf("%w: %d bounds for %d variables", ErrInvalidProblem, len(p.Bounds), p.NumVars)
	}
	for i, b := range p.Bounds {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: variable %d: %v", ErrInvalidProblem, i, err)
		}
	}
	if len(p.InitialGuess) != p.NumVars {
		return fmt.Errorf("%w: initial guess has %d values for %d variables", ErrInvalidProblem, len(p.InitialGuess), p.NumVars)
	}
	for i, v := range p.InitialGuess {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: initial guess %d is not finite", ErrInvalidProblem, i)
		}
	}
	for i := range p.Constraints {
		if err := p.Constraints[i].validate(p.NumVars); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProblem, err)
		}
	}
	return nil
}

// MaxViolation is the largest violation over all constraints and bounds.
func (p *Problem) MaxViolation(x []float64) float64 {
	worst := 0.0
	for i, b := range p.Bounds {
		worst = math.Max(worst, math.Max(b.Lower-x[i], x[i]-b.Upper))
	}
	for i := range p.Constraints {
		worst = math.Max(worst, p.Constraints[i].Violation(x))
	}
	return worst
}

// Budget limits a solve. Zero fields select solver defaults.
type Budget struct {
	MaxIterations int
	Timeout       time.Duration
}

// Solver is the constrained-NLP capability consumed by the planner.
// Implementations must keep all iteration state per call so independent
// problems can be solved from separate goroutines.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}
