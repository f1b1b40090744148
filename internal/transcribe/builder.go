package transcribe

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/integrators"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/nlp"
)

// Transcription is an assembled problem together with the layout needed to
// read its solution back.
type Transcription struct {
	Config  Config
	Layout  Layout
	Problem *nlp.Problem
}

type Builder struct {
	cfg        Config
	sys        dynamo.System
	integrator func() dynamo.Integrator
}

type Option func(*Builder)

// WithSystem replaces the kinematic car. The model must keep x, y at
// state indices 0 and 1 and heading at index 2.
func WithSystem(sys dynamo.System) Option {
	return func(b *Builder) { b.sys = sys }
}

// WithIntegrator selects the step scheme. The factory is called once per
// dynamics row so rows never share scratch buffers.
func WithIntegrator(factory func() dynamo.Integrator) Option {
	return func(b *Builder) { b.integrator = factory }
}

func NewBuilder(cfg Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:        cfg,
		sys:        models.NewKinematic(),
		integrator: func() dynamo.Integrator { return integrators.NewRK4() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates the configuration and assembles the problem. Every
// failure wraps ErrInvalidConfiguration and happens before a solver exists.
func (b *Builder) Build() (*Transcription, error) {
	cfg := b.cfg
	if b.sys == nil || b.integrator == nil {
		return nil, configErr("model", "system and integrator are required")
	}
	if err := cfg.validate(b.sys.StateDim(), b.sys.ControlDim()); err != nil {
		return nil, err
	}
	if cfg.TerminalHeading != nil && b.sys.StateDim() <= models.Heading {
		return nil, configErr("terminal_heading", "model has no heading state")
	}

	layout := NewLayout(cfg.Steps, b.sys.StateDim(), b.sys.ControlDim())

	guess := DefaultGuess()
	if cfg.Guess != nil {
		guess = *cfg.Guess
	}
	x0, err := guess.Vector(layout)
	if err != nil {
		return nil, err
	}

	p := &nlp.Problem{
		NumVars:      layout.NumVars(),
		Objective:    b.objective(layout),
		Bounds:       b.bounds(layout),
		InitialGuess: x0,
	}

	for k := 0; k < cfg.Steps; k++ {
		p.Constraints = append(p.Constraints, b.dynamicsRow(layout, k))
	}
	p.Constraints = append(p.Constraints, b.boundaryRows(layout)...)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	return &Transcription{Config: cfg, Layout: layout, Problem: p}, nil
}

func (b *Builder) objective(l Layout) nlp.Objective {
	return nlp.Objective{
		Vars: []int{l.Time()},
		Eval: func(x []float64) float64 { return x[0] },
		Grad: func(dst, x []float64) { dst[0] = 1 },
	}
}

func (b *Builder) bounds(l Layout) []nlp.Bound {
	bounds := make([]nlp.Bound, l.NumVars())
	for i := range bounds {
		bounds[i] = nlp.Free()
	}
	for k := 0; k < l.Steps; k++ {
		bounds[l.Control(k, models.Speed)] = b.cfg.SpeedBound
		bounds[l.Control(k, models.Steering)] = b.cfg.SteeringBound
	}
	bounds[l.Time()] = nlp.AtLeast(0)
	return bounds
}

// dynamicsRow ties state k+1 to the integrator's prediction from step k.
// Vars are [x_k, u_k, T, x_{k+1}].
func (b *Builder) dynamicsRow(l Layout, k int) nlp.Constraint {
	n, m := l.StateDim, l.ControlDim
	steps := float64(l.Steps)
	sys := b.sys
	integ := b.integrator()

	vars := append(l.stateVars(k), l.controlVars(k)...)
	vars = append(vars, l.Time())
	vars = append(vars, l.stateVars(k+1)...)

	split := func(z []float64) (dynamo.State, dynamo.Control, float64, []float64) {
		return dynamo.State(z[:n]), dynamo.Control(z[n : n+m]), z[n+m] / steps, z[n+m+1:]
	}

	eval := func(dst, z []float64) {
		x, u, dt, next := split(z)
		pred := integ.Step(sys, x, u, 0, dt)
		for i := 0; i < n; i++ {
			dst[i] = next[i] - pred[i]
		}
	}

	var jac nlp.JacobianFunc
	sens, ok := integ.(dynamo.SensitiveIntegrator)
	_, linear := sys.(dynamo.Linearizer)
	if ok && linear {
		jac = func(dst *mat.Dense, z []float64) {
			x, u, dt, _ := split(z)
			_, step, _ := sens.StepJacobian(sys, x, u, dt)
			dst.Zero()
			for i := 0; i < n; i++ {
				for j := 0; j < n+m; j++ {
					dst.Set(i, j, -step.At(i, j))
				}
				// d(dt)/dT = 1/N
				dst.Set(i, n+m, -step.At(i, n+m)/steps)
				dst.Set(i, n+m+1+i, 1)
			}
		}
	}

	return nlp.NewEquality(fmt.Sprintf("dynamics[%d]", k), vars, make([]float64, n), eval, jac)
}

func (b *Builder) boundaryRows(l Layout) []nlp.Constraint {
	cfg := b.cfg
	rows := []nlp.Constraint{
		nlp.NewEquality("initial", l.stateVars(0), cfg.Initial.Clone(), identity, identityJacobian),
		nlp.NewEquality("terminal", []int{l.State(l.Steps, models.X), l.State(l.Steps, models.Y)},
			[]float64{cfg.Target[0], cfg.Target[1]}, identity, identityJacobian),
	}

	if cfg.TerminalHeading != nil {
		rows = append(rows, nlp.NewEquality("terminal_heading", []int{l.State(l.Steps, models.Heading)},
			[]float64{*cfg.TerminalHeading}, identity, identityJacobian))
	}

	if cfg.MaxDuration > 0 {
		rows = append(rows, nlp.NewInequality("horizon_limit", []int{l.Time()},
			[]float64{0}, []float64{cfg.MaxDuration}, identity, identityJacobian))
	}

	return rows
}

func identity(dst, x []float64) {
	copy(dst, x)
}

func identityJacobian(dst *mat.Dense, x []float64) {
	dst.Zero()
	for i := range x {
		dst.Set(i, i, 1)
	}
}
