// Package experiment wires a named model and integrator, the transcription
// and a solver into one planning run.
package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/trajopt/internal/metrics"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/solver"
	"github.com/san-kum/trajopt/internal/trajectory"
	"github.com/san-kum/trajopt/internal/transcribe"
)

type Config struct {
	Model      string
	Integrator string
	Problem    transcribe.Config
}

// Outcome is the result of one run. Trajectory and Metrics are set only
// when the solve converged.
type Outcome struct {
	Config        Config
	Transcription *transcribe.Transcription
	Solution      *nlp.Solution
	Trajectory    *trajectory.Trajectory
	Metrics       map[string]float64
}

func (o *Outcome) Converged() bool {
	return o != nil && o.Solution.Converged()
}

type Experiment struct {
	registry *Registry
	solver   nlp.Solver
	logger   *slog.Logger
}

type Option func(*Experiment)

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) { e.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

func New(s nlp.Solver, opts ...Option) *Experiment {
	e := &Experiment{
		registry: NewRegistry(),
		solver:   s,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build resolves names and assembles the problem without solving it.
func (e *Experiment) Build(cfg Config) (*transcribe.Transcription, error) {
	sys, err := e.registry.GetModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	integ, err := e.registry.IntegratorFactory(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	return transcribe.NewBuilder(cfg.Problem,
		transcribe.WithSystem(sys),
		transcribe.WithIntegrator(integ),
	).Build()
}

// Run builds, solves and, on convergence, extracts. A configuration error
// returns before the solver is called. A non-converged solve is not an
// error; the Outcome then carries only the Solution.
func (e *Experiment) Run(ctx context.Context, cfg Config) (*Outcome, error) {
	tr, err := e.Build(cfg)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("problem assembled",
		"model", cfg.Model,
		"integrator", cfg.Integrator,
		"variables", tr.Problem.NumVars,
		"constraints", len(tr.Problem.Constraints),
	)

	sol, err := e.solver.Solve(ctx, tr.Problem)
	if err != nil {
		return nil, fmt.Errorf("experiment: solve: %w", err)
	}
	return e.finish(cfg, tr, sol)
}

// RunAll builds every configuration first, so one invalid entry fails the
// batch before any solve, then solves them concurrently.
func (e *Experiment) RunAll(ctx context.Context, cfgs []Config) ([]*Outcome, error) {
	trs := make([]*transcribe.Transcription, len(cfgs))
	problems := make([]*nlp.Problem, len(cfgs))
	for i, cfg := range cfgs {
		tr, err := e.Build(cfg)
		if err != nil {
			return nil, fmt.Errorf("experiment %d: %w", i, err)
		}
		trs[i] = tr
		problems[i] = tr.Problem
	}

	sols, err := solver.Batch(ctx, e.solver, problems)
	if err != nil {
		return nil, fmt.Errorf("experiment: solve: %w", err)
	}

	out := make([]*Outcome, len(cfgs))
	for i := range cfgs {
		if out[i], err = e.finish(cfgs[i], trs[i], sols[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Experiment) finish(cfg Config, tr *transcribe.Transcription, sol *nlp.Solution) (*Outcome, error) {
	out := &Outcome{Config: cfg, Transcription: tr, Solution: sol}
	if !sol.Converged() {
		e.logger.Warn("no trajectory", "status", sol.Status.String(), "reason", sol.Message)
		return out, nil
	}

	traj, err := trajectory.Extract(tr, sol)
	if err != nil {
		return nil, err
	}
	out.Trajectory = traj
	out.Metrics = metrics.Evaluate(traj, metrics.Standard(tr.Config.SpeedBound, tr.Config.SteeringBound)...)
	return out, nil
}
