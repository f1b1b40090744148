package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/trajopt/internal/nlp"
)

const (
	penaltyGrowth = 10.0
	// violation must shrink by this factor per iteration or the penalty grows
	violationDecrease = 0.25
	// iterations at MaxPenalty without progress before giving up
	stallLimit = 3
	// a feasible iterate whose objective stopped moving converges only with
	// stationarity within this multiple of OptimalityTol
	flatStationarity = 100.0
)

// AugmentedLagrangian is an nlp.Solver backed by gonum/mat and gonum/optimize.
type AugmentedLagrangian struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

var _ nlp.Solver = (*AugmentedLagrangian)(nil)

func New(opts Options) *AugmentedLagrangian {
	opts = opts.withDefaults()
	return &AugmentedLagrangian{
		opts:   opts,
		logger: opts.Logger,
		tracer: opts.Tracer,
	}
}

func (s *AugmentedLagrangian) Options() Options {
	return s.opts
}

// Solve minimises p. The returned error is non-nil only for a malformed
// problem; every other outcome is reported through Solution.Status.
func (s *AugmentedLagrangian) Solve(ctx context.Context, p *nlp.Problem) (*nlp.Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "solver.Solve",
		trace.WithAttributes(
			attribute.Int("nlp.variables", p.NumVars),
			attribute.Int("nlp.constraints", len(p.Constraints)),
		))
	defer span.End()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	sol := s.run(ctx, p)
	sol.Runtime = time.Since(start)

	span.SetAttributes(
		attribute.String("nlp.status", sol.Status.String()),
		attribute.Int("nlp.iterations", sol.Iterations),
		attribute.Float64("nlp.violation", sol.Violation),
	)
	if sol.Converged() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, sol.Status.String())
	}

	s.logger.Info("solve finished",
		"status", sol.Status.String(),
		"objective", sol.Objective,
		"violation", sol.Violation,
		"iterations", sol.Iterations,
		"runtime", sol.Runtime,
	)
	return sol, nil
}

func (s *AugmentedLagrangian) run(ctx context.Context, p *nlp.Problem) *nlp.Solution {
	if s.opts.Method == LBFGS {
		return s.runLBFGS(ctx, p)
	}
	return s.runNewton(ctx, p)
}

func (s *AugmentedLagrangian) runLBFGS(ctx context.Context, p *nlp.Problem) *nlp.Solution {
	opts := s.opts
	n := p.NumVars
	l := newLagrangian(p, opts.InitialPenalty)

	x := make([]float64, n)
	copy(x, p.InitialGuess)
	if v := l.eval(x, nil); math.IsNaN(v) || math.IsInf(v, 0) {
		return failure(nlp.NumericalFailure, 0, "non-finite value at the initial guess")
	}

	grad := make([]float64, n)
	problem := optimize.Problem{
		Func: func(x []float64) float64 { return l.eval(x, nil) },
		Grad: func(g, x []float64) { l.eval(x, g) },
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.RuntimeLimit, err
			}
			return optimize.NotTerminated, nil
		},
	}

	prevViol := math.Inf(1)
	prevObj := math.NaN()
	stall := 0

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		settings := &optimize.Settings{
			MajorIterations:   opts.InnerIterations,
			GradientThreshold: opts.OptimalityTol,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-14,
				Relative:   1e-14,
				Iterations: 50,
			},
		}
		if deadline, ok := ctx.Deadline(); ok {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return failure(nlp.IterationLimitExceeded, iter-1, "timeout")
			}
			settings.Runtime = remaining
		}

		res, err := optimize.Minimize(problem, x, settings, &optimize.LBFGS{})
		if ctx.Err() != nil {
			return failure(nlp.IterationLimitExceeded, iter, ctx.Err().Error())
		}
		if res == nil {
			return failure(nlp.NumericalFailure, iter, fmt.Sprintf("inner solver: %v", err))
		}
		if res.Status == optimize.RuntimeLimit {
			return failure(nlp.IterationLimitExceeded, iter, "timeout")
		}
		if !finite(res.X) {
			return failure(nlp.NumericalFailure, iter, "non-finite iterate")
		}
		if err != nil && !isRecoverable(err) {
			return failure(nlp.NumericalFailure, iter, fmt.Sprintf("inner solver: %v", err))
		}
		copy(x, res.X)

		l.eval(x, grad)
		stationarity := floats.Norm(grad, math.Inf(1))
		obj := l.objective(x, nil)
		viol := p.MaxViolation(x)
		if math.IsNaN(obj) || math.IsInf(viol, 0) || math.IsNaN(stationarity) {
			return failure(nlp.NumericalFailure, iter, "non-finite objective or residual")
		}

		s.logger.Debug("augmented lagrangian iteration",
			"iteration", iter,
			"objective", obj,
			"violation", viol,
			"stationarity", stationarity,
			"penalty", l.rho,
			"inner_status", res.Status.String(),
			"inner_iterations", res.MajorIterations,
		)
		if opts.Observer != nil {
			opts.Observer(Progress{
				Iteration:       iter,
				Objective:       obj,
				Violation:       viol,
				Stationarity:    stationarity,
				Penalty:         l.rho,
				InnerIterations: res.MajorIterations,
			})
		}

		if opts.settled(viol, stationarity, obj, prevObj) {
			return s.converged(p, x, iter)
		}

		if l.rho >= opts.MaxPenalty && viol > opts.FeasibilityTol && viol > 0.9*prevViol {
			stall++
			if stall >= stallLimit {
				return stalled(p, x, obj, iter)
			}
		} else {
			stall = 0
		}

		l.update(x)
		if viol > violationDecrease*prevViol {
			l.rho = math.Min(l.rho*penaltyGrowth, opts.MaxPenalty)
		}
		prevViol = viol
		if viol <= opts.FeasibilityTol {
			prevObj = obj
		} else {
			prevObj = math.NaN()
		}
	}

	return &nlp.Solution{
		Status:     nlp.IterationLimitExceeded,
		Objective:  l.objective(x, nil),
		Iterations: opts.MaxIterations,
		Violation:  p.MaxViolation(x),
		Message:    "outer iteration limit reached",
	}
}

// settled is the LBFGS convergence test for a feasible iterate: its
// stationarity is below OptimalityTol, or its objective matches the previous
// feasible one and its stationarity is within flatStationarity of the
// tolerance.
func (o Options) settled(viol, stationarity, obj, prevObj float64) bool {
	if viol > o.FeasibilityTol {
		return false
	}
	if stationarity <= o.OptimalityTol {
		return true
	}
	flat := !math.IsNaN(prevObj) &&
		math.Abs(obj-prevObj) <= o.OptimalityTol*math.Max(1, math.Abs(obj))
	return flat && stationarity <= flatStationarity*o.OptimalityTol
}

// converged projects x onto the variable bounds and reports it.
func (s *AugmentedLagrangian) converged(p *nlp.Problem, x []float64, iter int) *nlp.Solution {
	out := make([]float64, len(x))
	for i, b := range p.Bounds {
		out[i] = b.Clamp(x[i])
	}
	l := &lagrangian{p: p, objLocal: make([]float64, len(p.Objective.Vars))}
	return &nlp.Solution{
		Status:     nlp.Converged,
		X:          out,
		Objective:  l.objective(out, nil),
		Iterations: iter,
		Violation:  p.MaxViolation(out),
	}
}

func failure(status nlp.Status, iter int, msg string) *nlp.Solution {
	return &nlp.Solution{
		Status:     status,
		Iterations: iter,
		Violation:  math.Inf(1),
		Objective:  math.NaN(),
		Message:    msg,
	}
}

// isRecoverable reports inner-solver errors that still leave a usable
// iterate, such as a line search that could not make further progress.
func isRecoverable(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) ||
		errors.Is(err, optimize.ErrNoProgress) ||
		errors.Is(err, optimize.ErrNonDescentDirection)
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
