package solver

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/san-kum/trajopt/internal/nlp"
)

const tracerName = "github.com/san-kum/trajopt/internal/solver"

// Method selects how each augmented Lagrangian subproblem is minimised.
type Method int

const (
	// Newton keeps variable bounds and inequality slacks strictly inside
	// their limits with a log barrier and takes regularised Newton steps.
	Newton Method = iota

	// LBFGS penalises bounds like any other row and hands the subproblem
	// to gonum/optimize.
	LBFGS
)

func (m Method) String() string {
	switch m {
	case Newton:
		return "newton"
	case LBFGS:
		return "lbfgs"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", "newton":
		return Newton, nil
	case "lbfgs":
		return LBFGS, nil
	default:
		return 0, fmt.Errorf("unknown solver method %q", s)
	}
}

// Options configures an AugmentedLagrangian. Zero fields take defaults.
type Options struct {
	// Method minimises each subproblem (default: Newton)
	Method Method

	// MaxIterations caps outer (multiplier) iterations (default: 100)
	MaxIterations int

	// InnerIterations caps Newton steps or LBFGS iterations per subproblem (default: 200)
	InnerIterations int

	// Timeout bounds the whole solve (0 = no timeout)
	Timeout time.Duration

	// FeasibilityTol is the largest accepted row or bound violation (default: 1e-6)
	FeasibilityTol float64

	// OptimalityTol is the accepted Lagrangian gradient inf-norm (default: 1e-5)
	OptimalityTol float64

	// InitialPenalty and MaxPenalty bound the quadratic penalty (defaults: 10, 1e8)
	InitialPenalty float64
	MaxPenalty     float64

	// Logger for iteration logs (optional, defaults to slog.Default())
	Logger *slog.Logger

	// Tracer for spans (optional, defaults to the global provider)
	Tracer trace.Tracer

	// Observer receives one event per outer iteration (optional)
	Observer func(Progress)
}

// Progress describes one outer iteration. Barrier is zero for LBFGS.
type Progress struct {
	Iteration       int
	Objective       float64
	Violation       float64
	Stationarity    float64
	Penalty         float64
	Barrier         float64
	InnerIterations int
}

func DefaultOptions() Options {
	return Options{
		Method:          Newton,
		MaxIterations:   100,
		InnerIterations: 200,
		FeasibilityTol:  1e-6,
		OptimalityTol:   1e-5,
		InitialPenalty:  10,
		MaxPenalty:      1e8,
	}
}

// WithBudget overrides the iteration and wall-clock limits when set.
func (o Options) WithBudget(b nlp.Budget) Options {
	if b.MaxIterations > 0 {
		o.MaxIterations = b.MaxIterations
	}
	if b.Timeout > 0 {
		o.Timeout = b.Timeout
	}
	return o
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.InnerIterations <= 0 {
		o.InnerIterations = def.InnerIterations
	}
	if o.FeasibilityTol <= 0 {
		o.FeasibilityTol = def.FeasibilityTol
	}
	if o.OptimalityTol <= 0 {
		o.OptimalityTol = def.OptimalityTol
	}
	if o.InitialPenalty <= 0 {
		o.InitialPenalty = def.InitialPenalty
	}
	if o.MaxPenalty < o.InitialPenalty {
		o.MaxPenalty = def.MaxPenalty
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	return o
}
