package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/solver"
	"github.com/san-kum/trajopt/internal/transcribe"
)

const (
	DefaultModel        = "kinematic"
	DefaultIntegrator   = "rk4"
	DefaultGuessHorizon = 1.0
)

// Config is the file form of a planning problem. Angles are in degrees.
type Config struct {
	Model      string `yaml:"model"`
	Integrator string `yaml:"integrator"`
	Steps      int    `yaml:"steps"`

	Initial StateConfig `yaml:"initial"`
	Target  PointConfig `yaml:"target"`

	// TerminalHeadingDeg pins heading[N] when set; absent means free.
	TerminalHeadingDeg *float64 `yaml:"terminal_heading_deg,omitempty"`

	Speed       LimitConfig `yaml:"speed"`
	SteeringDeg LimitConfig `yaml:"steering_deg"`
	MaxDuration float64     `yaml:"max_duration,omitempty"`

	Guess  GuessConfig  `yaml:"guess"`
	Solver SolverConfig `yaml:"solver"`
}

type StateConfig struct {
	X          float64 `yaml:"x"`
	Y          float64 `yaml:"y"`
	HeadingDeg float64 `yaml:"heading_deg"`
}

type PointConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type LimitConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type GuessConfig struct {
	Horizon float64 `yaml:"horizon"`
}

type SolverConfig struct {
	Method          string  `yaml:"method"`
	MaxIterations   int     `yaml:"max_iterations"`
	InnerIterations int     `yaml:"inner_iterations"`
	Timeout         string  `yaml:"timeout,omitempty"`
	FeasibilityTol  float64 `yaml:"feasibility_tol"`
	OptimalityTol   float64 `yaml:"optimality_tol"`
}

func DefaultConfig() *Config {
	opts := solver.DefaultOptions()
	return &Config{
		Model:      DefaultModel,
		Integrator: DefaultIntegrator,
		Steps:      transcribe.DefaultSteps,
		Target:     PointConfig{X: 0.25, Y: 0.25},
		Speed: LimitConfig{
			Min: -transcribe.DefaultSpeed,
			Max: transcribe.DefaultSpeed,
		},
		SteeringDeg: LimitConfig{
			Min: -transcribe.DefaultSteeringDeg,
			Max: transcribe.DefaultSteeringDeg,
		},
		Guess: GuessConfig{Horizon: DefaultGuessHorizon},
		Solver: SolverConfig{
			Method:          opts.Method.String(),
			MaxIterations:   opts.MaxIterations,
			InnerIterations: opts.InnerIterations,
			FeasibilityTol:  opts.FeasibilityTol,
			OptimalityTol:   opts.OptimalityTol,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.TerminalHeadingDeg != nil {
		h := *c.TerminalHeadingDeg
		out.TerminalHeadingDeg = &h
	}
	return &out
}

// Problem converts the file form to radians and the transcription's
// configuration surface. Validation is left to the transcription builder.
func (c *Config) Problem() transcribe.Config {
	p := transcribe.Config{
		Steps: c.Steps,
		Initial: dynamo.State{
			c.Initial.X,
			c.Initial.Y,
			transcribe.DegToRad(c.Initial.HeadingDeg),
		},
		Target:     []float64{c.Target.X, c.Target.Y},
		SpeedBound: nlp.Bound{Lower: c.Speed.Min, Upper: c.Speed.Max},
		SteeringBound: nlp.Bound{
			Lower: transcribe.DegToRad(c.SteeringDeg.Min),
			Upper: transcribe.DegToRad(c.SteeringDeg.Max),
		},
		MaxDuration: c.MaxDuration,
		Guess:       &transcribe.Guess{Horizon: c.Guess.Horizon},
	}
	if c.TerminalHeadingDeg != nil {
		p.TerminalHeading = transcribe.Heading(transcribe.DegToRad(*c.TerminalHeadingDeg))
	}
	return p
}

// SolverOptions fills the solver budget and tolerances. Unset fields keep
// the solver defaults.
func (c *Config) SolverOptions() (solver.Options, error) {
	opts := solver.DefaultOptions()
	s := c.Solver

	method, err := solver.ParseMethod(s.Method)
	if err != nil {
		return opts, fmt.Errorf("config: solver.method: %w", err)
	}
	opts.Method = method

	var timeout time.Duration
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return opts, fmt.Errorf("config: solver.timeout: %w", err)
		}
		if d < 0 {
			return opts, fmt.Errorf("config: solver.timeout must be non-negative, got %s", s.Timeout)
		}
		timeout = d
	}
	opts = opts.WithBudget(nlp.Budget{MaxIterations: s.MaxIterations, Timeout: timeout})

	if s.InnerIterations > 0 {
		opts.InnerIterations = s.InnerIterations
	}
	if s.FeasibilityTol > 0 {
		opts.FeasibilityTol = s.FeasibilityTol
	}
	if s.OptimalityTol > 0 {
		opts.OptimalityTol = s.OptimalityTol
	}
	return opts, nil
}
