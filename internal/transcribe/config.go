package transcribe

import (
	"math"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/nlp"
)

const (
	DefaultSteps       = 100
	DefaultSpeed       = 1.0
	DefaultSteeringDeg = 15.0
)

// Config is the problem configuration surface.
type Config struct {
	// Steps is the horizon step count N.
	Steps int

	// Initial is the full initial state. Required.
	Initial dynamo.State

	// Target is the terminal (x, y) position. Required.
	Target []float64

	// TerminalHeading constrains heading[N] when non-nil. Left nil the
	// final heading is free; no default is ever substituted.
	TerminalHeading *float64

	SpeedBound    nlp.Bound
	SteeringBound nlp.Bound // radians

	// MaxDuration adds the row 0 <= T <= MaxDuration when positive.
	MaxDuration float64

	// Guess seeds the solver; nil selects DefaultGuess.
	Guess *Guess
}

// DefaultConfig is the reference maneuver: from the origin with zero
// heading to (0.25, 0.25), |v| <= 1 and |φ| <= 15°.
func DefaultConfig() Config {
	steer := DegToRad(DefaultSteeringDeg)
	return Config{
		Steps:         DefaultSteps,
		Initial:       dynamo.State{0, 0, 0},
		Target:        []float64{0.25, 0.25},
		SpeedBound:    nlp.Bound{Lower: -DefaultSpeed, Upper: DefaultSpeed},
		SteeringBound: nlp.Bound{Lower: -steer, Upper: steer},
	}
}

func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Heading returns a pointer for Config.TerminalHeading.
func Heading(rad float64) *float64 {
	return &rad
}

func (c *Config) validate(stateDim, controlDim int) error {
	if c.Steps <= 0 {
		return configErr("steps", "horizon step count must be positive, got %d", c.Steps)
	}
	if c.Initial == nil {
		return configErr("initial", "initial state is required")
	}
	if len(c.Initial) != stateDim {
		return configErr("initial", "got %d components, want %d", len(c.Initial), stateDim)
	}
	if !c.Initial.IsValid() {
		return configErr("initial", "state must be finite")
	}
	if c.Target == nil {
		return configErr("target", "target position is required")
	}
	if len(c.Target) != 2 {
		return configErr("target", "got %d components, want 2", len(c.Target))
	}
	if !dynamo.State(c.Target).IsValid() {
		return configErr("target", "position must be finite")
	}
	if c.TerminalHeading != nil && (math.IsNaN(*c.TerminalHeading) || math.IsInf(*c.TerminalHeading, 0)) {
		return configErr("terminal_heading", "heading must be finite")
	}
	if controlDim < 2 {
		return configErr("model", "expected speed and steering controls, model has %d", controlDim)
	}
	if err := c.SpeedBound.Validate(); err != nil {
		return configErr("speed_bound", "%v", err)
	}
	if err := c.SteeringBound.Validate(); err != nil {
		return configErr("steering_bound", "%v", err)
	}
	if math.IsNaN(c.MaxDuration) || c.MaxDuration < 0 {
		return configErr("max_duration", "must be non-negative, got %g", c.MaxDuration)
	}
	return nil
}
