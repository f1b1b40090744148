package transcribe

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/integrators"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/nlp"
)

func countRows(p *nlp.Problem, prefix string) int {
	n := 0
	for _, c := range p.Constraints {
		if strings.HasPrefix(c.Name, prefix) {
			n++
		}
	}
	return n
}

func findRow(t *testing.T, p *nlp.Problem, name string) *nlp.Constraint {
	t.Helper()
	for i := range p.Constraints {
		if p.Constraints[i].Name == name {
			return &p.Constraints[i]
		}
	}
	t.Fatalf("row %q not found", name)
	return nil
}

func TestBuildDefault(t *testing.T) {
	tr, err := NewBuilder(DefaultConfig()).Build()
	require.NoError(t, err)

	p := tr.Problem
	assert.Equal(t, 3*101+2*100+1, p.NumVars)
	assert.Equal(t, 100, countRows(p, "dynamics["))
	assert.Equal(t, 0, countRows(p, "terminal_heading"), "terminal heading must stay free by default")
	assert.Equal(t, 0, countRows(p, "horizon_limit"))

	assert.Equal(t, []int{tr.Layout.Time()}, p.Objective.Vars)
	assert.Equal(t, 2.5, p.Objective.Eval([]float64{2.5}))

	steer := DegToRad(15)
	for k := 0; k < 100; k++ {
		assert.Equal(t, nlp.Bound{Lower: -1, Upper: 1}, p.Bounds[tr.Layout.Control(k, models.Speed)])
		assert.Equal(t, nlp.Bound{Lower: -steer, Upper: steer}, p.Bounds[tr.Layout.Control(k, models.Steering)])
	}
	assert.Equal(t, 0.0, p.Bounds[tr.Layout.Time()].Lower)
	assert.True(t, math.IsInf(p.Bounds[tr.Layout.Time()].Upper, 1))
	assert.True(t, math.IsInf(p.Bounds[tr.Layout.State(100, 0)].Lower, -1))

	for i, v := range p.InitialGuess {
		if i == tr.Layout.Time() {
			assert.Equal(t, 1.0, v)
		} else {
			assert.Equal(t, 0.0, v)
		}
	}
}

func TestEveryNextStateHasOneDynamicsRow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = 6
	tr, err := NewBuilder(cfg).Build()
	require.NoError(t, err)

	owners := make(map[int]int)
	for _, c := range tr.Problem.Constraints {
		if !strings.HasPrefix(c.Name, "dynamics[") {
			continue
		}
		require.Equal(t, nlp.Equality, c.Kind)
		require.Equal(t, 3, c.Dim)
		// the last three vars are state k+1
		owners[c.Vars[len(c.Vars)-3]/3]++
	}

	for k := 1; k <= cfg.Steps; k++ {
		assert.Equal(t, 1, owners[k], "state %d", k)
	}
	assert.Zero(t, owners[0])
}

func TestBuildOptionalRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TerminalHeading = Heading(0)
	cfg.MaxDuration = 0.01

	tr, err := NewBuilder(cfg).Build()
	require.NoError(t, err)

	heading := findRow(t, tr.Problem, "terminal_heading")
	assert.Equal(t, []int{tr.Layout.State(cfg.Steps, models.Heading)}, heading.Vars)
	assert.Equal(t, []float64{0}, heading.Target)

	limit := findRow(t, tr.Problem, "horizon_limit")
	assert.Equal(t, nlp.Inequality, limit.Kind)
	assert.Equal(t, []float64{0.01}, limit.Upper)
}

func TestBuildRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(c *Config)
	}{
		{"zero steps", "steps", func(c *Config) { c.Steps = 0 }},
		{"negative steps", "steps", func(c *Config) { c.Steps = -3 }},
		{"missing initial", "initial", func(c *Config) { c.Initial = nil }},
		{"short initial", "initial", func(c *Config) { c.Initial = dynamo.State{0, 0} }},
		{"NaN initial", "initial", func(c *Config) { c.Initial = dynamo.State{0, math.NaN(), 0} }},
		{"missing target", "target", func(c *Config) { c.Target = nil }},
		{"long target", "target", func(c *Config) { c.Target = []float64{1, 2, 3} }},
		{"inverted speed", "speed_bound", func(c *Config) { c.SpeedBound = nlp.Bound{Lower: 1, Upper: -1} }},
		{"inverted steering", "steering_bound", func(c *Config) { c.SteeringBound = nlp.Bound{Lower: 0.3, Upper: 0.1} }},
		{"negative duration", "max_duration", func(c *Config) { c.MaxDuration = -1 }},
		{"infinite heading", "terminal_heading", func(c *Config) { c.TerminalHeading = Heading(math.Inf(1)) }},
		{"short guess", "guess.states", func(c *Config) { c.Guess = &Guess{States: make([]dynamo.State, 3), Horizon: 1} }},
		{"negative guess horizon", "guess.horizon", func(c *Config) { c.Guess = &Guess{Horizon: -1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			tr, err := NewBuilder(cfg).Build()
			require.Error(t, err)
			assert.Nil(t, tr)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration))

			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

// rollout integrates controls from the initial state so every dynamics
// row is satisfied exactly.
func rollout(t *testing.T, tr *Transcription, controls []dynamo.Control, horizon float64) []float64 {
	t.Helper()
	states := []dynamo.State{tr.Config.Initial.Clone()}
	rk4 := integrators.NewRK4()
	dt := horizon / float64(tr.Layout.Steps)
	for k := 0; k < tr.Layout.Steps; k++ {
		states = append(states, rk4.Step(models.NewKinematic(), states[k], controls[k], 0, dt))
	}
	x, err := Guess{States: states, Controls: controls, Horizon: horizon}.Vector(tr.Layout)
	require.NoError(t, err)
	return x
}

func TestDynamicsResidualVanishesOnRollout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = 10
	tr, err := NewBuilder(cfg).Build()
	require.NoError(t, err)

	controls := make([]dynamo.Control, cfg.Steps)
	for k := range controls {
		controls[k] = dynamo.Control{0.8 - 0.1*float64(k), 0.2}
	}
	x := rollout(t, tr, controls, 2.0)

	for _, c := range tr.Problem.Constraints {
		if strings.HasPrefix(c.Name, "dynamics[") || c.Name == "initial" {
			assert.InDelta(t, 0.0, c.Violation(x), 1e-12, c.Name)
		}
	}
	assert.Greater(t, findRow(t, tr.Problem, "terminal").Violation(x), 0.0)
}

func TestDynamicsJacobianMatchesFiniteDifferences(t *testing.T) {
	for _, name := range []string{"rk4", "euler"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Steps = 4

			factory := func() dynamo.Integrator { return integrators.NewRK4() }
			if name == "euler" {
				factory = func() dynamo.Integrator { return integrators.NewEuler() }
			}
			tr, err := NewBuilder(cfg, WithIntegrator(factory)).Build()
			require.NoError(t, err)

			row := findRow(t, tr.Problem, "dynamics[2]")
			require.NotNil(t, row.Jacobian)

			z := []float64{0.1, 0.05, 0.3, 0.7, -0.2, 1.7, 0.4, 0.2, 0.35}
			got := mat.NewDense(row.Dim, len(row.Vars), nil)
			row.Jacobian(got, z)

			want := mat.NewDense(row.Dim, len(row.Vars), nil)
			fd.Jacobian(want, row.Eval, z, &fd.JacobianSettings{Formula: fd.Central})

			assert.True(t, mat.EqualApprox(got, want, 1e-7), "got\n%v\nwant\n%v", mat.Formatted(got), mat.Formatted(want))
		})
	}
}

func TestDynamicsJacobianOmittedWithoutLinearizer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = 3

	// the wrapper hides Linearize
	sys := struct{ dynamo.System }{models.NewKinematic()}
	tr, err := NewBuilder(cfg, WithSystem(sys)).Build()
	require.NoError(t, err)

	assert.Nil(t, findRow(t, tr.Problem, "dynamics[0]").Jacobian)
}

func TestGuessVector(t *testing.T) {
	l := NewLayout(2, 3, 2)

	x, err := Guess{
		States:   []dynamo.State{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
		Controls: []dynamo.Control{{0.1, 0.2}, {0.3, 0.4}},
		Horizon:  2.5,
	}.Vector(l)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 0.1, 0.2, 0.3, 0.4, 2.5}, x)

	x, err = DefaultGuess().Vector(l)
	require.NoError(t, err)
	assert.Equal(t, 1.0, x[l.Time()])

	_, err = Guess{Controls: make([]dynamo.Control, 3)}.Vector(l)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
