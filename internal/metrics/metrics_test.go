package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/trajectory"
)

func TestPathLength(t *testing.T) {
	m := NewPathLength()

	m.Observe(dynamo.State{0, 0, 0}, dynamo.Control{1, 0}, 0)
	m.Observe(dynamo.State{3, 4, 0}, dynamo.Control{1, 0}, 1)
	m.Observe(dynamo.State{3, 5, 0}, nil, 2)

	if got := m.Value(); math.Abs(got-6) > 1e-12 {
		t.Errorf("expected path length 6, got %f", got)
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero length after reset")
	}
}

func TestReversals(t *testing.T) {
	m := NewReversals(0.01)
	x := dynamo.State{0, 0, 0}

	for _, v := range []float64{1, 0.5, 0, -1, -0.005, -1, 1, 1} {
		m.Observe(x, dynamo.Control{v, 0}, 0)
	}
	m.Observe(x, nil, 0)

	if got := m.Value(); got != 2 {
		t.Errorf("expected 2 reversals, got %f", got)
	}
}

func TestTotalTurn(t *testing.T) {
	m := NewTotalTurn()
	for _, th := range []float64{0, 0.2, -0.1, -0.1} {
		m.Observe(dynamo.State{0, 0, th}, nil, 0)
	}

	if got := m.Value(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected total turn 0.5, got %f", got)
	}
}

func TestControlEffortSkipsTerminal(t *testing.T) {
	m := NewControlEffort()
	m.Observe(dynamo.State{}, dynamo.Control{3, 4}, 0)
	m.Observe(dynamo.State{}, dynamo.Control{0, 0}, 1)
	m.Observe(dynamo.State{}, nil, 2)

	want := math.Sqrt(25.0 / 2)
	if got := m.Value(); math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestSaturation(t *testing.T) {
	bounds := []nlp.Bound{{Lower: -1, Upper: 1}, {Lower: -0.2, Upper: 0.2}}
	m := NewSaturation(bounds, 1e-6)
	x := dynamo.State{0, 0, 0}

	m.Observe(x, dynamo.Control{1, 0}, 0)
	m.Observe(x, dynamo.Control{0.5, -0.2}, 0)
	m.Observe(x, dynamo.Control{0.5, 0.1}, 0)
	m.Observe(x, dynamo.Control{-1, 0.2}, 0)
	m.Observe(x, nil, 0)

	if got := m.Value(); math.Abs(got-0.75) > 1e-12 {
		t.Errorf("expected saturation 0.75, got %f", got)
	}
}

func TestEvaluate(t *testing.T) {
	traj := &trajectory.Trajectory{
		Steps:    2,
		Horizon:  2,
		Time:     []float64{0, 1, 2},
		X:        []float64{0, 1, 1},
		Y:        []float64{0, 0, -1},
		Heading:  []float64{0, 0, 0.3},
		Speed:    []float64{1, -1},
		Steering: []float64{0, 0.3},
	}
	speed := nlp.Bound{Lower: -1, Upper: 1}
	steer := nlp.Bound{Lower: -0.3, Upper: 0.3}

	got := Evaluate(traj, Standard(speed, steer)...)

	want := map[string]float64{
		"path_length": 2,
		"reversals":   1,
		"total_turn":  0.3,
		"control_rms": math.Sqrt((1 + 1 + 0.09) / 2),
		"saturation":  1,
	}
	for name, w := range want {
		if math.Abs(got[name]-w) > 1e-12 {
			t.Errorf("%s: expected %f, got %f", name, w, got[name])
		}
	}
}
