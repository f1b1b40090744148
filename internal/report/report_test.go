package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/trajectory"
)

func sample() *trajectory.Trajectory {
	return &trajectory.Trajectory{
		Status:   nlp.Converged,
		Steps:    4,
		Horizon:  2,
		Time:     trajectory.TimeGrid(2, 4),
		X:        []float64{0, 0.1, 0.15, 0.2, 0.25},
		Y:        []float64{0, 0.05, 0.1, 0.2, 0.25},
		Heading:  []float64{0, 0.1, 0.2, 0.1, 0},
		Speed:    []float64{1, 1, -1, 1},
		Steering: []float64{0.26, 0.26, -0.26, -0.26},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sample(), map[string]float64{"reversals": 2, "path_length": 0.4}))

	out := buf.String()
	assert.Contains(t, out, "converged")
	assert.Contains(t, out, "speed v [m/s]")
	assert.Contains(t, out, "steering φ [rad]")
	assert.Contains(t, out, "reversals")
	assert.Less(t, strings.Index(out, "path_length"), strings.Index(out, "reversals"))
}

func TestRenderRefusesNonConverged(t *testing.T) {
	traj := sample()
	traj.Status = nlp.Infeasible

	var buf bytes.Buffer
	err := Render(&buf, traj, nil)
	assert.ErrorIs(t, err, trajectory.ErrNotConverged)

	var se *nlp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, nlp.Infeasible, se.Status)
	assert.Zero(t, buf.Len())

	assert.ErrorIs(t, Render(&buf, nil, nil), trajectory.ErrNotConverged)
	assert.ErrorIs(t, Positions(&buf, nil), trajectory.ErrNotConverged)
}

func TestPositions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Positions(&buf, sample()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "x_pos_opt [0 0.1 0.15 0.2 0.25]", lines[0])
	assert.Equal(t, "y_pos_opt [0 0.05 0.1 0.2 0.25]", lines[1])
	assert.Equal(t, "2", lines[2])
}
