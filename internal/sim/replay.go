package sim

import (
	"context"
	"math"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/metrics"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/trajectory"
)

// Schedule is a zero-order hold over a control sequence: control k is
// held on [k·Interval, (k+1)·Interval).
type Schedule struct {
	Controls []dynamo.Control
	Interval float64
}

func (s *Schedule) Compute(x dynamo.State, t float64) dynamo.Control {
	k := 0
	if s.Interval > 0 {
		// absorbs rounding when t lands on a knot
		k = int(math.Floor(t/s.Interval + 1e-9))
	}
	k = max(0, min(k, len(s.Controls)-1))
	return s.Controls[k]
}

// ReplayResult compares the simulated states with the planned grid.
type ReplayResult struct {
	*Result

	// MaxDeviation is the largest planar distance between the replay and
	// the plan over all grid points.
	MaxDeviation float64

	// FinalDeviation is the planar distance at grid point N.
	FinalDeviation float64
}

// Replay integrates the trajectory's controls open loop from its initial
// state with substeps integrator steps per control interval.
func Replay(ctx context.Context, traj *trajectory.Trajectory, sys dynamo.System, integ dynamo.Integrator, substeps int, ms ...metrics.Metric) (*ReplayResult, error) {
	if substeps < 1 {
		substeps = 1
	}
	interval := traj.Horizon / float64(traj.Steps)
	controls := make([]dynamo.Control, traj.Steps)
	for k := range controls {
		controls[k] = traj.Control(k)
	}

	s := New(sys, integ, &Schedule{Controls: controls, Interval: interval})
	for _, m := range ms {
		s.AddMetric(m)
	}

	res, err := s.Run(ctx, traj.State(0), Config{
		Dt:            interval / float64(substeps),
		Steps:         traj.Steps * substeps,
		ValidateState: true,
	})
	if err != nil {
		return nil, err
	}

	out := &ReplayResult{Result: res}
	for k := 0; k <= traj.Steps; k++ {
		i := k * substeps
		if i >= len(res.States) {
			out.MaxDeviation = math.Inf(1)
			break
		}
		d := planar(res.States[i], traj.State(k))
		out.MaxDeviation = math.Max(out.MaxDeviation, d)
		if k == traj.Steps {
			out.FinalDeviation = d
		}
	}
	if len(res.States) <= traj.Steps*substeps {
		out.FinalDeviation = math.Inf(1)
	}
	return out, nil
}

func planar(a, b dynamo.State) float64 {
	return math.Hypot(a[models.X]-b[models.X], a[models.Y]-b[models.Y])
}
