package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/san-kum/trajopt/internal/nlp"
)

// mixedProblem has an equality row, a two-sided inequality row, and
// bounded, half-bounded and free variables.
func mixedProblem() *nlp.Problem {
	return &nlp.Problem{
		NumVars: 3,
		Objective: nlp.Objective{
			Vars: []int{0, 2},
			Eval: func(x []float64) float64 { return x[0]*x[0] + x[1] },
		},
		Constraints: []nlp.Constraint{
			nlp.NewEquality("eq", []int{0, 1}, []float64{1},
				func(dst, x []float64) { dst[0] = x[0] * x[1] }, nil),
			nlp.NewInequality("box", []int{1, 2}, []float64{-1}, []float64{0.5},
				func(dst, x []float64) { dst[0] = x[0] - x[1] }, nil),
		},
		Bounds:       []nlp.Bound{nlp.Free(), {Lower: -2, Upper: 3}, nlp.AtLeast(0)},
		InitialGuess: []float64{0.7, 5, -1},
	}
}

func TestBarrierStartIsInterior(t *testing.T) {
	st := newNewtonState(mixedProblem(), 10)
	require.Equal(t, 4, st.nw)
	require.Equal(t, 2, st.m)

	for i, w := range st.w {
		assert.Greater(t, w, st.lower[i], "entry %d", i)
		assert.Less(t, w, st.upper[i], "entry %d", i)
	}
	// the slack starts at its row's value, pushed inside [-1, 0.5]
	assert.InDelta(t, 0.5-0.01, st.w[3], 1e-12)
	assert.False(t, math.IsInf(st.merit(st.w), 0))
}

func TestBarrierMeritGradient(t *testing.T) {
	st := newNewtonState(mixedProblem(), 7)
	st.y[0], st.y[1] = 0.4, -0.3
	st.mu = 0.05
	copy(st.w, []float64{0.7, 0.9, 0.2, -0.4})

	st.meritGradient()
	got := append([]float64(nil), st.g...)

	want := fd.Gradient(nil, func(w []float64) float64 { return st.merit(w) },
		append([]float64(nil), st.w...), &fd.Settings{Formula: fd.Central})
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d", i)
	}
}

func TestBarrierMeritOutsideBounds(t *testing.T) {
	st := newNewtonState(mixedProblem(), 10)
	w := append([]float64(nil), st.w...)
	w[1] = 3
	assert.True(t, math.IsInf(st.merit(w), 1))
}

func TestNewtonFixedVariable(t *testing.T) {
	p := &nlp.Problem{
		NumVars: 2,
		Objective: nlp.Objective{
			Vars: []int{0, 1},
			Eval: func(x []float64) float64 { return x[0]*x[0] + (x[1]-1)*(x[1]-1) },
		},
		Bounds:       []nlp.Bound{{Lower: 2, Upper: 2}, nlp.Free()},
		InitialGuess: []float64{0, 0},
	}

	sol, err := New(quietOptions()).Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, nlp.Converged, sol.Status, sol.Message)
	assert.Equal(t, 2.0, sol.X[0])
	assert.InDelta(t, 1, sol.X[1], 1e-4)
}

func TestLocallyInfeasible(t *testing.T) {
	t.Run("conflicting rows at their compromise", func(t *testing.T) {
		assert.True(t, locallyInfeasible(conflictingProblem(), []float64{1.5}))
	})
	t.Run("conflicting rows away from it", func(t *testing.T) {
		assert.False(t, locallyInfeasible(conflictingProblem(), []float64{1.2}))
	})
	t.Run("feasible point", func(t *testing.T) {
		assert.False(t, locallyInfeasible(degenerateProblem(), []float64{0}))
	})
	t.Run("slowly vanishing violation", func(t *testing.T) {
		assert.False(t, locallyInfeasible(degenerateProblem(), []float64{0.05}))
	})
	t.Run("blocked by a bound", func(t *testing.T) {
		// x >= 3 cannot reach x^2 = 4's root at 2
		p := &nlp.Problem{
			NumVars: 1,
			Objective: nlp.Objective{
				Vars: []int{0},
				Eval: func(x []float64) float64 { return 0 },
			},
			Constraints: []nlp.Constraint{
				nlp.NewEquality("square", []int{0}, []float64{4},
					func(dst, x []float64) { dst[0] = x[0] * x[0] }, nil),
			},
			Bounds:       []nlp.Bound{nlp.AtLeast(3)},
			InitialGuess: []float64{3},
		}
		assert.True(t, locallyInfeasible(p, []float64{3}))
		assert.False(t, locallyInfeasible(p, []float64{3.5}))
	})
}
