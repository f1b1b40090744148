package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutNumVars(t *testing.T) {
	for _, n := range []int{1, 2, 5, 100, 1000} {
		l := NewLayout(n, 3, 2)
		assert.Equal(t, 3*(n+1)+2*n+1, l.NumVars(), "N=%d", n)
	}
}

func TestLayoutIndicesAreDisjointAndDense(t *testing.T) {
	l := NewLayout(7, 3, 2)
	seen := make(map[int]string)

	mark := func(idx int, what string) {
		prev, dup := seen[idx]
		require.False(t, dup, "index %d used by %s and %s", idx, prev, what)
		seen[idx] = what
	}

	for k := 0; k <= l.Steps; k++ {
		for i := 0; i < l.StateDim; i++ {
			mark(l.State(k, i), "state")
		}
	}
	for k := 0; k < l.Steps; k++ {
		for j := 0; j < l.ControlDim; j++ {
			mark(l.Control(k, j), "control")
		}
	}
	mark(l.Time(), "time")

	assert.Len(t, seen, l.NumVars())
	for idx := 0; idx < l.NumVars(); idx++ {
		assert.Contains(t, seen, idx)
	}
}

func TestLayoutRejectsOutOfRange(t *testing.T) {
	l := NewLayout(4, 3, 2)

	assert.NotPanics(t, func() { l.State(4, 2) })
	assert.Panics(t, func() { l.State(5, 0) })
	assert.Panics(t, func() { l.State(-1, 0) })
	assert.Panics(t, func() { l.State(0, 3) })

	assert.NotPanics(t, func() { l.Control(3, 1) })
	assert.Panics(t, func() { l.Control(4, 0) }, "there is no control at k = N")
	assert.Panics(t, func() { l.Control(0, 2) })
}

func TestVariablesView(t *testing.T) {
	l := NewLayout(2, 3, 2)
	x := make([]float64, l.NumVars())
	for i := range x {
		x[i] = float64(i)
	}

	v, err := l.View(x)
	require.NoError(t, err)

	assert.Equal(t, []float64{6, 7, 8}, []float64(v.State(2)))
	assert.Equal(t, []float64{11, 12}, []float64(v.Control(1)))
	assert.Equal(t, 13.0, v.Horizon())

	_, err = l.View(x[:5])
	assert.Error(t, err)
}
