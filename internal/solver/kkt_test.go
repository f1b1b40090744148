package solver

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// chain links each variable to the next and every link to one shared
// variable, the shape of a transcription with a free horizon.
func chain(n int) [][]int {
	shared := n - 1
	groups := make([][]int, 0, n-2)
	for i := 0; i+1 < shared; i++ {
		groups = append(groups, []int{i, i + 1, shared})
	}
	return groups
}

func path(n int) [][]int {
	groups := make([][]int, 0, n-1)
	for i := 0; i+1 < n; i++ {
		groups = append(groups, []int{i, i + 1})
	}
	return groups
}

// fill writes a diagonally dominant matrix over groups into both k and a
// dense reference.
func fill(k *kkt, groups [][]int, n int, rng *rand.Rand) *mat.SymDense {
	ref := mat.NewSymDense(n, nil)
	k.reset()
	for _, g := range groups {
		for a := range g {
			for b := a + 1; b < len(g); b++ {
				v := rng.Float64() - 0.5
				k.add(g[a], g[b], v)
				ref.SetSym(g[a], g[b], ref.At(g[a], g[b])+v)
			}
		}
	}
	for i := 0; i < n; i++ {
		v := float64(n) + rng.Float64()
		k.add(i, i, v)
		ref.SetSym(i, i, ref.At(i, i)+v)
	}
	return ref
}

func denseSolve(t *testing.T, a *mat.SymDense, b []float64) []float64 {
	t.Helper()
	var chol mat.Cholesky
	require.True(t, chol.Factorize(a))
	var x mat.VecDense
	require.NoError(t, chol.SolveVecTo(&x, mat.NewVecDense(len(b), b)))
	return x.RawVector().Data
}

func TestKKTLayout(t *testing.T) {
	k := newKKT(60, chain(60))
	require.True(t, k.banded)
	assert.Equal(t, 1, k.na)
	assert.Equal(t, 59, k.nb)
	assert.Equal(t, 1, k.kd)
	assert.Equal(t, 59, k.pos[59])

	// one clique over everything has no band to exploit
	all := make([]int, 10)
	for i := range all {
		all[i] = i
	}
	k = newKKT(10, [][]int{all})
	assert.False(t, k.banded)
}

func TestKKTSolveMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	all := make([]int, 12)
	for i := range all {
		all[i] = i
	}
	cases := []struct {
		name   string
		n      int
		groups [][]int
	}{
		{"banded with shared variable", 60, chain(60)},
		{"banded only", 30, path(30)},
		{"dense", 12, [][]int{all}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k := newKKT(tc.n, tc.groups)
			ref := fill(k, tc.groups, tc.n, rng)
			require.True(t, k.factorize(0))

			b := make([]float64, tc.n)
			for i := range b {
				b[i] = rng.NormFloat64()
			}
			got := make([]float64, tc.n)
			require.NoError(t, k.solveTo(got, b))

			want := denseSolve(t, ref, b)
			for i := range want {
				assert.InDelta(t, want[i], got[i], 1e-10, "component %d", i)
			}
		})
	}
}

func TestKKTShift(t *testing.T) {
	groups := chain(40)
	k := newKKT(40, groups)
	k.reset()
	for i := 0; i < 40; i++ {
		k.add(i, i, -1)
	}
	assert.False(t, k.factorize(0))
	require.True(t, k.factorize(3))

	b := make([]float64, 40)
	for i := range b {
		b[i] = float64(i)
	}
	got := make([]float64, 40)
	require.NoError(t, k.solveTo(got, b))
	for i := range b {
		assert.InDelta(t, b[i]/2, got[i], 1e-12)
	}
}

func TestKKTAddBlockRepeatedVariable(t *testing.T) {
	k := newKKT(2, [][]int{{0, 1}})
	k.reset()
	m := mat.NewSymDense(3, []float64{
		1, 2, 0,
		2, 1, 0,
		0, 0, 5,
	})
	k.addBlock([]int{0, 0, 1}, m)

	// entries (0,0), (0,1), (1,0) and (1,1) of m all land on variable 0
	assert.Equal(t, 6.0, k.full.At(0, 0))
	assert.Equal(t, 5.0, k.full.At(1, 1))
	assert.Zero(t, k.full.At(0, 1))
}
