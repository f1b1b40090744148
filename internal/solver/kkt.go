package solver

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

const (
	// a variable shared by more rows than this moves to the dense block
	minDenseRows = 8
	maxDenseVars = 8
)

// kkt is the symmetric Newton matrix of one problem. Variables that appear
// in many rows (the free horizon of a transcription) are moved to a small
// dense trailing block and the rest are ordered by first appearance, so
// the leading block is banded. Problems without that shape use a dense
// matrix.
type kkt struct {
	n   int
	pos []int

	banded bool
	nb, na int
	kd     int

	band   *mat.SymBandDense
	cross  *mat.Dense
	corner *mat.SymDense
	full   *mat.SymDense

	// factorisation scratch
	bwork  *mat.SymBandDense
	fwork  *mat.SymDense
	bchol  mat.BandCholesky
	dchol  mat.Cholesky
	schur  *mat.SymDense
	schol  mat.Cholesky
	spread *mat.Dense
	prod   *mat.Dense

	perm  *mat.VecDense
	head  *mat.VecDense
	tail  *mat.VecDense
	solve *mat.VecDense
}

// newKKT lays out an n×n matrix whose non-zeros are confined to the
// cliques named by groups.
func newKKT(n int, groups [][]int) *kkt {
	count := make([]int, n)
	for _, g := range groups {
		for _, v := range g {
			count[v]++
		}
	}
	limit := max(minDenseRows, len(groups)/4)
	isDense := make([]bool, n)
	var dense []int
	for v, c := range count {
		if c > limit {
			isDense[v] = true
			dense = append(dense, v)
		}
	}

	pos := make([]int, n)
	for i := range pos {
		pos[i] = -1
	}
	next := 0
	for _, g := range groups {
		for _, v := range g {
			if !isDense[v] && pos[v] < 0 {
				pos[v] = next
				next++
			}
		}
	}
	for v := range pos {
		if !isDense[v] && pos[v] < 0 {
			pos[v] = next
			next++
		}
	}
	nb := next
	for i, v := range dense {
		pos[v] = nb + i
	}

	kd := 0
	for _, g := range groups {
		for _, a := range g {
			for _, b := range g {
				if !isDense[a] && !isDense[b] {
					kd = max(kd, abs(pos[a]-pos[b]))
				}
			}
		}
	}

	k := &kkt{n: n, pos: pos}
	if len(dense) > maxDenseVars || 4*(kd+1) >= nb {
		for i := range k.pos {
			k.pos[i] = i
		}
		k.full = mat.NewSymDense(n, nil)
		k.fwork = mat.NewSymDense(n, nil)
	} else {
		k.banded = true
		k.nb, k.na, k.kd = nb, len(dense), kd
		k.band = mat.NewSymBandDense(nb, kd, nil)
		k.bwork = mat.NewSymBandDense(nb, kd, nil)
		k.head = mat.NewVecDense(nb, nil)
		if k.na > 0 {
			k.cross = mat.NewDense(nb, k.na, nil)
			k.corner = mat.NewSymDense(k.na, nil)
			k.schur = mat.NewSymDense(k.na, nil)
			k.spread = mat.NewDense(nb, k.na, nil)
			k.prod = mat.NewDense(k.na, k.na, nil)
			k.tail = mat.NewVecDense(k.na, nil)
		}
	}
	k.perm = mat.NewVecDense(n, nil)
	k.solve = mat.NewVecDense(n, nil)
	return k
}

func (k *kkt) reset() {
	if !k.banded {
		k.full.Zero()
		return
	}
	k.band.Zero()
	if k.na > 0 {
		k.cross.Zero()
		k.corner.Zero()
	}
}

// add adds v to entries (i, j) and (j, i) of the matrix, once when i == j.
func (k *kkt) add(i, j int, v float64) {
	p, q := k.pos[i], k.pos[j]
	if p > q {
		p, q = q, p
	}
	switch {
	case !k.banded:
		k.full.SetSym(p, q, k.full.At(p, q)+v)
	case q < k.nb:
		k.band.SetSymBand(p, q, k.band.At(p, q)+v)
	case p < k.nb:
		k.cross.Set(p, q-k.nb, k.cross.At(p, q-k.nb)+v)
	default:
		a, b := p-k.nb, q-k.nb
		k.corner.SetSym(a, b, k.corner.At(a, b)+v)
	}
}

// addBlock adds the symmetric local matrix m over vars.
func (k *kkt) addBlock(vars []int, m *mat.SymDense) {
	for a, va := range vars {
		for b := a; b < len(vars); b++ {
			v := m.At(a, b)
			if v == 0 {
				continue
			}
			if a != b && va == vars[b] {
				v *= 2
			}
			k.add(va, vars[b], v)
		}
	}
}

// factorize factors the matrix plus shift·I and reports whether it is
// positive definite.
func (k *kkt) factorize(shift float64) bool {
	if !k.banded {
		k.fwork.CopySym(k.full)
		for i := 0; i < k.n; i++ {
			k.fwork.SetSym(i, i, k.fwork.At(i, i)+shift)
		}
		return k.dchol.Factorize(k.fwork)
	}

	copy(k.bwork.RawSymBand().Data, k.band.RawSymBand().Data)
	for i := 0; i < k.nb; i++ {
		k.bwork.SetSymBand(i, i, k.bwork.At(i, i)+shift)
	}
	if !k.bchol.Factorize(k.bwork) {
		return false
	}
	if k.na == 0 {
		return true
	}

	// Schur complement of the banded block
	if err := conditionOK(k.bchol.SolveTo(k.spread, k.cross)); err != nil {
		return false
	}
	k.prod.Mul(k.cross.T(), k.spread)
	for a := 0; a < k.na; a++ {
		for b := a; b < k.na; b++ {
			v := k.corner.At(a, b) - 0.5*(k.prod.At(a, b)+k.prod.At(b, a))
			if a == b {
				v += shift
			}
			k.schur.SetSym(a, b, v)
		}
	}
	return k.schol.Factorize(k.schur)
}

// solveTo writes the solution of H·dst = b after a successful factorize.
func (k *kkt) solveTo(dst, b []float64) error {
	for v, p := range k.pos {
		k.perm.SetVec(p, b[v])
	}

	if !k.banded {
		if err := conditionOK(k.dchol.SolveVecTo(k.solve, k.perm)); err != nil {
			return err
		}
	} else {
		head := k.perm.SliceVec(0, k.nb)
		if err := conditionOK(k.bchol.SolveVecTo(k.head, head)); err != nil {
			return err
		}
		if k.na == 0 {
			k.solve.CopyVec(k.head)
		} else {
			k.tail.MulVec(k.cross.T(), k.head)
			k.tail.SubVec(k.perm.SliceVec(k.nb, k.n), k.tail)
			if err := conditionOK(k.schol.SolveVecTo(k.tail, k.tail)); err != nil {
				return err
			}
			solveHead := k.solve.SliceVec(0, k.nb).(*mat.VecDense)
			solveHead.MulVec(k.spread, k.tail)
			solveHead.SubVec(k.head, solveHead)
			k.solve.SliceVec(k.nb, k.n).(*mat.VecDense).CopyVec(k.tail)
		}
	}

	for v, p := range k.pos {
		dst[v] = k.solve.AtVec(p)
	}
	return nil
}

// conditionOK drops the ill-conditioning warning gonum attaches to an
// otherwise usable solve.
func conditionOK(err error) error {
	var c mat.Condition
	if errors.As(err, &c) {
		return nil
	}
	return err
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
