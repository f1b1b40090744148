package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/nlp"
)

const (
	initialBarrier = 0.1
	// the barrier shrinks only once the violation is within this multiple of it
	barrierGate = 10.0
	// distance from each bound of the starting point, relative to its size
	boundPush = 1e-2
	// fraction of the distance to a bound a single step may cover
	boundFraction = 0.995
	// bound multipliers are kept within this factor of mu/distance
	multiplierSpread = 1e10
	boundRelax       = 1e-8

	armijo       = 1e-4
	maxBacktrack = 60

	firstShift  = 1e-4
	shiftGrowth = 8.0
	shiftDecay  = 1.0 / 3
	maxShift    = 1e40
)

var (
	errLineSearch    = errors.New("line search made no progress")
	errFactorization = errors.New("newton matrix could not be regularised")
)

// barrier is the slack form of a problem: every inequality row g gets a
// slack s with g - s = 0 and the row's limits as bounds on s. Its vector
// w holds the problem's variables followed by the slacks.
type barrier struct {
	p  *nlp.Problem
	n  int
	nw int
	m  int

	lower []float64
	upper []float64

	// per constraint
	offset []int
	slack  []int
	group  [][]int
	local  [][]float64
	value  [][]float64
	jac    []*mat.Dense
	curv   []*mat.Dense
	block  []*mat.SymDense

	objVars  []int
	objLocal []float64
	objGrad  []float64
	objCurv  *mat.Dense
	objBlock *mat.SymDense

	sys *kkt
}

func newBarrier(p *nlp.Problem) *barrier {
	nc := len(p.Constraints)
	b := &barrier{
		p:        p,
		n:        p.NumVars,
		offset:   make([]int, nc),
		slack:    make([]int, nc),
		group:    make([][]int, 0, nc+1),
		local:    make([][]float64, nc),
		value:    make([][]float64, nc),
		jac:      make([]*mat.Dense, nc),
		curv:     make([]*mat.Dense, nc),
		block:    make([]*mat.SymDense, nc),
		objVars:  p.Objective.Vars,
		objLocal: make([]float64, len(p.Objective.Vars)),
		objGrad:  make([]float64, len(p.Objective.Vars)),
	}

	b.nw = b.n
	for ci := range p.Constraints {
		c := &p.Constraints[ci]
		b.offset[ci] = b.m
		b.m += c.Dim
		b.slack[ci] = -1
		g := append([]int(nil), c.Vars...)
		if c.Kind == nlp.Inequality {
			b.slack[ci] = b.nw
			for i := 0; i < c.Dim; i++ {
				g = append(g, b.nw+i)
			}
			b.nw += c.Dim
		}
		b.group = append(b.group, g)

		nz := len(c.Vars)
		b.local[ci] = make([]float64, nz)
		b.value[ci] = make([]float64, c.Dim)
		b.jac[ci] = mat.NewDense(c.Dim, nz, nil)
		b.curv[ci] = mat.NewDense(nz, nz, nil)
		b.block[ci] = mat.NewSymDense(nz, nil)
	}
	if nz := len(b.objVars); nz > 0 {
		b.group = append(b.group, b.objVars)
		b.objCurv = mat.NewDense(nz, nz, nil)
		b.objBlock = mat.NewSymDense(nz, nil)
	}

	b.lower = make([]float64, b.nw)
	b.upper = make([]float64, b.nw)
	for i, bd := range p.Bounds {
		b.lower[i], b.upper[i] = bd.Lower, bd.Upper
	}
	for ci := range p.Constraints {
		c := &p.Constraints[ci]
		if b.slack[ci] < 0 {
			continue
		}
		for i := 0; i < c.Dim; i++ {
			b.lower[b.slack[ci]+i] = c.Lower[i]
			b.upper[b.slack[ci]+i] = c.Upper[i]
		}
	}

	for i := range b.lower {
		// fixed entries get a sliver of room for the barrier
		if gap := b.upper[i] - b.lower[i]; gap < boundRelax {
			pad := boundRelax * math.Max(1, math.Abs(b.lower[i]))
			b.lower[i] -= pad
			b.upper[i] += pad
		}
	}

	b.sys = newKKT(b.nw, b.group)
	return b
}

func (b *barrier) hasLower(i int) bool { return !math.IsInf(b.lower[i], -1) }
func (b *barrier) hasUpper(i int) bool { return !math.IsInf(b.upper[i], 1) }

// start builds the first iterate from the problem's guess: slacks take
// their row's value and every bounded entry is pushed off its bounds.
func (b *barrier) start(guess []float64) []float64 {
	w := make([]float64, b.nw)
	copy(w, guess)
	for ci := range b.p.Constraints {
		if b.slack[ci] < 0 {
			continue
		}
		c := &b.p.Constraints[ci]
		val := b.value[ci]
		c.Eval(val, c.Gather(b.local[ci], w))
		copy(w[b.slack[ci]:], val)
	}
	for i := range w {
		w[i] = pushInside(w[i], b.lower[i], b.upper[i])
	}
	return w
}

func pushInside(v, lo, hi float64) float64 {
	hasLo, hasHi := !math.IsInf(lo, -1), !math.IsInf(hi, 1)
	switch {
	case hasLo && hasHi:
		gap := boundPush * (hi - lo)
		pl := math.Min(boundPush*math.Max(1, math.Abs(lo)), gap)
		pu := math.Min(boundPush*math.Max(1, math.Abs(hi)), gap)
		return math.Min(math.Max(v, lo+pl), hi-pu)
	case hasLo:
		return math.Max(v, lo+boundPush*math.Max(1, math.Abs(lo)))
	case hasHi:
		return math.Min(v, hi-boundPush*math.Max(1, math.Abs(hi)))
	}
	return v
}

func (b *barrier) objective(w []float64) float64 {
	for i, idx := range b.objVars {
		b.objLocal[i] = w[idx]
	}
	return b.p.Objective.Eval(b.objLocal)
}

// residual writes g(x) - target for equality rows and g(x) - s for
// inequality rows into r.
func (b *barrier) residual(w, r []float64) {
	for ci := range b.p.Constraints {
		c := &b.p.Constraints[ci]
		val := b.value[ci]
		c.Eval(val, c.Gather(b.local[ci], w))
		off := b.offset[ci]
		for i, v := range val {
			if b.slack[ci] < 0 {
				r[off+i] = v - c.Target[i]
			} else {
				r[off+i] = v - w[b.slack[ci]+i]
			}
		}
	}
}

// gradient overwrites g with ∇f + Jᵀlam.
func (b *barrier) gradient(w, lam, g []float64) {
	for i := range g {
		g[i] = 0
	}
	obj := &b.p.Objective
	for i, idx := range b.objVars {
		b.objLocal[i] = w[idx]
	}
	if obj.Grad != nil {
		obj.Grad(b.objGrad, b.objLocal)
	} else {
		fd.Gradient(b.objGrad, obj.Eval, b.objLocal, &fd.Settings{Formula: fd.Central})
	}
	for i, idx := range b.objVars {
		g[idx] += b.objGrad[i]
	}

	for ci := range b.p.Constraints {
		c := &b.p.Constraints[ci]
		off := b.offset[ci]
		l := lam[off : off+c.Dim]
		if floats.Norm(l, math.Inf(1)) == 0 {
			continue
		}
		z := c.Gather(b.local[ci], w)
		j := b.jac[ci]
		rowJacobian(j, c, z)
		for col, idx := range c.Vars {
			var s float64
			for row, v := range l {
				s += v * j.At(row, col)
			}
			g[idx] += s
		}
		if b.slack[ci] >= 0 {
			for i, v := range l {
				g[b.slack[ci]+i] -= v
			}
		}
	}
}

// assemble loads ∇²f + Σ lam_i ∇²c_i + rho·JᵀJ into the Newton matrix.
// Second derivatives are central differences of the analytic Jacobian
// when a row has one, and of the row itself otherwise.
func (b *barrier) assemble(w, lam []float64, rho float64) {
	sys := b.sys
	sys.reset()

	obj := &b.p.Objective
	if len(b.objVars) > 0 {
		for i, idx := range b.objVars {
			b.objLocal[i] = w[idx]
		}
		if obj.Grad != nil {
			fd.Jacobian(b.objCurv, func(y, x []float64) { obj.Grad(y, x) }, b.objLocal,
				&fd.JacobianSettings{Formula: fd.Central})
			symmetrize(b.objBlock, b.objCurv)
		} else {
			fd.Hessian(b.objBlock, obj.Eval, b.objLocal, &fd.Settings{Formula: fd.Central})
		}
		sys.addBlock(b.objVars, b.objBlock)
	}

	for ci := range b.p.Constraints {
		c := &b.p.Constraints[ci]
		off := b.offset[ci]
		l := lam[off : off+c.Dim]
		z := append([]float64(nil), c.Gather(b.local[ci], w)...)
		blk := b.block[ci]
		blk.Zero()

		if floats.Norm(l, math.Inf(1)) != 0 {
			if c.Jacobian != nil {
				jz := mat.NewDense(c.Dim, len(z), nil)
				fd.Jacobian(b.curv[ci], func(y, x []float64) {
					c.Jacobian(jz, x)
					for col := range y {
						var s float64
						for row, v := range l {
							s += v * jz.At(row, col)
						}
						y[col] = s
					}
				}, z, &fd.JacobianSettings{Formula: fd.Central})
				symmetrize(blk, b.curv[ci])
			} else {
				val := make([]float64, c.Dim)
				fd.Hessian(blk, func(x []float64) float64 {
					c.Eval(val, x)
					return floats.Dot(l, val)
				}, z, &fd.Settings{Formula: fd.Central})
			}
		}

		j := b.jac[ci]
		rowJacobian(j, c, z)
		nz := len(c.Vars)
		for a := 0; a < nz; a++ {
			for bb := a; bb < nz; bb++ {
				var s float64
				for row := 0; row < c.Dim; row++ {
					s += j.At(row, a) * j.At(row, bb)
				}
				blk.SetSym(a, bb, blk.At(a, bb)+rho*s)
			}
		}
		sys.addBlock(c.Vars, blk)

		if b.slack[ci] >= 0 {
			for row := 0; row < c.Dim; row++ {
				si := b.slack[ci] + row
				sys.add(si, si, rho)
				for col, idx := range c.Vars {
					if v := j.At(row, col); v != 0 {
						sys.add(idx, si, -rho*v)
					}
				}
			}
		}
	}
}

func symmetrize(dst *mat.SymDense, m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
}

// newtonState is the iteration state of one barrier augmented Lagrangian
// solve.
type newtonState struct {
	*barrier

	w  []float64
	y  []float64
	zl []float64
	zu []float64

	mu    float64
	rho   float64
	shift float64

	r     []float64
	lam   []float64
	g     []float64
	d     []float64
	trial []float64
	dzl   []float64
	dzu   []float64
}

func newNewtonState(p *nlp.Problem, rho float64) *newtonState {
	b := newBarrier(p)
	st := &newtonState{
		barrier: b,
		w:       b.start(p.InitialGuess),
		y:       make([]float64, b.m),
		zl:      make([]float64, b.nw),
		zu:      make([]float64, b.nw),
		mu:      initialBarrier,
		rho:     rho,
		r:       make([]float64, b.m),
		lam:     make([]float64, b.m),
		g:       make([]float64, b.nw),
		d:       make([]float64, b.nw),
		trial:   make([]float64, b.nw),
		dzl:     make([]float64, b.nw),
		dzu:     make([]float64, b.nw),
	}
	for i := range st.w {
		if b.hasLower(i) {
			st.zl[i] = st.mu / (st.w[i] - b.lower[i])
		}
		if b.hasUpper(i) {
			st.zu[i] = st.mu / (b.upper[i] - st.w[i])
		}
	}
	return st
}

// merit is the barrier augmented Lagrangian at w, +Inf outside the bounds.
func (st *newtonState) merit(w []float64) float64 {
	v := st.objective(w)
	for i, x := range w {
		if st.hasLower(i) {
			d := x - st.lower[i]
			if !(d > 0) {
				return math.Inf(1)
			}
			v -= st.mu * math.Log(d)
		}
		if st.hasUpper(i) {
			d := st.upper[i] - x
			if !(d > 0) {
				return math.Inf(1)
			}
			v -= st.mu * math.Log(d)
		}
	}
	st.residual(w, st.r)
	for k, r := range st.r {
		v += st.y[k]*r + 0.5*st.rho*r*r
	}
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

// meritGradient leaves the gradient of the merit at st.w in st.g.
func (st *newtonState) meritGradient() {
	st.residual(st.w, st.r)
	for k, r := range st.r {
		st.lam[k] = st.y[k] + st.rho*r
	}
	st.gradient(st.w, st.lam, st.g)
	for i, x := range st.w {
		if st.hasLower(i) {
			st.g[i] -= st.mu / (x - st.lower[i])
		}
		if st.hasUpper(i) {
			st.g[i] += st.mu / (st.upper[i] - x)
		}
	}
}

// factorize loads the primal-dual Newton matrix and factors it, adding the
// smallest tried multiple of the identity that makes it positive definite.
func (st *newtonState) factorize() bool {
	st.assemble(st.w, st.lam, st.rho)
	for i, x := range st.w {
		var sigma float64
		if st.hasLower(i) {
			sigma += st.zl[i] / (x - st.lower[i])
		}
		if st.hasUpper(i) {
			sigma += st.zu[i] / (st.upper[i] - x)
		}
		if sigma != 0 {
			st.sys.add(i, i, sigma)
		}
	}

	if st.sys.factorize(0) {
		st.shift = 0
		return true
	}
	shift := firstShift
	if st.shift > 0 {
		shift = math.Max(st.shift*shiftDecay, 1e-20)
	}
	for ; shift <= maxShift; shift *= shiftGrowth {
		if st.sys.factorize(shift) {
			st.shift = shift
			return true
		}
	}
	return false
}

// minimize runs Newton steps on the merit until its gradient falls below
// tol or maxSteps is reached. It returns the number of steps taken.
func (st *newtonState) minimize(ctx context.Context, tol float64, maxSteps int) (int, error) {
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return step, err
		}
		st.meritGradient()
		gnorm := floats.Norm(st.g, math.Inf(1))
		if math.IsNaN(gnorm) || math.IsInf(gnorm, 0) {
			return step, errFactorization
		}
		if gnorm <= tol {
			return step, nil
		}

		if !st.factorize() {
			return step, errFactorization
		}
		if err := st.sys.solveTo(st.d, st.g); err != nil {
			return step, fmt.Errorf("%w: %v", errFactorization, err)
		}
		floats.Scale(-1, st.d)

		alpha := 1.0
		for i, x := range st.w {
			if st.hasLower(i) && st.d[i] < 0 {
				alpha = math.Min(alpha, -boundFraction*(x-st.lower[i])/st.d[i])
			}
			if st.hasUpper(i) && st.d[i] > 0 {
				alpha = math.Min(alpha, boundFraction*(st.upper[i]-x)/st.d[i])
			}
		}

		slope := floats.Dot(st.g, st.d)
		phi := st.merit(st.w)
		accepted := false
		for ls := 0; ls < maxBacktrack; ls++ {
			floats.AddScaledTo(st.trial, st.w, alpha, st.d)
			if st.merit(st.trial) <= phi+armijo*alpha*slope {
				accepted = true
				break
			}
			alpha /= 2
		}
		if !accepted {
			return step, errLineSearch
		}

		st.updateBoundMultipliers()
		copy(st.w, st.trial)
		st.clampBoundMultipliers()
	}
	return maxSteps, nil
}

// updateBoundMultipliers takes the primal-dual step for the bound
// multipliers, using st.w and st.d before the primal update.
func (st *newtonState) updateBoundMultipliers() {
	alpha := 1.0
	for i, x := range st.w {
		st.dzl[i], st.dzu[i] = 0, 0
		if st.hasLower(i) {
			dl := x - st.lower[i]
			st.dzl[i] = st.mu/dl - st.zl[i] - st.zl[i]/dl*st.d[i]
			if st.dzl[i] < 0 {
				alpha = math.Min(alpha, -boundFraction*st.zl[i]/st.dzl[i])
			}
		}
		if st.hasUpper(i) {
			du := st.upper[i] - x
			st.dzu[i] = st.mu/du - st.zu[i] + st.zu[i]/du*st.d[i]
			if st.dzu[i] < 0 {
				alpha = math.Min(alpha, -boundFraction*st.zu[i]/st.dzu[i])
			}
		}
	}
	floats.AddScaled(st.zl, alpha, st.dzl)
	floats.AddScaled(st.zu, alpha, st.dzu)
}

func (st *newtonState) clampBoundMultipliers() {
	for i, x := range st.w {
		if st.hasLower(i) {
			dl := x - st.lower[i]
			st.zl[i] = math.Min(math.Max(st.zl[i], st.mu/(multiplierSpread*dl)), multiplierSpread*st.mu/dl)
		}
		if st.hasUpper(i) {
			du := st.upper[i] - x
			st.zu[i] = math.Min(math.Max(st.zu[i], st.mu/(multiplierSpread*du)), multiplierSpread*st.mu/du)
		}
	}
}

// optimality returns the dual infeasibility and complementarity at st.w for the
// current multipliers.
func (st *newtonState) optimality() (dual, comp float64) {
	st.gradient(st.w, st.y, st.g)
	for i, x := range st.w {
		if st.hasLower(i) {
			st.g[i] -= st.zl[i]
			comp = math.Max(comp, st.zl[i]*(x-st.lower[i]))
		}
		if st.hasUpper(i) {
			st.g[i] += st.zu[i]
			comp = math.Max(comp, st.zu[i]*(st.upper[i]-x))
		}
	}
	return floats.Norm(st.g, math.Inf(1)), comp
}

func (s *AugmentedLagrangian) runNewton(ctx context.Context, p *nlp.Problem) *nlp.Solution {
	opts := s.opts
	st := newNewtonState(p, opts.InitialPenalty)
	if v := st.merit(st.w); math.IsInf(v, 0) {
		return failure(nlp.NumericalFailure, 0, "non-finite value at the initial guess")
	}

	prevViol := math.Inf(1)
	stall := 0
	minBarrier := opts.OptimalityTol / 10

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		tol := math.Max(minBarrier, math.Min(st.mu, 0.1))
		steps, err := st.minimize(ctx, tol, opts.InnerIterations)
		switch {
		case ctx.Err() != nil:
			return failure(nlp.IterationLimitExceeded, iter, ctx.Err().Error())
		case errors.Is(err, errFactorization):
			return failure(nlp.NumericalFailure, iter, err.Error())
		case errors.Is(err, errLineSearch):
			s.logger.Debug("newton line search stalled", "iteration", iter, "step", steps)
		}

		st.residual(st.w, st.r)
		viol := floats.Norm(st.r, math.Inf(1))
		floats.AddScaled(st.y, st.rho, st.r)
		dual, comp := st.optimality()
		obj := st.objective(st.w)
		if math.IsNaN(obj) || math.IsNaN(viol) || math.IsNaN(dual) {
			return failure(nlp.NumericalFailure, iter, "non-finite objective or residual")
		}

		s.logger.Debug("barrier augmented lagrangian iteration",
			"iteration", iter,
			"objective", obj,
			"violation", viol,
			"stationarity", dual,
			"complementarity", comp,
			"penalty", st.rho,
			"barrier", st.mu,
			"newton_steps", steps,
		)
		if opts.Observer != nil {
			opts.Observer(Progress{
				Iteration:       iter,
				Objective:       obj,
				Violation:       viol,
				Stationarity:    dual,
				Penalty:         st.rho,
				Barrier:         st.mu,
				InnerIterations: steps,
			})
		}

		if viol <= opts.FeasibilityTol && dual <= opts.OptimalityTol && comp <= opts.OptimalityTol {
			return s.converged(p, st.w[:st.n], iter)
		}

		if st.rho >= opts.MaxPenalty && viol > opts.FeasibilityTol && viol > 0.9*prevViol {
			stall++
			if stall >= stallLimit {
				return stalled(p, st.w[:st.n], obj, iter)
			}
		} else {
			stall = 0
		}

		if viol > opts.FeasibilityTol && viol > violationDecrease*prevViol {
			st.rho = math.Min(st.rho*penaltyGrowth, opts.MaxPenalty)
		}
		prevViol = viol
		if viol <= barrierGate*st.mu {
			st.mu = math.Max(minBarrier, math.Min(0.2*st.mu, math.Pow(st.mu, 1.5)))
		}
	}

	st.residual(st.w, st.r)
	return &nlp.Solution{
		Status:     nlp.IterationLimitExceeded,
		Objective:  st.objective(st.w),
		Iterations: opts.MaxIterations,
		Violation:  floats.Norm(st.r, math.Inf(1)),
		Message:    "outer iteration limit reached",
	}
}
