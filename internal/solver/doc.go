// Package solver solves an nlp.Problem with an augmented Lagrangian method.
//
// [AugmentedLagrangian] keeps one multiplier per constraint row and a
// quadratic penalty, and minimises one subproblem per outer iteration.
// [Options.Method] picks the subproblem minimiser:
//
//   - Newton (default): every inequality row gets a slack bounded by the
//     row's limits, and variable and slack bounds are kept strictly inside
//     by a log barrier with primal-dual bound multipliers. Each step solves
//     the regularised Newton system. Transcriptions have a banded matrix
//     apart from a few shared variables such as the horizon, so the system
//     is factored with gonum's banded Cholesky and a Schur complement.
//   - LBFGS: bounds and inequality rows join the Powell-Hestenes-Rockafellar
//     penalty and each subproblem goes to gonum/optimize as a black box.
//
// Outcomes are classified the same way for both:
//
//   - Converged: every row and bound is satisfied to FeasibilityTol and the
//     Lagrangian gradient is below OptimalityTol.
//   - Infeasible: the penalty reached MaxPenalty, the violation stopped
//     decreasing, and the iterate is a stationary point of the squared
//     violation, so no nearby point is feasible.
//   - IterationLimitExceeded: MaxIterations, Timeout or ctx ran out.
//   - NumericalFailure: NaN/Inf appeared, the Newton matrix could not be
//     regularised, or the violation stalled without that certificate.
//
// Derivatives use a row's analytic Jacobian when present and central finite
// differences over the row's own variables otherwise. Newton curvature is
// the finite-difference Jacobian of the weighted row gradients.
//
// # Thread Safety
//
// An AugmentedLagrangian holds only options; all iteration state lives in
// the Solve call, so one value may serve concurrent solves of distinct
// problems. A single Problem must not be solved concurrently with itself,
// since its row closures own integrator scratch space.
package solver
