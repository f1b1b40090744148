// Package nlp defines the contract between the transcription engine and a
// constrained nonlinear-program solver.
//
// A [Problem] is a flat vector of scalar decision variables with one
// [Bound] per variable, an [Objective] and an ordered list of tagged
// [Constraint] values. Every expression is a pure function of the
// variables it names in Vars, which lets a solver evaluate and
// differentiate constraints locally instead of over the whole vector.
//
// A [Solver] turns a Problem into a [Solution]. Solver outcomes are always
// reported through [Status]; Solve returns an error only when the Problem
// itself is malformed.
package nlp
