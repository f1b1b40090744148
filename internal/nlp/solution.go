package nlp

import (
	"fmt"
	"time"
)

// Status is the terminal classification of a solve.
type Status int

const (
	Converged Status = iota
	Infeasible
	IterationLimitExceeded
	NumericalFailure
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case Infeasible:
		return "infeasible"
	case IterationLimitExceeded:
		return "iteration_limit_exceeded"
	case NumericalFailure:
		return "numerical_failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for _, st := range []Status{Converged, Infeasible, IterationLimitExceeded, NumericalFailure} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown solver status %q", text)
}

// Solution is a solver outcome. X is set only when Status is Converged and
// then holds one value per variable in Problem layout.
type Solution struct {
	Status     Status
	X          []float64
	Objective  float64
	Iterations int
	Violation  float64
	Runtime    time.Duration
	Message    string
}

func (s *Solution) Converged() bool {
	return s != nil && s.Status == Converged
}

// StatusError reports an operation refused because a solve did not converge.
type StatusError struct {
	Status  Status
	Wrapped error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: solver status %s", e.Wrapped, e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.Wrapped
}
