package trajectory

import (
	"fmt"
	"math"

	"github.com/san-kum/trajopt/internal/transcribe"
)

// ViolationError names the first row or bound that Verify found violated.
type ViolationError struct {
	Constraint string
	Amount     float64
	Tolerance  float64
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("trajectory: %s violated by %.3g (tolerance %.3g)", e.Constraint, e.Amount, e.Tolerance)
}

// Verify re-evaluates every bound and constraint row of tr at the
// trajectory's values.
func (t *Trajectory) Verify(tr *transcribe.Transcription, tol float64) error {
	x, err := t.Vector(tr.Layout)
	if err != nil {
		return err
	}
	p := tr.Problem

	for i, b := range p.Bounds {
		if d := math.Max(b.Lower-x[i], x[i]-b.Upper); d > tol {
			return &ViolationError{Constraint: fmt.Sprintf("bound[%d]", i), Amount: d, Tolerance: tol}
		}
	}
	for i := range p.Constraints {
		c := &p.Constraints[i]
		if d := c.Violation(x); d > tol {
			return &ViolationError{Constraint: c.Name, Amount: d, Tolerance: tol}
		}
	}
	return nil
}
