package solver

import (
	"context"
	"sync"

	"github.com/san-kum/trajopt/internal/nlp"
)

// Batch solves independent problems concurrently, one goroutine each.
// The solver must tolerate concurrent Solve calls on distinct problems,
// which AugmentedLagrangian does. Results are in input order.
func Batch(ctx context.Context, s nlp.Solver, problems []*nlp.Problem) ([]*nlp.Solution, error) {
	results := make([]*nlp.Solution, len(problems))
	errs := make([]error, len(problems))

	var wg sync.WaitGroup
	for i, p := range problems {
		wg.Add(1)
		go func(idx int, p *nlp.Problem) {
			defer wg.Done()
			results[idx], errs[idx] = s.Solve(ctx, p)
		}(i, p)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
