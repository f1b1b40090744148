package experiment_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/trajopt/internal/experiment"
	"github.com/san-kum/trajopt/internal/integrators"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/sim"
	"github.com/san-kum/trajopt/internal/solver"
	"github.com/san-kum/trajopt/internal/trajectory"
	"github.com/san-kum/trajopt/internal/transcribe"
)

type countingSolver struct {
	calls int
}

func (c *countingSolver) Solve(ctx context.Context, p *nlp.Problem) (*nlp.Solution, error) {
	c.calls++
	return &nlp.Solution{Status: nlp.NumericalFailure}, nil
}

var _ = Describe("minimum-time planning", func() {
	var (
		quiet *slog.Logger
		opts  solver.Options
	)

	BeforeEach(func() {
		quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
		opts = solver.DefaultOptions()
		opts.Logger = quiet
	})

	run := func(ctx context.Context, p transcribe.Config) *experiment.Outcome {
		e := experiment.New(solver.New(opts), experiment.WithLogger(quiet))
		out, err := e.Run(ctx, experiment.Config{Model: "kinematic", Integrator: "rk4", Problem: p})
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	Context("with a reachable target", func() {
		BeforeEach(func() {
			if testing.Short() {
				Skip("full horizon solve")
			}
		})

		It("converges to a trajectory that satisfies every constraint", func(ctx SpecContext) {
			p := transcribe.DefaultConfig()
			out := run(ctx, p)

			Expect(out.Solution.Status).To(Equal(nlp.Converged), out.Solution.Message)
			traj := out.Trajectory
			Expect(traj).NotTo(BeNil())

			By("reporting a finite positive horizon")
			Expect(math.IsInf(traj.Horizon, 0)).To(BeFalse())
			Expect(traj.Horizon).To(BeNumerically(">", 0))
			Expect(out.Solution.Objective).To(BeNumerically("~", traj.Horizon, 1e-9))

			By("meeting bounds, boundary values and dynamics")
			Expect(traj.Verify(out.Transcription, 1e-5)).To(Succeed())
			Expect(traj.State(0)).To(HaveExactElements(0.0, 0.0, 0.0))
			Expect(traj.Final()[models.X]).To(BeNumerically("~", 0.25, 1e-5))
			Expect(traj.Final()[models.Y]).To(BeNumerically("~", 0.25, 1e-5))
			for k := 0; k < traj.Steps; k++ {
				Expect(math.Abs(traj.Speed[k])).To(BeNumerically("<=", 1))
				Expect(math.Abs(traj.Steering[k])).To(BeNumerically("<=", transcribe.DegToRad(15)))
			}

			By("laying out the time grid")
			Expect(traj.Time).To(HaveLen(p.Steps + 1))
			Expect(traj.Time[0]).To(BeZero())
			Expect(traj.Time[p.Steps]).To(Equal(traj.Horizon))

			By("replaying the controls open loop")
			rep, err := sim.Replay(ctx, traj, models.NewKinematic(), integrators.NewRK4(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.MaxDeviation).To(BeNumerically("<", 1e-3))
		}, SpecTimeout(10*time.Minute))

		It("honours a caller-supplied terminal heading", func(ctx SpecContext) {
			p := transcribe.DefaultConfig()
			p.TerminalHeading = transcribe.Heading(0)
			out := run(ctx, p)

			Expect(out.Solution.Status).To(Equal(nlp.Converged), out.Solution.Message)
			Expect(out.Trajectory.Final()[models.Heading]).To(BeNumerically("~", 0, 1e-5))
			Expect(out.Trajectory.Verify(out.Transcription, 1e-5)).To(Succeed())
		}, SpecTimeout(10*time.Minute))
	})

	Context("with an unreachable target and a tiny budget", func() {
		It("stops without a trajectory", func(ctx SpecContext) {
			p := transcribe.DefaultConfig()
			p.Target = []float64{10, 10}
			p.MaxDuration = 1e-3
			opts.MaxIterations = 3

			out := run(ctx, p)

			Expect(out.Solution.Status).To(BeElementOf(nlp.Infeasible, nlp.IterationLimitExceeded))
			Expect(out.Solution.X).To(BeNil())
			Expect(out.Trajectory).To(BeNil())

			_, err := trajectory.Extract(out.Transcription, out.Solution)
			Expect(err).To(MatchError(trajectory.ErrNotConverged))
		}, SpecTimeout(2*time.Minute))
	})

	Context("with an invalid configuration", func() {
		DescribeTable("fails before any solver is dispatched",
			func(mutate func(*transcribe.Config), field string) {
				p := transcribe.DefaultConfig()
				mutate(&p)

				spy := &countingSolver{}
				e := experiment.New(spy, experiment.WithLogger(quiet))
				_, err := e.Run(context.Background(), experiment.Config{Model: "kinematic", Integrator: "rk4", Problem: p})

				Expect(err).To(MatchError(transcribe.ErrInvalidConfiguration))
				var ce *transcribe.ConfigError
				Expect(errors.As(err, &ce)).To(BeTrue())
				Expect(ce.Field).To(Equal(field))
				Expect(spy.calls).To(BeZero())
			},
			Entry("zero horizon steps", func(p *transcribe.Config) { p.Steps = 0 }, "steps"),
			Entry("negative horizon steps", func(p *transcribe.Config) { p.Steps = -3 }, "steps"),
			Entry("missing target", func(p *transcribe.Config) { p.Target = nil }, "target"),
			Entry("inverted speed bound", func(p *transcribe.Config) {
				p.SpeedBound = nlp.Bound{Lower: 1, Upper: -1}
			}, "speed_bound"),
			Entry("NaN terminal heading", func(p *transcribe.Config) {
				p.TerminalHeading = transcribe.Heading(math.NaN())
			}, "terminal_heading"),
		)
	})
})
