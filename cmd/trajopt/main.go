package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/experiment"
	"github.com/san-kum/trajopt/internal/metrics"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/report"
	"github.com/san-kum/trajopt/internal/sim"
	"github.com/san-kum/trajopt/internal/solver"
	"github.com/san-kum/trajopt/internal/storage"
	"github.com/san-kum/trajopt/internal/tui"
)

var (
	dataDir     string
	verbose     bool
	tracing     bool
	stopTracing = func() {}

	configFile  string
	preset      string
	steps       int
	targetX     float64
	targetY     float64
	headingDeg  float64
	maxDuration float64
	integrator  string
	maxIter     int
	method      string
	timeout     time.Duration
	warmStart   string
	live        bool
	plot        bool
	noSave      bool

	substeps  int
	outFile   string
	sweepList []int
)

// main registers the trajopt commands and executes the root command,
// exiting with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "trajopt",
		Short:         "minimum-time trajectory planner for a kinematic car",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
			if tracing {
				stopTracing = setupTracing(slog.Default())
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			stopTracing()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".trajopt", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log solver iterations")
	rootCmd.PersistentFlags().BoolVar(&tracing, "trace", false, "log solver spans")

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "plan a minimum-time maneuver",
		Args:  cobra.NoArgs,
		RunE:  runSolve,
	}
	addProblemFlags(solveCmd)
	solveCmd.Flags().StringVar(&warmStart, "warm-start", "", "seed the solver with a stored run's trajectory")
	solveCmd.Flags().BoolVar(&live, "live", false, "show solver progress in a terminal view")
	solveCmd.Flags().BoolVar(&plot, "plot", false, "render the trajectory after solving")
	solveCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "render a stored trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	replayCmd := &cobra.Command{
		Use:   "replay [run_id]",
		Short: "integrate a stored plan open loop and report drift",
		Args:  cobra.ExactArgs(1),
		RunE:  replayRun,
	}
	replayCmd.Flags().IntVar(&substeps, "substeps", 10, "integrator steps per control interval")
	replayCmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a trajectory to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun("json"),
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun("csv"),
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "solve one maneuver at several horizon step counts in parallel",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addProblemFlags(sweepCmd)
	sweepCmd.Flags().IntSliceVar(&sweepList, "n", []int{25, 50, 100}, "horizon step counts")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("presets:")
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write the default problem as a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Save(args[0], config.DefaultConfig())
		},
	}

	rootCmd.AddCommand(solveCmd, listCmd, showCmd, replayCmd, exportJSONCmd, exportCSVCmd, sweepCmd, presetsCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if tracing {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func addProblemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVar(&steps, "steps", 100, "horizon step count N")
	cmd.Flags().Float64Var(&targetX, "target-x", 0.25, "terminal x position")
	cmd.Flags().Float64Var(&targetY, "target-y", 0.25, "terminal y position")
	cmd.Flags().Float64Var(&headingDeg, "heading", 0, "terminal heading in degrees (free unless set)")
	cmd.Flags().Float64Var(&maxDuration, "max-duration", 0, "upper limit on T (0 = none)")
	cmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator (rk4, euler)")
	cmd.Flags().IntVar(&maxIter, "max-iter", 0, "outer solver iterations (0 = default)")
	cmd.Flags().StringVar(&method, "method", "newton", "subproblem minimiser (newton, lbfgs)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "solver wall-clock limit (0 = none)")
}

// resolveConfig layers defaults, preset, config file and changed flags,
// in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("target-x") {
		cfg.Target.X = targetX
	}
	if flags.Changed("target-y") {
		cfg.Target.Y = targetY
	}
	if flags.Changed("heading") {
		h := headingDeg
		cfg.TerminalHeadingDeg = &h
	}
	if flags.Changed("max-duration") {
		cfg.MaxDuration = maxDuration
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("max-iter") {
		cfg.Solver.MaxIterations = maxIter
	}
	if flags.Changed("method") {
		cfg.Solver.Method = method
	}
	if flags.Changed("timeout") {
		cfg.Solver.Timeout = timeout.String()
	}
	return cfg, nil
}

func experimentConfig(cfg *config.Config) experiment.Config {
	return experiment.Config{
		Model:      cfg.Model,
		Integrator: cfg.Integrator,
		Problem:    cfg.Problem(),
	}
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := cfg.SolverOptions()
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	expCfg := experimentConfig(cfg)
	if warmStart != "" {
		prev, err := st.LoadTrajectory(warmStart)
		if err != nil {
			return err
		}
		if prev.Steps != cfg.Steps {
			return fmt.Errorf("warm start %s has %d steps, problem has %d", warmStart, prev.Steps, cfg.Steps)
		}
		expCfg.Problem.Guess = prev.Guess()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	solve := func(ctx context.Context, observe func(solver.Progress)) (*experiment.Outcome, error) {
		o := opts
		o.Observer = observe
		return experiment.New(solver.New(o)).Run(ctx, expCfg)
	}

	var out *experiment.Outcome
	if live {
		out, err = tui.Watch(ctx, fmt.Sprintf("trajopt: N=%d target (%.3g, %.3g)", cfg.Steps, cfg.Target.X, cfg.Target.Y),
			solve, tea.WithOutput(os.Stderr))
	} else {
		fmt.Fprintf(os.Stderr, "solving N=%d to (%.3g, %.3g)...\n", cfg.Steps, cfg.Target.X, cfg.Target.Y)
		out, err = solve(ctx, nil)
	}
	if err != nil {
		return err
	}

	sol := out.Solution
	if !noSave {
		runID, err := st.Save(storage.RunMetadata{
			Preset:     preset,
			Model:      cfg.Model,
			Integrator: cfg.Integrator,
			Steps:      cfg.Steps,
			Status:     sol.Status.String(),
			Iterations: sol.Iterations,
			Runtime:    sol.Runtime,
			Metrics:    out.Metrics,
		}, cfg, out.Trajectory)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "run id: %s\n", runID)
	}

	if !out.Converged() {
		return fmt.Errorf("solver stopped with status %s: %s", sol.Status, sol.Message)
	}

	fmt.Fprintf(os.Stderr, "converged in %v after %d iterations\n", sol.Runtime.Round(time.Millisecond), sol.Iterations)
	if err := report.Positions(os.Stdout, out.Trajectory); err != nil {
		return err
	}
	if plot {
		return report.Render(os.Stdout, out.Trajectory, out.Metrics)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := cfg.SolverOptions()
	if err != nil {
		return err
	}

	cfgs := make([]experiment.Config, len(sweepList))
	for i, n := range sweepList {
		c := cfg.Clone()
		c.Steps = n
		cfgs[i] = experimentConfig(c)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outs, err := experiment.New(solver.New(opts)).RunAll(ctx, cfgs)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "N\tSTATUS\tT\tITER\tRUNTIME\tREVERSALS")
	for i, out := range outs {
		sol := out.Solution
		horizon, reversals := "-", "-"
		if out.Converged() {
			horizon = fmt.Sprintf("%.6f", out.Trajectory.Horizon)
			reversals = fmt.Sprintf("%.0f", out.Metrics["reversals"])
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%v\t%s\n",
			sweepList[i], sol.Status, horizon, sol.Iterations, sol.Runtime.Round(time.Millisecond), reversals)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tPRESET\tN\tINTEG\tSTATUS\tT\tITER")

	for _, run := range runs {
		horizon := "-"
		if run.HasTrajectory {
			horizon = fmt.Sprintf("%.4f", run.Horizon)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%d\n",
			run.ID,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			orDash(run.Preset),
			run.Steps,
			run.Integrator,
			run.Status,
			horizon,
			run.Iterations,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	if !meta.HasTrajectory {
		return fmt.Errorf("run %s has no trajectory (status %s)", meta.ID, meta.Status)
	}

	traj, err := st.LoadTrajectory(meta.ID)
	if err != nil {
		return err
	}
	return report.Render(os.Stdout, traj, meta.Metrics)
}

func replayRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	traj, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}

	integ, err := experiment.NewRegistry().IntegratorFactory(integrator)
	if err != nil {
		return err
	}

	ms := []metrics.Metric{metrics.NewPathLength(), metrics.NewReversals(1e-3), metrics.NewTotalTurn()}
	res, err := sim.Replay(cmd.Context(), traj, models.NewKinematic(), integ(), substeps, ms...)
	if err != nil {
		return err
	}

	final := res.Final()
	fmt.Printf("replayed %d steps with %s (%d per interval)\n", res.StepsTaken, integrator, substeps)
	fmt.Printf("planned final (%.6f, %.6f)  replayed final (%.6f, %.6f)\n",
		traj.X[traj.Steps], traj.Y[traj.Steps], final[models.X], final[models.Y])
	fmt.Printf("max deviation %.3e  final deviation %.3e\n", res.MaxDeviation, res.FinalDeviation)
	for _, m := range ms {
		fmt.Printf("  %s: %.6f\n", m.Name(), res.Metrics[m.Name()])
	}
	return nil
}

func exportRun(format string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st := storage.New(dataDir)
		if _, err := st.Load(args[0]); err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if outFile != "" {
			f, err := os.Create(outFile)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		if err := st.Export(args[0], format, w); err != nil {
			return err
		}
		if outFile != "" {
			fmt.Fprintf(os.Stderr, "exported %s to %s\n", strings.ToUpper(format), outFile)
		}
		return nil
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
