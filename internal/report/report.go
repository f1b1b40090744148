// Package report renders a solved trajectory for the terminal. It reads
// only the extracted trajectory and its metrics and refuses anything that
// did not converge.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/trajopt/internal/nlp"
	"github.com/san-kum/trajopt/internal/trajectory"
	"github.com/san-kum/trajopt/internal/viz"
)

const (
	plotWidth  = 60
	plotHeight = 8
	pathWidth  = 40
	pathHeight = 14
)

func check(t *trajectory.Trajectory) error {
	if t == nil {
		return fmt.Errorf("%w: no trajectory", trajectory.ErrNotConverged)
	}
	if t.Status != nlp.Converged {
		return &nlp.StatusError{Status: t.Status, Wrapped: trajectory.ErrNotConverged}
	}
	return nil
}

// Positions prints the optimal x and y sequences and the horizon.
func Positions(w io.Writer, t *trajectory.Trajectory) error {
	if err := check(t); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "x_pos_opt %s\ny_pos_opt %s\n%s\n",
		formatSeries(t.X), formatSeries(t.Y), strconv.FormatFloat(t.Horizon, 'g', -1, 64))
	return err
}

// Render writes the summary panel, the path and the heading, speed and
// steering plots.
func Render(w io.Writer, t *trajectory.Trajectory, metrics map[string]float64) error {
	if err := check(t); err != nil {
		return err
	}

	summary := viz.Panel.Render(strings.Join(summaryLines(t, metrics), "\n"))
	path := viz.Panel.Render(viz.Title.Render("path (x, y)") + "\n" +
		strings.TrimSuffix(viz.PlotPath(t.X, t.Y, pathWidth, pathHeight), "\n"))

	speed, steering := t.AlignedControls()
	plots := []string{
		plot(t.Heading, "heading θ [rad]"),
		plot(speed, "speed v [m/s]"),
		plot(steering, "steering φ [rad]"),
	}

	_, err := fmt.Fprintf(w, "%s\n\n%s\n",
		lipgloss.JoinHorizontal(lipgloss.Top, summary, " ", path),
		strings.Join(plots, "\n\n"))
	return err
}

func summaryLines(t *trajectory.Trajectory, metrics map[string]float64) []string {
	lines := []string{
		viz.Title.Render("minimum-time maneuver"),
		viz.Metric("status    ", viz.StatusGood.Render(t.Status.String())),
		viz.Metric("horizon T ", fmt.Sprintf("%.6f", t.Horizon)),
		viz.Metric("steps N   ", strconv.Itoa(t.Steps)),
		viz.Metric("iterations", strconv.Itoa(t.Iterations)),
		viz.Metric("violation ", fmt.Sprintf("%.2e", t.Violation)),
		viz.Metric("final     ", fmt.Sprintf("(%.4f, %.4f, %.4f)", t.X[t.Steps], t.Y[t.Steps], t.Heading[t.Steps])),
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		lines = append(lines, "")
	}
	for _, name := range names {
		lines = append(lines, viz.Metric(fmt.Sprintf("%-10s", name), fmt.Sprintf("%.4f", metrics[name])))
	}
	return lines
}

// plot draws a series on the uniform time grid. A NaN first sample is the
// aligned-control gap and is drawn as a blank column.
func plot(series []float64, caption string) string {
	return asciigraph.Plot(series,
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(caption),
	)
}

func formatSeries(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
