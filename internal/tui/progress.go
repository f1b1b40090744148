// Package tui shows solver progress live while a plan is computed.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/trajopt/internal/experiment"
	"github.com/san-kum/trajopt/internal/solver"
	"github.com/san-kum/trajopt/internal/viz"
)

// ProgressMsg carries one outer solver iteration.
type ProgressMsg solver.Progress

// DoneMsg ends the view with the run's result.
type DoneMsg struct {
	Outcome *experiment.Outcome
	Err     error
}

type Model struct {
	title   string
	cancel  context.CancelFunc
	started time.Time

	history []solver.Progress
	logViol []float64

	outcome *experiment.Outcome
	err     error
	done    bool
	aborted bool

	width int
}

// NewModel builds the view. cancel is called when the user aborts.
func NewModel(title string, cancel context.CancelFunc) Model {
	return Model{
		title:   title,
		cancel:  cancel,
		started: time.Now(),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.aborted && m.cancel != nil {
				m.cancel()
			}
			m.aborted = true
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case ProgressMsg:
		p := solver.Progress(msg)
		m.history = append(m.history, p)
		m.logViol = append(m.logViol, math.Log10(math.Max(p.Violation, 1e-16)))
		return m, nil
	case DoneMsg:
		m.outcome, m.err = msg.Outcome, msg.Err
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(viz.Title.Render(m.title))
	b.WriteString("\n\n")

	if len(m.history) == 0 {
		b.WriteString(viz.Subtle.Render("assembling and starting solver..."))
		b.WriteString("\n")
	} else {
		p := m.history[len(m.history)-1]
		metrics := []string{
			viz.Metric("iter", fmt.Sprintf("%d", p.Iteration)),
			viz.Metric("T", fmt.Sprintf("%.5f", p.Objective)),
			viz.Metric("violation", fmt.Sprintf("%.2e", p.Violation)),
			viz.Metric("stationarity", fmt.Sprintf("%.2e", p.Stationarity)),
			viz.Metric("penalty", fmt.Sprintf("%.0e", p.Penalty)),
		}
		if p.Barrier > 0 {
			metrics = append(metrics, viz.Metric("barrier", fmt.Sprintf("%.0e", p.Barrier)))
		}
		b.WriteString(strings.Join(metrics, "  "))
		b.WriteString("\n\n")
	}

	if len(m.logViol) > 1 {
		w := max(20, min(m.width-12, 70))
		b.WriteString(asciigraph.Plot(m.logViol,
			asciigraph.Height(6),
			asciigraph.Width(w),
			asciigraph.Caption("log10 violation"),
		))
		b.WriteString("\n\n")
	}

	elapsed := time.Since(m.started).Round(100 * time.Millisecond)
	switch {
	case m.done && m.err != nil:
		b.WriteString(viz.StatusBad.Render("error: " + m.err.Error()))
	case m.done && m.outcome.Converged():
		b.WriteString(viz.StatusGood.Render(fmt.Sprintf("converged in %s", elapsed)))
	case m.done:
		b.WriteString(viz.StatusBad.Render(m.outcome.Solution.Status.String()))
	case m.aborted:
		b.WriteString(viz.Subtle.Render("aborting..."))
	default:
		b.WriteString(viz.KeyHint.Render(fmt.Sprintf("%s elapsed  q abort", elapsed)))
	}
	b.WriteString("\n")

	return b.String()
}

// Result is the outcome delivered by DoneMsg.
func (m Model) Result() (*experiment.Outcome, error) {
	return m.outcome, m.err
}

// RunFunc performs a solve, reporting each outer iteration to observe.
type RunFunc func(ctx context.Context, observe func(solver.Progress)) (*experiment.Outcome, error)

// Watch runs fn in the background and shows its progress until it
// returns. Aborting from the keyboard cancels fn's context.
func Watch(ctx context.Context, title string, fn RunFunc, opts ...tea.ProgramOption) (*experiment.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title, cancel), opts...)
	go func() {
		out, err := fn(ctx, func(pr solver.Progress) { p.Send(ProgressMsg(pr)) })
		p.Send(DoneMsg{Outcome: out, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).Result()
}
