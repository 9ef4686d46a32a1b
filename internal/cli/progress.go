package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/sitesnap/internal/run"
	"github.com/raphaelgruber/sitesnap/internal/snapshot"
)

// Theme holds the color scheme for progress and summary output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Warn    lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Warn:    lipgloss.Color("#FFAF00"), // amber
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warn).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// runProgressMsg carries the state after one poll iteration.
type runProgressMsg run.Progress

// runDoneMsg carries the outcome of the whole run.
type runDoneMsg struct {
	res *run.Result
	err error
}

// progressModel is the bubbletea model for a running batch.
type progressModel struct {
	batch    string
	cancel   context.CancelFunc
	latest   run.Progress
	polling  bool
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
}

// newProgressModel creates a new progress model. cancel stops the run.
func newProgressModel(batch string, cancel context.CancelFunc) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		batch:    batch,
		cancel:   cancel,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The run stops at its next step and still writes the report.
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case runProgressMsg:
		m.latest = run.Progress(msg)
		m.polling = true
		return m, nil

	case runDoneMsg:
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return ""
	}

	if m.quitting {
		return m.theme.hintStyle().Render("Stopping, the report will still be written...") + "\n"
	}

	if !m.polling {
		return m.theme.statusStyle().Render(fmt.Sprintf("[batch %s]", m.batch)) + " triggering snapshots...\n"
	}

	var pct float64
	if m.latest.Total > 0 {
		pct = float64(m.latest.Final()) / float64(m.latest.Total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[batch %s]", m.batch))
	bar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d final, %s elapsed", m.latest.Final(), m.latest.Total, m.latest.Elapsed.Truncate(time.Second))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop polling and write the report")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

// runWithProgressUI executes the run in the background while an interactive
// progress bar follows it. Ctrl+C cancels the run, which still writes its report.
func runWithProgressUI(ctx context.Context, api snapshot.API, opts run.Options, log *slog.Logger) (*run.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(cmp.Or(opts.BatchLabel, "retry"), cancel))
	r := run.New(api, opts,
		run.WithLogger(log),
		run.WithProgress(func(pr run.Progress) {
			p.Send(runProgressMsg(pr))
		}),
	)

	done := make(chan runDoneMsg, 1)
	go func() {
		res, err := r.Run(ctx)
		msg := runDoneMsg{res: res, err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		out := <-done
		return out.res, errors.Join(fmt.Errorf("progress UI error: %w", err), out.err)
	}

	out := <-done
	return out.res, out.err
}

// runPlain executes the run in the foreground, printing one line per poll.
func runPlain(ctx context.Context, api snapshot.API, opts run.Options, log *slog.Logger, printf func(string, ...any)) (*run.Result, error) {
	r := run.New(api, opts,
		run.WithLogger(log),
		run.WithProgress(func(pr run.Progress) {
			printf("poll %d: %d/%d final (%s elapsed)\n",
				pr.Iteration, pr.Final(), pr.Total, pr.Elapsed.Truncate(time.Second))
		}),
	)
	return r.Run(ctx)
}
