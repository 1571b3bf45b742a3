// Package tui shows live pipeline progress in the terminal.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"buildtime-agent/src/pipeline"
)

// recentBuilds is how many completed builds the view lists.
const recentBuilds = 5

// ProgressMsg carries a pipeline progress update.
type ProgressMsg pipeline.Progress

// DoneMsg ends the program with the run outcome.
type DoneMsg struct {
	Result *pipeline.Result
	Err    error
}

// ProgressModel renders run progress. The first q or ctrl+c calls stop so
// in-flight builds drain; the second calls cancel.
type ProgressModel struct {
	runID   string
	styles  *StyleConfig
	spinner spinner.Model
	width   int

	progress  pipeline.Progress
	recent    []string
	stopping  bool
	cancelled bool
	done      bool

	stop   func()
	cancel func()

	result *pipeline.Result
	err    error
}

func NewProgressModel(runID string, stop, cancel func()) ProgressModel {
	styles := DefaultStyles()
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.Spinner)),
	)
	return ProgressModel{runID: runID, styles: styles, spinner: s, stop: stop, cancel: cancel}
}

func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		if msg.Completed > m.progress.Completed && msg.LastBuildID != "" {
			m.recent = append([]string{msg.LastBuildID}, m.recent...)
			if len(m.recent) > recentBuilds {
				m.recent = m.recent[:recentBuilds]
			}
		}
		if msg.Completed >= m.progress.Completed && msg.Discovered >= m.progress.Discovered {
			m.progress = pipeline.Progress(msg)
		}

	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.stopping {
				m.stopping = true
				if m.stop != nil {
					m.stop()
				}
			} else if !m.cancelled {
				m.cancelled = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) View() string {
	title := m.styles.Gradient("buildtime")
	if m.runID != "" {
		title += m.styles.LabelStyle().Render("  run " + m.runID)
	}

	var status string
	switch {
	case m.done && m.err != nil:
		status = lipgloss.NewStyle().Foreground(m.styles.Failure).Render("✗ Failed: " + m.err.Error())
	case m.done:
		status = lipgloss.NewStyle().Foreground(m.styles.Success).Render("✓ Complete")
	case m.cancelled:
		status = lipgloss.NewStyle().Foreground(m.styles.Failure).Render(m.spinner.View() + " Aborting...")
	case m.stopping:
		status = lipgloss.NewStyle().Foreground(m.styles.Warning).Render(
			fmt.Sprintf("%s Draining %d in-flight builds (q again to abort)", m.spinner.View(), m.progress.Active))
	default:
		status = m.spinner.View() + " Streaming builds..."
	}

	label, value := m.styles.LabelStyle(), m.styles.ValueStyle()
	counter := func(name string, n interface{}) string {
		return label.Render(name+" ") + value.Render(fmt.Sprint(n))
	}
	counters := m.styles.PanelStyle().Render(strings.Join([]string{
		counter("discovered", m.progress.Discovered),
		counter("pending", m.progress.Pending),
		counter("active", m.progress.Active),
		counter("done", m.progress.Completed),
		counter("accepted", m.progress.Accepted),
	}, "   "))

	lines := []string{title, "", status, counters}
	if len(m.recent) > 0 {
		lines = append(lines, label.Render("Recently completed:"))
		idWidth := 40
		if m.width > 0 && m.width-4 < idWidth {
			idWidth = m.width - 4
		}
		for _, id := range m.recent {
			lines = append(lines, "  "+TruncateAndPad(id, idWidth, true))
		}
	}

	rows := strings.Split(strings.Join(lines, "\n"), "\n")
	for i, row := range rows {
		rows[i] = FitLine(row, m.width)
	}
	return strings.Join(rows, "\n") + "\n"
}

// Outcome returns what the run reported when the program ended.
func (m ProgressModel) Outcome() (*pipeline.Result, error) {
	return m.result, m.err
}

// Monitor runs the progress view alongside a pipeline run.
type Monitor struct {
	program *tea.Program
	cancel  func()
}

// NewMonitor prepares a progress view writing to out. stop and cancel are
// invoked by the first and second quit key.
func NewMonitor(out io.Writer, runID string, stop, cancel func(), opts ...tea.ProgramOption) *Monitor {
	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	return &Monitor{
		program: tea.NewProgram(NewProgressModel(runID, stop, cancel), opts...),
		cancel:  cancel,
	}
}

// Progress forwards an update to the view. Pass it to pipeline.WithProgress.
func (m *Monitor) Progress(p pipeline.Progress) {
	m.program.Send(ProgressMsg(p))
}

// Run executes run while the view is shown and returns its outcome.
func (m *Monitor) Run(run func() (*pipeline.Result, error)) (*pipeline.Result, error) {
	go func() {
		result, err := run()
		m.program.Send(DoneMsg{Result: result, Err: err})
	}()

	final, err := m.program.Run()
	if err != nil {
		if m.cancel != nil {
			m.cancel()
		}
		return nil, fmt.Errorf("failed to run progress view: %w", err)
	}
	return final.(ProgressModel).Outcome()
}
