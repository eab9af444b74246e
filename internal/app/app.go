// Package app renders live run progress as a small terminal UI: the
// current stage, a per-unit progress bar during accumulation, and a tally
// of skipped items.
package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kuharvest/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	stageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// Model is the bubbletea model for a pipeline run.
type Model struct {
	state    pipeline.State
	spin     spinner.Model
	bar      progress.Model
	unit     string
	index    int
	total    int
	warnings []string
	done     bool
	result   pipeline.Result
	err      error
	width    int
}

// NewModel returns a model ready to receive run messages.
func NewModel() Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		spin:  sp,
		bar:   progress.New(progress.WithDefaultGradient()),
		width: 80,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 12
		return m, nil
	case StageMsg:
		m.state = msg.State
		return m, nil
	case UnitMsg:
		m.unit = msg.Unit
		m.index = msg.Index
		m.total = msg.Total
		return m, nil
	case WarnMsg:
		m.warnings = append(m.warnings, fmt.Sprintf("%s: %s", msg.Unit, msg.Message))
		return m, nil
	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case progress.FrameMsg:
		barModel, cmd := m.bar.Update(msg)
		m.bar = barModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("kuharvest") + "\n\n")

	if m.done {
		if m.err != nil {
			b.WriteString(errStyle.Render(fmt.Sprintf("Run halted: %v", m.err)) + "\n")
		} else {
			b.WriteString(doneStyle.Render(fmt.Sprintf(
				"Done (%s): %d accumulated, %d skipped",
				m.result.Outcome, m.result.Accumulated, m.result.Skipped)) + "\n")
		}
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spin.View(), stageStyle.Render(string(m.state))))
		if m.state == pipeline.StateAccumulating && m.total > 0 {
			pct := float64(m.index) / float64(m.total)
			b.WriteString(fmt.Sprintf("%s %d/%d %s\n",
				m.bar.ViewAs(pct), m.index+1, m.total, dimStyle.Render(m.unit)))
		}
	}

	if len(m.warnings) > 0 {
		b.WriteString("\n" + warnStyle.Render(fmt.Sprintf("%d skipped:", len(m.warnings))) + "\n")
		// Show only the most recent few; the log has the full trail.
		start := len(m.warnings) - 5
		if start < 0 {
			start = 0
		}
		for _, w := range m.warnings[start:] {
			b.WriteString(dimStyle.Render("  "+w) + "\n")
		}
	}

	if !m.done {
		b.WriteString("\n" + dimStyle.Render("q to quit") + "\n")
	}
	return b.String()
}
