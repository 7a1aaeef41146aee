// Package ui provides an optional bubbletea live dashboard for cairofuzz's
// monitor line, adapted from the teacher project's internal/ui/dashboard.go
// TUI model — the same single-Model/Update/View loop receiving ticks from
// outside the program, here fed by coordinator.Monitor snapshots instead of
// an internal tick timer.
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cairo-fuzz/cairofuzz/internal/coordinator"
)

var (
	colorCyan  = lipgloss.Color("#00FFFF")
	colorGreen = lipgloss.Color("#00FF00")
	colorRed   = lipgloss.Color("#FF0055")
	colorDim   = lipgloss.Color("#666666")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle  = lipgloss.NewStyle().Foreground(colorDim)
	valueStyle  = lipgloss.NewStyle().Bold(true)
	crashStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorGreen).Padding(1, 2)
)

// monitorMsg wraps a coordinator.Monitor snapshot as a bubbletea message.
type monitorMsg coordinator.Monitor

// model is the dashboard's bubbletea Model: it only ever holds the latest
// monitor snapshot, since the monitor line itself is already the full
// rendered state.
type model struct {
	latest coordinator.Monitor
	feed   <-chan coordinator.Monitor
}

func waitForMonitor(feed <-chan coordinator.Monitor) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-feed
		if !ok {
			return tea.Quit()
		}
		return monitorMsg(m)
	}
}

func (m model) Init() tea.Cmd {
	return waitForMonitor(m.feed)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case monitorMsg:
		m.latest = coordinator.Monitor(msg)
		return m, waitForMonitor(m.feed)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	row := func(label string, value string) string {
		return labelStyle.Render(label+": ") + valueStyle.Render(value) + "\n"
	}

	body := headerStyle.Render("cairofuzz") + "\n\n"
	body += row("uptime", fmt.Sprintf("%.2fs", m.latest.UptimeSeconds))
	body += row("fuzz cases", fmt.Sprintf("%d", m.latest.FuzzCases))
	body += row("fcps", fmt.Sprintf("%.2f", m.latest.FuzzCasesPS))
	body += row("coverage", fmt.Sprintf("%d", m.latest.Coverage))
	body += row("inputs", fmt.Sprintf("%d", m.latest.Inputs))
	body += labelStyle.Render("crashes: ") + crashStyle.Render(fmt.Sprintf("%d total, %d unique", m.latest.Crashes, m.latest.UniqueCrashes)) + "\n"

	return panelStyle.Render(body)
}

// RunDashboard blocks, driving a bubbletea program that renders every
// monitor snapshot received on feed until the program quits (Ctrl-C, q, or
// the feed channel closing). It backs --tui; the coordinator still prints
// coordinator.Monitor.Line() to stdout for every snapshot while it runs.
func RunDashboard(feed <-chan coordinator.Monitor) error {
	p := tea.NewProgram(model{feed: feed})
	_, err := p.Run()
	return err
}
