// Package tui renders live search progress and result tables for the CLI.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"handleprobe/internal/model"
)

type snapshotMsg model.Snapshot

type closedMsg struct{}
type quitMsg struct{}

// Progress follows one search's update stream and draws a progress bar.
type Progress struct {
	handle  string
	updates <-chan model.Snapshot
	cancel  func()
	bar     progress.Model
	last    model.Snapshot
	// Aborted is set when the user interrupted the search.
	Aborted bool
}

func NewProgress(handle string, updates <-chan model.Snapshot, cancel func()) Progress {
	bar := progress.New(
		progress.WithGradient("#60A5FA", "#FBBF24"),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)
	if cancel == nil {
		cancel = func() {}
	}
	return Progress{
		handle:  handle,
		updates: updates,
		cancel:  cancel,
		bar:     bar,
	}
}

// Last is the newest snapshot the model has seen.
func (m Progress) Last() model.Snapshot {
	return m.last
}

func waitFor(updates <-chan model.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m Progress) Init() tea.Cmd {
	return waitFor(m.updates)
}

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.Aborted = true
			m.cancel()
			return m, tea.Quit
		}
	case snapshotMsg:
		m.last = model.Snapshot(msg)
		return m, tea.Batch(m.bar.SetPercent(fraction(m.last.Stats)), waitFor(m.updates))
	case closedMsg:
		return m, tea.Batch(
			m.bar.SetPercent(1),
			tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
				return quitMsg{}
			}),
		)
	case quitMsg:
		return m, tea.Quit
	}
	updated, cmd := m.bar.Update(msg)
	if bar, ok := updated.(progress.Model); ok {
		m.bar = bar
	}
	return m, cmd
}

func fraction(s model.RunStats) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

func (m Progress) View() string {
	s := m.last.Stats
	title := titleStyle.Render("handleprobe")
	counts := mutedStyle.Render(fmt.Sprintf("%d/%d", s.Completed, s.Total))
	target := accentStyle.Render(m.handle)
	tally := mutedStyle.Render(fmt.Sprintf("found %d  not found %d  errors %d", s.Found, s.NotFound, s.Errors))

	header := boxStyle.Render(fmt.Sprintf("%s  %s\nChecking %s\n%s", title, counts, target, tally))

	barView := m.bar.View()
	if m.last.Done {
		barView = m.bar.ViewAs(1)
	}
	return fmt.Sprintf("%s\n%s\n", header, boxStyle.Render(barView))
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#0F172A", Dark: "#E2E8F0"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#64748B", Dark: "#94A3B8"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0EA5E9", Dark: "#60A5FA"})
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#334155"}).
			Padding(0, 1)
)
