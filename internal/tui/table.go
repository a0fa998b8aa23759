package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"handleprobe/internal/model"
)

var (
	headStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#0EA5E9", Dark: "#7DD3FC"})
	cellStyle     = lipgloss.NewStyle()
	foundStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#16A34A", Dark: "#4ADE80"})
	notFoundStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#94A3B8"})
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"})
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#FBBF24"})
)

func stateLabel(r model.CheckResult) string {
	label := string(r.State)
	if r.ViaBackup {
		label += " (backup)"
	}
	switch r.State {
	case model.StateFound:
		return foundStyle.Render(label)
	case model.StateError:
		return errorStyle.Render(label)
	default:
		return notFoundStyle.Render(label)
	}
}

func latency(r model.CheckResult) string {
	if r.LatencyMS == nil {
		return "-"
	}
	return strconv.FormatInt(*r.LatencyMS, 10) + "ms"
}

// RenderResults draws the result table followed by a summary line. With
// foundOnly set, rows that are not found are left out of the table but
// still counted.
func RenderResults(snap model.Snapshot, foundOnly bool) string {
	if len(snap.Results) == 0 {
		return "No results."
	}

	headers := []string{"Site", "Category", "URL", "Status", "Latency"}
	rows := make([][]string, 0, len(snap.Results))
	var failed []string
	for _, r := range snap.Results {
		if r.State == model.StateError {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.SiteName(), r.ErrorDetail))
		}
		if foundOnly && r.State != model.StateFound {
			continue
		}
		rows = append(rows, []string{r.SiteName(), r.Task.Site.Category, r.Task.DisplayURL(), stateLabel(r), latency(r)})
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Results for " + snap.Handle))
	b.WriteString("\n")
	writeTable(&b, headers, rows)

	s := snap.Stats
	b.WriteString(mutedStyle.Render(fmt.Sprintf("Found: %d  Not found: %d  Errors: %d  Mean latency: %.0fms",
		s.Found, s.NotFound, s.Errors, s.MeanLatencyMS)))
	b.WriteString("\n")
	if len(failed) > 0 {
		b.WriteString(warnStyle.Render("Could not check: " + strings.Join(failed, ", ")))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSites lists registry rules.
func RenderSites(sites []model.SiteRule) string {
	if len(sites) == 0 {
		return "No sites."
	}
	rows := make([][]string, 0, len(sites))
	for _, s := range sites {
		rows = append(rows, []string{s.Name, s.Category, s.URLTemplate})
	}
	var b strings.Builder
	writeTable(&b, []string{"Site", "Category", "URL"}, rows)
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d sites", len(sites))))
	b.WriteString("\n")
	return b.String()
}

// RenderTable lays out rows under headers with aligned columns.
func RenderTable(headers []string, rows [][]string) string {
	var b strings.Builder
	writeTable(&b, headers, rows)
	return b.String()
}

func writeTable(b *strings.Builder, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, col := range row {
			if lipgloss.Width(col) > widths[i] {
				widths[i] = lipgloss.Width(col)
			}
		}
	}
	b.WriteString(formatRow(headers, widths, headStyle))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(formatRow(row, widths, cellStyle))
		b.WriteString("\n")
	}
}

func formatRow(cols []string, widths []int, style lipgloss.Style) string {
	cells := make([]string, len(cols))
	for i, col := range cols {
		cells[i] = style.Render(padRight(col, widths[i]))
	}
	return strings.Join(cells, "  ")
}

func padRight(s string, width int) string {
	if lipgloss.Width(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-lipgloss.Width(s))
}
