package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	warnColor  = lipgloss.Color("#F59E0B")
	mutedColor = lipgloss.Color("#6B7280")
	headColor  = lipgloss.Color("#7C3AED")

	warnStyle   = lipgloss.NewStyle().Foreground(warnColor).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle = lipgloss.NewStyle().Foreground(headColor).Bold(true)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(warnColor).
			Padding(0, 1)
)

// renderTable lays out rows in left-aligned columns with a styled header.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			cellStyle := style.Width(widths[i])
			if i < len(cells)-1 {
				cellStyle = cellStyle.PaddingRight(2).Width(widths[i] + 2)
			}
			parts[i] = cellStyle.Render(c)
		}
		return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
	}

	var sb strings.Builder
	sb.WriteString(line(header, headerStyle))
	sb.WriteString("\n")
	for _, row := range rows {
		sb.WriteString(line(row, lipgloss.NewStyle()))
		sb.WriteString("\n")
	}
	return sb.String()
}
