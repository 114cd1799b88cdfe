package formatter

import (
	"fmt"
	"strings"

	"github.com/harunnryd/familiar/internal/orchestrator/memory"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

const barWidth = 20

type TableFormatter struct {
	headerStyle  lipgloss.Style
	cellStyle    lipgloss.Style
	readyStyle   lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")
	amber := lipgloss.Color("214")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		cellStyle: lipgloss.NewStyle().
			Padding(0, 1),
		readyStyle: lipgloss.NewStyle().
			Foreground(amber).
			Bold(true).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) FormatDesires(report DesireReport) (string, error) {
	if len(report.Drives) == 0 {
		return "No drives configured", nil
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row >= 0 && row < len(report.Drives) && report.Drives[row].Ready:
				return f.readyStyle
			default:
				return f.cellStyle
			}
		}).
		Headers("Drive", "Level", "")

	for _, d := range report.Drives {
		t.Row(d.Drive, fmt.Sprintf("%.2f", d.Level), Bar(d.Level, barWidth))
	}

	out := t.String()
	if report.Curiosity != "" {
		out += "\nCurious about: " + report.Curiosity
	}
	return out, nil
}

func (f *TableFormatter) FormatMemories(memories []memory.Memory) (string, error) {
	if len(memories) == 0 {
		return "No memories found", nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers("When", "Kind", "Memory", "Score")

	for _, m := range memories {
		when := ""
		if !m.CreatedAt.IsZero() {
			when = m.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		t.Row(when, m.Kind, truncateString(m.Content, 60), fmt.Sprintf("%.2f", m.Score))
	}

	return t.String(), nil
}

// Bar renders level in [0,1] as a fixed-width gauge.
func Bar(level float64, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
