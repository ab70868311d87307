package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskforge/taskforge/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4"))

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeColumnStyle = columnStyle.
				BorderForeground(lipgloss.Color("#4ECDC4"))

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252"))

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	selectedCardStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	errorCardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC857"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// View implements tea.Model.
func (b *Board) View() string {
	if b.quitting {
		return "Goodbye!\n"
	}

	sections := []string{
		titleStyle.Render(" taskforge"),
		b.viewColumns(),
	}

	if b.showLogs {
		sections = append(sections, b.viewLogs())
	}
	if b.entering {
		sections = append(sections, "New task: "+b.input.View())
	}
	if b.status != "" {
		sections = append(sections, statusStyle.Render(b.status))
	}
	sections = append(sections, b.viewFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

// viewColumns renders the four board columns side by side.
func (b *Board) viewColumns() string {
	colWidth := 24
	if b.width > 0 {
		if w := b.width/len(columns) - 4; w > 16 {
			colWidth = w
		}
	}

	rendered := make([]string, 0, len(columns))
	for i, status := range columns {
		rendered = append(rendered, b.viewColumn(i, status, colWidth))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (b *Board) viewColumn(index int, status models.TaskStatus, width int) string {
	tasks := b.columnTasks(status)

	lines := []string{
		columnHeaderStyle.Render(fmt.Sprintf("%s (%d)", columnTitles[status], len(tasks))),
	}
	for row, task := range tasks {
		label := truncate(task.Title, width-4)
		switch {
		case index == b.col && row == b.row:
			label = selectedCardStyle.Render(" " + label + " ")
		case task.ErrorMessage != "":
			label = errorCardStyle.Render("! " + label)
		default:
			label = cardStyle.Render("  " + label)
		}
		lines = append(lines, label)
	}
	if len(tasks) == 0 {
		lines = append(lines, cardStyle.Render("  -"))
	}

	style := columnStyle
	if index == b.col {
		style = activeColumnStyle
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

// viewLogs renders the most recent agent output lines.
func (b *Board) viewLogs() string {
	const shown = 10
	start := 0
	if len(b.logs) > shown {
		start = len(b.logs) - shown
	}

	var sb strings.Builder
	sb.WriteString(columnHeaderStyle.Render("Logs"))
	sb.WriteString("\n")
	for _, entry := range b.logs[start:] {
		ts := entry.Timestamp.Format("15:04:05")
		sb.WriteString(logStyle.Render(fmt.Sprintf("%s %.8s [%s] %s", ts, entry.TaskID, entry.Stream, entry.Message)))
		sb.WriteString("\n")
	}
	if len(b.logs) == 0 {
		sb.WriteString(logStyle.Render("no output yet"))
	}
	return sb.String()
}

func (b *Board) viewFooter() string {
	if b.entering {
		return footerStyle.Render("Enter to create | Esc to cancel")
	}
	return footerStyle.Render("←/→ column  ↑/↓ task  n new  s start  c cancel  m merge  x delete  L logs  q quit")
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// mustGetwd returns the working directory, falling back to "." rather
// than failing task creation.
func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
