package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderTable renders rows under headers. Rows listed in highlight are drawn
// with OverdueCellStyle.
func RenderTable(headers []string, rows [][]string, highlight map[int]bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SubtleStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case highlight[row]:
				return OverdueCellStyle
			default:
				return TableCellStyle
			}
		})
	return t.String()
}
