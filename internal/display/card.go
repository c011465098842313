// Package display renders bingo cards and the terminal watch UI.
package display

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/lox/bingohall/internal/card"
	"github.com/lox/bingohall/internal/pattern"
)

// RenderCard draws c under its column labels. Marked numbers are
// highlighted and last, when marked, stands out from the rest.
func RenderCard(c card.Card, layout card.Layout, marked pattern.Marked, last int, styles *Styles) string {
	headers := make([]string, len(layout.Columns))
	for i, col := range layout.Columns {
		headers[i] = col.Label
	}

	rows := make([][]string, c.Size())
	for row := range c.Size() {
		rows[row] = make([]string, c.Size())
		for col := range c.Size() {
			cell := c.At(row, col)
			if cell.IsFree() {
				rows[row][col] = "★"
				continue
			}
			rows[row][col] = cell.String()
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			cell := c.At(row, col)
			v, ok := cell.Value()
			switch {
			case !ok:
				return styles.Free
			case v == last && marked.Has(v):
				return styles.Last
			case marked.Has(v):
				return styles.Marked
			default:
				return styles.Cell
			}
		})

	title := styles.Title.Render(fmt.Sprintf("Card #%d", c.Number))
	return lipgloss.JoinVertical(lipgloss.Center, title, t.Render())
}
