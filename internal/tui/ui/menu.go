package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is how many hints fit in one column of the header.
const menuRows = 6

// Menu displays keyboard shortcut hints in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates an empty menu.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints top to bottom, then left to right.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.render(hints))
}

func (m *Menu) render(hints []MenuHint) string {
	width := 0
	for _, h := range hints {
		width = max(width, len(h.Key)+len(h.Description)+4)
	}

	rows := make([]strings.Builder, min(len(hints), menuRows))
	for i, h := range hints {
		color := m.theme.MenuKeyColor
		if h.Numeric {
			color = m.theme.NumericKeyColor
		}
		cell := fmt.Sprintf("<%s> %s", h.Key, h.Description)
		row := &rows[i%menuRows]
		fmt.Fprintf(row, "[%s::b]<%s>[-:-:-] %s%s",
			Color(color), tview.Escape(h.Key), tview.Escape(h.Description),
			strings.Repeat(" ", width-len(cell)))
	}

	lines := make([]string, len(rows))
	for i := range rows {
		lines[i] = strings.TrimRight(rows[i].String(), " ")
	}
	return strings.Join(lines, "\n")
}
