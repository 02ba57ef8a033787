package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/chatline/internal/tui/ui"
)

// HelpEntry is one line of the help page.
type HelpEntry struct {
	Key         string
	Description string
}

// HelpSection groups entries under a heading.
type HelpSection struct {
	Title   string
	Entries []HelpEntry
}

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a help page for sections.
func NewHelpView(theme *ui.Theme, sections []HelpSection) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	_, _ = fmt.Fprint(hv, hv.render(sections))
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// Focus implements ui.Component.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv.TextView }

func (hv *HelpView) render(sections []HelpSection) string {
	kc := ui.Color(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range sections {
		width := 0
		for _, e := range s.Entries {
			width = max(width, len(e.Key))
		}
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.Title)
		for _, e := range s.Entries {
			fmt.Fprintf(&b, "  [%s]%s[-]%s  %s\n",
				kc, tview.Escape(e.Key), strings.Repeat(" ", width-len(e.Key)), e.Description)
		}
	}
	return b.String()
}
