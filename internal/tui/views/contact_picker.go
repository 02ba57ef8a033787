package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

// ContactPicker lists the directory's users to start a conversation with. The
// input narrows the table as the user types.
type ContactPicker struct {
	*tview.Flex
	theme    *ui.Theme
	input    *tview.InputField
	results  *tview.Table
	contacts []chat.Contact
	visible  []chat.Contact
	loading  bool
	onChoose func(chat.Contact)
	now      func() time.Time
}

// NewContactPicker creates an empty picker.
func NewContactPicker(theme *ui.Theme) *ContactPicker {
	input := tview.NewInputField().
		SetLabel(" Contact: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	cp := &ContactPicker{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
		now:     time.Now,
	}

	input.SetChangedFunc(func(string) { cp.render() })
	results.SetSelectedFunc(func(row, _ int) {
		if c, ok := cp.byRow(row); ok && cp.onChoose != nil {
			cp.onChoose(c)
		}
	})
	cp.render()
	return cp
}

// Name implements ui.Component.
func (cp *ContactPicker) Name() string { return "New conversation" }

// Focus implements ui.Component.
func (cp *ContactPicker) FocusTarget() tview.Primitive { return cp.input }

// SetOnChoose sets the callback for Enter on a contact.
func (cp *ContactPicker) SetOnChoose(fn func(chat.Contact)) {
	cp.onChoose = fn
}

// SetOnInputDone sets what Enter, Tab and Escape do in the input.
func (cp *ContactPicker) SetOnInputDone(fn func(tcell.Key)) {
	cp.input.SetDoneFunc(fn)
}

// Reset clears the query and marks the list as loading.
func (cp *ContactPicker) Reset(query string) {
	cp.contacts = nil
	cp.loading = true
	cp.input.SetText(query)
	cp.render()
}

// Update replaces the contacts.
func (cp *ContactPicker) Update(contacts []chat.Contact) {
	cp.contacts = contacts
	cp.loading = false
	cp.render()
}

// Results returns the contact table.
func (cp *ContactPicker) Results() *tview.Table {
	return cp.results
}

// Selected returns the contact under the cursor.
func (cp *ContactPicker) Selected() (chat.Contact, bool) {
	row, _ := cp.results.GetSelection()
	return cp.byRow(row)
}

// Single returns the only contact left by the query, if exactly one is.
func (cp *ContactPicker) Single() (chat.Contact, bool) {
	if len(cp.visible) != 1 {
		return chat.Contact{}, false
	}
	return cp.visible[0], true
}

func (cp *ContactPicker) byRow(row int) (chat.Contact, bool) {
	if row < 1 || row > len(cp.visible) {
		return chat.Contact{}, false
	}
	return cp.visible[row-1], true
}

func (cp *ContactPicker) render() {
	query := cp.input.GetText()
	cp.results.Clear()

	for col, h := range []string{" ", " NAME", " EMAIL", " LAST SEEN"} {
		exp := 0
		if col == 1 || col == 2 {
			exp = 1
		}
		cp.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(cp.theme.TableHeaderFg).
			SetBackgroundColor(cp.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(exp))
	}

	now := cp.now()
	cp.visible = cp.visible[:0]
	for _, c := range cp.contacts {
		if query != "" && !containsFold(c.DisplayName(), query) && !containsFold(c.Email, query) && !containsFold(c.ID, query) {
			continue
		}
		cp.visible = append(cp.visible, c)
		row := len(cp.visible)

		presence := " "
		if c.Online {
			presence = "●"
		}
		name := c.DisplayName()
		if name == "" {
			name = c.ID
		}
		cp.results.SetCell(row, 0, tview.NewTableCell(presence).SetTextColor(cp.theme.OnlineColor))
		cp.results.SetCell(row, 1, tview.NewTableCell(" "+displayText(name)).SetExpansion(1).SetTextColor(cp.theme.FgColor))
		cp.results.SetCell(row, 2, tview.NewTableCell(" "+displayText(c.Email)).SetExpansion(1).SetTextColor(cp.theme.FgColor))
		cp.results.SetCell(row, 3, tview.NewTableCell(" "+formatLastSeen(c.Online, c.LastSeen, now)).SetTextColor(cp.theme.FgColor))
	}

	switch {
	case cp.loading:
		cp.results.SetTitle(" Contacts (loading) ")
	case query != "":
		cp.results.SetTitle(fmt.Sprintf(" Contacts (%d/%d) ", len(cp.visible), len(cp.contacts)))
	default:
		cp.results.SetTitle(fmt.Sprintf(" Contacts (%d) ", len(cp.contacts)))
	}
	if len(cp.visible) > 0 {
		cp.results.Select(1, 0)
	}
}
